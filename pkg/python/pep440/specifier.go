// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"fmt"
	"strings"
)

// Specifier is a comma-separated list of clauses; a version matches the Specifier if it matches
// every clause.
type Specifier []SpecifierClause

// ParseSpecifier parses a version specifier such as ">=3.6, !=3.7.*".  Empty clauses are
// ignored.
func ParseSpecifier(str string) (Specifier, error) {
	clauseStrs := strings.FieldsFunc(str, func(r rune) bool { return r == ',' })
	ret := make(Specifier, 0, len(clauseStrs))
	for _, clauseStr := range clauseStrs {
		clauseStr = strings.TrimSpace(clauseStr)
		if clauseStr == "" {
			continue
		}
		clause, err := parseSpecifierClause(clauseStr)
		if err != nil {
			return nil, fmt.Errorf("pep440.ParseSpecifier: %w", err)
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

func (spec Specifier) String() string {
	clauses := make([]string, 0, len(spec))
	for _, clause := range spec {
		clauses = append(clauses, clause.String())
	}
	return strings.Join(clauses, ",")
}

// Match reports whether ver satisfies every clause of the specifier.
func (spec Specifier) Match(ver Version) bool {
	for _, clause := range spec {
		if !clause.Match(ver) {
			return false
		}
	}
	return true
}

type CmpOp int

//nolint:revive,stylecheck // underscores make the prefix/strict pairs readable
const (
	CmpOp_Compatible CmpOp = iota
	CmpOp_StrictMatch
	CmpOp_PrefixMatch
	CmpOp_StrictExclude
	CmpOp_PrefixExclude
	CmpOp_LE
	CmpOp_GE
	CmpOp_LT
	CmpOp_GT
	CmpOp_Arbitrary
	_CmpOp_End
)

var cmpOpInfo = map[CmpOp]struct {
	desc  string
	token string
	match func(clause SpecifierClause, ver Version) bool
}{
	CmpOp_Compatible:    {"~=", "~=", matchCompatible},
	CmpOp_StrictMatch:   {"strict ==", "==", matchStrictMatch},
	CmpOp_PrefixMatch:   {"prefix ==", "==", matchPrefixMatch},
	CmpOp_StrictExclude: {"strict !=", "!=", matchStrictExclude},
	CmpOp_PrefixExclude: {"prefix !=", "!=", matchPrefixExclude},
	CmpOp_LE:            {"<=", "<=", matchLE},
	CmpOp_GE:            {">=", ">=", matchGE},
	CmpOp_LT:            {"<", "<", matchLT},
	CmpOp_GT:            {">", ">", matchGT},
	CmpOp_Arbitrary:     {"===", "===", matchArbitrary},
}

func (op CmpOp) String() string {
	info, ok := cmpOpInfo[op]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", int(op)))
	}
	return info.desc
}

// SpecifierClause is a single "{op}{version}" comparison.  For CmpOp_Arbitrary, Version is unset
// and Arbitrary holds the literal operand.
type SpecifierClause struct {
	CmpOp     CmpOp
	Version   Version
	Arbitrary string
}

func parseSpecifierClause(str string) (SpecifierClause, error) {
	var ret SpecifierClause
	str = strings.TrimSpace(str)

	minSegments := 1
	devOK := true
	localOK := false

	// Order matters: longer tokens must be checked before their prefixes.
	switch {
	case strings.HasPrefix(str, "==="):
		ret.CmpOp = CmpOp_Arbitrary
		ret.Arbitrary = strings.TrimSpace(str[3:])
		if ret.Arbitrary == "" {
			return ret, fmt.Errorf("empty operand in === specifier clause")
		}
		return ret, nil
	case strings.HasPrefix(str, "~="):
		ret.CmpOp = CmpOp_Compatible
		str = str[2:]
		minSegments = 2
	case strings.HasPrefix(str, "=="):
		ret.CmpOp = CmpOp_StrictMatch
		str = str[2:]
		localOK = true
		if strings.HasSuffix(str, ".*") {
			ret.CmpOp = CmpOp_PrefixMatch
			str = strings.TrimSuffix(str, ".*")
			devOK = false
			localOK = false
		}
	case strings.HasPrefix(str, "!="):
		ret.CmpOp = CmpOp_StrictExclude
		str = str[2:]
		localOK = true
		if strings.HasSuffix(str, ".*") {
			ret.CmpOp = CmpOp_PrefixExclude
			str = strings.TrimSuffix(str, ".*")
			devOK = false
			localOK = false
		}
	case strings.HasPrefix(str, "<="):
		ret.CmpOp = CmpOp_LE
		str = str[2:]
	case strings.HasPrefix(str, ">="):
		ret.CmpOp = CmpOp_GE
		str = str[2:]
	case strings.HasPrefix(str, "<"):
		ret.CmpOp = CmpOp_LT
		str = str[1:]
	case strings.HasPrefix(str, ">"):
		ret.CmpOp = CmpOp_GT
		str = str[1:]
	default:
		return ret, fmt.Errorf("invalid comparison operator: %q", str)
	}

	ver, err := parseVersion(str)
	if err != nil {
		return ret, err
	}
	if len(ver.Release) < minSegments {
		return ret, fmt.Errorf("at least %d release segments required in %s specifier clauses",
			minSegments, ret.CmpOp)
	}
	if ver.Dev != nil && !devOK {
		return ret, fmt.Errorf("dev-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	if len(ver.Local) > 0 && !localOK {
		return ret, fmt.Errorf("local-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	ret.Version = *ver
	return ret, nil
}

func (clause SpecifierClause) String() string {
	info, ok := cmpOpInfo[clause.CmpOp]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", int(clause.CmpOp)))
	}
	switch clause.CmpOp {
	case CmpOp_Arbitrary:
		return info.token + clause.Arbitrary
	case CmpOp_PrefixMatch, CmpOp_PrefixExclude:
		return info.token + clause.Version.String() + ".*"
	default:
		return info.token + clause.Version.String()
	}
}

// Match reports whether ver satisfies the clause.
func (clause SpecifierClause) Match(ver Version) bool {
	info, ok := cmpOpInfo[clause.CmpOp]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", int(clause.CmpOp)))
	}
	return info.match(clause, ver)
}

func matchCompatible(clause SpecifierClause, ver Version) bool {
	prefix := clause
	prefix.Version.Release = prefix.Version.Release[:len(prefix.Version.Release)-1]
	prefix.Version.Pre = nil
	prefix.Version.Post = nil
	prefix.Version.Dev = nil
	return matchGE(clause, ver) && matchPrefixMatch(prefix, ver)
}

func matchStrictMatch(clause SpecifierClause, ver Version) bool {
	// Without a local label in the clause, the candidate's local label is ignored.
	if len(clause.Version.Local) == 0 {
		return clause.Version.PublicVersion.Cmp(ver.PublicVersion) == 0
	}
	return clause.Version.Cmp(ver) == 0
}

func matchPrefixMatch(clause SpecifierClause, _ver Version) bool {
	spec, ver := clause.Version.PublicVersion, _ver.PublicVersion
	if spec.Epoch != ver.Epoch {
		return false
	}
	if spec.Pre == nil && spec.Post == nil && len(ver.Release) > len(spec.Release) {
		ver.Release = ver.Release[:len(spec.Release)]
	}
	if cmpRelease(spec, ver) != 0 {
		return false
	}
	if spec.Pre == nil && spec.Post == nil {
		return true
	}
	if (ver.Pre == nil) != (spec.Pre == nil) {
		return false
	}
	if spec.Pre != nil && *spec.Pre != *ver.Pre {
		return false
	}
	if spec.Post == nil {
		return true
	}
	return cmpOptional(spec.Post, ver.Post, -1) == 0
}

func matchStrictExclude(clause SpecifierClause, ver Version) bool {
	return !matchStrictMatch(clause, ver)
}

func matchPrefixExclude(clause SpecifierClause, ver Version) bool {
	return !matchPrefixMatch(clause, ver)
}

func matchLE(clause SpecifierClause, ver Version) bool {
	return clause.Version.PublicVersion.Cmp(ver.PublicVersion) >= 0
}

func matchGE(clause SpecifierClause, ver Version) bool {
	return clause.Version.PublicVersion.Cmp(ver.PublicVersion) <= 0
}

func sameRelease(a, b PublicVersion) bool {
	return a.Epoch == b.Epoch && cmpRelease(a, b) == 0
}

// matchLT excludes pre-releases of the clause's own release unless the clause is itself a
// pre-release.
func matchLT(clause SpecifierClause, ver Version) bool {
	spec := clause.Version.PublicVersion
	if spec.Cmp(ver.PublicVersion) <= 0 {
		return false
	}
	if !spec.IsPreRelease() && ver.IsPreRelease() && sameRelease(spec, ver.PublicVersion) {
		return false
	}
	return true
}

// matchGT excludes post-releases of the clause's own release unless the clause is itself a
// post-release, and local versions of the clause's version.
func matchGT(clause SpecifierClause, ver Version) bool {
	spec := clause.Version.PublicVersion
	if spec.Cmp(ver.PublicVersion) >= 0 {
		return false
	}
	if spec.Post == nil && ver.Post != nil && sameRelease(spec, ver.PublicVersion) {
		return false
	}
	return true
}

func matchArbitrary(clause SpecifierClause, ver Version) bool {
	return strings.EqualFold(clause.Arbitrary, ver.String())
}
