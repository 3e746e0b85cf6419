// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package validate checks a project configuration against the rules that package indexes
// enforce.  Checks never fail; they return a list of human-readable problems.
package validate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datawire/pybuild/pkg/classifiers"
	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/python/pep508"
)

// ClassifierSource supplies the trove classifier vocabulary; *classifiers.Cache implements it.
type ClassifierSource interface {
	Known(ctx context.Context, wanted []string) (known map[string]bool, ok bool)
}

var _ ClassifierSource = (*classifiers.Cache)(nil)

type Options struct {
	// Classifiers is nil to skip checking classifiers.
	Classifiers ClassifierSource
}

// Config runs every check against a loaded configuration.  If the config doesn't name the
// distribution, the module name is checked in its place.
func Config(ctx context.Context, cfg *pyproject.LoadedConfig, opts Options) []string {
	md := cfg.Metadata
	if md.Name == "" {
		md.Name = cfg.Module
	}
	var problems []string
	problems = append(problems, Classifiers(ctx, md.Classifiers, opts.Classifiers)...)
	problems = append(problems, EntryPoints(cfg.EntryPoints)...)
	problems = append(problems, metadataProblems(&md)...)
	return problems
}

// Metadata runs the checks that apply to the core metadata alone.
func Metadata(ctx context.Context, md *coremetadata.Metadata, opts Options) []string {
	return append(Classifiers(ctx, md.Classifiers, opts.Classifiers), metadataProblems(md)...)
}

func metadataProblems(md *coremetadata.Metadata) []string {
	var problems []string
	problems = append(problems, Name(md.Name)...)
	problems = append(problems, RequiresPython(md.RequiresPython)...)
	problems = append(problems, RequiresDist(md.RequiresDist)...)
	problems = append(problems, URL(md.HomePage)...)
	problems = append(problems, ProjectURLs(md.ProjectURLs)...)
	return problems
}

var reName = regexp.MustCompile(`(?i)^([A-Z0-9]|[A-Z0-9][A-Z0-9._-]*[A-Z0-9])$`)

func Name(name string) []string {
	if !reName.MatchString(name) {
		return []string{fmt.Sprintf("Invalid name: %q", name)}
	}
	return nil
}

// Classifiers checks that every classifier is in the trove vocabulary.  "Private ::"
// classifiers, which PyPI refuses to upload, are always accepted.
func Classifiers(ctx context.Context, list []string, source ClassifierSource) []string {
	var wanted []string
	seen := make(map[string]bool)
	for _, classifier := range list {
		if strings.HasPrefix(classifier, "Private ::") || seen[classifier] {
			continue
		}
		seen[classifier] = true
		wanted = append(wanted, classifier)
	}
	if len(wanted) == 0 || source == nil {
		return nil
	}
	known, ok := source.Known(ctx, wanted)
	if !ok {
		return nil
	}
	sort.Strings(wanted)
	var problems []string
	for _, classifier := range wanted {
		if !known[classifier] {
			problems = append(problems, fmt.Sprintf("Unrecognised classifier: %q", classifier))
		}
	}
	return problems
}

var reIdentifier = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// isIdentifierAttr reports whether s is a dotted sequence of identifiers, such as
// "module.sub" or "obj.attr".
func isIdentifierAttr(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !reIdentifier.MatchString(part) {
			return false
		}
	}
	return true
}

// EntryPoints checks that every entry point is an object reference of the form
// "module.sub:attr.attr".
func EntryPoints(groups map[string]map[string]string) []string {
	var problems []string
	for _, groupName := range sortedKeys(groups) {
		group := groups[groupName]
		for _, name := range sortedKeys(group) {
			ref := group[name]
			var valid bool
			if mod, obj, hasObj := strings.Cut(ref, ":"); hasObj {
				valid = isIdentifierAttr(mod) && isIdentifierAttr(obj)
			} else {
				valid = isIdentifierAttr(ref)
			}
			if !valid {
				problems = append(problems, fmt.Sprintf("Invalid entry point in group %s: %s = %s",
					groupName, name, ref))
			}
		}
	}
	return problems
}

var reVersionClause = regexp.MustCompile(`(?i)^(~=|===?|!=|<=?|>=?)\s*[A-Z0-9\-_.*+!]+$`)

func validVersionSpecifier(spec string) bool {
	for _, clause := range strings.Split(spec, ",") {
		if !reVersionClause.MatchString(strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

func RequiresPython(spec string) []string {
	if spec == "" || validVersionSpecifier(spec) {
		return nil
	}
	return []string{fmt.Sprintf("Invalid requires-python: %q", spec)}
}

func RequiresDist(reqs []string) []string {
	var problems []string
	for _, str := range reqs {
		req, err := pep508.ParseRequirement(str)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Could not parse requirement: %q", str))
			continue
		}
		for _, extra := range req.Extras {
			if !isIdentifierAttr(extra) {
				problems = append(problems, fmt.Sprintf("Invalid extras in requirement: %q", str))
				break
			}
		}
		if req.Version != "" && !validVersionSpecifier(req.Version) {
			problems = append(problems, fmt.Sprintf("Invalid version specifier %q in requirement %q",
				req.Version, str))
		}
		if req.Marker != "" {
			problems = append(problems, EnvironmentMarker(req.Marker)...)
		}
	}
	return problems
}

// EnvironmentMarker checks a marker expression against the PEP 508 grammar and variable
// vocabulary.
func EnvironmentMarker(marker string) []string {
	if _, err := pep508.ParseMarker(marker); err != nil {
		if inner := errors.Unwrap(err); inner != nil {
			err = inner
		}
		return []string{fmt.Sprintf("Invalid environment marker %q: %v", marker, err)}
	}
	return nil
}

// URL checks a home page or project URL.  An empty URL is fine.
func URL(url string) []string {
	if url == "" {
		return nil
	}
	switch {
	case !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://"):
		return []string{fmt.Sprintf("URL %q doesn't start with https:// or http://", url)}
	case strings.SplitN(url, "//", 2)[1] == "":
		return []string{"URL missing address"}
	}
	return nil
}

// ProjectURLs checks "label, url" entries.
func ProjectURLs(entries []string) []string {
	var problems []string
	for _, entry := range entries {
		label, url, _ := strings.Cut(entry, ",")
		url = strings.TrimLeft(url, " \t")
		switch {
		case label == "":
			problems = append(problems, fmt.Sprintf("No name for project URL %q", url))
		case len(label) > 32:
			problems = append(problems, fmt.Sprintf("Project URL name %q longer than 32 characters", label))
		}
		problems = append(problems, URL(url)...)
	}
	return problems
}

func sortedKeys[T any](m map[string]T) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
