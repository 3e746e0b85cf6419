// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/datawire/pybuild/pkg/python/pep440"
	"github.com/datawire/pybuild/pkg/python/pep503"
)

// Variables is the set of environment-marker variables defined by PEP 508.
var Variables = map[string]struct{}{
	"python_version":                 {},
	"python_full_version":            {},
	"os_name":                        {},
	"sys_platform":                   {},
	"platform_release":               {},
	"platform_system":                {},
	"platform_version":               {},
	"platform_machine":               {},
	"platform_python_implementation": {},
	"implementation_name":            {},
	"implementation_version":         {},
	"extra":                          {},
}

// Environment maps marker variable names to their values for a target interpreter.
type Environment map[string]string

// A Marker is a parsed environment marker expression.
type Marker interface {
	String() string
	// Evaluate reports whether the marker holds in env.  It fails if the marker refers to a
	// variable that env doesn't define, or orders values that aren't versions.
	Evaluate(env Environment) (bool, error)

	isMarker()
}

type MarkerOr []Marker

type MarkerAnd []Marker

type MarkerCompare struct {
	LHS MarkerValue
	Op  string
	RHS MarkerValue
}

// MarkerValue is either a variable reference or a string literal.
type MarkerValue struct {
	Variable string
	Literal  string
}

func (MarkerOr) isMarker()      {}
func (MarkerAnd) isMarker()     {}
func (MarkerCompare) isMarker() {}

func (m MarkerOr) String() string {
	parts := make([]string, 0, len(m))
	for _, sub := range m {
		parts = append(parts, sub.String())
	}
	return strings.Join(parts, " or ")
}

func (m MarkerAnd) String() string {
	parts := make([]string, 0, len(m))
	for _, sub := range m {
		str := sub.String()
		if _, isOr := sub.(MarkerOr); isOr {
			str = "(" + str + ")"
		}
		parts = append(parts, str)
	}
	return strings.Join(parts, " and ")
}

func (m MarkerCompare) String() string {
	return m.LHS.String() + " " + m.Op + " " + m.RHS.String()
}

func (v MarkerValue) String() string {
	if v.Variable != "" {
		return v.Variable
	}
	if strings.Contains(v.Literal, `"`) {
		return "'" + v.Literal + "'"
	}
	return `"` + v.Literal + `"`
}

func (m MarkerOr) Evaluate(env Environment) (bool, error) {
	for _, sub := range m {
		ok, err := sub.Evaluate(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m MarkerAnd) Evaluate(env Environment) (bool, error) {
	for _, sub := range m {
		ok, err := sub.Evaluate(env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (v MarkerValue) resolve(env Environment) (string, error) {
	if v.Variable == "" {
		return v.Literal, nil
	}
	val, ok := env[v.Variable]
	if !ok {
		return "", fmt.Errorf("undefined environment marker variable: %q", v.Variable)
	}
	return val, nil
}

func (m MarkerCompare) Evaluate(env Environment) (bool, error) {
	lhs, err := m.LHS.resolve(env)
	if err != nil {
		return false, err
	}
	rhs, err := m.RHS.resolve(env)
	if err != nil {
		return false, err
	}
	if m.LHS.Variable == "extra" || m.RHS.Variable == "extra" {
		lhs, rhs = pep503.NormalizeName(lhs), pep503.NormalizeName(rhs)
	}

	switch m.Op {
	case "in":
		return strings.Contains(rhs, lhs), nil
	case "not in":
		return !strings.Contains(rhs, lhs), nil
	}

	// Use PEP 440 rules when both sides are versions.
	if ver, err := pep440.ParseVersion(lhs); err == nil {
		if spec, err := pep440.ParseSpecifier(m.Op + rhs); err == nil {
			return spec.Match(*ver), nil
		}
	}

	switch m.Op {
	case "==", "===":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	default:
		return false, fmt.Errorf("cannot compare non-version values with %q: %q %s %q",
			m.Op, lhs, m.Op, rhs)
	}
}

// ParseMarker parses an environment marker expression, such as
//
//	python_version < "3.8" and (sys_platform == "win32" or extra == "test")
func ParseMarker(str string) (Marker, error) {
	toks, err := tokenize(str)
	if err != nil {
		return nil, fmt.Errorf("pep508.ParseMarker: %q: %w", str, err)
	}
	p := &parser{toks: toks}
	ret, err := p.parseOr()
	if err == nil && p.pos < len(p.toks) {
		err = fmt.Errorf("unexpected %s", p.toks[p.pos])
	}
	if err != nil {
		return nil, fmt.Errorf("pep508.ParseMarker: %q: %w", str, err)
	}
	return ret, nil
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokOp
	tokAnd
	tokOr
	tokString
	tokVariable
)

type token struct {
	kind tokenKind
	text string
}

func (t token) String() string {
	switch t.kind {
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokVariable:
		return fmt.Sprintf("name %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

func isNameRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(str string) ([]token, error) {
	var toks []token
	rest := str
outer:
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return toks, nil
		}
		switch rest[0] {
		case '(':
			toks = append(toks, token{tokLParen, "("})
			rest = rest[1:]
			continue
		case ')':
			toks = append(toks, token{tokRParen, ")"})
			rest = rest[1:]
			continue
		case '"', '\'':
			end := strings.IndexByte(rest[1:], rest[0])
			if end < 0 {
				return nil, fmt.Errorf("unterminated string: %s", rest)
			}
			toks = append(toks, token{tokString, rest[1 : end+1]})
			rest = rest[end+2:]
			continue
		}
		for _, op := range operators {
			if strings.HasPrefix(rest, op) {
				toks = append(toks, token{tokOp, op})
				rest = rest[len(op):]
				continue outer
			}
		}
		end := strings.IndexFunc(rest, func(r rune) bool { return !isNameRune(r) })
		if end < 0 {
			end = len(rest)
		}
		if end == 0 {
			return nil, fmt.Errorf("unexpected character %q", rest[0])
		}
		word := rest[:end]
		rest = rest[end:]
		switch word {
		case "and":
			toks = append(toks, token{tokAnd, word})
		case "or":
			toks = append(toks, token{tokOr, word})
		case "in":
			toks = append(toks, token{tokOp, word})
		case "not":
			after := strings.TrimLeft(rest, " \t")
			if !strings.HasPrefix(after, "in") || (len(after) > 2 && isNameRune(rune(after[2]))) {
				return nil, fmt.Errorf(`"not" must be followed by "in"`)
			}
			toks = append(toks, token{tokOp, "not in"})
			rest = after[2:]
		default:
			toks = append(toks, token{tokVariable, word})
		}
	}
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseOr() (Marker, error) {
	var ret MarkerOr
	for {
		sub, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		ret = append(ret, sub)
		if tok, ok := p.peek(); !ok || tok.kind != tokOr {
			break
		}
		p.pos++
	}
	if len(ret) == 1 {
		return ret[0], nil
	}
	return ret, nil
}

func (p *parser) parseAnd() (Marker, error) {
	var ret MarkerAnd
	for {
		sub, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ret = append(ret, sub)
		if tok, ok := p.peek(); !ok || tok.kind != tokAnd {
			break
		}
		p.pos++
	}
	if len(ret) == 1 {
		return ret[0], nil
	}
	return ret, nil
}

func (p *parser) parseExpr() (Marker, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if tok.kind == tokLParen {
		p.pos++
		ret, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok, ok := p.peek(); !ok || tok.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return ret, nil
	}

	lhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	tok, ok = p.peek()
	if !ok || tok.kind != tokOp {
		if ok {
			return nil, fmt.Errorf("expected a comparison operator, got %s", tok)
		}
		return nil, fmt.Errorf("expected a comparison operator")
	}
	p.pos++
	rhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.peek(); ok && tok.kind == tokOp {
		return nil, fmt.Errorf("chained comparisons are not allowed")
	}
	return MarkerCompare{LHS: lhs, Op: tok.text, RHS: rhs}, nil
}

func (p *parser) parseValue() (MarkerValue, error) {
	tok, ok := p.peek()
	if !ok {
		return MarkerValue{}, fmt.Errorf("unexpected end of marker")
	}
	switch tok.kind {
	case tokString:
		p.pos++
		return MarkerValue{Literal: tok.text}, nil
	case tokVariable:
		if _, known := Variables[tok.text]; !known {
			return MarkerValue{}, fmt.Errorf("invalid variable name: %q", tok.text)
		}
		p.pos++
		return MarkerValue{Variable: tok.text}, nil
	default:
		return MarkerValue{}, fmt.Errorf("expected a variable or string, got %s", tok)
	}
}
