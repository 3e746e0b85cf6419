// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep508 implements PEP 508 -- Dependency specification for Python Software Packages.
//
// https://www.python.org/dev/peps/pep-0508/
package pep508

import (
	"fmt"
	"regexp"
	"strings"
)

// Requirement is a parsed dependency specification.  The version specifier and marker are kept
// as text; use pep440.ParseSpecifier and ParseMarker to interpret them.
type Requirement struct {
	Name   string
	Extras []string
	// Version is the version specifier with any surrounding parentheses removed; it is empty
	// for a URL requirement.
	Version string
	// URL is set for a "name @ url" requirement.
	URL    string
	Marker string
}

var (
	reName    = regexp.MustCompile(`^[A-Za-z0-9](?:[-_.A-Za-z0-9]*[A-Za-z0-9])?`)
	reExtras  = regexp.MustCompile(`^\[([^\]]*)\]`)
	reVersion = regexp.MustCompile(`^[-~=!<>A-Za-z0-9_.*+, \t]*`)
)

// ParseRequirement splits a requirement string in to its parts.  It checks the overall shape of
// the requirement, but does not validate the extras, the version specifier, or the marker.
func ParseRequirement(str string) (*Requirement, error) {
	var ret Requirement
	rest := strings.TrimSpace(str)

	name := reName.FindString(rest)
	if name == "" {
		return nil, fmt.Errorf("pep508.ParseRequirement: %q: missing distribution name", str)
	}
	ret.Name = name
	rest = strings.TrimLeft(rest[len(name):], " \t")

	if match := reExtras.FindStringSubmatch(rest); match != nil {
		for _, extra := range strings.Split(match[1], ",") {
			ret.Extras = append(ret.Extras, strings.TrimSpace(extra))
		}
		rest = strings.TrimLeft(rest[len(match[0]):], " \t")
	} else if strings.HasPrefix(rest, "[") {
		return nil, fmt.Errorf("pep508.ParseRequirement: %q: unterminated extras", str)
	}

	var markerOK bool
	switch {
	case strings.HasPrefix(rest, "@"):
		rest = strings.TrimLeft(rest[1:], " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		ret.URL = rest[:end]
		if ret.URL == "" {
			return nil, fmt.Errorf("pep508.ParseRequirement: %q: empty URL", str)
		}
		afterURL := rest[end:]
		rest = strings.TrimLeft(afterURL, " \t")
		// A marker after a URL must be separated from it by whitespace.
		markerOK = afterURL != rest
	case strings.HasPrefix(rest, "("):
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, fmt.Errorf("pep508.ParseRequirement: %q: unterminated version specifier", str)
		}
		ret.Version = strings.TrimSpace(rest[1:end])
		rest = strings.TrimLeft(rest[end+1:], " \t")
		markerOK = true
	default:
		version := reVersion.FindString(rest)
		ret.Version = strings.TrimSpace(version)
		rest = rest[len(version):]
		markerOK = true
	}

	switch {
	case rest == "":
	case strings.HasPrefix(rest, ";") && markerOK:
		ret.Marker = strings.TrimSpace(rest[1:])
		if ret.Marker == "" {
			return nil, fmt.Errorf("pep508.ParseRequirement: %q: empty environment marker", str)
		}
	default:
		return nil, fmt.Errorf("pep508.ParseRequirement: %q: unexpected text: %q", str, rest)
	}

	return &ret, nil
}

func (req Requirement) String() string {
	var ret strings.Builder
	ret.WriteString(req.Name)
	if len(req.Extras) > 0 {
		ret.WriteString("[" + strings.Join(req.Extras, ",") + "]")
	}
	switch {
	case req.URL != "":
		ret.WriteString(" @ " + req.URL)
		if req.Marker != "" {
			ret.WriteString(" ")
		}
	case req.Version != "":
		ret.WriteString(req.Version)
	}
	if req.Marker != "" {
		ret.WriteString("; " + req.Marker)
	}
	return ret.String()
}
