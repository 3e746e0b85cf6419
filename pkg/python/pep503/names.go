// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep503 implements the name normalization rules of PEP 503 -- Simple Repository API.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503

import (
	"regexp"
	"strings"
)

var reSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName returns the normalized form of a distribution name, as defined by PEP 503: runs
// of "-", "_", and "." collapse to a single "-", and the result is lower-cased.
func NormalizeName(name string) string {
	return strings.ToLower(reSeparators.ReplaceAllLiteralString(name, "-"))
}

// NormalizeWheelName returns the form of a distribution name used in wheel and ".dist-info"
// file names, where runs of separators collapse to "_" instead of "-".
//
// https://packaging.python.org/en/latest/specifications/binary-distribution-format/#escaping-and-unicode
func NormalizeWheelName(name string) string {
	return strings.ToLower(reSeparators.ReplaceAllLiteralString(name, "_"))
}

// SameName reports whether two distribution names refer to the same project.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
