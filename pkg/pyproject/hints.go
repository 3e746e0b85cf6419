// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// hintCutoff is the minimum similarity ratio for a "did you mean" suggestion.
const hintCutoff = 0.7

// closestMatch returns the candidate most similar to word, or "" if none is similar enough.
// Ties go to the lexically greater candidate.
func closestMatch(word string, candidates []string) string {
	wordChars := strings.Split(word, "")
	var best string
	bestRatio := 0.0
	for _, candidate := range candidates {
		ratio := difflib.NewMatcher(strings.Split(candidate, ""), wordChars).Ratio()
		if ratio < hintCutoff {
			continue
		}
		if ratio > bestRatio || (ratio == bestRatio && candidate > best) {
			best, bestRatio = candidate, ratio
		}
	}
	return best
}

func unrecognisedKeyError(key string, allowed []string) error {
	if hint := closestMatch(key, allowed); hint != "" {
		return configErrorf("unrecognised metadata key: %q (did you mean %q?)", key, hint)
	}
	return configErrorf("unrecognised metadata key: %q", key)
}
