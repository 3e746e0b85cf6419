// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"path"
	"regexp"
	"strings"

	"github.com/datawire/pybuild/pkg/glob"
)

var reBadPatternChars = regexp.MustCompile(`[\x00-\x1f<>:"\\]`)

// normalizePattern checks one sdist include/exclude pattern and returns it in a clean
// slash-separated form.  A leading "!" (re-include) is kept.
func normalizePattern(pat, clude string) (string, error) {
	negate := strings.HasPrefix(pat, "!")
	body := strings.TrimPrefix(pat, "!")
	if negate && clude != "exclude" {
		return "", configErrorf("sdist %s pattern %q: only exclude patterns may start with \"!\"", clude, pat)
	}

	if reBadPatternChars.MatchString(body) {
		return "", configErrorf("sdist %s pattern %q contains bad characters (<>:\"\\ or control characters)",
			clude, pat)
	}
	if body == "" {
		return "", configErrorf("sdist %s pattern %q is empty", clude, pat)
	}
	if path.IsAbs(body) {
		return "", configErrorf("sdist %s pattern %q is an absolute path", clude, pat)
	}
	normed := path.Clean(body)
	if normed == ".." || strings.HasPrefix(normed, "../") {
		return "", configErrorf("sdist %s pattern %q points out of the directory containing pyproject.toml",
			clude, pat)
	}
	if err := glob.Validate(normed); err != nil {
		return "", configErrorf("sdist %s pattern %q: %v", clude, pat, err)
	}
	if negate {
		normed = "!" + normed
	}
	return normed, nil
}
