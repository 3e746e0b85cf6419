// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package glob extends path.Match with a recursive "**" component, as used by sdist
// include/exclude patterns.
package glob

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrBadPattern is wrapped by every error about a malformed pattern.
var ErrBadPattern = path.ErrBadPattern

// Match reports whether name matches pattern.  Both are slash-separated.  In addition to the
// path.Match syntax:
//
//   - "**" matches zero or more directory levels (but "a/**" does not match "a" itself);
//   - "**" may appear at most once;
//   - "**" must be a whole path component.
func Match(pattern, name string) (bool, error) {
	if !strings.Contains(pattern, "**") {
		return path.Match(pattern, name)
	}
	if err := Validate(pattern); err != nil {
		return false, err
	}
	// Match the parts before and after "**" separately.
	parts := strings.SplitN(pattern, "**", 2)
	prefixPattern, suffixPattern := parts[0], parts[1]
	if prefixPattern == "" && strings.HasPrefix(suffixPattern, "/") {
		// A leading "**/" also matches zero directory levels.
		if ok, err := path.Match(suffixPattern[1:], name); err != nil || ok {
			return ok, err
		}
	}
	end, start := 0, len(name)
	if prefixPattern != "" {
		end = prefixEnd(name, strings.Count(prefixPattern, "/"))
		if end < 0 {
			return false, nil
		}
		if ok, err := path.Match(prefixPattern, name[:end]); err != nil || !ok {
			return false, err
		}
	}
	if suffixPattern != "" {
		start = suffixStart(name, strings.Count(suffixPattern, "/"))
		if start < 0 {
			return false, nil
		}
		if ok, err := path.Match(suffixPattern, name[start:]); err != nil || !ok {
			return false, err
		}
	}
	// The prefix ends with a slash and the suffix starts with one; with "**" matching zero
	// levels they are the same slash, and they may not overlap any further.
	if prefixPattern != "" && suffixPattern != "" && start < end-1 {
		return false, nil
	}
	return true, nil
}

// Validate checks that pattern is well-formed, without matching it against anything.
func Validate(pattern string) error {
	if strings.Count(pattern, "**") > 1 {
		return errors.Wrapf(ErrBadPattern, "%q: only one '**' is permitted", pattern)
	}
	if idx := strings.Index(pattern, "**"); idx >= 0 {
		if (idx > 0 && pattern[idx-1] != '/') || (idx+2 < len(pattern) && pattern[idx+2] != '/') {
			return errors.Wrapf(ErrBadPattern, "%q: '**' must be a whole path component", pattern)
		}
	}
	// path.Match only reports syntax errors when it gets far enough to see them, so check
	// each piece against itself.
	for _, piece := range strings.Split(pattern, "**") {
		if _, err := path.Match(piece, piece); err != nil {
			return errors.Wrapf(err, "%q", pattern)
		}
	}
	return nil
}

// prefixEnd returns the index in name just after its n'th slash, or -1.
func prefixEnd(name string, n int) int {
	if n == 0 {
		return 0
	}
	slashes := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			slashes++
			if slashes == n {
				return i + 1
			}
		}
	}
	return -1
}

// suffixStart returns the index in name of its n'th slash counting from the end, or -1.
func suffixStart(name string, n int) int {
	if n == 0 {
		return len(name)
	}
	slashes := 0
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			slashes++
			if slashes == n {
				return i
			}
		}
	}
	return -1
}

func isHidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func mentionsHidden(pattern string) bool {
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Expand returns every file and directory in fsys that matches pattern, sorted.  Like a shell,
// wildcards don't match names beginning with "." unless the pattern spells out a leading ".".
func Expand(fsys fs.FS, pattern string) (files, dirs []string, err error) {
	if err := Validate(pattern); err != nil {
		return nil, nil, err
	}
	pattern = strings.TrimSuffix(pattern, "/")
	hiddenOK := mentionsHidden(pattern)
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		if !hiddenOK && isHidden(name) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		ok, err := Match(pattern, name)
		if err != nil {
			return err
		}
		if ok {
			if d.IsDir() {
				dirs = append(dirs, name)
			} else {
				files = append(files, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "expand %q", pattern)
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}
