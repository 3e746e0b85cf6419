// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package glob_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pybuild/pkg/glob"
)

func TestMatch(t *testing.T) {
	t.Parallel()
	testcases := []struct {
		Pattern string
		Path    string
		Match   bool
	}{
		// No **
		{"abc", "abc", true},
		{"a*c", "abc", true},
		{"a/*/c", "a/b/c", true},
		{"doc/*.rst", "doc/test.rst", true},
		{"doc/*.rst", "doc/subdir/test.rst", false},

		// Simple ** cases
		{"**", "a/b/c", true},
		{"a/**", "a", false},
		{"a/**", "a/b/c", true},
		{"**/a", "a", true},
		{"**/c", "a/b/c", true},
		{"**/__pycache__", "pkg/sub/__pycache__", true},
		{"**/*.pyc", "pkg/mod.pyc", true},
		{"**/*.pyc", "pkg/mod.py", false},

		// Two-sided
		{"a/**/c", "a/c", true},
		{"a/**/c", "a/b/b/c", true},
		{"a/**/c", "b/c", false},
		{"a/**/c", "a/b/c/d", false},

		// The two sides may share only the slash that "**" stands in for
		{"a/b/**/b/c", "a/b/c", false},
		{"a/b/**/b/c", "a/b/b/c", true},
		{"a/b/**/b/c", "a/b/x/b/c", true},
		{"a/**/a", "a", false},
		{"a/**/a", "a/a", true},
	}
	for _, tc := range testcases {
		tc := tc
		t.Run(tc.Pattern+"~"+tc.Path, func(t *testing.T) {
			t.Parallel()
			match, err := glob.Match(tc.Pattern, tc.Path)
			require.NoError(t, err)
			assert.Equal(t, tc.Match, match)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	for _, pattern := range []string{"a/**/**", "a**b", "a/**b", "a**", "***", "a/[a]**", "a/["} {
		err := glob.Validate(pattern)
		assert.Error(t, err, pattern)
		assert.True(t, errors.Is(err, glob.ErrBadPattern), pattern)
	}
	for _, pattern := range []string{"**", "a/**", "**/a", "a/**/b", "doc/*.rst"} {
		assert.NoError(t, glob.Validate(pattern), pattern)
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"doc/test.rst":        {},
		"doc/test.txt":        {},
		"doc/subdir/test.txt": {},
		"doc/.hidden.rst":     {},
		"module1.py":          {},
	}

	files, dirs, err := glob.Expand(fsys, "doc/*.rst")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/test.rst"}, files)
	assert.Empty(t, dirs)

	files, dirs, err = glob.Expand(fsys, "doc/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/test.rst", "doc/test.txt"}, files)
	assert.Equal(t, []string{"doc/subdir"}, dirs)

	files, _, err = glob.Expand(fsys, "doc/.*")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/.hidden.rst"}, files)

	files, _, err = glob.Expand(fsys, "**/*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/subdir/test.txt", "doc/test.txt"}, files)
}
