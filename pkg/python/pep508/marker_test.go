// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pybuild/pkg/python/pep508"
)

var testEnv = pep508.Environment{
	"python_version":      "3.9",
	"python_full_version": "3.9.7",
	"os_name":             "posix",
	"sys_platform":        "linux",
	"extra":               "",
}

func TestMarker(t *testing.T) {
	t.Parallel()
	testcases := []struct {
		Input  string
		String string
		Result bool
	}{
		{`python_version < "3.8"`, `python_version < "3.8"`, false},
		{`python_version >= '3.6'`, `python_version >= "3.6"`, true},
		{`'3.6' <= python_version`, `"3.6" <= python_version`, true},
		{`python_full_version == "3.9.*"`, `python_full_version == "3.9.*"`, true},
		{`sys_platform == "win32" or os_name == "posix"`, `sys_platform == "win32" or os_name == "posix"`, true},
		{
			`(sys_platform == "win32" or os_name == "posix") and python_version>"3"`,
			`(sys_platform == "win32" or os_name == "posix") and python_version > "3"`,
			true,
		},
		{`"lin" in sys_platform`, `"lin" in sys_platform`, true},
		{`"win" not in sys_platform`, `"win" not in sys_platform`, true},
		{`extra == "Test_Extra"`, `extra == "Test_Extra"`, false},
		{`os_name != 'nt'`, `os_name != "nt"`, true},
	}
	for _, tc := range testcases {
		tc := tc
		t.Run(tc.Input, func(t *testing.T) {
			t.Parallel()
			marker, err := pep508.ParseMarker(tc.Input)
			require.NoError(t, err)
			assert.Equal(t, tc.String, marker.String())
			result, err := marker.Evaluate(testEnv)
			require.NoError(t, err)
			assert.Equal(t, tc.Result, result)
		})
	}
}

func TestMarkerExtraNormalized(t *testing.T) {
	t.Parallel()
	marker, err := pep508.ParseMarker(`extra == "Test_Extra"`)
	require.NoError(t, err)
	result, err := marker.Evaluate(pep508.Environment{"extra": "test-extra"})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestMarkerError(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		`python_version`:                         "expected a comparison operator",
		`python_version < "3" < "4"`:             "chained comparisons",
		`python_version is "3"`:                  "expected a comparison operator",
		`python_versoin < "3"`:                   "invalid variable name",
		`(python_version < "3"`:                  "missing closing parenthesis",
		`python_version < "3`:                    "unterminated string",
		`python_version < "3" and`:               "unexpected end",
		`python_version < "3" xor os_name == ""`: "unexpected",
		`not python_version < "3"`:               `"not" must be followed by "in"`,
	}
	for input, exp := range testcases {
		input, exp := input, exp
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			_, err := pep508.ParseMarker(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), exp)
		})
	}
}

func TestMarkerEvaluateError(t *testing.T) {
	t.Parallel()
	marker, err := pep508.ParseMarker(`platform_machine == "x86_64"`)
	require.NoError(t, err)
	_, err = marker.Evaluate(testEnv)
	assert.Error(t, err)

	marker, err = pep508.ParseMarker(`os_name < "posix"`)
	require.NoError(t, err)
	_, err = marker.Evaluate(testEnv)
	assert.Error(t, err)
}
