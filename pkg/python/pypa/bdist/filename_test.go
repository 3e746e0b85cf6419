// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
)

func TestFilenameRoundTrip(t *testing.T) {
	t.Parallel()
	testcases := []string{
		"package1-0.1-py3-none-any.whl",
		"package1-0.1-py2.py3-none-any.whl",
		"numpy-1.21.4-1local-cp39-cp39-manylinux_2_12_x86_64.manylinux2010_x86_64.whl",
		"my_pkg-1.0.post1-py3-none-any.whl",
	}
	for _, tc := range testcases {
		tc := tc
		t.Run(tc, func(t *testing.T) {
			t.Parallel()
			data, err := bdist.ParseFilename(tc)
			require.NoError(t, err)
			str, err := bdist.GenerateFilename(*data)
			require.NoError(t, err)
			assert.Equal(t, tc, str)
		})
	}
}

func TestParseFilename(t *testing.T) {
	t.Parallel()
	data, err := bdist.ParseFilename("numpy-1.21.4-1local-cp39-cp39-manylinux_2_12_x86_64.whl")
	require.NoError(t, err)
	assert.Equal(t, "numpy", data.Distribution)
	assert.Equal(t, "1.21.4", data.Version.String())
	require.NotNil(t, data.BuildTag)
	assert.Equal(t, bdist.BuildTag{Int: 1, Str: "local"}, *data.BuildTag)
	assert.Equal(t, "cp39-cp39-manylinux_2_12_x86_64", data.CompatibilityTag.String())

	for _, bad := range []string{
		"numpy-1.21.4.tar.gz",
		"numpy-not_a_version-py3-none-any.whl",
		"numpy-1.21.4-local1-py3-none-any.whl",
		"numpy-1.21.4-py3-none.whl",
		"numpy-1.21.4--py3-none-any.whl",
		"numpy-1.21.4-1-2-py3-none-any.whl",
	} {
		_, err = bdist.ParseFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestGenerateFilenameNormalizes(t *testing.T) {
	t.Parallel()
	data, err := bdist.ParseFilename("Foo.Bar-1.0-py3-none-any.whl")
	require.NoError(t, err)
	str, err := bdist.GenerateFilename(*data)
	require.NoError(t, err)
	assert.Equal(t, "foo_bar-1.0-py3-none-any.whl", str)
}

func TestBuildTagCmp(t *testing.T) {
	t.Parallel()
	var none *bdist.BuildTag
	one := &bdist.BuildTag{Int: 1}
	oneA := &bdist.BuildTag{Int: 1, Str: "a"}
	two := &bdist.BuildTag{Int: 2}
	assert.Equal(t, 0, none.Cmp(nil))
	assert.Less(t, none.Cmp(one), 0)
	assert.Greater(t, one.Cmp(none), 0)
	assert.Less(t, one.Cmp(oneA), 0)
	assert.Less(t, oneA.Cmp(two), 0)
	assert.Equal(t, 0, two.Cmp(&bdist.BuildTag{Int: 2}))
}

func TestDistName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "foo_bar-1.0", bdist.DistName("Foo-Bar", "1.0"))
	assert.Equal(t, "foo_bar-1.0_dev", bdist.DistName("foo.bar", "1.0-dev"))
}
