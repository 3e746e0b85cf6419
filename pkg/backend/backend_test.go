// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/backend"
	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/testutil"
)

const samplePyproject = `
[project]
name = "package1"
dynamic = ["version", "description"]
requires-python = ">=3.6"
classifiers = ["License :: OSI Approved :: MIT License"]

[project.scripts]
pkg1 = "package1:main"
`

func writeProject(t *testing.T, pyproject string) string {
	t.Helper()
	projDir := t.TempDir()
	testutil.WriteFiles(t, projDir, map[string]string{
		"pyproject.toml":       pyproject,
		"package1/__init__.py": "\"\"\"Example module\n\nMore words.\n\"\"\"\n\n__version__ = '0.1'\n\ndef main():\n    pass\n",
		"package1/foo.py":      "a = 1\n",
	})
	return filepath.Join(projDir, "pyproject.toml")
}

type fakeClassifiers map[string]bool

func (fc fakeClassifiers) Known(_ context.Context, _ []string) (map[string]bool, bool) {
	return fc, true
}

func TestLoadProject(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	proj, err := backend.LoadProject(ctx, writeProject(t, samplePyproject), backend.Options{})
	require.NoError(t, err)

	assert.Equal(t, "package1", proj.Module.Name)
	assert.True(t, proj.Module.IsPackage)
	assert.Equal(t, "package1", proj.Metadata.Name)
	assert.Equal(t, "0.1", proj.Metadata.Version)
	assert.Equal(t, "Example module", proj.Metadata.Summary)
	assert.Equal(t, ">=3.6", proj.Metadata.RequiresPython)
}

func TestMakeMetadataStaticWins(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	proj, err := backend.LoadProject(ctx, writeProject(t, `
[project]
name = "Package1"
version = "2.0.0-rc1"
description = "From the config"

[tool.flit.module]
name = "package1"
`), backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, "package1", proj.Module.Name)
	assert.Equal(t, "Package1", proj.Metadata.Name)
	assert.Equal(t, "2.0.0rc1", proj.Metadata.Version)
	assert.Equal(t, "From the config", proj.Metadata.Summary)
}

func TestMakeMetadataNoDocstring(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	configFile := writeProject(t, samplePyproject)
	testutil.WriteFiles(t, filepath.Dir(configFile), map[string]string{
		"package1/__init__.py": "__version__ = '0.1'\n",
	})
	_, err := backend.LoadProject(ctx, configFile, backend.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pymodule.ErrNoDocstring), err)
}

func TestLoadProjectInvalid(t *testing.T) {
	t.Parallel()
	const pyproject = samplePyproject + `
[project.entry-points.group]
bad = "a:b:c"
`
	opts := backend.Options{
		Classifiers: fakeClassifiers{"License :: OSI Approved :: MIT License": true},
	}

	// problems are logged at error level
	ctx := dlog.NewTestContext(t, false)
	_, err := backend.LoadProject(ctx, writeProject(t, pyproject), opts)
	require.Error(t, err)
	var verr *backend.ValidationError
	require.True(t, errors.As(err, &verr), err)
	assert.Len(t, verr.Problems, 1)
	assert.Contains(t, err.Error(), "a:b:c")

	opts.AllowInvalid = true
	proj, err := backend.LoadProject(ctx, writeProject(t, pyproject), opts)
	require.NoError(t, err)
	assert.Equal(t, "0.1", proj.Metadata.Version)
}

func TestLoadProjectUnknownClassifier(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	_, err := backend.LoadProject(ctx, writeProject(t, samplePyproject), backend.Options{
		Classifiers: fakeClassifiers{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Unrecognised classifier: "License :: OSI Approved :: MIT License"`)
}

func TestBuild(t *testing.T) {
	t.Setenv("SOURCE_DATE_EPOCH", "1633046400")
	ctx := dlog.NewTestContext(t, true)
	configFile := writeProject(t, samplePyproject)

	result, err := backend.Build(ctx, configFile, backend.Options{}, backend.BuildOptions{Verify: true})
	require.NoError(t, err)

	distDir := filepath.Join(filepath.Dir(configFile), "dist")
	assert.Equal(t, filepath.Join(distDir, "package1-0.1.tar.gz"), result.Sdist)
	assert.Equal(t, filepath.Join(distDir, "package1-0.1-py3-none-any.whl"), result.Wheel)

	assert.Equal(t, []string{
		"package1-0.1/package1/__init__.py",
		"package1-0.1/package1/foo.py",
		"package1-0.1/pyproject.toml",
		"package1-0.1/setup.py",
		"package1-0.1/PKG-INFO",
	}, testutil.ArchiveNames(t, result.Sdist))
	assert.Equal(t, []string{
		"package1/__init__.py",
		"package1/foo.py",
		"package1-0.1.dist-info/entry_points.txt",
		"package1-0.1.dist-info/WHEEL",
		"package1-0.1.dist-info/METADATA",
		"package1-0.1.dist-info/RECORD",
	}, testutil.ArchiveNames(t, result.Wheel))

	assert.Equal(t,
		testutil.ArchiveFile(t, result.Sdist, "package1-0.1/PKG-INFO"),
		testutil.ArchiveFile(t, result.Wheel, "package1-0.1.dist-info/METADATA"))
	assert.Contains(t,
		testutil.ArchiveFile(t, result.Wheel, "package1-0.1.dist-info/WHEEL"),
		"Generator: pybuild ")
}

func TestBuildWheelOnly(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	configFile := writeProject(t, samplePyproject)
	outDir := filepath.Join(t.TempDir(), "out")

	result, err := backend.Build(ctx, configFile, backend.Options{}, backend.BuildOptions{
		Formats: []string{backend.FormatWheel},
		OutDir:  outDir,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Sdist)
	assert.Equal(t, filepath.Join(outDir, "package1-0.1-py3-none-any.whl"), result.Wheel)
}

func TestBuildUnknownFormat(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	_, err := backend.Build(ctx, writeProject(t, samplePyproject), backend.Options{}, backend.BuildOptions{
		Formats: []string{"egg"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown package format: "egg"`)
}
