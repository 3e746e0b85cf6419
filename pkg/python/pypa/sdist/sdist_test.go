// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package sdist_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/python/pypa/sdist"
	"github.com/datawire/pybuild/pkg/testutil"
	"github.com/datawire/pybuild/pkg/vcs"
)

type staticFiles []string

func (s staticFiles) SelectFiles(context.Context, *sdist.Builder) ([]string, error) {
	return s, nil
}

func newBuilder(t *testing.T, files map[string]string, modName string) *sdist.Builder {
	t.Helper()
	projDir := t.TempDir()
	testutil.WriteFiles(t, projDir, files)
	mod, err := pymodule.Find(modName, projDir)
	require.NoError(t, err)
	return &sdist.Builder{
		Module: mod,
		Metadata: &coremetadata.Metadata{
			Name:           "package1",
			Version:        "0.1",
			Summary:        "A sample package",
			Author:         "Sir Robin",
			AuthorEmail:    "robin@camelot.uk",
			HomePage:       "http://github.com/sirrobin/package1",
			RequiresPython: ">=3.6",
		},
		ProjectDir: projDir,
		ExtraFiles: []string{"pyproject.toml"},
	}
}

func TestIncludeExclude(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"module1.py":          "\"\"\"Example module\"\"\"\n__version__ = '0.1'\n",
		"pyproject.toml":      "",
		"doc/test.rst":        "",
		"doc/test.txt":        "",
		"doc/subdir/test.txt": "",
	}, "module1")
	b.Selector = staticFiles{
		"module1.py",
		"pyproject.toml",
		"doc/test.rst",
		"doc/test.txt",
		"doc/subdir/test.txt",
	}
	b.IncludePatterns = []string{"doc/*.rst"}
	b.ExcludePatterns = []string{"doc/test.txt"}

	files, err := b.SelectFiles(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{
		"doc/subdir/test.txt",
		"doc/test.rst",
		"module1.py",
		"pyproject.toml",
	}, files); diff != "" {
		t.Errorf("SelectFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestIncludeDirectory(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"module1.py":                          "",
		"pyproject.toml":                      "",
		"doc/index.html":                      "",
		"doc/other.html":                      "",
		"doc/img/logo.png":                    "",
		"doc/__pycache__/conf.cpython-39.pyc": "",
	}, "module1")
	b.IncludePatterns = []string{"doc"}
	b.ExcludePatterns = []string{"doc/*.html", "!doc/index.html"}

	files, err := b.SelectFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"doc/img/logo.png",
		"doc/index.html",
		"module1.py",
		"pyproject.toml",
	}, files)
}

func TestCrucialFilesExcluded(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"module1.py":     "",
		"pyproject.toml": "",
	}, "module1")
	b.ExcludePatterns = []string{"*.py"}

	_, err := b.SelectFiles(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crucial files were excluded from the sdist: module1.py")
}

func TestBuild(t *testing.T) {
	t.Setenv("SOURCE_DATE_EPOCH", "1633046400")
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml":               "[project]\nname = \"package1\"\n",
		"package1/__init__.py":         "\"\"\"A sample package\"\"\"\n__version__ = '0.1'\n",
		"package1/foo.py":              "",
		"package1/__pycache__/foo.pyc": "junk",
		"package1/data_dir/foo.json":   "{}",
		"package1/subpkg/__init__.py":  "",
		"package1/subpkg/sub.py":       "",
	}, "package1")
	require.NoError(t, os.Chmod(filepath.Join(b.ProjectDir, "package1", "foo.py"), 0o775))
	b.ReqsByExtra = map[string][]string{
		pyproject.NoExtra: {"requests (>=2.0)", "pathlib2; python_version == \"2.7\""},
		"test":            {"pytest"},
	}
	b.EntryPoints = map[string]map[string]string{
		"console_scripts": {"pkg1": "package1:main"},
	}

	filename, err := b.Build(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "package1-0.1.tar.gz", filepath.Base(filename))

	assert.Equal(t, []string{
		"package1-0.1/package1/__init__.py",
		"package1-0.1/package1/data_dir/foo.json",
		"package1-0.1/package1/foo.py",
		"package1-0.1/package1/subpkg/__init__.py",
		"package1-0.1/package1/subpkg/sub.py",
		"package1-0.1/pyproject.toml",
		"package1-0.1/setup.py",
		"package1-0.1/PKG-INFO",
	}, testutil.ArchiveNames(t, filename))

	entries, err := testutil.ReadArchive(filename)
	require.NoError(t, err)
	epoch := time.Unix(1633046400, 0)
	for _, entry := range entries {
		header, ok := entry.Header.(*tar.Header)
		require.True(t, ok)
		assert.Equal(t, 0, header.Uid, entry.Name)
		assert.Equal(t, 0, header.Gid, entry.Name)
		assert.Equal(t, "", header.Uname, entry.Name)
		assert.Equal(t, "", header.Gname, entry.Name)
		assert.True(t, header.ModTime.Equal(epoch), "%s: mtime %v", entry.Name, header.ModTime)
		if entry.Name == "package1-0.1/package1/foo.py" {
			assert.Equal(t, int64(0o755), header.Mode, entry.Name)
		} else {
			assert.Equal(t, int64(0o644), header.Mode, entry.Name)
		}
	}

	fh, err := os.Open(filename)
	require.NoError(t, err)
	defer fh.Close()
	gzReader, err := gzip.NewReader(fh)
	require.NoError(t, err)
	assert.Equal(t, "", gzReader.Header.Name)
	assert.True(t, gzReader.Header.ModTime.Equal(epoch))

	assert.Contains(t, testutil.ArchiveFile(t, filename, "package1-0.1/PKG-INFO"), "Name: package1\n")
	assert.Equal(t, ""+
		"#!/usr/bin/env python\n"+
		"# setup.py generated by pybuild for tools that don't yet use PEP 517\n"+
		"\n"+
		"from distutils.core import setup\n"+
		"\n"+
		"packages = \\\n"+
		"['package1', 'package1.subpkg']\n"+
		"\n"+
		"package_data = \\\n"+
		"{'package1': ['data_dir/*']}\n"+
		"\n"+
		"install_requires = \\\n"+
		"['requests>=2.0']\n"+
		"\n"+
		"extras_require = \\\n"+
		"{':python_version == \"2.7\"': ['pathlib2'], 'test': ['pytest']}\n"+
		"\n"+
		"entry_points = \\\n"+
		"{'console_scripts': ['pkg1 = package1:main']}\n"+
		"\n"+
		"setup(name='package1',\n"+
		"      version='0.1',\n"+
		"      description='A sample package',\n"+
		"      author='Sir Robin',\n"+
		"      author_email='robin@camelot.uk',\n"+
		"      url='http://github.com/sirrobin/package1',\n"+
		"      packages=packages,\n"+
		"      package_data=package_data,\n"+
		"      install_requires=install_requires,\n"+
		"      extras_require=extras_require,\n"+
		"      entry_points=entry_points,\n"+
		"      python_requires='>=3.6',\n"+
		"     )\n",
		testutil.ArchiveFile(t, filename, "package1-0.1/setup.py"))

	// Touching a source file must not change the result.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(b.ProjectDir, "package1", "foo.py"), later, later))
	again, err := b.Build(ctx, t.TempDir())
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(filename)
	require.NoError(t, err)
	againBytes, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, againBytes)
}

func TestBuildSingleModule(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml": "",
		"src/module1.py": "",
	}, "module1")
	b.Metadata.Name = "module1"
	b.Metadata.Summary = ""

	filename, err := b.Build(ctx, t.TempDir())
	require.NoError(t, err)
	setupPy := testutil.ArchiveFile(t, filename, "module1-0.1/setup.py")
	assert.Contains(t, setupPy, "package_dir = \\\n{'': 'src'}\n")
	assert.Contains(t, setupPy, "      description=None,\n")
	assert.Contains(t, setupPy, "      py_modules=['module1'],\n      package_dir=package_dir,\n")
}

func TestBuildExistingSetupPy(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml": "",
		"module1.py":     "",
		"setup.py":       "# hand written\n",
	}, "module1")
	b.Selector = staticFiles{"module1.py", "pyproject.toml", "setup.py"}

	filename, err := b.Build(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "# hand written\n", testutil.ArchiveFile(t, filename, "package1-0.1/setup.py"))
}

func TestBuildFailureLeavesNothing(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml": "",
		"module1.py":     "",
	}, "module1")
	b.Selector = staticFiles{"module1.py", "pyproject.toml", "missing.txt"}

	targetDir := t.TempDir()
	_, err := b.Build(ctx, targetDir)
	require.Error(t, err)
	entries, err := os.ReadDir(targetDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVCSFiles(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml": "",
		"module1.py":     "",
		"README.rst":     "",
		"dist/old.whl":   "",
	}, "module1")
	b.Selector = sdist.VCSFiles{}

	repo, err := git.PlainInit(b.ProjectDir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for _, name := range []string{"pyproject.toml", "module1.py", "README.rst", "dist/old.whl"} {
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	files, err := b.SelectFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.rst", "module1.py", "pyproject.toml"}, files)

	testutil.WriteFiles(t, b.ProjectDir, map[string]string{"notes.txt": "untracked"})
	_, err = b.SelectFiles(ctx)
	require.Error(t, err)
	var vcsErr *vcs.Error
	assert.True(t, errors.As(err, &vcsErr), "%T", err)
	assert.Contains(t, err.Error(), "untracked or deleted files")
}

func TestVCSFilesNoRepository(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	b := newBuilder(t, map[string]string{
		"pyproject.toml": "",
		"module1.py":     "",
		"README.rst":     "",
	}, "module1")
	b.Selector = sdist.VCSFiles{}

	files, err := b.SelectFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"module1.py", "pyproject.toml"}, files)
}
