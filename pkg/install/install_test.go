// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package install_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/backend"
	"github.com/datawire/pybuild/pkg/install"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/testutil"
)

const (
	sitePackages = "/usr/lib/python3.9/site-packages"
	distInfo     = sitePackages + "/package1-0.1.dist-info"
)

func testPlatform() python.Platform {
	return python.Platform{
		ConsoleShebang:   "/usr/bin/python3",
		GraphicalShebang: "/usr/bin/python3",
		Scheme: python.Scheme{
			PureLib: sitePackages,
			PlatLib: sitePackages,
			Headers: "/usr/include/python3.9/package1",
			Scripts: "/usr/bin",
			Data:    "/usr",
		},
		VersionInfo: &python.VersionInfo{Major: 3, Minor: 9, Micro: 7, ReleaseLevel: "final"},
	}
}

func newInstaller(t *testing.T, mode install.Mode) (*install.Installer, string) {
	t.Helper()
	ctx := dlog.NewTestContext(t, true)
	projDir := t.TempDir()
	testutil.WriteFiles(t, projDir, map[string]string{
		"pyproject.toml": `
[project]
name = "package1"
dynamic = ["version", "description"]
requires-python = ">=3.6"
dependencies = ["requests", "tomli; python_version < '3.11'"]

[project.optional-dependencies]
test = ["pytest"]

[project.scripts]
pkg1 = "package1:main"

[tool.flit.external-data]
directory = "data"
`,
		"package1/__init__.py":       "\"\"\"Example module\"\"\"\n\n__version__ = '0.1'\n\ndef main():\n    pass\n",
		"package1/sub/mod.py":        "",
		"data/share/man/man1/pkg1.1": ".TH PKG1 1\n",
	})
	proj, err := backend.LoadProject(ctx, filepath.Join(projDir, "pyproject.toml"), backend.Options{})
	require.NoError(t, err)
	return &install.Installer{
		Project:  proj,
		Platform: testPlatform(),
		Root:     t.TempDir(),
		Mode:     mode,
	}, projDir
}

func readFile(t *testing.T, filename string) string {
	t.Helper()
	bs, err := os.ReadFile(filename)
	require.NoError(t, err)
	return string(bs)
}

func TestInstallCopy(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, _ := newInstaller(t, install.ModeCopy)
	require.NoError(t, inst.Install(ctx))

	root := inst.Root
	assert.FileExists(t, filepath.Join(root, sitePackages, "package1", "__init__.py"))
	assert.FileExists(t, filepath.Join(root, sitePackages, "package1", "sub", "mod.py"))
	assert.FileExists(t, filepath.Join(root, "usr", "share", "man", "man1", "pkg1.1"))

	script := filepath.Join(root, "usr", "bin", "pkg1")
	assert.True(t, strings.HasPrefix(readFile(t, script), "#!/usr/bin/python3\n"))
	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.Equal(t, "pybuild\n", readFile(t, filepath.Join(root, distInfo, "INSTALLER")))
	assert.Equal(t, "", readFile(t, filepath.Join(root, distInfo, "REQUESTED")))
	assert.Contains(t, readFile(t, filepath.Join(root, distInfo, "METADATA")), "Name: package1\n")
	assert.Contains(t, readFile(t, filepath.Join(root, distInfo, "direct_url.json")), `{"dir_info": {"editable": false}, "url": "file://`)

	record := readFile(t, filepath.Join(root, distInfo, "RECORD"))
	assert.Contains(t, record, "/usr/bin/pkg1,sha256=")
	assert.Contains(t, record, "package1/__init__.py,sha256=")
	assert.Contains(t, record, "package1-0.1.dist-info/INSTALLER,sha256=")
	assert.True(t, strings.HasSuffix(record, "package1-0.1.dist-info/RECORD,,\r\n"), record)
}

func TestInstallSymlink(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, projDir := newInstaller(t, install.ModeSymlink)
	require.NoError(t, inst.Install(ctx))

	target, err := os.Readlink(filepath.Join(inst.Root, sitePackages, "package1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projDir, "package1"), target)

	assert.Contains(t, readFile(t, filepath.Join(inst.Root, distInfo, "direct_url.json")), `"editable": true`)
	record := readFile(t, filepath.Join(inst.Root, distInfo, "RECORD"))
	assert.Contains(t, record, "package1,,\r\n")
	assert.NotContains(t, record, "package1/__init__.py")
}

func TestInstallPth(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, projDir := newInstaller(t, install.ModePth)
	require.NoError(t, inst.Install(ctx))

	resolved, err := filepath.EvalSymlinks(projDir)
	require.NoError(t, err)
	assert.Equal(t, resolved, readFile(t, filepath.Join(inst.Root, sitePackages, "package1.pth")))
	assert.NoDirExists(t, filepath.Join(inst.Root, sitePackages, "package1"))
	assert.Contains(t, readFile(t, filepath.Join(inst.Root, distInfo, "direct_url.json")), `"editable": true`)
	assert.FileExists(t, filepath.Join(inst.Root, "usr", "bin", "pkg1"))
}

func TestInstallRemovesExisting(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, _ := newInstaller(t, install.ModeCopy)
	testutil.WriteFiles(t, filepath.Join(inst.Root, sitePackages), map[string]string{
		"package1/old.py":                   "",
		"package1.pth":                      "/somewhere\n",
		"Package1-0.0.1.dist-info/METADATA": "Name: Package1\n",
		"package2-1.0.dist-info/METADATA":   "Name: package2\n",
	})
	require.NoError(t, inst.Install(ctx))

	site := filepath.Join(inst.Root, sitePackages)
	assert.NoFileExists(t, filepath.Join(site, "package1", "old.py"))
	assert.NoFileExists(t, filepath.Join(site, "package1.pth"))
	assert.NoDirExists(t, filepath.Join(site, "Package1-0.0.1.dist-info"))
	assert.DirExists(t, filepath.Join(site, "package2-1.0.dist-info"))
	assert.FileExists(t, filepath.Join(site, "package1", "__init__.py"))
}

func TestInstallRequiresPython(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, _ := newInstaller(t, install.ModeCopy)
	inst.Platform.VersionInfo = &python.VersionInfo{Major: 3, Minor: 5, Micro: 2, ReleaseLevel: "final"}
	err := inst.Install(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `does not satisfy Requires-Python ">=3.6"`)
	assert.NoDirExists(t, filepath.Join(inst.Root, sitePackages))
}

func TestRequirements(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	inst, _ := newInstaller(t, install.ModeCopy)

	assert.Equal(t, []string{"requests", "tomli; python_version < '3.11'"},
		inst.Requirements(ctx, inst.Platform))

	plat := testPlatform()
	plat.VersionInfo = &python.VersionInfo{Major: 3, Minor: 11, ReleaseLevel: "final"}
	assert.Equal(t, []string{"requests"}, inst.Requirements(ctx, plat))

	inst.Extras = []string{"test"}
	assert.Equal(t, []string{"requests", "pytest"}, inst.Requirements(ctx, plat))
}

func TestModeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "copy", install.ModeCopy.String())
	assert.Equal(t, "symlink", install.ModeSymlink.String())
	assert.Equal(t, "pth", install.ModePth.String())
}
