// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist_test

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pep425"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
	"github.com/datawire/pybuild/pkg/python/pypa/entry_points"
)

type member struct {
	Name    string
	Content string
	Mode    python.StatMode
}

// writeWheel writes a wheel by hand.  If record is nil, a correct RECORD is generated as the
// last member, named after the first .dist-info directory seen.
func writeWheel(t *testing.T, filename string, members []member, record []string) {
	t.Helper()
	fh, err := os.Create(filename)
	require.NoError(t, err)
	defer fh.Close()
	zipWriter := zip.NewWriter(fh)

	add := func(m member) {
		mode := m.Mode
		if mode == 0 {
			mode = python.ModeFmtRegular | 0o644
		}
		writer, err := zipWriter.CreateHeader(&zip.FileHeader{
			Name:           m.Name,
			Method:         zip.Deflate,
			CreatorVersion: python.ZIPCreatorUNIX,
			ExternalAttrs:  python.ExternalAttributesFor(mode).Raw(),
		})
		require.NoError(t, err)
		_, err = io.WriteString(writer, m.Content)
		require.NoError(t, err)
	}

	var distInfo string
	var rows []string
	for _, m := range members {
		add(m)
		if dir := strings.Split(m.Name, "/")[0]; distInfo == "" && strings.HasSuffix(dir, ".dist-info") {
			distInfo = dir
		}
		digest, size, err := python.RecordDigest("sha256", strings.NewReader(m.Content))
		require.NoError(t, err)
		rows = append(rows, fmt.Sprintf("%s,%s,%d", m.Name, digest, size))
	}
	if record == nil {
		record = append(rows, distInfo+"/RECORD,,")
	}
	add(member{Name: distInfo + "/RECORD", Content: strings.Join(record, "\n") + "\n"})
	require.NoError(t, zipWriter.Close())
}

var testWheelMembers = []member{
	{Name: "pkg/__init__.py", Content: "def main():\n    pass\n"},
	{Name: "pkg-1.0.data/scripts/pkg-tool", Content: "#!python\nimport pkg\n"},
	{Name: "pkg-1.0.data/scripts/pkg-gui", Content: "#!pythonw\nimport pkg\n"},
	{Name: "pkg-1.0.data/data/share/doc/pkg.txt", Content: "docs\n"},
	{Name: "pkg-1.0.dist-info/METADATA", Content: "Metadata-Version: 2.1\nName: pkg\nVersion: 1.0\n"},
	{Name: "pkg-1.0.dist-info/WHEEL", Content: "Wheel-Version: 1.0\nGenerator: hand\nRoot-Is-Purelib: true\nTag: py3-none-any\n"},
	{Name: "pkg-1.0.dist-info/entry_points.txt", Content: "[console_scripts]\npkg-cli = pkg:main\n\n[gui_scripts]\npkg-win=pkg:main\n"},
}

func testPlatform() python.Platform {
	return python.Platform{
		ConsoleShebang:   "/usr/bin/python3",
		GraphicalShebang: "/usr/bin/python3w",
		Scheme: python.Scheme{
			PureLib: "/usr/lib/python3/site-packages",
			PlatLib: "/usr/lib64/python3/site-packages",
			Headers: "/usr/include/python3/pkg",
			Scripts: "/usr/bin",
			Data:    "/usr",
		},
	}
}

func readRef(t *testing.T, ref fsutil.FileReference) string {
	t.Helper()
	reader, err := ref.Open()
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(content)
}

func TestInstallWheel(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename := filepath.Join(t.TempDir(), "pkg-1.0-py3-none-any.whl")
	writeWheel(t, filename, testWheelMembers, nil)

	plat := testPlatform()
	var hookDistInfo string
	vfs, err := bdist.InstallWheel(ctx, plat, filename, bdist.PostInstallHooks(
		entry_points.CreateScripts(plat),
		func(_ context.Context, _ time.Time, _ map[string]fsutil.FileReference, installedDistInfoDir string) error {
			hookDistInfo = installedDistInfoDir
			return nil
		},
	))
	require.NoError(t, err)
	assert.Equal(t, "usr/lib/python3/site-packages/pkg-1.0.dist-info", hookDistInfo)

	names := make([]string, 0, len(vfs))
	for name := range vfs {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"usr/lib/python3/site-packages/pkg/__init__.py",
		"usr/bin/pkg-tool",
		"usr/bin/pkg-gui",
		"usr/share/doc/pkg.txt",
		"usr/lib/python3/site-packages/pkg-1.0.dist-info/METADATA",
		"usr/lib/python3/site-packages/pkg-1.0.dist-info/WHEEL",
		"usr/lib/python3/site-packages/pkg-1.0.dist-info/entry_points.txt",
		"usr/bin/pkg-cli",
		"usr/bin/pkg-win",
	}, names)

	tool := vfs["usr/bin/pkg-tool"]
	assert.Equal(t, "#!/usr/bin/python3\nimport pkg\n", readRef(t, tool))
	assert.Equal(t, int64(len("#!/usr/bin/python3\nimport pkg\n")), tool.Size())
	assert.Equal(t, os.FileMode(0o755), tool.Mode())
	assert.Equal(t, "#!/usr/bin/python3w\nimport pkg\n", readRef(t, vfs["usr/bin/pkg-gui"]))
	assert.Equal(t, os.FileMode(0o644), vfs["usr/share/doc/pkg.txt"].Mode())

	cli := readRef(t, vfs["usr/bin/pkg-cli"])
	assert.True(t, strings.HasPrefix(cli, "#!/usr/bin/python3\n"), cli)
	assert.Contains(t, cli, "from pkg import main\n")
	assert.True(t, strings.HasPrefix(readRef(t, vfs["usr/bin/pkg-win"]), "#!/usr/bin/python3w\n"))

	root := t.TempDir()
	require.NoError(t, fsutil.WriteVFS(root, vfs))
	content, err := os.ReadFile(filepath.Join(root, "usr", "share", "doc", "pkg.txt"))
	require.NoError(t, err)
	assert.Equal(t, "docs\n", string(content))
}

func TestInstallWheelOutlivesFile(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename := filepath.Join(t.TempDir(), "pkg-1.0-py3-none-any.whl")
	writeWheel(t, filename, testWheelMembers, nil)

	vfs, err := bdist.InstallWheel(ctx, testPlatform(), filename, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filename))

	assert.Equal(t, "def main():\n    pass\n", readRef(t, vfs["usr/lib/python3/site-packages/pkg/__init__.py"]))
	root := t.TempDir()
	require.NoError(t, fsutil.WriteVFS(root, vfs))
	content, err := os.ReadFile(filepath.Join(root, "usr", "lib", "python3", "site-packages", "pkg", "__init__.py"))
	require.NoError(t, err)
	assert.Equal(t, "def main():\n    pass\n", string(content))
}

func TestInstallWheelUnsupportedTag(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename := filepath.Join(t.TempDir(), "pkg-1.0-cp39-cp39-win_amd64.whl")
	writeWheel(t, filename, testWheelMembers, nil)

	plat := testPlatform()
	plat.Tags = pep425.Installer{{Python: "py3", ABI: "none", Platform: "any"}}
	_, err := bdist.InstallWheel(ctx, plat, filename, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported on this platform")
}

func TestInstallWheelVersion(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename := filepath.Join(t.TempDir(), "pkg-1.0-py3-none-any.whl")
	writeWheel(t, filename, []member{
		{Name: "pkg/__init__.py"},
		{Name: "pkg-1.0.dist-info/WHEEL", Content: "Wheel-Version: 2.0\nRoot-Is-Purelib: true\n"},
	}, nil)

	_, err := bdist.InstallWheel(ctx, testPlatform(), filename, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compatible")
}

func TestVerifyWheel(t *testing.T) {
	t.Parallel()
	filename := filepath.Join(t.TempDir(), "pkg-1.0-py3-none-any.whl")
	writeWheel(t, filename, []member{
		{Name: "pkg/a.py", Content: "print(1)\n"},
		{Name: "pkg/b.py", Content: "print(2)\n"},
		{Name: "pkg-1.0.dist-info/WHEEL", Content: ""},
	}, []string{
		"pkg/a.py,sha256=AAAA,9",
		"pkg-1.0.dist-info/WHEEL,sha256=47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU,10",
		"pkg-1.0.dist-info/RECORD,,",
	})

	err := bdist.VerifyWheel(filename)
	require.Error(t, err)
	var multi derror.MultiError
	require.True(t, errors.As(err, &multi), "%T", err)
	assert.Len(t, multi, 3)
	msg := err.Error()
	assert.Contains(t, msg, `file "pkg/a.py": checksum mismatch`)
	assert.Contains(t, msg, `file "pkg-1.0.dist-info/WHEEL": size mismatch`)
	assert.Contains(t, msg, `files not mentioned in RECORD: ["pkg/b.py"]`)
}
