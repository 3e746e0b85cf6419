// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pep440"
	"github.com/datawire/pybuild/pkg/reproducible"
)

// A PostInstallHook adds to or edits the files of an unpacked wheel, before they are written
// out.
//
// vfs is a map[filename]FileReference where filename==FileReference.FullName().  As a reminder,
// FileReference.FullName() returns io/fs paths: (1) forward-slashes and (2) absolute paths but
// without the leading "/".
type PostInstallHook func(
	ctx context.Context,
	clampTime time.Time,
	vfs map[string]fsutil.FileReference,
	installedDistInfoDir string,
) error

// PostInstallHooks chains several hooks in to one, run in order.
func PostInstallHooks(hooks ...PostInstallHook) PostInstallHook {
	if len(hooks) == 0 {
		return nil
	}
	return func(
		ctx context.Context,
		clampTime time.Time,
		vfs map[string]fsutil.FileReference,
		installedDistInfoDir string,
	) error {
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			if err := hook(ctx, clampTime, vfs, installedDistInfoDir); err != nil {
				return err
			}
		}
		return nil
	}
}

// sanitizePlatform transforms the scheme paths from `path/filepath` paths to `io/fs` paths.
func sanitizePlatform(plat python.Platform) (python.Platform, error) {
	if err := plat.Init(); err != nil {
		return plat, err
	}
	plat.Scheme = plat.Scheme.Map(func(dir string) string {
		return strings.TrimPrefix(path.Clean(filepath.ToSlash(dir)), "/")
	})
	return plat, nil
}

// InstallWheel unpacks a wheel file the way an installer would place it for plat, runs hook,
// and returns the resulting files.  Nothing is written to disk; pass the result to
// fsutil.WriteVFS for that.
func InstallWheel(
	ctx context.Context,
	plat python.Platform,
	wheelfilename string,
	hook PostInstallHook,
) (map[string]fsutil.FileReference, error) {
	plat, err := sanitizePlatform(plat)
	if err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: validate python.Platform: %w", err)
	}

	if len(plat.Tags) > 0 {
		nameData, err := ParseFilename(filepath.Base(wheelfilename))
		if err != nil {
			return nil, fmt.Errorf("bdist.InstallWheel: %w", err)
		}
		if !plat.Tags.Supports(nameData.CompatibilityTag) {
			return nil, fmt.Errorf("bdist.InstallWheel: wheel %q is not supported on this platform",
				filepath.Base(wheelfilename))
		}
	}

	// The returned references read their content lazily, after we return, so hold the whole
	// wheel in memory rather than keeping a file open.
	wheelBytes, err := os.ReadFile(wheelfilename)
	if err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: open wheel: %w", err)
	}
	zipReader, err := zip.NewReader(bytes.NewReader(wheelBytes), int64(len(wheelBytes)))
	if err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: open wheel: %w", err)
	}

	wh, err := openWheel(zipReader)
	if err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: %w", err)
	}
	if err := wh.integrityCheck(); err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: wheel integrity: %w", err)
	}

	// Generated files get a timestamp just after the newest file in the wheel.
	var clampTime time.Time
	for _, file := range wh.zip.File {
		if file.Modified.After(clampTime) {
			clampTime = file.Modified
		}
	}
	if clampTime.IsZero() {
		clampTime = reproducible.Now(ctx)
	} else {
		clampTime = clampTime.Truncate(time.Second).Add(time.Second)
	}

	vfs, installedDistInfoDir, err := wh.installToVFS(ctx, plat, clampTime)
	if err != nil {
		return nil, fmt.Errorf("bdist.InstallWheel: %w", err)
	}

	if hook != nil {
		if err := hook(ctx, clampTime, vfs, installedDistInfoDir); err != nil {
			return nil, fmt.Errorf("bdist.InstallWheel: post-install hook: %w", err)
		}
	}

	return vfs, nil
}

var specVersion, _ = pep440.ParseVersion("1.0")

func (wh *wheel) installToVFS(
	ctx context.Context,
	plat python.Platform,
	clampTime time.Time,
) (map[string]fsutil.FileReference, string, error) {
	// Check the Wheel-Version.
	metadata, err := wh.readWheelFile()
	if err != nil {
		return nil, "", fmt.Errorf("parse .dist-info/WHEEL: %w", err)
	}
	wheelVersion, err := pep440.ParseVersion(metadata.Get("Wheel-Version"))
	if err != nil {
		return nil, "", fmt.Errorf("parse Wheel-Version: %w", err)
	}
	if wheelVersion.Major() > specVersion.Major() {
		return nil, "", fmt.Errorf("wheel file's Wheel-Version (%s) is not compatible with this wheel parser",
			wheelVersion)
	}
	if wheelVersion.Cmp(*specVersion) > 0 {
		dlog.Warnf(ctx, "wheel file's Wheel-Version (%s) is newer than this wheel parser", wheelVersion)
	}

	// Unpack in to purelib or platlib.
	dstDir := plat.Scheme.PlatLib
	if metadata.Get("Root-Is-Purelib") == "true" {
		dstDir = plat.Scheme.PureLib
	}
	vfs := make(map[string]fsutil.FileReference)
	for _, file := range wh.zip.File {
		addEntry(vfs, path.Join(dstDir, file.FileHeader.Name), &zipEntry{
			header: file.FileHeader,
			open:   file.Open,
		})
	}

	// Spread the .data directory in to the scheme.
	distInfoDir := wh.distInfo
	dataDirName := strings.TrimSuffix(distInfoDir, ".dist-info") + ".data"
	dataDir := path.Join(dstDir, dataDirName)
	vfsTypes := make(map[string]string)
	for fullName := range vfs {
		if !strings.HasPrefix(fullName, dataDir+"/") {
			continue
		}
		relName := strings.TrimPrefix(fullName, dataDir+"/")
		key, rest, _ := strings.Cut(relName, "/")
		dstDataDir, ok := plat.Scheme.Dir(key)
		if !ok {
			return nil, "", fmt.Errorf("unsupported wheel data type %q: %q",
				key, path.Join(dataDirName, relName))
		}
		newFullName := path.Join(dstDataDir, rest)
		vfsTypes[newFullName] = key
		if err := moveEntry(vfs, fullName, newFullName); err != nil {
			return nil, "", fmt.Errorf("spread: %w", err)
		}
	}

	if err := rewritePython(plat, vfs, vfsTypes); err != nil {
		return nil, "", fmt.Errorf("rewrite shebangs: %w", err)
	}

	// The installer writes its own RECORD.
	for _, name := range []string{"RECORD", "RECORD.jws", "RECORD.p7s"} {
		delete(vfs, path.Join(dstDir, distInfoDir, name))
	}
	delete(vfs, dataDir)

	if plat.PyCompile != nil {
		var srcs []fsutil.FileReference //nolint:prealloc // 'continue' is quite likely
		for _, file := range vfs {
			if !strings.HasSuffix(file.Name(), ".py") {
				continue
			}
			srcs = append(srcs, file)
		}
		outs, err := plat.PyCompile(ctx, clampTime, []string{
			plat.Scheme.PureLib,
			plat.Scheme.PlatLib,
		}, srcs)
		if err != nil {
			return nil, "", fmt.Errorf("py_compile: %w", err)
		}
		for _, newFile := range outs {
			vfs[newFile.FullName()] = newFile
		}
	}

	return vfs, path.Join(dstDir, distInfoDir), nil
}

// rewritePython replaces the "#!python" and "#!pythonw" shebang placeholders of scripts in the
// wheel's .data/scripts/ directory, and makes those scripts executable.
func rewritePython(plat python.Platform, vfs map[string]fsutil.FileReference, vfsTypes map[string]string) error {
	for filename, key := range vfsTypes {
		if key != "scripts" {
			continue
		}
		header, err := func() ([]byte, error) {
			fh, err := vfs[filename].Open()
			if err != nil {
				return nil, err
			}
			defer fh.Close()
			return io.ReadAll(io.LimitReader(fh, int64(len("#!pythonw"))))
		}()
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(header, []byte("#!python")) {
			continue
		}

		entry, ok := vfs[filename].(*zipEntry)
		if !ok {
			continue
		}
		shebang := plat.ConsoleShebang
		placeholder := "#!python"
		if bytes.Equal(header, []byte("#!pythonw")) {
			shebang = plat.GraphicalShebang
			placeholder = "#!pythonw"
		}
		entry.replacePrefix(len(placeholder), "#!"+shebang)
		entry.setUnixMode(entry.unixMode() | 0o111)
	}
	return nil
}
