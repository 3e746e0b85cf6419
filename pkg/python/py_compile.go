// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datawire/dlib/dexec"

	"github.com/datawire/pybuild/pkg/fsutil"
)

// A Compiler byte-compiles installed .py files, returning the .pyc files (but no directories)
// in no particular order.
//
// pythonPath lists `io/fs`-style directories that go on PYTHONPATH while compiling, so that the
// sources can import each other.
type Compiler func(ctx context.Context, clampTime time.Time, pythonPath []string, in []fsutil.FileReference) ([]fsutil.FileReference, error)

// ExternalCompiler returns a Compiler that runs a "compileall"-compatible command, such as
//
//     ExternalCompiler("python3", "-m", "compileall")
//
// The sources are staged in a temporary directory that is passed as a single argument, along with
// "-s" and "-p" flags so that the paths recorded in the .pyc files are the installed paths.
func ExternalCompiler(cmdline ...string) (Compiler, error) {
	if len(cmdline) == 0 {
		return nil, fmt.Errorf("python.ExternalCompiler: empty command line")
	}
	exe, err := dexec.LookPath(cmdline[0])
	if err != nil {
		return nil, err
	}
	if exe, err = filepath.Abs(exe); err != nil {
		return nil, err
	}
	args := cmdline[1:]

	return func(ctx context.Context, clampTime time.Time, pythonPath []string, in []fsutil.FileReference) (_ []fsutil.FileReference, err error) {
		tmpdir, err := os.MkdirTemp("", "pybuild-pycompile.")
		if err != nil {
			return nil, err
		}
		defer func() {
			if rmErr := os.RemoveAll(tmpdir); rmErr != nil && err == nil {
				err = rmErr
			}
		}()

		staged := make(map[string]fsutil.FileReference, len(in))
		for _, file := range in {
			staged[file.FullName()] = file
		}
		if err := fsutil.WriteVFS(tmpdir, staged); err != nil {
			return nil, fmt.Errorf("staging sources: %w", err)
		}

		cmd := dexec.CommandContext(ctx, exe, append(append([]string(nil), args...),
			"-s", tmpdir,
			"-p", "/",
			tmpdir)...)
		cmd.Env = compilerEnv(tmpdir, clampTime, pythonPath)
		if err := cmd.Run(); err != nil {
			return nil, err
		}

		return readCompiled(tmpdir)
	}, nil
}

func compilerEnv(tmpdir string, clampTime time.Time, pythonPath []string) []string {
	env := append(os.Environ(), "PYTHONHASHSEED=0")
	if len(pythonPath) > 0 {
		dirs := make([]string, 0, len(pythonPath)+1)
		for _, dir := range pythonPath {
			dirs = append(dirs, filepath.Join(tmpdir, filepath.FromSlash(dir)))
		}
		if existing := os.Getenv("PYTHONPATH"); existing != "" {
			dirs = append(dirs, existing)
		}
		env = append(env, "PYTHONPATH="+strings.Join(dirs, string(filepath.ListSeparator)))
	}
	if !clampTime.IsZero() {
		// Makes compileall write hash-based .pyc files.
		env = append(env, fmt.Sprintf("SOURCE_DATE_EPOCH=%d", clampTime.Unix()))
	}
	return env
}

// readCompiled loads every .pyc below dir, named by its slash-separated path relative to dir.
func readCompiled(dir string) ([]fsutil.FileReference, error) {
	var ret []fsutil.FileReference
	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(name, ".pyc") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		ret = append(ret, fsutil.NewInMemFile(filepath.ToSlash(rel), info.Mode().Perm(), info.ModTime(), content))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
