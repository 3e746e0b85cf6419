// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
)

const (
	FormatWheel = "wheel"
	FormatSdist = "sdist"
)

// BuildOptions says which archives to build, and where.
type BuildOptions struct {
	// Formats is a subset of {FormatWheel, FormatSdist}; empty means both.
	Formats []string
	// OutDir defaults to "dist" in the project directory.
	OutDir string
	// UseVCS selects the files for the sdist from Git.
	UseVCS bool
	// Verify re-reads the built wheel and checks its RECORD.
	Verify bool
}

// Result holds the paths of the archives that were built.
type Result struct {
	Wheel string
	Sdist string
}

// Build builds the requested archives for the project configured by configFile.  When both are
// requested, the wheel is built from the unpacked sdist, so that a file missing from the sdist
// is noticed.
func Build(ctx context.Context, configFile string, opts Options, bopts BuildOptions) (*Result, error) {
	wantWheel, wantSdist := len(bopts.Formats) == 0, len(bopts.Formats) == 0
	for _, format := range bopts.Formats {
		switch format {
		case FormatWheel:
			wantWheel = true
		case FormatSdist:
			wantSdist = true
		default:
			return nil, fmt.Errorf("unknown package format: %q", format)
		}
	}

	proj, err := LoadProject(ctx, configFile, opts)
	if err != nil {
		return nil, err
	}
	outDir := bopts.OutDir
	if outDir == "" {
		outDir = filepath.Join(proj.Config.ProjectDir(), "dist")
	}
	if err := os.MkdirAll(outDir, 0o777); err != nil {
		return nil, err
	}

	var ret Result
	wheelProj := proj
	if wantSdist {
		ret.Sdist, err = proj.BuildSdist(ctx, outDir, bopts.UseVCS)
		if err != nil {
			return nil, err
		}
		if wantWheel {
			tmpdir, err := os.MkdirTemp("", "pybuild-sdist.")
			if err != nil {
				return nil, err
			}
			defer os.RemoveAll(tmpdir)
			if err := unpackSdist(ret.Sdist, tmpdir); err != nil {
				return nil, fmt.Errorf("unpacking sdist: %w", err)
			}
			unpacked := filepath.Join(tmpdir, proj.SdistBuilder(bopts.UseVCS).DirName())
			dlog.Debugf(ctx, "Building wheel from unpacked sdist %s", unpacked)
			wheelProj, err = LoadProject(ctx, filepath.Join(unpacked, filepath.Base(configFile)), opts)
			if err != nil {
				return nil, err
			}
		}
	}
	if wantWheel {
		ret.Wheel, err = wheelProj.BuildWheel(ctx, outDir, false)
		if err != nil {
			return nil, err
		}
		if bopts.Verify {
			if err := bdist.VerifyWheel(ret.Wheel); err != nil {
				return nil, err
			}
			dlog.Infof(ctx, "Verified wheel: %s", ret.Wheel)
		}
	}
	return &ret, nil
}

// unpackSdist extracts the regular files and directories of a .tar.gz in to dir.
func unpackSdist(filename, dir string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := path.Clean(header.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("refusing to extract %q outside of the destination", header.Name)
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o777); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
				return err
			}
			if err := writeFile(dst, os.FileMode(header.Mode).Perm(), tarReader); err != nil {
				return err
			}
			if err := os.Chtimes(dst, header.ModTime, header.ModTime); err != nil {
				return err
			}
		}
	}
}

func writeFile(dst string, perm os.FileMode, content io.Reader) (err error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, content)
	return err
}
