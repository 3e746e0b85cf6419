// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package sdist builds source distributions: a gzipped PAX tarball holding the project's
// sources, a generated setup.py, and PKG-INFO.
//
// https://packaging.python.org/en/latest/specifications/source-distribution-format/
package sdist

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/reproducible"
)

// Builder describes a single sdist build.
type Builder struct {
	Module   *pymodule.Module
	Metadata *coremetadata.Metadata
	// ProjectDir is the directory holding the config file; every selected file is relative to
	// it.
	ProjectDir string
	// ExtraFiles are the config file and the files it references, relative to ProjectDir.
	// They may not be excluded.
	ExtraFiles    []string
	ReqsByExtra   map[string][]string
	EntryPoints   map[string]map[string]string
	DataDirectory string

	IncludePatterns []string
	ExcludePatterns []string

	// Selector picks the candidate files.  Defaults to ModuleFiles.
	Selector FileSelector
	// NoSetupPy turns off generating setup.py.
	NoSetupPy bool
}

// DirName is the name of the single top-level directory in the tarball.
func (b *Builder) DirName() string {
	return b.Metadata.Name + "-" + b.Metadata.Version
}

// cleanHeader makes a tar header independent of who built the sdist, and when.
func cleanHeader(header *tar.Header, mtime time.Time) {
	header.Format = tar.FormatPAX
	header.Uid = 0
	header.Gid = 0
	header.Uname = ""
	header.Gname = ""
	header.Mode = int64(python.StatMode(header.Mode & 0o777).NormalizePermissions())
	if !mtime.IsZero() {
		header.ModTime = mtime
	}
	header.ModTime = header.ModTime.Truncate(time.Second)
	header.AccessTime = time.Time{}
	header.ChangeTime = time.Time{}
	header.PAXRecords = nil
}

// Build writes {name}-{version}.tar.gz to targetDir and returns its path.
func (b *Builder) Build(ctx context.Context, targetDir string) (string, error) {
	if b.Module == nil || b.Metadata == nil {
		return "", fmt.Errorf("sdist.Build: Module and Metadata are required")
	}
	files, err := b.SelectFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}

	refs := make([]fsutil.FileReference, 0, len(files)+2)
	for _, name := range files {
		ref, err := fsutil.NewOSFileReference(filepath.Join(b.ProjectDir, filepath.FromSlash(name)), name)
		if err != nil {
			return "", fmt.Errorf("sdist.Build: %w", err)
		}
		refs = append(refs, ref)
	}

	mtime, _ := reproducible.SourceDateEpoch(ctx)
	genTime := mtime
	if genTime.IsZero() {
		genTime = time.Unix(0, 0)
	}
	if !b.NoSetupPy {
		if containsString(files, "setup.py") {
			dlog.Warnf(ctx, "Using setup.py from repository, not generating setup.py")
		} else {
			setupPy, err := b.makeSetupPy()
			if err != nil {
				return "", fmt.Errorf("sdist.Build: generating setup.py: %w", err)
			}
			dlog.Infof(ctx, "Writing generated setup.py")
			refs = append(refs, fsutil.NewInMemFile("setup.py", 0o644, genTime, setupPy))
		}
	}
	pkgInfo, err := b.Metadata.Bytes()
	if err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	refs = append(refs, fsutil.NewInMemFile("PKG-INFO", 0o644, genTime, pkgInfo))

	staged, err := fsutil.NewStagedFile(targetDir, "*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	defer staged.Discard()

	gzWriter, err := gzip.NewWriterLevel(staged, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	gzWriter.Header.ModTime = mtime
	gzWriter.Header.Name = ""
	tarWriter := tar.NewWriter(gzWriter)
	if err := fsutil.WriteTar(tarWriter, refs, fsutil.TarOptions{
		Prefix: b.DirName() + "/",
		Mutate: func(header *tar.Header) { cleanHeader(header, mtime) },
	}); err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	if err := tarWriter.Close(); err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}

	filename := b.DirName() + ".tar.gz"
	if err := staged.Commit(filename, 0o644); err != nil {
		return "", fmt.Errorf("sdist.Build: %w", err)
	}
	dlog.Infof(ctx, "Built sdist: %s", filename)
	return filepath.Join(targetDir, filename), nil
}

func containsString(list []string, str string) bool {
	for _, item := range list {
		if item == str {
			return true
		}
	}
	return false
}
