// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package fsutil holds the file abstractions shared by the archive builders and the installer.
package fsutil

import (
	"archive/tar"
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"
)

type FileReference interface {
	fs.FileInfo

	// FullName should follow io/fs rules: it should use forward-slashes, and it should be an
	// absolute path but without the leading "/".
	FullName() string

	Open() (io.ReadCloser, error)
}

// A Linker is a FileReference that may be a symbolic link.  Readlink is only called if the
// Mode has fs.ModeSymlink set.
type Linker interface {
	FileReference
	Readlink() (string, error)
}

// SortFileReferences sorts refs by FullName.
func SortFileReferences(refs []FileReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return ComparePaths(refs[i].FullName(), refs[j].FullName()) < 0
	})
}

// ComparePaths compares two slash-separated paths component-wise, rather than as plain strings,
// because "-" < "/" < EOF.  This keeps every directory's contents contiguous.
func ComparePaths(a, b string) int {
	aParts := strings.Split(a, "/")
	bParts := strings.Split(b, "/")
	for idx := 0; idx < len(aParts) || idx < len(bParts); idx++ {
		var aPart, bPart string
		if idx < len(aParts) {
			aPart = aParts[idx]
		}
		if idx < len(bParts) {
			bPart = bParts[idx]
		}
		if aPart != bPart {
			if aPart < bPart {
				return -1
			}
			return 1
		}
	}
	return 0
}

// TarOptions control how WriteTar turns FileReferences in to tar entries.
type TarOptions struct {
	// Prefix is prepended to every entry name.
	Prefix string
	// ClampTime, if non-zero, is the latest timestamp that will be written.
	ClampTime time.Time
	// Mutate, if non-nil, is called on each header before it is written.
	Mutate func(*tar.Header)
}

// WriteTar writes refs to tarWriter in the order given.  It does not close tarWriter.
func WriteTar(tarWriter *tar.Writer, refs []FileReference, opts TarOptions) error {
	for _, file := range refs {
		var link string
		if file.Mode()&fs.ModeSymlink != 0 {
			linker, ok := file.(Linker)
			if !ok {
				return &fs.PathError{Op: "readlink", Path: file.FullName(), Err: fs.ErrInvalid}
			}
			var err error
			if link, err = linker.Readlink(); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(file, link)
		if err != nil {
			return err
		}
		header.Name = opts.Prefix + file.FullName()
		if header.Typeflag == tar.TypeDir {
			header.Name += "/"
		}
		if !opts.ClampTime.IsZero() {
			if header.ModTime.After(opts.ClampTime) {
				header.ModTime = opts.ClampTime
			}
			if header.AccessTime.After(opts.ClampTime) {
				header.AccessTime = opts.ClampTime
			}
			if header.ChangeTime.After(opts.ClampTime) {
				header.ChangeTime = opts.ClampTime
			}
		}
		if opts.Mutate != nil {
			opts.Mutate(header)
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg {
			reader, err := file.Open()
			if err != nil {
				return err
			}
			if _, err := io.Copy(tarWriter, reader); err != nil {
				_ = reader.Close()
				return err
			}
			if err := reader.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
