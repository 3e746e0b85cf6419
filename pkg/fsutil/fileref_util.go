// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"time"
)

type InMemFileReference struct {
	fs.FileInfo
	MFullName string
	MContent  []byte
}

// NewInMemFile returns a regular file with the given content.
func NewInMemFile(fullname string, perm fs.FileMode, mtime time.Time, content []byte) *InMemFileReference {
	return &InMemFileReference{
		FileInfo: (&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     fullname,
			Mode:     int64(perm.Perm()),
			Size:     int64(len(content)),
			ModTime:  mtime,
		}).FileInfo(),
		MFullName: fullname,
		MContent:  content,
	}
}

// NewInMemDir returns a directory.
func NewInMemDir(fullname string, mtime time.Time) *InMemFileReference {
	return &InMemFileReference{
		FileInfo: (&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     fullname,
			Mode:     0o755,
			ModTime:  mtime,
		}).FileInfo(),
		MFullName: fullname,
	}
}

func (fr *InMemFileReference) FullName() string { return fr.MFullName }
func (fr *InMemFileReference) Name() string     { return path.Base(fr.MFullName) }
func (fr *InMemFileReference) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(fr.MContent)), nil
}

var _ FileReference = (*InMemFileReference)(nil)

// SymlinkReference is a symbolic link pointing at MTarget.
type SymlinkReference struct {
	fs.FileInfo
	MFullName string
	MTarget   string
}

func NewSymlink(fullname, target string, mtime time.Time) *SymlinkReference {
	return &SymlinkReference{
		FileInfo: (&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     fullname,
			Linkname: target,
			Mode:     0o777,
			ModTime:  mtime,
		}).FileInfo(),
		MFullName: fullname,
		MTarget:   target,
	}
}

func (fr *SymlinkReference) FullName() string          { return fr.MFullName }
func (fr *SymlinkReference) Name() string              { return path.Base(fr.MFullName) }
func (fr *SymlinkReference) Readlink() (string, error) { return fr.MTarget, nil }
func (fr *SymlinkReference) Open() (io.ReadCloser, error) {
	return nil, &fs.PathError{Op: "open", Path: fr.MFullName, Err: fs.ErrInvalid}
}

var _ Linker = (*SymlinkReference)(nil)

// OSFileReference is a file on the native filesystem, opened lazily.
type OSFileReference struct {
	fs.FileInfo
	MFullName string
	// Path is the native path to read the file from.
	Path string
}

// NewOSFileReference lstats filename and returns a reference to it named fullname.
func NewOSFileReference(filename, fullname string) (*OSFileReference, error) {
	info, err := os.Lstat(filename)
	if err != nil {
		return nil, err
	}
	return &OSFileReference{
		FileInfo:  info,
		MFullName: fullname,
		Path:      filename,
	}, nil
}

func (fr *OSFileReference) FullName() string             { return fr.MFullName }
func (fr *OSFileReference) Name() string                 { return path.Base(fr.MFullName) }
func (fr *OSFileReference) Open() (io.ReadCloser, error) { return os.Open(fr.Path) }
func (fr *OSFileReference) Readlink() (string, error)     { return os.Readlink(fr.Path) }

var _ Linker = (*OSFileReference)(nil)
