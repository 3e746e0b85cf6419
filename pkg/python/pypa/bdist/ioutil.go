// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python"
)

// zipEntry is a wheel member on its way to being installed.  Its header.Name is the installed
// path, and open may have been wrapped to rewrite the content.
type zipEntry struct {
	header zip.FileHeader
	open   func() (io.ReadCloser, error)
}

var _ fsutil.FileReference = (*zipEntry)(nil)

func (e *zipEntry) info() fs.FileInfo            { return e.header.FileInfo() }
func (e *zipEntry) FullName() string             { return path.Clean(e.header.Name) }
func (e *zipEntry) Name() string                 { return path.Base(e.FullName()) }
func (e *zipEntry) Size() int64                  { return e.info().Size() }
func (e *zipEntry) Mode() fs.FileMode            { return e.info().Mode() }
func (e *zipEntry) ModTime() time.Time           { return e.info().ModTime() }
func (e *zipEntry) IsDir() bool                  { return e.info().IsDir() }
func (e *zipEntry) Sys() interface{}             { return e.info().Sys() }
func (e *zipEntry) Open() (io.ReadCloser, error) { return e.open() }

func (e *zipEntry) unixMode() python.StatMode {
	return python.ParseZIPExternalAttributes(e.header.ExternalAttrs).UNIX
}

func (e *zipEntry) setUnixMode(mode python.StatMode) {
	e.header.CreatorVersion = python.ZIPCreatorUNIX
	e.header.ExternalAttrs = python.ExternalAttributesFor(mode).Raw()
}

// setName renames the entry, keeping the trailing "/" that marks a directory.
func (e *zipEntry) setName(name string) {
	isDir := strings.HasSuffix(e.header.Name, "/")
	e.header.Name = name
	if isDir {
		e.header.Name += "/"
	}
}

// replacePrefix makes the entry's content start with newPrefix instead of its first oldLen
// bytes.
func (e *zipEntry) replacePrefix(oldLen int, newPrefix string) {
	origOpen := e.open
	e.open = func() (io.ReadCloser, error) {
		inner, err := origOpen()
		if err != nil {
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, inner, int64(oldLen)); err != nil {
			_ = inner.Close()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{
			Reader: io.MultiReader(strings.NewReader(newPrefix), inner),
			Closer: inner,
		}, nil
	}
	e.header.UncompressedSize64 = e.header.UncompressedSize64 - uint64(oldLen) + uint64(len(newPrefix))
}

// addEntry puts a wheel member in to vfs under name.  Like pip, it keeps only the execute bit
// of the member's permissions (see pip's zip_item_is_executable()).
func addEntry(vfs map[string]fsutil.FileReference, name string, entry *zipEntry) {
	mode := entry.unixMode()
	entry.setName(name)
	switch {
	case strings.HasSuffix(entry.header.Name, "/"):
		entry.setUnixMode(python.ModeFmtDir | 0o755)
	case mode.IsRegular() && mode&0o111 != 0:
		entry.setUnixMode(python.ModeFmtRegular | 0o755)
	default:
		entry.setUnixMode(python.ModeFmtRegular | 0o644)
	}
	vfs[name] = entry
}

func moveEntry(vfs map[string]fsutil.FileReference, oldName, newName string) error {
	ref, ok := vfs[oldName]
	if !ok {
		return &os.LinkError{Op: "rename", Old: oldName, New: newName, Err: os.ErrNotExist}
	}
	entry, ok := ref.(*zipEntry)
	if !ok {
		return fmt.Errorf("rename %s: not a wheel member", oldName)
	}
	entry.setName(newName)
	delete(vfs, oldName)
	vfs[newName] = entry
	return nil
}
