// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteVFS writes every entry of vfs to the native filesystem, below root.  Parent directories
// are created as needed; existing files and symlinks are replaced.  Timestamps are preserved.
func WriteVFS(root string, vfs map[string]FileReference) error {
	refs := make([]FileReference, 0, len(vfs))
	for _, ref := range vfs {
		refs = append(refs, ref)
	}
	SortFileReferences(refs)

	for _, ref := range refs {
		dst := filepath.Join(root, filepath.FromSlash(ref.FullName()))
		if err := writeOne(dst, ref); err != nil {
			return err
		}
	}
	return nil
}

func writeOne(dst string, ref FileReference) (err error) {
	switch {
	case ref.IsDir():
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return nil
	case ref.Mode()&fs.ModeSymlink != 0:
		linker, ok := ref.(Linker)
		if !ok {
			return &fs.PathError{Op: "readlink", Path: ref.FullName(), Err: fs.ErrInvalid}
		}
		target, err := linker.Readlink()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := removeExisting(dst); err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := removeExisting(dst); err != nil {
		return err
	}
	reader, err := ref.Open()
	if err != nil {
		return err
	}
	defer func() {
		if _err := reader.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	writer, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, ref.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(writer, reader); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	// The umask may have masked off bits.
	if err := os.Chmod(dst, ref.Mode().Perm()); err != nil {
		return err
	}
	if mtime := ref.ModTime(); !mtime.IsZero() {
		if err := os.Chtimes(dst, mtime, mtime); err != nil {
			return err
		}
	}
	return nil
}

func removeExisting(dst string) error {
	info, err := os.Lstat(dst)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case info.IsDir():
		return os.RemoveAll(dst)
	default:
		return os.Remove(dst)
	}
}
