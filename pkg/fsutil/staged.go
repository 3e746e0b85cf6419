// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"path/filepath"
)

// StagedFile is a temporary file in the same directory as its eventual destination.  It becomes
// visible under the final name only when Commit succeeds; on every other path, Discard removes
// it.
//
//	staged, err := fsutil.NewStagedFile(dir, "*.whl")
//	if err != nil { ... }
//	defer staged.Discard()
//	... write to staged.File ...
//	return staged.Commit(finalName)
type StagedFile struct {
	*os.File
	done bool
}

// NewStagedFile creates the temporary file in dir.  pattern is as for os.CreateTemp.
func NewStagedFile(dir, pattern string) (*StagedFile, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &StagedFile{File: file}, nil
}

// Commit closes the file, sets its permissions to perm, and renames it to dst.  A relative dst
// is taken relative to the staging directory.
func (sf *StagedFile) Commit(dst string, perm os.FileMode) error {
	if sf.done {
		return os.ErrClosed
	}
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(filepath.Dir(sf.Name()), dst)
	}
	if err := sf.File.Close(); err != nil {
		sf.Discard()
		return err
	}
	if err := os.Chmod(sf.Name(), perm); err != nil {
		sf.Discard()
		return err
	}
	if err := os.Rename(sf.Name(), dst); err != nil {
		sf.Discard()
		return err
	}
	sf.done = true
	return nil
}

// Discard closes and removes the file.  It is a no-op after Commit or a previous Discard.
func (sf *StagedFile) Discard() {
	if sf.done {
		return
	}
	sf.done = true
	_ = sf.File.Close()
	_ = os.Remove(sf.Name())
}
