// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"path/filepath"
)

// ListFiles returns the non-directory entries below dir, in a stable order: within each
// directory its files (sorted) come before its subdirectories (sorted).  If skip is non-nil,
// any file or directory whose base name it returns true for is left out.  A missing dir is not
// an error.
func ListFiles(dir string, skip func(name string) bool) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var ret []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		var subdirs []string
		for _, entry := range entries {
			if skip != nil && skip(entry.Name()) {
				continue
			}
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, full)
			} else {
				ret = append(ret, full)
			}
		}
		for _, subdir := range subdirs {
			if err := walk(subdir); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return nil, err
	}
	return ret, nil
}
