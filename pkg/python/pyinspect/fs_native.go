// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyinspect

import (
	"errors"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/datawire/dlib/dexec"
)

// NativeFS is the filesystem of the running process.
type NativeFS struct{}

var _ FS = NativeFS{}

func (NativeFS) Split(path string) (dir, file string) { return filepath.Split(path) }
func (NativeFS) Join(elem ...string) string           { return filepath.Join(elem...) }

// Stat is os.Stat plus ownership.  An owner that has no passwd or group entry (common in
// containers) is named by its number.
func (NativeFS) Stat(name string) (FileInfo, error) {
	if !filepath.IsAbs(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	info, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: errors.ErrUnsupported}
	}
	ret := &fileInfo{
		FileInfo: info,
		uid:      int(st.Uid),
		gid:      int(st.Gid),
		uname:    strconv.Itoa(int(st.Uid)),
		gname:    strconv.Itoa(int(st.Gid)),
	}
	if usr, err := user.LookupId(ret.uname); err == nil {
		ret.uname = usr.Username
	}
	if grp, err := user.LookupGroupId(ret.gname); err == nil {
		ret.gname = grp.Name
	}
	return ret, nil
}

func (NativeFS) LookPath(file string) (string, error) {
	exe, err := dexec.LookPath(file)
	var lpErr *dexec.Error
	if errors.As(err, &lpErr) {
		return "", &fs.PathError{Op: "lookpath", Path: file, Err: lpErr.Err}
	}
	return exe, err
}
