// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pyinspect determines information about a Python environment, for use as the target
// of an install.
package pyinspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pep425"
)

type FileInfo interface {
	fs.FileInfo
	UID() int
	GID() int
	UName() string
	GName() string
}

type fileInfo struct {
	fs.FileInfo
	uid, gid     int
	uname, gname string
}

func (fi *fileInfo) UID() int      { return fi.uid }
func (fi *fileInfo) GID() int      { return fi.gid }
func (fi *fileInfo) UName() string { return fi.uname }
func (fi *fileInfo) GName() string { return fi.gname }

// FS is the view of the filesystem that the interpreter lives on.
type FS interface {
	// Split mimics path/filepath.Split.
	Split(path string) (dir, file string)

	// Join mimics path/filepath.Join.
	Join(elem ...string) string

	// Stat mimics os.Stat, but
	//
	//  1. with the additional requirement that name must be an absolute path
	//  2. the FileInfo also exposes ownership information.
	Stat(name string) (FileInfo, error)

	// LookPath mimics os/exec.LookPath, but io/fs.PathError is used instead of exec.Error.
	LookPath(file string) (string, error)
}

// swapPrefix returns the sibling of exe whose file name starts with `to` rather than `from`
// ("python3.9" becomes "pythonw3.9"), if that sibling exists.  Otherwise it returns exe.
func swapPrefix(sys FS, exe, from, to string) string {
	dir, file := sys.Split(exe)
	if !strings.HasPrefix(file, from) {
		return exe
	}
	if sibling, err := sys.LookPath(sys.Join(dir, to+strings.TrimPrefix(file, from))); err == nil {
		return sibling
	}
	return exe
}

// Shebangs resolves an interpreter command (like "python3") to the paths to write after "#!"
// in console scripts and in GUI scripts.  Given either of "python3" or "pythonw3", the console
// shebang prefers "python3" and the GUI one prefers "pythonw3".
func Shebangs(sys FS, interpreter string) (console, graphical string, err error) {
	exe, err := sys.LookPath(interpreter)
	if err != nil {
		return "", "", err
	}
	console = swapPrefix(sys, exe, "pythonw", "python")
	graphical = exe
	if _, file := sys.Split(console); !strings.HasPrefix(file, "pythonw") {
		graphical = swapPrefix(sys, console, "python", "pythonw")
		if graphical == console {
			graphical = exe
		}
	}
	return console, graphical, nil
}

// DynamicInfo is what can only be learned by running the interpreter.
type DynamicInfo struct {
	MagicNumberB64 string
	// Tags is empty if the "packaging" library isn't importable.
	Tags        pep425.Installer
	VersionInfo python.VersionInfo
	Scheme      python.Scheme
}

const dynamicScript = `
import json
import sys
import sysconfig
from base64 import b64encode
from importlib.util import MAGIC_NUMBER

try:
    from packaging.tags import sys_tags
    tags = [str(tag) for tag in sys_tags()]
except ImportError:
    tags = []

version_info_slots = ['major', 'minor', 'micro', 'releaselevel', 'serial']
paths = sysconfig.get_paths()

json.dump({
  "MagicNumberB64": b64encode(MAGIC_NUMBER).decode('utf-8'),
  "Tags": tags,
  "VersionInfo": {slot: getattr(sys.version_info, slot) for slot in version_info_slots},
  "Scheme": {
    "purelib": paths["purelib"],
    "platlib": paths["platlib"],
    "headers": paths.get("include", ""),
    "scripts": paths["scripts"],
    "data": paths["data"],
  },
}, sys.stdout)
`

// Dynamic runs the interpreter given by cmdline, and asks it about itself.
func Dynamic(ctx context.Context, cmdline ...string) (*DynamicInfo, error) {
	cmd := dexec.CommandContext(ctx, cmdline[0], append(cmdline[1:], "-c", dynamicScript)...)
	cmd.DisableLogging = true
	bs, err := cmd.Output()
	if err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w:\n > %s", err,
				strings.Join(strings.Split(string(exitErr.Stderr), "\n"), "\n > "))
		}
		return nil, fmt.Errorf("running Python: %w", err)
	}
	return parseDynamic(bs)
}

func parseDynamic(bs []byte) (*DynamicInfo, error) {
	var data DynamicInfo
	if err := json.Unmarshal(bs, &data); err != nil {
		return nil, fmt.Errorf("parsing Python output: %w", err)
	}
	return &data, nil
}
