// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"fmt"
	"path/filepath"

	"github.com/datawire/pybuild/pkg/python/pep425"
	"github.com/datawire/pybuild/pkg/python/pep440"
)

// Platform describes the Python environment that a wheel is being installed in to.
type Platform struct {
	ConsoleShebang   string // "/usr/bin/python3"
	GraphicalShebang string // "/usr/bin/python3"

	Scheme Scheme

	// Ownership of installed files; zero values are fine.
	UID   int
	GID   int
	UName string
	GName string

	VersionInfo *VersionInfo
	MagicNumber []byte
	Tags        pep425.Installer

	// PyCompile, if set, is used to byte-compile the installed .py files.
	PyCompile Compiler `json:"-" yaml:"-"`
}

// VersionInfo mirrors Python's `sys.version_info`.
type VersionInfo struct {
	Major        int    `json:"major"`
	Minor        int    `json:"minor"`
	Micro        int    `json:"micro"`
	ReleaseLevel string `json:"releaselevel"`
	Serial       int    `json:"serial"`
}

var releaseLevels = map[string]string{
	"alpha":     "a",
	"beta":      "b",
	"candidate": "rc",
	"final":     "",
}

// PEP440 returns the interpreter's version as something that Requires-Python can be matched
// against.  The serial is not carried over.
func (vi VersionInfo) PEP440() (*pep440.Version, error) {
	pre, ok := releaseLevels[vi.ReleaseLevel]
	if !ok {
		return nil, fmt.Errorf("python.VersionInfo.PEP440: invalid version_info.releaselevel: %q",
			vi.ReleaseLevel)
	}
	ver := &pep440.Version{
		PublicVersion: pep440.PublicVersion{
			Release: []int{vi.Major, vi.Minor, vi.Micro},
		},
	}
	if pre != "" {
		ver.Pre = &pep440.PreRelease{L: pre}
	}
	return ver, nil
}

// Scheme is an install scheme, as in `sysconfig.get_paths()`.
type Scheme struct {
	PureLib string `json:"purelib"` // "/usr/lib/python3.9/site-packages"
	PlatLib string `json:"platlib"` // "/usr/lib64/python3.9/site-packages"
	Headers string `json:"headers"` // "/usr/include/python3.9/$name/"
	Scripts string `json:"scripts"` // "/usr/bin"
	Data    string `json:"data"`    // "/usr"
}

func (s Scheme) paths() [][2]string {
	return [][2]string{
		{"purelib", s.PureLib},
		{"platlib", s.PlatLib},
		{"headers", s.Headers},
		{"scripts", s.Scripts},
		{"data", s.Data},
	}
}

// Dir returns the directory for a scheme key ("purelib", "platlib", "headers", "scripts", or
// "data"), the names used for the subdirectories of a wheel's .data directory.
func (s Scheme) Dir(key string) (string, bool) {
	for _, kv := range s.paths() {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// Map returns a copy of the scheme with fn applied to every path.
func (s Scheme) Map(fn func(string) string) Scheme {
	return Scheme{
		PureLib: fn(s.PureLib),
		PlatLib: fn(s.PlatLib),
		Headers: fn(s.Headers),
		Scripts: fn(s.Scripts),
		Data:    fn(s.Data),
	}
}

// Init fills in whichever shebang is missing from the other one, and checks that every scheme
// path is absolute.
func (plat *Platform) Init() error {
	switch {
	case plat.ConsoleShebang == "" && plat.GraphicalShebang == "":
		return fmt.Errorf("Platform specification does not specify a path to use for shebangs")
	case plat.ConsoleShebang == "":
		plat.ConsoleShebang = plat.GraphicalShebang
	case plat.GraphicalShebang == "":
		plat.GraphicalShebang = plat.ConsoleShebang
	}
	for _, kv := range plat.Scheme.paths() {
		if !filepath.IsAbs(kv[1]) {
			return fmt.Errorf("Platform install scheme %q is not an absolute path: %q", kv[0], kv[1])
		}
	}
	return nil
}
