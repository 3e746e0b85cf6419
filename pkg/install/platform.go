// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pyinspect"
)

// PlatformFile is the YAML description of a target Python environment, as written by `pybuild
// python inspect` and read by `pybuild install --platform-file`.
type PlatformFile struct {
	python.Platform
	// PyCompile is the command used to byte-compile the installed .py files, for example
	// ["python3.9", "-m", "compileall"].  Empty means not to compile.
	PyCompile []string `json:",omitempty"`
}

// ParsePlatformFile parses a platform description.  Unknown fields are an error.
func ParsePlatformFile(content []byte) (*PlatformFile, error) {
	var ret PlatformFile
	if err := yaml.Unmarshal(content, &ret, yaml.DisallowUnknownFields); err != nil {
		return nil, err
	}
	return &ret, nil
}

// LoadPlatformFile reads and parses a platform description from a file.
func LoadPlatformFile(filename string) (*PlatformFile, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	ret, err := ParsePlatformFile(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return ret, nil
}

// Marshal renders the platform description as YAML that ParsePlatformFile accepts.
func (pf *PlatformFile) Marshal() ([]byte, error) {
	return yaml.Marshal(pf)
}

// Resolve returns the python.Platform, with PyCompile turned in to a compiler.
func (pf *PlatformFile) Resolve() (python.Platform, error) {
	plat := pf.Platform
	if len(pf.PyCompile) > 0 {
		compiler, err := python.ExternalCompiler(pf.PyCompile...)
		if err != nil {
			return plat, err
		}
		plat.PyCompile = compiler
	}
	return plat, nil
}

// InspectPlatform describes the environment of a local Python interpreter, by running it.
func InspectPlatform(ctx context.Context, interpreter string) (*PlatformFile, error) {
	sys := pyinspect.NativeFS{}

	var ret PlatformFile
	var err error
	ret.ConsoleShebang, ret.GraphicalShebang, err = pyinspect.Shebangs(sys, interpreter)
	if err != nil {
		return nil, err
	}

	dyn, err := pyinspect.Dynamic(ctx, ret.ConsoleShebang)
	if err != nil {
		return nil, err
	}
	ret.Scheme = dyn.Scheme
	ret.VersionInfo = &dyn.VersionInfo
	ret.MagicNumber, err = base64.StdEncoding.DecodeString(dyn.MagicNumberB64)
	if err != nil {
		return nil, err
	}
	ret.Tags = dyn.Tags

	foundOwner := false
	for _, dir := range []string{
		dyn.Scheme.PureLib,
		dyn.Scheme.PlatLib,
		dyn.Scheme.Headers,
		dyn.Scheme.Scripts,
		dyn.Scheme.Data,
	} {
		info, err := sys.Stat(dir)
		if err != nil {
			continue
		}
		ret.UID = info.UID()
		ret.GID = info.GID()
		ret.UName = info.UName()
		ret.GName = info.GName()
		foundOwner = true
		break
	}
	if !foundOwner {
		return nil, fmt.Errorf("could not stat any of the scheme directories: %#v", dyn.Scheme)
	}

	ret.PyCompile = []string{ret.ConsoleShebang, "-m", "compileall"}
	return &ret, nil
}
