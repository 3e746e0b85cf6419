// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pymodule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/python/pep440"
)

var (
	ErrNoDocstring = errors.New("cannot package module without docstring, or empty docstring")
	ErrNoVersion   = errors.New(`cannot package module without a version string; ` +
		`please define a '__version__ = "x.y.z"' in your module`)
)

// AllowInvalidEnvVar, when set, lets an invalid __version__ through with a warning.
const AllowInvalidEnvVar = "FLIT_ALLOW_INVALID"

// Info is the metadata that may come from the module itself.
type Info struct {
	Summary string
	Version string
}

// Options says what to read from the module, and how.
type Options struct {
	WantSummary bool
	WantVersion bool
	// Python is the interpreter command used if the module has to be imported; the default is
	// "python3".
	Python []string
}

// DocstringAndVersion returns the module's docstring and __version__, either of which may be
// empty.  The module source is scanned first; only if that doesn't find what is wanted is the
// module imported by a child Python process.
func DocstringAndVersion(ctx context.Context, mod *Module, opts Options) (docstring string, version interface{}, err error) {
	dlog.Debugf(ctx, "loading module %s", mod.File())
	src, err := os.ReadFile(mod.File())
	if err != nil {
		return "", nil, err
	}
	doc, ver := staticDocstringAndVersion(string(src))
	if (!opts.WantSummary || doc != "") && (!opts.WantVersion || ver != "") {
		return doc, ver, nil
	}
	return importDocstringAndVersion(ctx, mod, opts.Python)
}

const importScript = `
import importlib.util
import json
import sys

name, filename, source_dir = sys.argv[1:4]
sys.path.insert(0, source_dir)
spec = importlib.util.spec_from_file_location(name, filename)
mod = importlib.util.module_from_spec(spec)
sys.modules[name] = mod
spec.loader.exec_module(mod)
json.dump({"doc": mod.__doc__, "version": getattr(mod, "__version__", None)}, sys.stdout)
`

func importDocstringAndVersion(ctx context.Context, mod *Module, python []string) (string, interface{}, error) {
	if len(python) == 0 {
		python = []string{"python3"}
	}
	cmdline := append(append([]string(nil), python...), "-I", "-c", importScript,
		mod.Name, mod.File(), mod.SourceDir)
	cmd := dexec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.DisableLogging = true
	bs, err := cmd.Output()
	if err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w:\n > %s", err,
				strings.Join(strings.Split(string(exitErr.Stderr), "\n"), "\n > "))
		}
		return "", nil, fmt.Errorf("importing module %s: %w", mod.Name, err)
	}
	var data struct {
		Doc     *string     `json:"doc"`
		Version interface{} `json:"version"`
	}
	if err := json.Unmarshal(bs, &data); err != nil {
		return "", nil, fmt.Errorf("importing module %s: %w", mod.Name, err)
	}
	var doc string
	if data.Doc != nil {
		doc = cleanDoc(*data.Doc)
	}
	return doc, data.Version, nil
}

// GetInfo reads the summary and the normalized version from the module, as requested by opts.
func GetInfo(ctx context.Context, mod *Module, opts Options) (*Info, error) {
	var ret Info
	if !opts.WantSummary && !opts.WantVersion {
		return &ret, nil
	}
	doc, version, err := DocstringAndVersion(ctx, mod, opts)
	if err != nil {
		return nil, err
	}
	if opts.WantSummary {
		if strings.TrimSpace(doc) == "" {
			return nil, fmt.Errorf("%w: please add a docstring to your module (%s)", ErrNoDocstring, mod.File())
		}
		ret.Summary = strings.SplitN(strings.TrimLeft(doc, " \t\r\n"), "\n", 2)[0]
	}
	if opts.WantVersion {
		if ret.Version, err = CheckVersion(ctx, version); err != nil {
			return nil, err
		}
	}
	return &ret, nil
}

// CheckVersion validates and normalizes a __version__ value.  If $FLIT_ALLOW_INVALID is set, an
// invalid version string is returned as-is (lower-cased) with a warning.
func CheckVersion(ctx context.Context, version interface{}) (string, error) {
	if version == nil || version == "" {
		return "", ErrNoVersion
	}
	str, ok := version.(string)
	if !ok {
		return "", &pep440.InvalidVersionError{
			Version: fmt.Sprint(version),
			Reason:  fmt.Sprintf("__version__ must be a string, not %T", version),
		}
	}
	normed, err := pep440.Normalize(str)
	if err != nil {
		if os.Getenv(AllowInvalidEnvVar) != "" {
			dlog.Warnf(ctx, "invalid version number %q allowed by %s", str, AllowInvalidEnvVar)
			return strings.ToLower(str), nil
		}
		return "", err
	}
	if normed != str {
		dlog.Infof(ctx, "version number normalised: %q -> %q", str, normed)
	}
	return normed, nil
}
