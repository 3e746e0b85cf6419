// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package backend ties the pieces together: it loads and validates a project's config, merges
// the module's dynamic metadata in to it, and hands the result to the wheel and sdist builders.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
	"github.com/datawire/pybuild/pkg/python/pypa/sdist"
	"github.com/datawire/pybuild/pkg/validate"
)

// ValidationError is returned when the config has problems, and invalid data isn't allowed.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config values: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config values (%d problems):\n - %s",
		len(e.Problems), strings.Join(e.Problems, "\n - "))
}

// Options controls how a project is loaded.
type Options struct {
	// Python is the interpreter used if the module has to be imported to read its docstring
	// or version.
	Python []string
	// AllowInvalid turns validation problems in to warnings.  Setting $FLIT_ALLOW_INVALID
	// does the same.
	AllowInvalid bool
	// Classifiers, if set, is used to check trove classifiers.
	Classifiers validate.ClassifierSource
}

func (opts Options) allowInvalid() bool {
	return opts.AllowInvalid || os.Getenv(pymodule.AllowInvalidEnvVar) != ""
}

// Version is pybuild's own version, as recorded in the WHEEL file.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// Project is a loaded and validated project.
type Project struct {
	Config   *pyproject.LoadedConfig
	Module   *pymodule.Module
	Metadata *coremetadata.Metadata
}

// LoadProject reads configFile, validates it, finds the module, and works out the metadata.
func LoadProject(ctx context.Context, configFile string, opts Options) (*Project, error) {
	cfg, err := pyproject.Load(ctx, configFile)
	if err != nil {
		return nil, err
	}
	if problems := validate.Config(ctx, cfg, validate.Options{Classifiers: opts.Classifiers}); len(problems) > 0 {
		for _, problem := range problems {
			dlog.Errorf(ctx, "%s", problem)
		}
		if !opts.allowInvalid() {
			return nil, &ValidationError{Problems: problems}
		}
		dlog.Warnf(ctx, "Allowing invalid data (%s set). Uploads may still fail.", pymodule.AllowInvalidEnvVar)
	}

	mod, err := pymodule.Find(cfg.Module, cfg.ProjectDir())
	if err != nil {
		return nil, err
	}
	md, err := MakeMetadata(ctx, mod, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Project{
		Config:   cfg,
		Module:   mod,
		Metadata: md,
	}, nil
}

// MakeMetadata merges the module's name, docstring and version with the static config.  Static
// config wins; the module only fills in the fields that the config declares dynamic.
func MakeMetadata(ctx context.Context, mod *pymodule.Module, cfg *pyproject.LoadedConfig, opts Options) (*coremetadata.Metadata, error) {
	info, err := pymodule.GetInfo(ctx, mod, pymodule.Options{
		WantSummary: cfg.IsDynamic("description"),
		WantVersion: cfg.IsDynamic("version"),
		Python:      opts.Python,
	})
	if err != nil {
		return nil, err
	}

	md := cfg.Metadata
	if md.Name == "" {
		md.Name = mod.Name
	}
	if md.Summary == "" {
		md.Summary = info.Summary
	}
	if md.Version == "" {
		md.Version = info.Version
	}
	if md.Version == "" {
		return nil, fmt.Errorf("%w: set a version in the config, or __version__ in %s",
			pymodule.ErrNoVersion, mod.File())
	}
	return &md, nil
}

// BuildWheel writes a wheel to targetDir.
func (p *Project) BuildWheel(ctx context.Context, targetDir string, editable bool) (string, error) {
	return bdist.BuildWheel(ctx, bdist.WheelOptions{
		Module:        p.Module,
		Metadata:      p.Metadata,
		EntryPoints:   p.Config.EntryPoints,
		ProjectDir:    p.Config.ProjectDir(),
		DataDirectory: p.Config.DataDirectory,
		TargetDir:     targetDir,
		Editable:      editable,
		Generator:     "pybuild " + Version(),
	})
}

// SdistBuilder returns a builder for the project's sdist.  If useVCS is set, the files tracked
// by Git are shipped instead of just the module.
func (p *Project) SdistBuilder(useVCS bool) *sdist.Builder {
	extra := []string{filepath.Base(p.Config.Filename)}
	extra = append(extra, p.Config.ReferencedFiles...)
	builder := &sdist.Builder{
		Module:          p.Module,
		Metadata:        p.Metadata,
		ProjectDir:      p.Config.ProjectDir(),
		ExtraFiles:      extra,
		ReqsByExtra:     p.Config.ReqsByExtra,
		EntryPoints:     p.Config.EntryPoints,
		DataDirectory:   p.Config.DataDirectory,
		IncludePatterns: p.Config.SdistIncludePatterns,
		ExcludePatterns: p.Config.SdistExcludePatterns,
	}
	if useVCS {
		builder.Selector = sdist.VCSFiles{}
	}
	return builder
}

// BuildSdist writes an sdist to targetDir.
func (p *Project) BuildSdist(ctx context.Context, targetDir string, useVCS bool) (string, error) {
	return p.SdistBuilder(useVCS).Build(ctx, targetDir)
}
