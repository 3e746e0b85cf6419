// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package install installs a project straight in to a Python environment: it builds a wheel,
// unpacks it the way an installer would, and records the installation.
package install

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/backend"
	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pep376"
	"github.com/datawire/pybuild/pkg/python/pep440"
	"github.com/datawire/pybuild/pkg/python/pep503"
	"github.com/datawire/pybuild/pkg/python/pep508"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
	"github.com/datawire/pybuild/pkg/python/pypa/direct_url"
	"github.com/datawire/pybuild/pkg/python/pypa/entry_points"
	"github.com/datawire/pybuild/pkg/python/pypa/recording_installs"
)

// InstallerName is written to the INSTALLER file.
const InstallerName = "pybuild"

type Mode int

const (
	// ModeCopy copies the module in to site-packages.
	ModeCopy Mode = iota
	// ModeSymlink symlinks the module in to site-packages, so that edits take effect
	// without reinstalling.
	ModeSymlink
	// ModePth writes a .pth file that adds the module's source directory to sys.path.
	ModePth
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeSymlink:
		return "symlink"
	case ModePth:
		return "pth"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Installer installs one project.
type Installer struct {
	Project  *backend.Project
	Platform python.Platform
	// Root, if set, is prepended to every path in Platform.Scheme.
	Root string
	Mode Mode
	// Extras selects which optional requirements are reported along with the required ones.
	Extras []string
}

func (in *Installer) root() string {
	if in.Root == "" {
		return string(filepath.Separator)
	}
	return in.Root
}

// Install installs the project.  Dependencies are not installed; they are only logged.
func (in *Installer) Install(ctx context.Context) error {
	plat := in.Platform
	if err := plat.Init(); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := checkRequiresPython(in.Project.Metadata.RequiresPython, plat.VersionInfo); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	in.logRequirements(ctx, plat)
	if err := in.removeExisting(ctx, plat); err != nil {
		return fmt.Errorf("install: removing existing installation: %w", err)
	}

	tmpdir, err := os.MkdirTemp("", "pybuild-install.")
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	defer os.RemoveAll(tmpdir)
	wheel, err := in.Project.BuildWheel(ctx, tmpdir, in.Mode == ModePth)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	urlData, err := direct_url.ForDirectory(in.Project.Config.ProjectDir(), in.Mode != ModeCopy)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	hooks := []bdist.PostInstallHook{
		entry_points.CreateScripts(plat),
		pep376.RecordRequested(""),
	}
	if in.Mode == ModeSymlink {
		hooks = append(hooks, symlinkModule(in.Project.Module, plat.Scheme.PureLib))
	}
	hooks = append(hooks, recording_installs.Record(python.DefaultRecordHash, InstallerName, &urlData))

	vfs, err := bdist.InstallWheel(ctx, plat, wheel, bdist.PostInstallHooks(hooks...))
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := fsutil.WriteVFS(in.root(), vfs); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	dlog.Infof(ctx, "Installed %s %s (%s) in to %s",
		in.Project.Metadata.Name, in.Project.Metadata.Version, in.Mode,
		filepath.Join(in.root(), plat.Scheme.PureLib))
	return nil
}

func checkRequiresPython(requiresPython string, versionInfo *python.VersionInfo) error {
	if requiresPython == "" || versionInfo == nil {
		return nil
	}
	spec, err := pep440.ParseSpecifier(requiresPython)
	if err != nil {
		return fmt.Errorf("invalid Requires-Python %q: %w", requiresPython, err)
	}
	ver, err := versionInfo.PEP440()
	if err != nil {
		return err
	}
	if !spec.Match(*ver) {
		return fmt.Errorf("the target Python (%s) does not satisfy Requires-Python %q",
			ver, requiresPython)
	}
	return nil
}

// markerEnvironment is the subset of the PEP 508 environment that can be known from the
// platform description.
func markerEnvironment(plat python.Platform, extra string) pep508.Environment {
	env := pep508.Environment{"extra": extra}
	if vi := plat.VersionInfo; vi != nil {
		env["python_version"] = fmt.Sprintf("%d.%d", vi.Major, vi.Minor)
		env["python_full_version"] = fmt.Sprintf("%d.%d.%d", vi.Major, vi.Minor, vi.Micro)
	}
	return env
}

// Requirements returns the requirements that apply to plat, for the selected extras.  A
// requirement whose marker can't be evaluated is included.
func (in *Installer) Requirements(ctx context.Context, plat python.Platform) []string {
	groups := append([]string{pyproject.NoExtra}, in.Extras...)
	var ret []string
	for _, extra := range groups {
		envExtra := extra
		if extra == pyproject.NoExtra {
			envExtra = ""
		}
		for _, reqStr := range in.Project.Config.ReqsByExtra[extra] {
			req, err := pep508.ParseRequirement(reqStr)
			if err != nil {
				dlog.Warnf(ctx, "Invalid requirement %q: %v", reqStr, err)
				continue
			}
			if req.Marker != "" {
				marker, err := pep508.ParseMarker(req.Marker)
				if err == nil {
					ok, err := marker.Evaluate(markerEnvironment(plat, envExtra))
					if err == nil && !ok {
						continue
					}
				}
			}
			ret = append(ret, reqStr)
		}
	}
	return ret
}

func (in *Installer) logRequirements(ctx context.Context, plat python.Platform) {
	reqs := in.Requirements(ctx, plat)
	if len(reqs) == 0 {
		return
	}
	dlog.Warnf(ctx, "Dependencies are not installed; make sure that these are available:")
	for _, req := range reqs {
		dlog.Warnf(ctx, "  %s", req)
	}
}

// removeExisting removes a previous installation of the module: the module itself, a .pth file
// for it, and the .dist-info directory of any version of the distribution.
func (in *Installer) removeExisting(ctx context.Context, plat python.Platform) error {
	purelib := filepath.Join(in.root(), plat.Scheme.PureLib)
	mod := in.Project.Module
	rel, err := filepath.Rel(mod.SourceDir, mod.Path)
	if err != nil {
		return err
	}
	targets := []string{
		filepath.Join(purelib, rel),
		filepath.Join(purelib, mod.Name+".pth"),
	}

	entries, err := os.ReadDir(purelib)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".dist-info") {
			continue
		}
		distName, _, _ := strings.Cut(strings.TrimSuffix(name, ".dist-info"), "-")
		if pep503.SameName(distName, in.Project.Metadata.Name) {
			targets = append(targets, filepath.Join(purelib, name))
		}
	}

	sort.Strings(targets)
	for _, target := range targets {
		if _, err := os.Lstat(target); err != nil {
			continue
		}
		dlog.Infof(ctx, "Removing existing %s", target)
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}
	return nil
}

// symlinkModule returns a hook that replaces the installed copy of the module with a symlink to
// its source.
func symlinkModule(mod *pymodule.Module, purelib string) bdist.PostInstallHook {
	return func(ctx context.Context, clampTime time.Time, vfs map[string]fsutil.FileReference, _ string) error {
		rel, err := filepath.Rel(mod.SourceDir, mod.Path)
		if err != nil {
			return err
		}
		target, err := filepath.Abs(mod.Path)
		if err != nil {
			return err
		}
		dst := path.Join(strings.TrimPrefix(path.Clean(filepath.ToSlash(purelib)), "/"), filepath.ToSlash(rel))
		for name := range vfs {
			if name == dst || strings.HasPrefix(name, dst+"/") {
				delete(vfs, name)
			}
		}
		dlog.Infof(ctx, "Symlinking %s -> %s", "/"+dst, target)
		vfs[dst] = fsutil.NewSymlink(dst, target, clampTime)
		return nil
	}
}
