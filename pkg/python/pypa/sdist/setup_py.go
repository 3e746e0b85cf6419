// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package sdist

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/pyproject"
)

const setupPyTmpl = `#!/usr/bin/env python
# setup.py generated by pybuild for tools that don't yet use PEP 517

from distutils.core import setup

%s
setup(name=%s,
      version=%s,
      description=%s,
      author=%s,
      author_email=%s,
      url=%s,
      %s
     )
`

// autoPackages finds the subpackages of a package (directories with an __init__.py), and
// turns every other directory in to a package_data glob relative to its nearest package.
func autoPackages(mod *pymodule.Module) (packages []string, packageData pyDict, err error) {
	packages = []string{mod.Name}
	dataByPkg := make(map[string][]string)
	subpkgs := make(map[string]bool)

	nearestPkg := func(rel string) (string, string) {
		parts := strings.Split(rel, "/")
		for i := len(parts) - 1; i > 0; i-- {
			if subpkgs[strings.Join(parts[:i], "/")] {
				return mod.Name + "." + strings.Join(parts[:i], "."), strings.Join(parts[i:], "/")
			}
		}
		return mod.Name, rel
	}

	err = filepath.WalkDir(mod.Path, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == "__pycache__" {
			return fs.SkipDir
		}
		rel, err := filepath.Rel(mod.Path, name)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, err := os.Stat(filepath.Join(name, "__init__.py")); err == nil {
			subpkgs[rel] = true
			packages = append(packages, mod.Name+"."+strings.ReplaceAll(rel, "/", "."))
		} else {
			pkg, fromPkg := nearestPkg(rel)
			dataByPkg[pkg] = append(dataByPkg[pkg], path.Join(fromPkg, "*"))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(packages)
	packageData = make(pyDict, len(dataByPkg))
	for pkg, globs := range dataByPkg {
		sort.Strings(globs)
		packageData[pkg] = globs
	}
	return packages, packageData, nil
}

// parseReq splits a requirement in to the part setuptools wants and its environment marker,
// rewriting the legacy "name (X)" form to "name==X".
func parseReq(req string) (nameVersion, marker string) {
	nameVersion = req
	if idx := strings.Index(req, ";"); idx >= 0 {
		nameVersion, marker = req[:idx], strings.TrimSpace(req[idx+1:])
	}
	if idx := strings.Index(nameVersion, "("); idx >= 0 {
		name := strings.TrimSpace(nameVersion[:idx])
		version := strings.TrimSpace(strings.ReplaceAll(nameVersion[idx+1:], ")", ""))
		if !strings.ContainsAny(version, "=<>") {
			version = "==" + version
		}
		nameVersion = name + version
	}
	return strings.TrimSpace(nameVersion), marker
}

// convertRequires regroups requirements by "extra:marker", as setuptools wants them.
func convertRequires(reqsByExtra map[string][]string) (installRequires []string, extrasRequire pyDict) {
	extras := make([]string, 0, len(reqsByExtra))
	for extra := range reqsByExtra {
		extras = append(extras, extra)
	}
	sort.Strings(extras)

	grouping := make(map[string][]string)
	for _, extra := range extras {
		for _, req := range reqsByExtra[extra] {
			nameVersion, marker := parseReq(req)
			key := extra
			if key == pyproject.NoExtra {
				key = ""
			}
			if marker != "" {
				key += ":" + marker
			}
			grouping[key] = append(grouping[key], nameVersion)
		}
	}
	installRequires = grouping[""]
	delete(grouping, "")
	extrasRequire = make(pyDict, len(grouping))
	for key, reqs := range grouping {
		extrasRequire[key] = reqs
	}
	return installRequires, extrasRequire
}

// optRepr is repr(val), with "" standing in for None.
func optRepr(val string) string {
	if val == "" {
		return "None"
	}
	return pyReprStr(val)
}

func (b *Builder) makeSetupPy() ([]byte, error) {
	var before, extra []string
	if b.Module.IsPackage {
		packages, packageData, err := autoPackages(b.Module)
		if err != nil {
			return nil, err
		}
		before = append(before,
			fmt.Sprintf("packages = \\\n%s\n", pformat(packages)),
			fmt.Sprintf("package_data = \\\n%s\n", pformat(packageData)))
		extra = append(extra,
			"packages=packages,",
			"package_data=package_data,")
	} else {
		extra = append(extra, fmt.Sprintf("py_modules=%s,", pyRepr([]string{b.Module.Name})))
	}
	if b.Module.Prefix != "" {
		before = append(before, fmt.Sprintf("package_dir = \\\n%s\n", pformat(pyDict{"": b.Module.Prefix})))
		extra = append(extra, "package_dir=package_dir,")
	}

	installRequires, extrasRequire := convertRequires(b.ReqsByExtra)
	if len(installRequires) > 0 {
		before = append(before, fmt.Sprintf("install_requires = \\\n%s\n", pformat(installRequires)))
		extra = append(extra, "install_requires=install_requires,")
	}
	if len(extrasRequire) > 0 {
		before = append(before, fmt.Sprintf("extras_require = \\\n%s\n", pformat(extrasRequire)))
		extra = append(extra, "extras_require=extras_require,")
	}

	if len(b.EntryPoints) > 0 {
		entryPoints := make(pyDict, len(b.EntryPoints))
		for group, eps := range b.EntryPoints {
			names := make([]string, 0, len(eps))
			for name := range eps {
				names = append(names, name)
			}
			sort.Strings(names)
			lines := make([]string, 0, len(names))
			for _, name := range names {
				lines = append(lines, name+" = "+eps[name])
			}
			entryPoints[group] = lines
		}
		before = append(before, fmt.Sprintf("entry_points = \\\n%s\n", pformat(entryPoints)))
		extra = append(extra, "entry_points=entry_points,")
	}

	if b.Metadata.RequiresPython != "" {
		extra = append(extra, fmt.Sprintf("python_requires=%s,", pyReprStr(b.Metadata.RequiresPython)))
	}

	return []byte(fmt.Sprintf(setupPyTmpl,
		strings.Join(before, "\n"),
		pyReprStr(b.Metadata.Name),
		pyReprStr(b.Metadata.Version),
		optRepr(b.Metadata.Summary),
		optRepr(b.Metadata.Author),
		optRepr(b.Metadata.AuthorEmail),
		optRepr(b.Metadata.HomePage),
		strings.Join(extra, "\n      "))), nil
}
