// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pymodule locates a Python module in a project directory and extracts its docstring and
// version.
package pymodule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Module is a Python module (a single .py file) or package (a directory) in a project.
type Module struct {
	// Name is the import name; a dotted name is a module inside a namespace package.
	Name      string
	IsPackage bool
	// Prefix is "" or "src".
	Prefix string
	// Path is the package directory or module file.
	Path string
	// SourceDir is the directory that Path is relative to when importing.
	SourceDir string
}

// Find locates the module in projDir.  Exactly one of name/, name.py, src/name/, src/name.py
// must exist.
func Find(name, projDir string) (*Module, error) {
	nameAsPath := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))

	var candidates []*Module
	for _, prefix := range []string{"", "src"} {
		base := filepath.Join(projDir, prefix)
		pkgDir := filepath.Join(base, nameAsPath)
		pyFile := pkgDir + ".py"
		if info, err := os.Stat(pkgDir); err == nil && info.IsDir() {
			candidates = append(candidates, &Module{
				Name:      name,
				IsPackage: true,
				Prefix:    prefix,
				Path:      pkgDir,
				SourceDir: base,
			})
		} else if info, err := os.Stat(pyFile); err == nil && info.Mode().IsRegular() {
			candidates = append(candidates, &Module{
				Name:      name,
				Prefix:    prefix,
				Path:      pyFile,
				SourceDir: base,
			})
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("no file/folder found for module %s", name)
	case 1:
		return candidates[0], nil
	default:
		paths := make([]string, 0, len(candidates))
		for _, c := range candidates {
			paths = append(paths, c.Path)
		}
		sort.Strings(paths)
		return nil, fmt.Errorf("multiple files or folders could be module %s: %s",
			name, strings.Join(paths, ", "))
	}
}

// InNamespacePackage reports whether the module lives inside a namespace package.
func (m *Module) InNamespacePackage() bool {
	return strings.Contains(m.Name, ".")
}

// NamespacePackageName is the name of the enclosing namespace package, or "".
func (m *Module) NamespacePackageName() string {
	if idx := strings.LastIndex(m.Name, "."); idx >= 0 {
		return m.Name[:idx]
	}
	return ""
}

// File is the file holding the module's top-level code.
func (m *Module) File() string {
	if m.IsPackage {
		return filepath.Join(m.Path, "__init__.py")
	}
	return m.Path
}

func includeFile(name string) bool {
	return name != "__pycache__" && !strings.HasSuffix(name, ".pyc")
}

// IterFiles returns the absolute paths of every file in the module, in a stable order: within
// each directory its files (sorted) come before its subdirectories (sorted).  Compiled
// bytecode is skipped.
func (m *Module) IterFiles() ([]string, error) {
	if !m.IsPackage {
		return []string{m.Path}, nil
	}
	var ret []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir) // sorted by name
		if err != nil {
			return err
		}
		var subdirs []string
		for _, entry := range entries {
			if !includeFile(entry.Name()) {
				continue
			}
			full := filepath.Join(dir, entry.Name())
			isDir := entry.IsDir()
			if entry.Type()&os.ModeSymlink != 0 {
				if info, err := os.Stat(full); err == nil && info.IsDir() {
					isDir = true
				}
			}
			if isDir {
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
	if err := walk(m.Path); err != nil {
		return nil, fmt.Errorf("listing files of module %s: %w", m.Name, err)
	}
	return ret, nil
}
