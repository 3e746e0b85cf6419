// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pyproject loads a project's build configuration, either from the [project] and
// [tool.flit.*] tables of a pyproject.toml file, or from a legacy flit.ini file.
package pyproject

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/python/coremetadata"
)

// NoExtra is the ReqsByExtra key for requirements that don't belong to any extra.
const NoExtra = ".none"

// LoadedConfig is the result of reading a configuration file.
type LoadedConfig struct {
	// Filename is the absolute path of the file that was loaded.
	Filename string
	// Module is the (possibly dotted) name of the top-level module to package.
	Module string
	// Metadata holds the statically configured metadata.  Fields that are in
	// DynamicMetadata are left empty, to be filled from the module.
	Metadata coremetadata.Metadata
	// ReqsByExtra groups the requirements by extra; see NoExtra.
	ReqsByExtra map[string][]string
	// EntryPoints maps group name to entry point name to object reference.
	EntryPoints map[string]map[string]string
	// ReferencedFiles are files that the config refers to (description, license), relative
	// to the project directory.
	ReferencedFiles      []string
	SdistIncludePatterns []string
	SdistExcludePatterns []string
	// DynamicMetadata lists which of "version" and "description" come from the module.
	DynamicMetadata []string
	// DataDirectory is the absolute path of the external data directory, if any.
	DataDirectory string
}

// ProjectDir is the directory containing the config file.
func (cfg *LoadedConfig) ProjectDir() string {
	return filepath.Dir(cfg.Filename)
}

// IsDynamic reports whether field ("version" or "description") comes from the module.
func (cfg *LoadedConfig) IsDynamic(field string) bool {
	for _, dyn := range cfg.DynamicMetadata {
		if dyn == field {
			return true
		}
	}
	return false
}

func (cfg *LoadedConfig) addScripts(scripts map[string]string) error {
	if len(scripts) == 0 {
		return nil
	}
	if _, conflict := cfg.EntryPoints["console_scripts"]; conflict {
		return &ConfigError{Err: ErrEntryPointsConflict}
	}
	cfg.EntryPoints["console_scripts"] = scripts
	return nil
}

func newLoadedConfig() *LoadedConfig {
	return &LoadedConfig{
		ReqsByExtra: make(map[string][]string),
		EntryPoints: make(map[string]map[string]string),
	}
}

// Load reads a configuration file.  A ".toml" file is read as pyproject.toml; anything else
// is read as a legacy flit.ini.  Errors about the file's content are *ConfigError.
func Load(ctx context.Context, filename string) (*LoadedConfig, error) {
	filename, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("pyproject.Load: %w", err)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("pyproject.Load: %w", err)
	}

	var cfg *LoadedConfig
	if strings.HasSuffix(filename, ".toml") {
		cfg, err = loadTOML(ctx, filename, content)
	} else {
		cfg, err = loadINI(ctx, filename, content)
	}
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Filename == "" {
			cfgErr.Filename = filename
		}
		return nil, fmt.Errorf("pyproject.Load: %w", err)
	}
	cfg.Filename = filename
	dlog.Debugf(ctx, "loaded config %q: module=%q", filename, cfg.Module)
	return cfg, nil
}

// expandRequiresExtra folds each extra's requirements in to a flat list, qualified by an
// environment marker.
func expandRequiresExtra(reqsByExtra map[string][]string) []string {
	extras := make([]string, 0, len(reqsByExtra))
	for extra := range reqsByExtra {
		extras = append(extras, extra)
	}
	sort.Strings(extras)

	var ret []string
	for _, extra := range extras {
		for _, req := range reqsByExtra[extra] {
			if idx := strings.Index(req, ";"); idx >= 0 {
				name, marker := strings.TrimSpace(req[:idx]), strings.TrimSpace(req[idx+1:])
				ret = append(ret, fmt.Sprintf(`%s ; extra == "%s" and (%s)`, name, extra, marker))
			} else {
				ret = append(ret, fmt.Sprintf(`%s ; extra == "%s"`, req, extra))
			}
		}
	}
	return ret
}

func sortedKeys(m map[string]interface{}) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func sortedStrings(list []string) []string {
	sort.Strings(list)
	return list
}

var readmeContentTypes = map[string]string{
	".rst": "text/x-rst",
	".md":  "text/markdown",
	".txt": "text/plain",
	"":     "text/plain",
}

// descriptionFromFile reads a description (readme) file, relative to projDir.  If guess is
// set, the content type is guessed from the file extension; an unknown extension is a warning
// and gives an empty content type.
func descriptionFromFile(ctx context.Context, relPath, projDir string, guess bool) (content, contentType string, err error) {
	if filepath.IsAbs(relPath) {
		return "", "", configErrorf("readme path must be relative to the project directory: %q", relPath)
	}
	descPath := filepath.Join(projDir, filepath.FromSlash(relPath))
	bs, err := os.ReadFile(descPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", configErrorf("description file %s does not exist", descPath)
		}
		return "", "", err
	}
	if !guess {
		return string(bs), "", nil
	}
	ext := strings.ToLower(filepath.Ext(descPath))
	contentType, ok := readmeContentTypes[ext]
	if !ok {
		dlog.Warnf(ctx, "unknown extension %q for description file", ext)
		dlog.Warnf(ctx, "  recognised extensions: .rst .md .txt (none)")
	}
	return string(bs), contentType, nil
}

// checkGlobPatterns validates and normalizes sdist include/exclude patterns.
func checkGlobPatterns(pats interface{}, clude string) ([]string, error) {
	list, ok := pats.([]interface{})
	if !ok {
		return nil, configErrorf("sdist %s patterns must be a list", clude)
	}
	ret := make([]string, 0, len(list))
	for _, item := range list {
		pat, ok := item.(string)
		if !ok {
			return nil, configErrorf("sdist %s patterns must be strings, found %v", clude, item)
		}
		normed, err := normalizePattern(pat, clude)
		if err != nil {
			return nil, err
		}
		ret = append(ret, normed)
	}
	return ret, nil
}
