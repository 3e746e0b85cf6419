// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var knownFlitTables = map[string]bool{
	"metadata":      true,
	"module":        true,
	"scripts":       true,
	"entrypoints":   true,
	"sdist":         true,
	"external-data": true,
}

func loadTOML(ctx context.Context, filename string, content []byte) (*LoadedConfig, error) {
	var doc map[string]interface{}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid TOML: %v", err), Err: err}
	}
	projDir := filepath.Dir(filename)

	tool, _ := doc["tool"].(map[string]interface{})
	flit, _ := tool["flit"].(map[string]interface{})
	project, hasProject := doc["project"].(map[string]interface{})
	if flit == nil {
		flit = map[string]interface{}{}
	}
	_, hasFlitMetadata := flit["metadata"]

	var cfg *LoadedConfig
	var err error
	switch {
	case hasProject && hasFlitMetadata:
		return nil, configErrorf("use [project] table for metadata or [tool.flit.metadata], not both")
	case hasProject:
		if _, ok := flit["scripts"]; ok {
			return nil, configErrorf("don't mix [project] metadata with [tool.flit.scripts]")
		}
		if _, ok := flit["entrypoints"]; ok {
			return nil, configErrorf("don't mix [project] metadata with [tool.flit.entrypoints]")
		}
		if cfg, err = readPEP621Metadata(ctx, project, projDir); err != nil {
			return nil, err
		}
		if rawModule, ok := flit["module"]; ok {
			module, _ := rawModule.(map[string]interface{})
			name, ok := module["name"].(string)
			if !ok {
				return nil, configErrorf("[tool.flit.module] must have a string 'name' key")
			}
			cfg.Module = name
		}
	case hasFlitMetadata:
		if _, ok := flit["module"]; ok {
			return nil, configErrorf("[tool.flit.module] table is only valid with [project] metadata")
		}
		md, ok := flit["metadata"].(map[string]interface{})
		if !ok {
			return nil, configErrorf("[tool.flit.metadata] must be a table")
		}
		if cfg, err = prepMetadata(ctx, md, projDir); err != nil {
			return nil, err
		}
		if rawEPs, ok := flit["entrypoints"]; ok {
			eps, ok := rawEPs.(map[string]interface{})
			if !ok {
				return nil, configErrorf("[tool.flit.entrypoints] must be a table")
			}
			if cfg.EntryPoints, err = flattenEntryPoints(eps); err != nil {
				return nil, err
			}
		}
		if rawScripts, ok := flit["scripts"]; ok {
			scripts, err := stringTable(rawScripts, "[tool.flit.scripts]")
			if err != nil {
				return nil, err
			}
			if err := cfg.addScripts(scripts); err != nil {
				return nil, err
			}
		}
	default:
		return nil, configErrorf("neither [project] nor [tool.flit.metadata] found in pyproject.toml")
	}
	if !isDottedIdentifier(cfg.Module) {
		return nil, configErrorf("module name %q is not a valid identifier", cfg.Module)
	}

	var unknown []string
	for _, key := range sortedKeys(flit) {
		if !knownFlitTables[key] && !strings.HasPrefix(key, "x-") {
			unknown = append(unknown, "[tool.flit."+key+"]")
		}
	}
	if len(unknown) > 0 {
		return nil, configErrorf("unexpected tables in pyproject.toml: %s", strings.Join(unknown, ", "))
	}

	if rawSdist, ok := flit["sdist"]; ok {
		if err := loadSdistConfig(cfg, rawSdist); err != nil {
			return nil, err
		}
	}

	if rawData, ok := flit["external-data"]; ok {
		dataDir, err := loadExternalData(rawData, projDir)
		if err != nil {
			return nil, err
		}
		cfg.DataDirectory = dataDir
	}

	return cfg, nil
}

func loadSdistConfig(cfg *LoadedConfig, raw interface{}) error {
	sdist, ok := raw.(map[string]interface{})
	if !ok {
		return configErrorf("[tool.flit.sdist] must be a table")
	}
	for _, key := range sortedKeys(sdist) {
		if key != "include" && key != "exclude" {
			return configErrorf("unknown keys in [tool.flit.sdist]: %s", key)
		}
	}
	var err error
	if pats, ok := sdist["include"]; ok {
		if cfg.SdistIncludePatterns, err = checkGlobPatterns(pats, "include"); err != nil {
			return err
		}
	}
	if pats, ok := sdist["exclude"]; ok {
		if cfg.SdistExcludePatterns, err = checkGlobPatterns(pats, "exclude"); err != nil {
			return err
		}
	}
	return nil
}

func loadExternalData(raw interface{}, projDir string) (string, error) {
	table, ok := raw.(map[string]interface{})
	if !ok {
		return "", configErrorf("[tool.flit.external-data] must be a table")
	}
	for _, key := range sortedKeys(table) {
		if key != "directory" {
			return "", configErrorf("unknown keys in [tool.flit.external-data]: %s", key)
		}
	}
	dir, ok := table["directory"].(string)
	if !ok {
		return "", configErrorf("[tool.flit.external-data] must have a 'directory' string key")
	}
	if filepath.IsAbs(dir) || path.IsAbs(dir) {
		return "", configErrorf("external data directory %q should be a relative path", dir)
	}
	normed := path.Clean(filepath.ToSlash(dir))
	if normed == "." || normed == ".." || strings.HasPrefix(normed, "../") {
		return "", configErrorf("external data directory %q should be inside the project directory", dir)
	}
	abs := filepath.Join(projDir, filepath.FromSlash(normed))
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", configErrorf("external data directory %q does not exist", dir)
	}
	return abs, nil
}

func stringTable(raw interface{}, what string) (map[string]string, error) {
	table, ok := raw.(map[string]interface{})
	if !ok {
		return nil, configErrorf("%s must be a table", what)
	}
	ret := make(map[string]string, len(table))
	for k, v := range table {
		str, ok := v.(string)
		if !ok {
			return nil, configErrorf("%s: %s must be a string, found %v", what, k, v)
		}
		ret[k] = str
	}
	return ret, nil
}
