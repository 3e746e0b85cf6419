// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/pybuild/pkg/python"
)

// loadINI reads the legacy flit.ini format.
func loadINI(ctx context.Context, filename string, content []byte) (*LoadedConfig, error) {
	parser := python.NewConfigParser()
	parser.OptionTransform = nil // lower-case metadata keys ourselves; script names keep their case
	ini, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	projDir := filepath.Dir(filename)

	var unknown []string
	for sect := range ini {
		if sect != "metadata" && sect != "scripts" && !strings.HasPrefix(strings.ToLower(sect), "x-") {
			unknown = append(unknown, sect)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, configErrorf("unknown sections: %s", strings.Join(unknown, ", "))
	}
	mdSect, ok := ini["metadata"]
	if !ok {
		return nil, configErrorf("[metadata] section is required")
	}

	md := make(map[string]interface{}, len(mdSect))
	for key, val := range mdSect {
		key = strings.ToLower(key)
		if metadataListFields[key] {
			var list []interface{}
			for _, line := range strings.Split(val, "\n") {
				if strings.TrimSpace(line) != "" {
					list = append(list, line)
				}
			}
			md[key] = list
		} else {
			md[key] = val
		}
	}

	var epFile string
	if rel, ok := md["entry-points-file"].(string); ok {
		delete(md, "entry-points-file")
		epFile = filepath.Join(projDir, filepath.FromSlash(rel))
		if info, err := os.Stat(epFile); err != nil || !info.Mode().IsRegular() {
			return nil, configErrorf("entry points file %s does not exist", epFile)
		}
	} else if info, err := os.Stat(filepath.Join(projDir, "entry_points.txt")); err == nil && info.Mode().IsRegular() {
		epFile = filepath.Join(projDir, "entry_points.txt")
	}

	cfg, err := prepMetadata(ctx, md, projDir)
	if err != nil {
		return nil, err
	}
	if epFile != "" {
		if cfg.EntryPoints, err = readEntryPointsFile(epFile); err != nil {
			return nil, err
		}
	}
	if scripts, ok := ini["scripts"]; ok {
		if err := cfg.addScripts(map[string]string(scripts)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
