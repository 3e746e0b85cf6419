// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"os"

	"github.com/datawire/pybuild/pkg/python/pypa/entry_points"
)

// flattenEntryPoints turns nested [tool.flit.entrypoints] tables in to groups.  A table with
// leaf values is a group named by its dotted path; a table may hold both leaves and
// sub-tables.
func flattenEntryPoints(tables map[string]interface{}) (map[string]map[string]string, error) {
	ret := make(map[string]map[string]string)
	var flatten func(table map[string]interface{}, prefix string) error
	flatten = func(table map[string]interface{}, prefix string) error {
		group := make(map[string]string)
		for _, key := range sortedKeys(table) {
			switch val := table[key].(type) {
			case map[string]interface{}:
				if err := flatten(val, prefix+"."+key); err != nil {
					return err
				}
			case string:
				group[key] = val
			default:
				return configErrorf("entry point %s.%s: expected a string, found %v", prefix, key, val)
			}
		}
		if len(group) > 0 {
			ret[prefix] = group
		}
		return nil
	}
	for _, key := range sortedKeys(tables) {
		table, ok := tables[key].(map[string]interface{})
		if !ok {
			return nil, configErrorf("entry points group %q must be a table", key)
		}
		if err := flatten(table, key); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// readEntryPointsFile parses an entry_points.txt style file.  Names keep their case.
func readEntryPointsFile(filename string) (map[string]map[string]string, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	ret, err := entry_points.Parse(fh)
	if err != nil {
		return nil, &ConfigError{Filename: filename, Err: err}
	}
	return ret, nil
}
