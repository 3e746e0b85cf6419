// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package entry_points implements the PyPA Entry points specification: the entry_points.txt
// file, and the launcher scripts that installers generate for console_scripts and gui_scripts.
//
// https://packaging.python.org/en/latest/specifications/entry-points/
package entry_points //nolint:revive,stylecheck // named after the spec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python"
)

// Groups maps group name → entry point name → object reference.
type Groups = map[string]map[string]string

// ObjectReference is the parsed value of an entry point: "module:attr [extras]".
type ObjectReference struct {
	Module string
	// Attr is a dotted attribute path in Module, or "".
	Attr   string
	Extras []string
}

var reObjectReference = regexp.MustCompile(
	`^(?P<module>[\w.]+)\s*(?::\s*(?P<attr>[\w.]+)\s*)?(?:\[(?P<extras>[^\]]*)\]\s*)?$`)

// ParseObjectReference parses an entry point value.
func ParseObjectReference(str string) (*ObjectReference, error) {
	match := reObjectReference.FindStringSubmatch(strings.TrimSpace(str))
	if match == nil {
		return nil, fmt.Errorf("entry_points.ParseObjectReference: invalid object reference: %q", str)
	}
	ret := &ObjectReference{
		Module: match[reObjectReference.SubexpIndex("module")],
		Attr:   match[reObjectReference.SubexpIndex("attr")],
	}
	if extras := match[reObjectReference.SubexpIndex("extras")]; strings.TrimSpace(extras) != "" {
		for _, extra := range strings.Split(extras, ",") {
			ret.Extras = append(ret.Extras, strings.TrimSpace(extra))
		}
	}
	return ret, nil
}

// Write writes groups in the entry_points.txt format, with groups and names sorted.
func Write(w io.Writer, groups Groups) error {
	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	var buf strings.Builder
	for _, groupName := range groupNames {
		fmt.Fprintf(&buf, "[%s]\n", groupName)
		group := groups[groupName]
		names := make([]string, 0, len(group))
		for name := range group {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&buf, "%s=%s\n", name, group[name])
		}
		buf.WriteString("\n")
	}
	_, err := io.WriteString(w, buf.String())
	return err
}

// Parse reads an entry_points.txt file.  Entry point names keep their case.
func Parse(r io.Reader) (Groups, error) {
	parser := python.NewConfigParser()
	parser.Delimiters = []string{"="}
	parser.OptionTransform = nil
	ini, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("entry_points.Parse: %w", err)
	}
	ret := make(Groups, len(ini))
	for group, section := range ini {
		ret[group] = map[string]string(section)
	}
	return ret, nil
}

var scriptTmpl = template.Must(template.
	New("entry_point.py").
	Parse(`#!{{ .Shebang }}
# -*- coding: utf-8 -*-
import re
import sys
from {{ .Module }} import {{ .ImportName }}
if __name__ == '__main__':
    sys.argv[0] = re.sub(r'(-script\.pyw|\.exe)?$', '', sys.argv[0])
    sys.exit({{ .Func }}())
`))

// Script renders the launcher script for one entry point.
func Script(shebang, value string) ([]byte, error) {
	ref, err := ParseObjectReference(value)
	if err != nil {
		return nil, err
	}
	if ref.Attr == "" {
		return nil, fmt.Errorf("entry point %q has no object to call", value)
	}
	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, map[string]string{
		"Shebang":    shebang,
		"Module":     ref.Module,
		"ImportName": strings.SplitN(ref.Attr, ".", 2)[0],
		"Func":       ref.Attr,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CreateScripts returns a post-install hook that writes a launcher script in to the scripts
// directory for each console_scripts and gui_scripts entry point of the installed
// distribution.
func CreateScripts(plat python.Platform) func(context.Context, time.Time, map[string]fsutil.FileReference, string) error {
	return func(ctx context.Context, clampTime time.Time, vfs map[string]fsutil.FileReference, installedDistInfoDir string) error {
		if err := plat.Init(); err != nil {
			return err
		}
		configFile, ok := vfs[path.Join(installedDistInfoDir, "entry_points.txt")]
		if !ok {
			return nil
		}
		configReader, err := configFile.Open()
		if err != nil {
			return err
		}
		groups, err := Parse(configReader)
		_ = configReader.Close()
		if err != nil {
			return err
		}

		scriptsDir := strings.TrimPrefix(path.Clean(filepath.ToSlash(plat.Scheme.Scripts)), "/")
		for _, group := range []struct {
			name    string
			shebang string
		}{
			{"console_scripts", plat.ConsoleShebang},
			{"gui_scripts", plat.GraphicalShebang},
		} {
			entries := groups[group.name]
			names := make([]string, 0, len(entries))
			for name := range entries {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				content, err := Script(group.shebang, entries[name])
				if err != nil {
					return fmt.Errorf("%s: %s: %w", group.name, name, err)
				}
				fullname := path.Join(scriptsDir, name)
				dlog.Infof(ctx, "Writing script to %s", fullname)
				vfs[fullname] = fsutil.NewInMemFile(fullname, 0o755, clampTime, content)
			}
		}
		return nil
	}
}
