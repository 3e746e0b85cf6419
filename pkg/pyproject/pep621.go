// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/python/pep440"
)

var pep621AllowedFields = map[string]bool{
	"name":                  true,
	"version":               true,
	"description":           true,
	"readme":                true,
	"requires-python":       true,
	"license":               true,
	"authors":               true,
	"maintainers":           true,
	"keywords":              true,
	"classifiers":           true,
	"urls":                  true,
	"entry-points":          true,
	"scripts":               true,
	"gui-scripts":           true,
	"dependencies":          true,
	"optional-dependencies": true,
	"dynamic":               true,
}

// readPEP621Metadata handles the [project] table.
func readPEP621Metadata(ctx context.Context, proj map[string]interface{}, projDir string) (*LoadedConfig, error) {
	cfg := newLoadedConfig()
	md := &cfg.Metadata

	name, ok := proj["name"].(string)
	if !ok {
		return nil, configErrorf("name must be specified in [project] table as a string")
	}
	md.Name = name
	cfg.Module = strings.ReplaceAll(name, "-", "_")

	var unexpected []string
	for _, key := range sortedKeys(proj) {
		if !pep621AllowedFields[key] {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		dlog.Warnf(ctx, "unexpected names under [project]: %s", strings.Join(unexpected, ", "))
	}

	if raw, ok := proj["version"]; ok {
		str, ok := raw.(string)
		if !ok {
			return nil, configErrorf("version field should be a string, not %v", raw)
		}
		normed, err := pep440.Normalize(str)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		md.Version = normed
	}
	if raw, ok := proj["description"]; ok {
		str, ok := raw.(string)
		if !ok {
			return nil, configErrorf("description field should be a string, not %v", raw)
		}
		md.Summary = str
	}
	if raw, ok := proj["readme"]; ok {
		if err := readPEP621Readme(ctx, cfg, raw, projDir); err != nil {
			return nil, err
		}
	}
	if raw, ok := proj["requires-python"]; ok {
		str, ok := raw.(string)
		if !ok {
			return nil, configErrorf("requires-python field should be a string, not %v", raw)
		}
		md.RequiresPython = str
	}
	if raw, ok := proj["license"]; ok {
		if err := readPEP621License(cfg, raw); err != nil {
			return nil, err
		}
	}
	for _, field := range []string{"authors", "maintainers"} {
		raw, ok := proj[field]
		if !ok {
			continue
		}
		names, emails, err := pep621People(raw, field)
		if err != nil {
			return nil, err
		}
		if field == "authors" {
			md.Author, md.AuthorEmail = names, emails
		} else {
			md.Maintainer, md.MaintainerEmail = names, emails
		}
	}
	if raw, ok := proj["keywords"]; ok {
		list, ok := asStringList(raw)
		if !ok {
			return nil, configErrorf("keywords field should be a list of strings, not %v", raw)
		}
		md.Keywords = strings.Join(list, ",")
	}
	if raw, ok := proj["classifiers"]; ok {
		list, ok := asStringList(raw)
		if !ok {
			return nil, configErrorf("classifiers field should be a list of strings, not %v", raw)
		}
		md.Classifiers = list
	}
	if raw, ok := proj["urls"]; ok {
		urls, err := stringTable(raw, "urls field")
		if err != nil {
			return nil, err
		}
		labels := make([]string, 0, len(urls))
		for label := range urls {
			labels = append(labels, label)
		}
		for _, label := range sortedStrings(labels) {
			if strings.EqualFold(label, "homepage") {
				md.HomePage = urls[label]
			} else {
				md.ProjectURLs = append(md.ProjectURLs, label+", "+urls[label])
			}
		}
	}

	if raw, ok := proj["entry-points"]; ok {
		groups, ok := raw.(map[string]interface{})
		if !ok {
			return nil, configErrorf("entry-points field should be a table, not %v", raw)
		}
		for _, group := range sortedKeys(groups) {
			switch group {
			case "console_scripts":
				return nil, configErrorf("define console_scripts in [project.scripts], not [project.entry-points]")
			case "gui_scripts":
				return nil, configErrorf("define gui_scripts in [project.gui-scripts], not [project.entry-points]")
			}
			eps, err := stringTable(groups[group], "entry-points."+group)
			if err != nil {
				return nil, err
			}
			cfg.EntryPoints[group] = eps
		}
	}
	if raw, ok := proj["scripts"]; ok {
		scripts, err := stringTable(raw, "scripts field")
		if err != nil {
			return nil, err
		}
		cfg.EntryPoints["console_scripts"] = scripts
	}
	if raw, ok := proj["gui-scripts"]; ok {
		scripts, err := stringTable(raw, "gui-scripts field")
		if err != nil {
			return nil, err
		}
		cfg.EntryPoints["gui_scripts"] = scripts
	}

	var noExtra []string
	if raw, ok := proj["dependencies"]; ok {
		if noExtra, ok = asStringList(raw); !ok {
			return nil, configErrorf("dependencies field should be a list of strings, not %v", raw)
		}
	}
	reqsByExtra := make(map[string][]string)
	if raw, ok := proj["optional-dependencies"]; ok {
		if reqsByExtra, ok = asStringListMap(raw); !ok {
			return nil, configErrorf("optional-dependencies field should be a table of lists of strings, not %v", raw)
		}
	}
	finishRequirements(cfg, noExtra, reqsByExtra)

	if raw, ok := proj["dynamic"]; ok {
		dynamic, ok := asStringList(raw)
		if !ok {
			return nil, configErrorf("dynamic field should be a list of strings, not %v", raw)
		}
		for _, field := range dynamic {
			if field != "version" && field != "description" {
				return nil, configErrorf("dynamic=%v: only 'version' and 'description' may be dynamic", dynamic)
			}
			if _, static := proj[field]; static {
				return nil, configErrorf("%s listed in project.dynamic, but also specified statically", field)
			}
		}
		cfg.DynamicMetadata = dynamic
	}
	for _, field := range []string{"version", "description"} {
		if _, static := proj[field]; !static && !cfg.IsDynamic(field) {
			return nil, configErrorf("%s must be specified under [project] or listed as a dynamic field", field)
		}
	}

	return cfg, nil
}

func readPEP621Readme(ctx context.Context, cfg *LoadedConfig, raw interface{}, projDir string) error {
	switch readme := raw.(type) {
	case string:
		desc, contentType, err := descriptionFromFile(ctx, readme, projDir, true)
		if err != nil {
			return err
		}
		cfg.Metadata.Description = desc
		cfg.Metadata.DescriptionContentType = contentType
		cfg.ReferencedFiles = append(cfg.ReferencedFiles, readme)
	case map[string]interface{}:
		file, hasFile := readme["file"].(string)
		text, hasText := readme["text"].(string)
		switch {
		case hasFile && hasText:
			return configErrorf("readme table may not have both file and text fields")
		case hasFile:
			desc, _, err := descriptionFromFile(ctx, file, projDir, false)
			if err != nil {
				return err
			}
			cfg.Metadata.Description = desc
			cfg.ReferencedFiles = append(cfg.ReferencedFiles, file)
		case hasText:
			cfg.Metadata.Description = text
		default:
			return configErrorf("readme table needs either file or text field")
		}
		contentType, ok := readme["content-type"].(string)
		if !ok {
			return configErrorf("if readme is a table, it must have a content-type field")
		}
		base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
		if !isReadmeContentType(base) {
			return configErrorf("readme content-type %q not recognised", contentType)
		}
		cfg.Metadata.DescriptionContentType = contentType
	default:
		return configErrorf("readme field should be a string or a table, not %v", raw)
	}
	return nil
}

func isReadmeContentType(contentType string) bool {
	for _, known := range readmeContentTypes {
		if contentType == known {
			return true
		}
	}
	return false
}

func readPEP621License(cfg *LoadedConfig, raw interface{}) error {
	switch license := raw.(type) {
	case string:
		cfg.Metadata.LicenseExpression = license
	case map[string]interface{}:
		file, hasFile := license["file"].(string)
		text, hasText := license["text"].(string)
		switch {
		case hasFile && hasText:
			return configErrorf("license table may not have both file and text fields")
		case hasFile:
			if filepath.IsAbs(file) {
				return configErrorf("license file path must be relative to the project directory: %q", file)
			}
			cfg.ReferencedFiles = append(cfg.ReferencedFiles, file)
			cfg.Metadata.LicenseFiles = append(cfg.Metadata.LicenseFiles, filepath.ToSlash(file))
		case hasText:
			cfg.Metadata.License = text
		default:
			return configErrorf("license table needs either file or text field")
		}
	default:
		return configErrorf("license field should be a string or a table, not %v", raw)
	}
	return nil
}

// pep621People turns a list of {name, email} tables in to the comma-separated forms used by
// the Author and Author-email fields.
func pep621People(raw interface{}, field string) (names, emails string, err error) {
	list, ok := raw.([]interface{})
	if !ok {
		return "", "", configErrorf("%s field should be a list of tables, not %v", field, raw)
	}
	var nameList, emailList []string
	for _, item := range list {
		person, ok := item.(map[string]interface{})
		if !ok {
			return "", "", configErrorf("%s entries should be tables, not %v", field, item)
		}
		for _, key := range sortedKeys(person) {
			if _, ok := person[key].(string); !ok || (key != "name" && key != "email") {
				return "", "", configErrorf("%s entries may only have string 'name' and 'email' fields", field)
			}
		}
		name, _ := person["name"].(string)
		email, hasEmail := person["email"].(string)
		if hasEmail {
			emailList = append(emailList, coremetadata.FormatAddress(name, email))
		} else if name != "" {
			nameList = append(nameList, name)
		}
	}
	return strings.Join(nameList, ", "), strings.Join(emailList, ", "), nil
}
