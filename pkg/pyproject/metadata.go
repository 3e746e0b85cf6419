// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"
)

var metadataAllowedFields = []string{
	"module",
	"author",
	"author-email",
	"maintainer",
	"maintainer-email",
	"home-page",
	"license",
	"keywords",
	"requires-python",
	"dist-name",
	"description-file",
	"requires-extra",
	"classifiers",
	"requires",
	"dev-requires",
	"urls",
}

var metadataListFields = map[string]bool{
	"classifiers":  true,
	"requires":     true,
	"dev-requires": true,
}

var reIdentifier = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// isDottedIdentifier reports whether name is a valid (possibly dotted) Python module name.
func isDottedIdentifier(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if !reIdentifier.MatchString(part) {
			return false
		}
	}
	return true
}

func asStringList(val interface{}) ([]string, bool) {
	list, ok := val.([]interface{})
	if !ok {
		return nil, false
	}
	ret := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		ret = append(ret, str)
	}
	return ret, true
}

func asStringListMap(val interface{}) (map[string][]string, bool) {
	table, ok := val.(map[string]interface{})
	if !ok {
		return nil, false
	}
	ret := make(map[string][]string, len(table))
	for k, v := range table {
		list, ok := asStringList(v)
		if !ok {
			return nil, false
		}
		ret[k] = list
	}
	return ret, true
}

// prepMetadata handles the [tool.flit.metadata] table, or the [metadata] section of a flit.ini
// file converted to the same shape.
func prepMetadata(ctx context.Context, md map[string]interface{}, projDir string) (*LoadedConfig, error) {
	cfg := newLoadedConfig()
	cfg.DynamicMetadata = []string{"version", "description"}

	for _, required := range []string{"module", "author"} {
		if _, ok := md[required]; !ok {
			return nil, configErrorf("required field %q not found", required)
		}
	}

	strs := make(map[string]string)
	lists := make(map[string][]string)
	var reqsByExtra map[string][]string
	for _, key := range sortedKeys(md) {
		val := md[key]
		switch {
		case key == "urls":
			// type-checked below
		case key == "requires-extra":
			var ok bool
			if reqsByExtra, ok = asStringListMap(val); !ok {
				return nil, configErrorf("expected a dict of lists for requires-extra field, found %v", val)
			}
		case metadataListFields[key]:
			list, ok := asStringList(val)
			if !ok {
				return nil, configErrorf("expected a list of strings for %s field, found %v", key, val)
			}
			lists[key] = list
		case contains(metadataAllowedFields, key):
			str, ok := val.(string)
			if !ok {
				return nil, configErrorf("expected a string for %s field, found %v", key, val)
			}
			strs[key] = str
		default:
			return nil, unrecognisedKeyError(key, metadataAllowedFields)
		}
	}

	cfg.Module = strs["module"]
	if !isDottedIdentifier(cfg.Module) {
		return nil, configErrorf("module name %q is not a valid identifier", cfg.Module)
	}

	if descFile, ok := strs["description-file"]; ok {
		desc, contentType, err := descriptionFromFile(ctx, descFile, projDir, true)
		if err != nil {
			return nil, err
		}
		cfg.Metadata.Description = desc
		cfg.Metadata.DescriptionContentType = contentType
		cfg.ReferencedFiles = append(cfg.ReferencedFiles, descFile)
	}

	if rawURLs, ok := md["urls"]; ok {
		urls, ok := rawURLs.(map[string]interface{})
		if !ok {
			return nil, configErrorf("expected a table for urls field, found %v", rawURLs)
		}
		for _, label := range sortedKeys(urls) {
			url, ok := urls[label].(string)
			if !ok {
				return nil, configErrorf("expected a string for urls.%s, found %v", label, urls[label])
			}
			cfg.Metadata.ProjectURLs = append(cfg.Metadata.ProjectURLs, fmt.Sprintf("%s, %s", label, url))
		}
	}

	cfg.Metadata.Name = strs["dist-name"]
	cfg.Metadata.Author = strs["author"]
	cfg.Metadata.AuthorEmail = strs["author-email"]
	cfg.Metadata.Maintainer = strs["maintainer"]
	cfg.Metadata.MaintainerEmail = strs["maintainer-email"]
	cfg.Metadata.HomePage = strs["home-page"]
	cfg.Metadata.License = strs["license"]
	cfg.Metadata.Keywords = strs["keywords"]
	cfg.Metadata.RequiresPython = strs["requires-python"]
	cfg.Metadata.Classifiers = lists["classifiers"]

	if reqsByExtra == nil {
		reqsByExtra = make(map[string][]string)
	}
	if devRequires, ok := lists["dev-requires"]; ok {
		if _, conflict := reqsByExtra["dev"]; conflict {
			return nil, configErrorf("dev-requires occurs together with its replacement requires-extra.dev")
		}
		dlog.Warnf(ctx, `"dev-requires = ..." is obsolete; use "requires-extra = {"dev" = ...}" instead`)
		reqsByExtra["dev"] = devRequires
	}
	finishRequirements(cfg, lists["requires"], reqsByExtra)

	return cfg, nil
}

// finishRequirements fills RequiresDist, ProvidesExtra, and ReqsByExtra.
func finishRequirements(cfg *LoadedConfig, noExtra []string, reqsByExtra map[string][]string) {
	extras := make([]string, 0, len(reqsByExtra))
	for extra, reqs := range reqsByExtra {
		extras = append(extras, extra)
		cfg.ReqsByExtra[extra] = reqs
	}
	sort.Strings(extras)
	if len(extras) > 0 {
		cfg.Metadata.ProvidesExtra = extras
	}
	cfg.ReqsByExtra[NoExtra] = noExtra
	cfg.Metadata.RequiresDist = append(append([]string(nil), noExtra...), expandRequiresExtra(reqsByExtra)...)
}

func contains(list []string, item string) bool {
	for _, x := range list {
		if x == item {
			return true
		}
	}
	return false
}
