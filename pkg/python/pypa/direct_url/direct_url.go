// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package direct_url implements the PyPA specification Recording the Direct URL Origin of
// installed distributions (AKA PEP 610).
//
// https://packaging.python.org/en/latest/specifications/direct-url/
package direct_url //nolint:revive,stylecheck // named after the spec

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
)

type DirectURL struct {
	URL         string       `json:"url"`
	VCSInfo     *VCSInfo     `json:"vcs_info,omitempty"`     // if URL is a VCS reference
	ArchiveInfo *ArchiveInfo `json:"archive_info,omitempty"` // if URL is a sdist or bdist
	DirInfo     *DirInfo     `json:"dir_info,omitempty"`     // if URL is a local directory
}

type VCSInfo struct {
	VCS               string `json:"vcs"`
	RequestedRevision string `json:"requested_revision,omitempty"`
	CommitID          string `json:"commit_id"`
}

type ArchiveInfo struct {
	Hash string `json:"hash,omitempty"`
}

type DirInfo struct {
	Editable bool `json:"editable"`
}

// ForDirectory describes an install from a local project directory.
func ForDirectory(dir string, editable bool) (DirectURL, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return DirectURL{}, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	fileURL := &url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(abs),
	}
	return DirectURL{
		URL:     fileURL.String(),
		DirInfo: &DirInfo{Editable: editable},
	}, nil
}

// Record returns a post-install hook that writes direct_url.json.
func Record(urlData DirectURL) bdist.PostInstallHook {
	return func(ctx context.Context, clampTime time.Time, vfs map[string]fsutil.FileReference, installedDistInfoDir string) error {
		bs, err := jsonDumps(urlData)
		if err != nil {
			return err
		}
		name := path.Join(installedDistInfoDir, "direct_url.json")
		vfs[name] = fsutil.NewInMemFile(name, 0o644, clampTime, bs)
		return nil
	}
}
