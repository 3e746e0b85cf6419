// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep376 implements the REQUESTED metadata of PEP 376 -- Database of Installed Python
// Distributions.
//
// https://packaging.python.org/en/latest/specifications/recording-installed-packages/
package pep376

import (
	"context"
	"path"
	"time"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
)

// RecordRequested returns a post-install hook that marks the distribution as installed by
// direct user request, rather than as a dependency of something else.  The REQUESTED file holds
// the comment line `requested`, if non-empty.
func RecordRequested(requested string) bdist.PostInstallHook {
	return func(_ context.Context, clampTime time.Time, vfs map[string]fsutil.FileReference, installedDistInfoDir string) error {
		content := []byte{}
		if requested != "" {
			content = []byte(requested + "\n")
		}
		fullname := path.Join(installedDistInfoDir, "REQUESTED")
		vfs[fullname] = fsutil.NewInMemFile(fullname, 0o644, clampTime, content)
		return nil
	}
}
