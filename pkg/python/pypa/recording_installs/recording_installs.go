// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package recording_installs implements the PyPA specification Recording installed projects.
//
// https://packaging.python.org/en/latest/specifications/recording-installed-packages/
package recording_installs //nolint:revive,stylecheck // named after the spec

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/pypa/bdist"
	"github.com/datawire/pybuild/pkg/python/pypa/direct_url"
)

// recordFile returns the RECORD row for a file.  Files below baseDir (the directory holding
// the .dist-info directory) are listed relative to it; others by absolute path.  Symlinks and
// compiled bytecode get no hash or size.
func recordFile(file fsutil.FileReference, hashName, baseDir string) ([]string, error) {
	name := "/" + file.FullName()
	if strings.HasPrefix(file.FullName(), baseDir+"/") {
		name = strings.TrimPrefix(file.FullName(), baseDir+"/")
	}
	if file.Mode()&fs.ModeSymlink != 0 || strings.HasSuffix(name, ".pyc") || strings.HasSuffix(name, ".pyo") {
		return []string{name, "", ""}, nil
	}
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	hash, size, err := python.RecordDigest(hashName, reader)
	if err != nil {
		return nil, err
	}
	return []string{name, hash, strconv.FormatInt(size, 10)}, nil
}

// Record returns a post-install hook that writes the INSTALLER file, direct_url.json (if urlData
// is non-nil), and finally RECORD, listing every file in the vfs.
func Record(hashName, installer string, urlData *direct_url.DirectURL) bdist.PostInstallHook {
	return func(ctx context.Context, clampTime time.Time, vfs map[string]fsutil.FileReference, installedDistInfoDir string) error {
		// 1. The .dist-info directory

		// Trust the wheel to have the correct .dist-info dir.

		// 2. The METADATA file

		// Trust the wheel to have METADATA.

		// 4. The INSTALLER file
		if installer != "" {
			name := path.Join(installedDistInfoDir, "INSTALLER")
			vfs[name] = fsutil.NewInMemFile(name, 0o644, clampTime, []byte(installer+"\n"))
		}

		// 5. The direct_url.json file
		if urlData != nil {
			if err := direct_url.Record(*urlData)(ctx, clampTime, vfs, installedDistInfoDir); err != nil {
				return fmt.Errorf("recording-installed-packages: direct_url.json: %w", err)
			}
		}

		// 3. The RECORD file
		// Do this last.
		if hashName == "" {
			hashName = python.DefaultRecordHash
		}
		if _, ok := python.HashlibAlgorithmsGuaranteed[hashName]; !ok {
			return fmt.Errorf("recording-installed-packages: unsupported hash algorithm: %q", hashName)
		}
		recordName := path.Join(installedDistInfoDir, "RECORD")
		delete(vfs, recordName)

		files := make([]fsutil.FileReference, 0, len(vfs))
		for _, file := range vfs {
			if !file.IsDir() {
				files = append(files, file)
			}
		}
		sort.Slice(files, func(i, j int) bool {
			return files[i].FullName() < files[j].FullName()
		})
		baseDir := path.Dir(installedDistInfoDir)
		csvData := make([][]string, 0, len(files)+1)
		for _, file := range files {
			row, err := recordFile(file, hashName, baseDir)
			if err != nil {
				return fmt.Errorf("recording-installed-packages: recording file %q: %w", file.FullName(), err)
			}
			csvData = append(csvData, row)
		}
		csvData = append(csvData, []string{path.Join(path.Base(installedDistInfoDir), "RECORD"), "", ""})

		var recordBytes bytes.Buffer
		csvWriter := csv.NewWriter(&recordBytes)
		csvWriter.UseCRLF = true
		if err := csvWriter.WriteAll(csvData); err != nil {
			return err
		}
		vfs[recordName] = fsutil.NewInMemFile(recordName, 0o644, clampTime, recordBytes.Bytes())

		return nil
	}
}
