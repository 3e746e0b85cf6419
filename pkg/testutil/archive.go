// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

// ArchiveEntry is a single member of a wheel (zip) or sdist (tar.gz).
type ArchiveEntry struct {
	Name    string
	Mode    fs.FileMode
	ModTime time.Time
	Size    int64
	// Header is the raw *zip.FileHeader or *tar.Header.
	Header  interface{}
	Content []byte
}

// ReadArchive reads every member of a ".whl"/".zip" or ".tar.gz" file, in archive order.
func ReadArchive(filename string) ([]ArchiveEntry, error) {
	switch {
	case strings.HasSuffix(filename, ".whl"), strings.HasSuffix(filename, ".zip"):
		return readZip(filename)
	case strings.HasSuffix(filename, ".tar.gz"):
		return readTarGz(filename)
	default:
		return nil, fmt.Errorf("testutil.ReadArchive: unrecognized archive type: %q", filename)
	}
}

func readZip(filename string) ([]ArchiveEntry, error) {
	zipReader, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zipReader.Close()

	ret := make([]ArchiveEntry, 0, len(zipReader.File))
	for _, file := range zipReader.File {
		content, err := func() ([]byte, error) {
			reader, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer reader.Close()
			return io.ReadAll(reader)
		}()
		if err != nil {
			return nil, fmt.Errorf("%q: %w", file.Name, err)
		}
		header := file.FileHeader
		ret = append(ret, ArchiveEntry{
			Name:    file.Name,
			Mode:    file.Mode(),
			ModTime: file.Modified,
			Size:    int64(file.UncompressedSize64),
			Header:  &header,
			Content: content,
		})
	}
	return ret, nil
}

func readTarGz(filename string) (_ []ArchiveEntry, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err := gzReader.Close(); _err != nil && err == nil {
			err = _err
		}
	}()

	var ret []ArchiveEntry
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		content, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, err
		}
		ret = append(ret, ArchiveEntry{
			Name:    header.Name,
			Mode:    header.FileInfo().Mode(),
			ModTime: header.ModTime,
			Size:    header.Size,
			Header:  header,
			Content: content,
		})
	}
	return ret, nil
}

// ArchiveNames returns the member names of an archive, in archive order.
func ArchiveNames(t *testing.T, filename string) []string {
	t.Helper()
	entries, err := ReadArchive(filename)
	if err != nil {
		t.Fatalf("read archive %q: %v", filename, err)
	}
	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, entry.Name)
	}
	return ret
}

// ArchiveFile returns the content of a single archive member, failing the test if it isn't
// present.
func ArchiveFile(t *testing.T, filename, member string) string {
	t.Helper()
	entries, err := ReadArchive(filename)
	if err != nil {
		t.Fatalf("read archive %q: %v", filename, err)
	}
	for _, entry := range entries {
		if entry.Name == member {
			return string(entry.Content)
		}
	}
	t.Fatalf("archive %q has no member %q", filename, member)
	return ""
}

func DumpArchiveFull(filename string) (string, error) {
	var spewConfig = spew.ConfigState{
		Indent:                  "  ",
		DisableMethods:          true,
		DisableCapacities:       true,
		DisablePointerAddresses: true,
		SortKeys:                true,
	}

	entries, err := ReadArchive(filename)
	if err != nil {
		return "", err
	}

	ret := new(strings.Builder)
	for _, entry := range entries {
		if _, err := fmt.Fprintf(ret, "header = %s", spewConfig.Sdump(entry.Header)); err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(ret, "content =%s", spewConfig.Sdump(entry.Content)); err != nil {
			return "", err
		}
	}
	return ret.String(), nil
}

func DumpArchiveListing(filename string) (string, error) {
	entries, err := ReadArchive(filename)
	if err != nil {
		return "", err
	}

	ret := new(strings.Builder)
	table := tabwriter.NewWriter(
		ret, // output
		0,   // minwidth
		1,   // tabwidth
		1,   // padding
		' ', // padchar
		0)   // flags
	for _, entry := range entries {
		if _, err := fmt.Fprintln(table, strings.Join([]string{
			"",
			entry.Mode.String(),
			entry.ModTime.UTC().Format(time.RFC3339),
			fmt.Sprintf("% 10d", entry.Size),
			entry.Name,
		}, "\t")); err != nil {
			return "", err
		}
	}
	if err := table.Flush(); err != nil {
		return "", err
	}
	return ret.String(), nil
}

func unifiedDiff(exp, act string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	return diff
}

// AssertEqualArchives compares two archive files member-by-member, first by listing and then in
// full, and reports a unified diff on mismatch.
func AssertEqualArchives(t *testing.T, exp, act string) bool {
	t.Helper()

	// First just compare the listings, in order to "fail fast" and give more readable output.
	expStr, err := DumpArchiveListing(exp)
	if err != nil {
		t.Errorf("error dumping expected archive listing: %v", err)
		return false
	}
	actStr, err := DumpArchiveListing(act)
	if err != nil {
		t.Errorf("error dumping actual archive listing: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Listing diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}

	expStr, err = DumpArchiveFull(exp)
	if err != nil {
		t.Errorf("error dumping expected archive: %v", err)
		return false
	}
	actStr, err = DumpArchiveFull(act)
	if err != nil {
		t.Errorf("error dumping actual archive: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Full diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}

	return true
}

// WriteFiles populates dir with the given files; map keys are slash-separated relative paths.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		filename := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
