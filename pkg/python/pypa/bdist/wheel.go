// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"net/textproto"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/dlib/derror"

	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
)

// wheel is an opened wheel archive, indexed by cleaned member name.
type wheel struct {
	zip      *zip.Reader
	members  map[string]*zip.File
	distInfo string // "{name}-{version}.dist-info"
}

// openWheel indexes the archive, and finds its .dist-info directory.  Like pip's
// wheel_dist_info_dir(), it insists on there being exactly one.
func openWheel(zr *zip.Reader) (*wheel, error) {
	wh := &wheel{
		zip:     zr,
		members: make(map[string]*zip.File, len(zr.File)),
	}
	infoDirs := make(map[string]bool)
	for _, file := range zr.File {
		name := path.Clean(file.Name)
		wh.members[name] = file
		if top, _, _ := strings.Cut(name, "/"); strings.HasSuffix(top, ".dist-info") {
			infoDirs[top] = true
		}
	}
	list := make([]string, 0, len(infoDirs))
	for dir := range infoDirs {
		list = append(list, dir)
	}
	sort.Strings(list)
	switch len(list) {
	case 0:
		return nil, fmt.Errorf(".dist-info directory not found")
	case 1:
		wh.distInfo = list[0]
		return wh, nil
	default:
		return nil, fmt.Errorf("multiple .dist-info directories found: %v", list)
	}
}

func (wh *wheel) open(filename string) (io.ReadCloser, error) {
	file, ok := wh.members[path.Clean(filename)]
	if !ok {
		return nil, fmt.Errorf("%w in wheel zip archive: %q", fs.ErrNotExist, filename)
	}
	return file.Open()
}

// readWheelFile reads the "{name}.dist-info/WHEEL" file.
func (wh *wheel) readWheelFile() (textproto.MIMEHeader, error) {
	fh, err := wh.open(path.Join(wh.distInfo, "WHEEL"))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	header, _, err := coremetadata.ParseHeader(fh)
	return header, err
}

// strongHashes are the RECORD hash algorithms that installers must accept; PEP 427 forbids md5
// and sha1.
var strongHashes = map[string]bool{
	"sha256": true,
	"sha384": true,
	"sha512": true,
}

func (wh *wheel) readRecord() ([][]string, error) {
	recordName := path.Join(wh.distInfo, "RECORD")
	reader, err := wh.open(recordName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	data, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", recordName, err)
	}
	return data, nil
}

func (wh *wheel) checkFile(filename, algo string) (hashsum string, size int64, err error) {
	reader, err := wh.open(filename)
	if err != nil {
		return "", 0, err
	}
	defer reader.Close()
	if algo == "" {
		size, err = io.Copy(io.Discard, reader)
		return "", size, err
	}
	if !strongHashes[algo] {
		return "", 0, fmt.Errorf("unsupported hash algorithm: %q", algo)
	}
	return python.RecordDigest(algo, reader)
}

// integrityCheck checks every row of RECORD against the archive, and returns a
// derror.MultiError of every problem found.
func (wh *wheel) integrityCheck() error {
	recordName := path.Join(wh.distInfo, "RECORD")

	unrecorded := make(map[string]bool)
	for name, file := range wh.members {
		if file.FileInfo().IsDir() || name == recordName+".jws" || name == recordName+".p7s" {
			continue
		}
		unrecorded[name] = true
	}

	recordData, err := wh.readRecord()
	if err != nil {
		return err
	}

	var errs derror.MultiError
	for i, row := range recordData {
		if len(row) != 3 {
			errs = append(errs, fmt.Errorf("RECORD row %d: does not have 3 columns: %q", i, row))
			continue
		}
		name, recHashsum, recSize := path.Clean(row[0]), row[1], row[2]
		delete(unrecorded, name)
		if (recHashsum == "" || recSize == "") && name != recordName {
			errs = append(errs, fmt.Errorf("RECORD row %d: missing hash or size: %q", i, row))
		}
		algo := strings.SplitN(recHashsum, "=", 2)[0]
		actHashsum, actSize, err := wh.checkFile(name, algo)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: %w", i, name, err))
			continue
		}
		if recHashsum != "" && actHashsum != recHashsum {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: checksum mismatch: RECORD=%q actual=%q",
				i, name, recHashsum, actHashsum))
		}
		if recSize != "" && strconv.FormatInt(actSize, 10) != recSize {
			errs = append(errs, fmt.Errorf("RECORD row %d: file %q: size mismatch: RECORD=%s actual=%d",
				i, name, recSize, actSize))
		}
	}
	if len(unrecorded) > 0 {
		names := make([]string, 0, len(unrecorded))
		for name := range unrecorded {
			names = append(names, name)
		}
		sort.Strings(names)
		errs = append(errs, fmt.Errorf("files not mentioned in RECORD: %q", names))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// VerifyWheel re-reads a wheel file and checks that RECORD accounts for every file in it, with
// the right hashes and sizes.  Every problem is reported, as a derror.MultiError.
func VerifyWheel(filename string) error {
	zipReader, err := zip.OpenReader(filename)
	if err != nil {
		return fmt.Errorf("bdist.VerifyWheel: %w", err)
	}
	defer zipReader.Close()
	wh, err := openWheel(&zipReader.Reader)
	if err != nil {
		return fmt.Errorf("bdist.VerifyWheel: %s: %w", filename, err)
	}
	if err := wh.integrityCheck(); err != nil {
		return fmt.Errorf("bdist.VerifyWheel: %s: %w", filename, err)
	}
	return nil
}
