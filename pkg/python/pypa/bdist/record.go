// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// A Record is one row of a wheel's RECORD file.  RECORD lists itself with an empty Hash and a
// negative Size.
type Record struct {
	Path string
	// Hash is "{algo}={urlsafe-base64-nopad}".
	Hash string
	Size int64
}

func (r Record) row() []string {
	if r.Hash == "" {
		return []string{r.Path, "", ""}
	}
	return []string{r.Path, r.Hash, strconv.FormatInt(r.Size, 10)}
}

// marshalRecords renders RECORD; recordPath is appended as the last row.
func marshalRecords(records []Record, recordPath string) ([]byte, error) {
	var buf bytes.Buffer
	csvWriter := csv.NewWriter(&buf)
	for _, rec := range records {
		if err := csvWriter.Write(rec.row()); err != nil {
			return nil, err
		}
	}
	if err := csvWriter.Write(Record{Path: recordPath, Size: -1}.row()); err != nil {
		return nil, err
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
