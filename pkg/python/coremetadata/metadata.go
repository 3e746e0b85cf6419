// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package coremetadata implements the Core metadata specification, the format of the METADATA
// file in a wheel and the PKG-INFO file in an sdist.
//
// https://packaging.python.org/specifications/core-metadata/
package coremetadata

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/datawire/pybuild/pkg/python/pep440"
)

// Metadata is the core metadata for one distribution.  Name and Version are required; every
// other field is omitted from the serialized form when empty.
type Metadata struct {
	// MetadataVersion is computed by WriteTo if empty.
	MetadataVersion string

	Name    string
	Version string

	Summary                string
	HomePage               string
	DownloadURL            string
	License                string
	LicenseExpression      string
	LicenseFiles           []string
	Keywords               string
	Author                 string
	AuthorEmail            string
	Maintainer             string
	MaintainerEmail        string
	RequiresPython         string
	Classifiers            []string
	RequiresDist           []string
	ProjectURLs            []string
	ProvidesExtra          []string
	Description            string
	DescriptionContentType string
}

// metadataVersion returns the Metadata-Version that WriteTo will emit.
func (md *Metadata) metadataVersion() string {
	if md.MetadataVersion != "" {
		return md.MetadataVersion
	}
	if md.LicenseExpression != "" || len(md.LicenseFiles) > 0 {
		return "2.4"
	}
	return "2.1"
}

type field struct {
	name  string
	value string
}

func (md *Metadata) fields() []field {
	ret := []field{
		{"Metadata-Version", md.metadataVersion()},
		{"Name", md.Name},
		{"Version", md.Version},
	}
	for _, opt := range []field{
		{"Summary", md.Summary},
		{"Home-page", md.HomePage},
		{"Download-URL", md.DownloadURL},
		{"License", md.License},
		{"License-Expression", md.LicenseExpression},
		{"Keywords", md.Keywords},
		{"Author", md.Author},
		{"Author-email", md.AuthorEmail},
		{"Maintainer", md.Maintainer},
		{"Maintainer-email", md.MaintainerEmail},
		{"Requires-Python", md.RequiresPython},
		{"Description-Content-Type", md.DescriptionContentType},
	} {
		if opt.value != "" {
			ret = append(ret, opt)
		}
	}
	for _, list := range []struct {
		name   string
		values []string
	}{
		{"License-File", md.LicenseFiles},
		{"Classifier", md.Classifiers},
		{"Requires-Dist", md.RequiresDist},
		{"Project-URL", md.ProjectURLs},
		{"Provides-Extra", md.ProvidesExtra},
	} {
		for _, value := range list.values {
			ret = append(ret, field{list.name, value})
		}
	}
	return ret
}

// WriteTo writes the metadata in the email-header-like format of METADATA and PKG-INFO.
func (md *Metadata) WriteTo(w io.Writer) (int64, error) {
	if md.Name == "" || md.Version == "" {
		return 0, fmt.Errorf("coremetadata.Metadata.WriteTo: Name and Version are required")
	}
	var buf strings.Builder
	for _, f := range md.fields() {
		// Continuation lines are indented.
		value := strings.Join(strings.Split(f.value, "\n"), "\n        ")
		fmt.Fprintf(&buf, "%s: %s\n", f.name, value)
	}
	if md.Description != "" {
		buf.WriteString("\n")
		buf.WriteString(md.Description)
		buf.WriteString("\n")
	}
	n, err := io.WriteString(w, buf.String())
	return int64(n), err
}

// Bytes is a convenience wrapper around WriteTo.
func (md *Metadata) Bytes() ([]byte, error) {
	var buf strings.Builder
	if _, err := md.WriteTo(&buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// ParseHeader reads an email-header-style file, as used by METADATA, PKG-INFO, and WHEEL.  It
// returns the header fields and whatever follows the blank line after them.
func ParseHeader(r io.Reader) (textproto.MIMEHeader, []byte, error) {
	// ReadMIMEHeader needs a blank line to end the header, and there might not be one.
	kvReader := textproto.NewReader(bufio.NewReader(io.MultiReader(r, strings.NewReader("\r\n\r\n"))))
	header, err := kvReader.ReadMIMEHeader()
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(kvReader.R)
	if err != nil {
		return nil, nil, err
	}
	return header, body, nil
}

// Parse reads metadata written by WriteTo (or by another tool).  Continuation lines of
// multi-line header values are joined with single spaces.
func Parse(r io.Reader) (*Metadata, error) {
	header, body, err := ParseHeader(r)
	if err != nil {
		return nil, fmt.Errorf("coremetadata.Parse: %w", err)
	}

	md := &Metadata{
		MetadataVersion:        header.Get("Metadata-Version"),
		Name:                   header.Get("Name"),
		Version:                header.Get("Version"),
		Summary:                header.Get("Summary"),
		HomePage:               header.Get("Home-page"),
		DownloadURL:            header.Get("Download-URL"),
		License:                header.Get("License"),
		LicenseExpression:      header.Get("License-Expression"),
		LicenseFiles:           header.Values("License-File"),
		Keywords:               header.Get("Keywords"),
		Author:                 header.Get("Author"),
		AuthorEmail:            header.Get("Author-email"),
		Maintainer:             header.Get("Maintainer"),
		MaintainerEmail:        header.Get("Maintainer-email"),
		RequiresPython:         header.Get("Requires-Python"),
		Classifiers:            header.Values("Classifier"),
		RequiresDist:           header.Values("Requires-Dist"),
		ProjectURLs:            header.Values("Project-URL"),
		ProvidesExtra:          header.Values("Provides-Extra"),
		DescriptionContentType: header.Get("Description-Content-Type"),
	}
	if md.Name == "" || md.Version == "" {
		return nil, fmt.Errorf("coremetadata.Parse: missing Name or Version")
	}
	md.Description = strings.TrimRight(strings.TrimLeft(string(body), "\r\n"), "\r\n")
	if md.Description == "" {
		md.Description = header.Get("Description")
	}
	return md, nil
}

var reLegacyPy3 = regexp.MustCompile(`^\s*(>=?|~=|===?)?\s*[3-9]`)

// SupportsPy2 reports whether Requires-Python admits some Python 2 release.
func (md *Metadata) SupportsPy2() bool {
	if strings.TrimSpace(md.RequiresPython) == "" {
		return true
	}
	spec, err := pep440.ParseSpecifier(md.RequiresPython)
	if err != nil {
		// Not a valid specifier; fall back to looking for a clause that demands 3+.
		for _, part := range strings.Split(md.RequiresPython, ",") {
			if reLegacyPy3.MatchString(part) {
				return false
			}
		}
		return true
	}
	for minor := 0; minor <= 7; minor++ {
		for micro := 0; micro <= 18; micro++ {
			if spec.Match(pep440.Version{PublicVersion: pep440.PublicVersion{
				Release: []int{2, minor, micro},
			}}) {
				return true
			}
		}
	}
	return false
}

var reAddressSpecials = regexp.MustCompile(`[()<>@,:;."\[\]\\]`)

// FormatAddress formats a name and email address as "Name <email>" for the Author-email and
// Maintainer-email fields, quoting the name only if it contains special characters.
func FormatAddress(name, email string) string {
	if name == "" {
		return email
	}
	if reAddressSpecials.MatchString(name) {
		name = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
	}
	return name + " <" + email + ">"
}
