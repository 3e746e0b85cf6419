// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datawire/pybuild/pkg/python/pep425"
	"github.com/datawire/pybuild/pkg/python/pep440"
	"github.com/datawire/pybuild/pkg/python/pep503"
)

// FileNameData is the information encoded in a wheel's file name:
//
//	{distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl
type FileNameData struct {
	Distribution     string
	Version          pep440.Version
	BuildTag         *BuildTag
	CompatibilityTag pep425.Tag
}

// ParseFilename parses the base name of a wheel file.
func ParseFilename(filename string) (*FileNameData, error) {
	invalid := func(err error) (*FileNameData, error) {
		if err != nil {
			return nil, fmt.Errorf("bdist.ParseFilename: invalid wheel filename: %q: %w", filename, err)
		}
		return nil, fmt.Errorf("bdist.ParseFilename: invalid wheel filename: %q", filename)
	}
	stem := strings.TrimSuffix(filename, ".whl")
	if stem == filename {
		return invalid(nil)
	}
	parts := strings.Split(stem, "-")
	for _, part := range parts {
		if part == "" {
			return invalid(nil)
		}
	}
	var ret FileNameData
	switch len(parts) {
	case 5:
	case 6:
		tag, err := parseBuildTag(parts[2])
		if err != nil {
			return invalid(err)
		}
		ret.BuildTag = tag
	default:
		return invalid(nil)
	}
	ret.Distribution = parts[0]
	ver, err := pep440.ParseVersion(parts[1])
	if err != nil {
		return invalid(err)
	}
	ret.Version = *ver
	if ret.CompatibilityTag, err = pep425.ParseTag(strings.Join(parts[len(parts)-3:], "-")); err != nil {
		return invalid(err)
	}
	return &ret, nil
}

func parseBuildTag(str string) (*BuildTag, error) {
	digits := strings.IndexFunc(str, func(r rune) bool { return r < '0' || r > '9' })
	if digits < 0 {
		digits = len(str)
	}
	if digits == 0 {
		return nil, fmt.Errorf("build tag %q does not start with a digit", str)
	}
	n, err := strconv.Atoi(str[:digits])
	if err != nil {
		return nil, fmt.Errorf("build tag: %w", err)
	}
	return &BuildTag{Int: n, Str: str[digits:]}, nil
}

// A BuildTag breaks ties between two wheels of the same version; it starts with a digit.
type BuildTag struct {
	Int int
	Str string
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

// Cmp orders build tags; a missing build tag sorts first.
func (a *BuildTag) Cmp(b *BuildTag) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if d := a.Int - b.Int; d != 0 {
		return d
	}
	return strings.Compare(a.Str, b.Str)
}

// GenerateFilename is the inverse of ParseFilename.  The distribution name is escaped the way
// wheel file names require: runs of "-_." become a single "_", and it is lower-cased.
func GenerateFilename(data FileNameData) (string, error) {
	var ret strings.Builder
	ret.WriteString(pep503.NormalizeWheelName(data.Distribution))
	ret.WriteString("-")
	ret.WriteString(strings.ReplaceAll(data.Version.String(), "-", "_"))
	if data.BuildTag != nil {
		build := data.BuildTag.String()
		if strings.Contains(build, "-") {
			return "", fmt.Errorf("bdist.GenerateFilename: invalid build tag: contains dash: %q", build)
		}
		ret.WriteString("-")
		ret.WriteString(build)
	}
	compat := data.CompatibilityTag.String()
	if strings.Count(compat, "-") != 2 {
		return "", fmt.Errorf("bdist.GenerateFilename: invalid compatibility tag: %q", compat)
	}
	ret.WriteString("-")
	ret.WriteString(compat)
	ret.WriteString(".whl")
	return ret.String(), nil
}
