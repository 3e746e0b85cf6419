// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package reproducible reads the SOURCE_DATE_EPOCH convention.
//
// https://reproducible-builds.org/specs/source-date-epoch/
package reproducible

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"
)

const EnvVar = "SOURCE_DATE_EPOCH"

// ZIPEpoch is the earliest timestamp that can be stored in a zip file header.
var ZIPEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultZIPTime is the timestamp given to generated wheel members when SOURCE_DATE_EPOCH is
// not set.
var DefaultZIPTime = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

// SourceDateEpoch returns the time named by $SOURCE_DATE_EPOCH, and whether it was set to a
// valid value.  The variable is read on every call.
func SourceDateEpoch(ctx context.Context) (time.Time, bool) {
	str, ok := os.LookupEnv(EnvVar)
	if !ok || str == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		dlog.Warnf(ctx, "ignoring invalid %s=%q: %v", EnvVar, str, err)
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// ZIPTime is like SourceDateEpoch, but also rejects (with a warning) values that a zip file
// can't represent.
func ZIPTime(ctx context.Context) (time.Time, bool) {
	t, ok := SourceDateEpoch(ctx)
	if !ok {
		return time.Time{}, false
	}
	if t.Before(ZIPEpoch) {
		dlog.Warnf(ctx, "%s is before 1980-01-01; zip files can't store it, ignoring", EnvVar)
		return time.Time{}, false
	}
	return t, true
}

// Now returns SOURCE_DATE_EPOCH if it is set, or the current time.
func Now(ctx context.Context) time.Time {
	if t, ok := SourceDateEpoch(ctx); ok {
		return t
	}
	return time.Now()
}
