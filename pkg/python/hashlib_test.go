// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pybuild/pkg/python"
)

func TestRecordDigest(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Input  string
		Digest string
	}{
		"sha256":   {"", "sha256=47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU"},
		"sha3_256": {"", "sha3_256=p__G-L8e12ZRwUdWoGHWYvWA_03kO0n6gtgKS4D4Q0o"},
		"blake2s":  {"hello", "blake2s=GSE7rMWN7m294865pHy7Mws9hvjMqJl-sAvkVvFAyiU"},
	}
	for algo, tc := range testcases {
		algo, tc := algo, tc
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			digest, size, err := python.RecordDigest(algo, strings.NewReader(tc.Input))
			require.NoError(t, err)
			assert.Equal(t, tc.Digest, digest)
			assert.Equal(t, int64(len(tc.Input)), size)
		})
	}
}

func TestRecordDigestUnsupported(t *testing.T) {
	t.Parallel()
	_, _, err := python.RecordDigest("shake_128", strings.NewReader(""))
	assert.EqualError(t, err, `unsupported hash algorithm: "shake_128"`)
}
