// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"crypto/md5"  //nolint:gosec // hashlib has it
	"crypto/sha1" //nolint:gosec // hashlib has it
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// DefaultRecordHash is the algorithm used when writing RECORD files.
const DefaultRecordHash = "sha256"

func unkeyed(fn func([]byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			// only possible with an over-long key
			panic(err)
		}
		return h
	}
}

// HashlibAlgorithmsGuaranteed is Python's `hashlib.algorithms_guaranteed`, minus the SHAKE
// functions, which have no fixed digest size and so cannot appear in a RECORD.  The BLAKE2
// functions use hashlib's default digest sizes.
//
//nolint:gochecknoglobals // Would be 'const'.
var HashlibAlgorithmsGuaranteed = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3_224": sha3.New224,
	"sha3_256": sha3.New256,
	"sha3_384": sha3.New384,
	"sha3_512": sha3.New512,
	"blake2b":  unkeyed(blake2b.New512),
	"blake2s":  unkeyed(blake2s.New256),
}

// RecordDigest hashes everything read from r, and returns it spelled the RECORD way:
// "{algo}={urlsafe-base64-without-padding}".
func RecordDigest(algo string, r io.Reader) (digest string, size int64, err error) {
	newHash, ok := HashlibAlgorithmsGuaranteed[algo]
	if !ok {
		return "", 0, fmt.Errorf("unsupported hash algorithm: %q", algo)
	}
	h := newHash()
	if size, err = io.Copy(h, r); err != nil {
		return "", 0, err
	}
	return algo + "=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), size, nil
}
