// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

// StubExit makes the package record exit codes rather than exiting, until the returned func is
// called.
func StubExit(codes *[]int) (restore func()) {
	orig := exit
	exit = func(code int) { *codes = append(*codes, code) }
	return func() { exit = orig }
}
