// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// defaultTerminalWidth is used when stdout is a terminal of unknown size.
const defaultTerminalWidth = 80

// GetTerminalWidth returns the column to wrap help text at, or 0 to not wrap it.
//
// $COLUMNS wins if it is set.  Otherwise we look at stdout (not stdin), and only wrap when
// stdout is a terminal, so that `pybuild --help | less` gets unwrapped text.
func GetTerminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols >= 0 {
		return cols
	}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	if cols, _, err := term.GetSize(fd); err == nil && cols > 0 {
		return cols
	}
	return defaultTerminalWidth
}
