// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ConfigFile returns the project config file named on the command line.  With no arguments,
// it is pyproject.toml in dir, or the legacy flit.ini if only that one exists.
func ConfigFile(dir string, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	pyproject := filepath.Join(dir, "pyproject.toml")
	if _, err := os.Stat(pyproject); err != nil {
		if _, err := os.Stat(filepath.Join(dir, "flit.ini")); err == nil {
			return filepath.Join(dir, "flit.ini")
		}
	}
	return pyproject
}

// ConfigFileArgs is the cobra.PositionalArgs for commands that take an optional config file.
var ConfigFileArgs = WrapPositionalArgs(cobra.MaximumNArgs(1))
