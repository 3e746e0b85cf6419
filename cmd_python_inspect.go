// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/datawire/pybuild/pkg/cliutil"
	"github.com/datawire/pybuild/pkg/install"
)

func init() {
	var flags struct {
		Interpreter string
	}
	cmd := &cobra.Command{
		Use:   "inspect [flags] >PYTHON_PLATFORM.yml",
		Short: "Dump information about a Python environment",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		Long: "Inspect a Python environment, and dump information about it for " +
			"consumption by `pybuild install --platform-file=`.  The output " +
			"also includes some informative fields that are not used by " +
			"`pybuild install`." +
			"\n\n" +
			"The compatibility tags are only included if the interpreter can import " +
			"the \"packaging\" library.",

		RunE: func(cmd *cobra.Command, args []string) error {
			platFile, err := install.InspectPlatform(cmd.Context(), flags.Interpreter)
			if err != nil {
				return err
			}
			bs, err := platFile.Marshal()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(bs); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Interpreter, "interpreter", "python3",
		"The Python interpreter to inspect")

	argparserPython.AddCommand(cmd)
}
