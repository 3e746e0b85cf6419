// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datawire/pybuild/pkg/cliutil"
	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/validate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [flags] [PYPROJECT]",
		Short: "Check a project's metadata for problems",
		Long: "Load the project configured by PYPROJECT (default: pyproject.toml, or " +
			"flit.ini if only that exists), and report every problem found in its " +
			"metadata: names, classifiers, entry points, requirements, environment " +
			"markers, and URLs." +
			"\n\n" +
			"Classifiers are checked against a cached copy of the PyPI list, which is " +
			"downloaded if needed unless FLIT_NO_NETWORK is set.",
		Args: cliutil.ConfigFileArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			configFile := cliutil.ConfigFile(".", args)
			cfg, err := pyproject.Load(ctx, configFile)
			if err != nil {
				return err
			}
			problems := validate.Config(ctx, cfg, validate.Options{
				Classifiers: loadOptions(cmd).Classifiers,
			})

			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				color.New(color.FgGreen).Fprintf(out, "%s: OK\n", configFile)
				return nil
			}
			red := color.New(color.FgRed)
			for _, problem := range problems {
				red.Fprintf(out, "%s: %s\n", configFile, problem)
			}
			return fmt.Errorf("%d problems found", len(problems))
		},
	}
	argparser.AddCommand(cmd)
}
