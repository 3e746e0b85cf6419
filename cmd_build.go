// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/pybuild/pkg/backend"
	"github.com/datawire/pybuild/pkg/classifiers"
	"github.com/datawire/pybuild/pkg/cliutil"
	"github.com/datawire/pybuild/pkg/pymodule"
)

// loadOptions returns the project-loading options shared by every subcommand.  Classifiers
// aren't checked if there is no usable cache directory.
func loadOptions(cmd *cobra.Command) backend.Options {
	var opts backend.Options
	cache, err := classifiers.NewCache()
	if err != nil {
		dlog.Warnf(cmd.Context(), "Not checking classifiers: %v", err)
		return opts
	}
	opts.Classifiers = cache
	return opts
}

func init() {
	var flags struct {
		Formats      []string
		OutDir       string
		NoUseVCS     bool
		Verify       bool
		Python       string
		AllowInvalid bool
	}
	cmd := &cobra.Command{
		Use:   "build [flags] [PYPROJECT]",
		Short: "Build a wheel and/or an sdist",
		Long: "Build a wheel and an sdist for the project configured by PYPROJECT " +
			"(default: pyproject.toml, or flit.ini if only that exists)." +
			"\n\n" +
			"When both are built, the wheel is built from the unpacked sdist, so that " +
			"a file missing from the sdist is noticed." +
			"\n\n" +
			"Set SOURCE_DATE_EPOCH to get reproducible archives.",
		Args: cliutil.ConfigFileArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if flags.AllowInvalid {
				if err := os.Setenv(pymodule.AllowInvalidEnvVar, "1"); err != nil {
					return err
				}
			}

			opts := loadOptions(cmd)
			opts.Python = []string{flags.Python}
			opts.AllowInvalid = flags.AllowInvalid

			result, err := backend.Build(ctx, cliutil.ConfigFile(".", args), opts, backend.BuildOptions{
				Formats: flags.Formats,
				OutDir:  flags.OutDir,
				UseVCS:  !flags.NoUseVCS,
				Verify:  flags.Verify,
			})
			if err != nil {
				return err
			}
			for _, filename := range []string{result.Sdist, result.Wheel} {
				if filename != "" {
					fmt.Fprintln(cmd.OutOrStdout(), filename)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&flags.Formats, "format", nil,
		"Build only the given `FORMAT` (wheel or sdist); may be given more than once")
	cmd.Flags().StringVar(&flags.OutDir, "outdir", "",
		"Write archives to `DIR` (default: dist/ next to PYPROJECT)")
	cmd.Flags().BoolVar(&flags.NoUseVCS, "no-use-vcs", false,
		"Don't use Git to find the files for the sdist; include only the module, the "+
			"config, the files it references, and sdist.include patterns")
	cmd.Flags().BoolVar(&flags.Verify, "verify", false,
		"Re-read the built wheel and check it against its RECORD")
	cmd.Flags().StringVar(&flags.Python, "python", "python3",
		"Use `INTERPRETER` to import the module if its docstring or version can't be read statically")
	cmd.Flags().BoolVar(&flags.AllowInvalid, "allow-invalid", false,
		"Treat invalid metadata as warnings instead of errors (same as setting "+
			pymodule.AllowInvalidEnvVar+")")

	argparser.AddCommand(cmd)
}
