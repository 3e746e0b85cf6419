// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/datawire/pybuild/pkg/cliutil"
)

// genDocs writes reference documentation for every command below root in to dir, replacing
// whatever dir held before.
func genDocs(root *cobra.Command, format, dir string) error {
	var gen func() error
	switch format {
	case "man":
		gen = func() error {
			return doc.GenManTree(root, &doc.GenManHeader{
				Source: "Ambassador Labs",
				Manual: root.Name(),
			}, dir)
		}
	case "markdown":
		gen = func() error { return doc.GenMarkdownTree(root, dir) }
	default:
		return fmt.Errorf("unknown documentation format: %q", format)
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	// Keep the output reproducible.
	root.DisableAutoGenTag = true
	return gen()
}

func init() {
	var flags struct {
		Format string
	}
	cmd := &cobra.Command{
		Hidden: true,
		Use:    "gen-docs [flags] OUT_DIRECTORY",
		Short:  "Generate man pages or markdown documentation for pybuild",
		Args:   cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return genDocs(cmd.Root(), flags.Format, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.Format, "format", "man",
		"Write `FORMAT` documentation (man or markdown)")

	argparser.AddCommand(cmd)
}
