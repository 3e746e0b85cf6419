// Copyright (C) 2020  Ambassador Labs (for Telepresence)
// Copyright (C) 2021-2022  Ambassador Labs (for pybuild)
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// UsageExitCode is the exit status for invalid command-line usage, as with most GNU tools.
const UsageExitCode = 2

// exit is swapped out by tests.
var exit = os.Exit

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc.  It reports err GNU-style, pointing
// at --help, and exits with UsageExitCode; it only returns if err is nil.  Routing every usage
// error through here means that anything returned from (*cobra.Command).Execute is a failure
// of the command itself.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimRight(err.Error(), "\n")
	if strings.Contains(msg, "\n") {
		// set multi-line messages apart from the --help hint
		msg += "\n"
	}
	path := cmd.CommandPath()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\nSee '%s --help' for more information.\n", path, msg, path)
	exit(UsageExitCode)
	return nil
}

// WrapPositionalArgs makes a cobra.PositionalArgs report its errors through FlagErrorFunc.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// OnlySubcommands is the cobra.PositionalArgs for a command that is just a group of
// subcommands.  Unlike cobra.NoArgs it suggests what the user may have meant.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return cmd.FlagErrorFunc()(cmd, err)
}

// RunSubcommands is the RunE for a command that is just a group of subcommands.  Without a
// RunE, cobra would print help and exit successfully when no subcommand is given; this prints
// the help to stderr and exits with UsageExitCode.
func RunSubcommands(cmd *cobra.Command, args []string) error {
	cmd.SetOut(cmd.ErrOrStderr())
	cmd.HelpFunc()(cmd, args)
	exit(UsageExitCode)
	return nil
}
