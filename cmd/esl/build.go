package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// errNoFrontend is returned by any subcommand that needs to turn ESL
// source text into parsed modules. Lexing and parsing are external
// collaborators to the compiler/VM core this repository implements (see
// SPEC_FULL.md §6); no front end is wired into this binary yet, so these
// commands only accept already-parsed input (none exists) or a compiled
// snapshot (see execCmd).
var errNoFrontend = errors.New("no source front end is wired into this build; use 'esl exec' on a compiled .eslc snapshot")

var buildCmd = &cobra.Command{
	Use:   "build <file.esl> -o out.eslc",
	Short: "Compile a source file to a .eslc snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return errNoFrontend
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file.esl>",
	Short: "Compile and run a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return errNoFrontend
	},
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "output .eslc path")
}
