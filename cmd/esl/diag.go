package main

import (
	"github.com/spf13/cobra"
)

var diagCmd = &cobra.Command{
	Use:   "diag <file.esl>",
	Short: "Run the compiler only and print its diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return errNoFrontend
	},
}
