package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "esl",
	Short: "ESL bytecode compiler and virtual machine",
	Long:  `esl compiles and runs programs for the ESL scripting language.`,
}

func main() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(diagCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	rootCmd.PersistentFlags().String("config", "esl.toml", "path to a tuning config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to an interactive terminal,
// used to resolve --color=auto.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func colorEnabled(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

func errorColor(cmd *cobra.Command) func(format string, a ...any) string {
	if colorEnabled(cmd) {
		return color.New(color.FgRed, color.Bold).SprintfFunc()
	}
	return func(format string, a ...any) string { return color.New().SprintfFunc()(format, a...) }
}
