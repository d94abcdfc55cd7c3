// Package cli implements the critique command surface: a thin cobra
// driver over the review engine. Commands wire configuration, storage,
// the backend chain, and the agent together, run one operation, and
// render the outcome as text or JSON.
//
// Exit codes are deterministic so the binary composes in CI:
//
//	0 success
//	1 review completed but the quality gate failed
//	2 usage error
//	3 provider authentication failure
//	4 runtime error
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes returned by Run.
const (
	ExitSuccess      = 0
	ExitQualityGate  = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// flagConfig is the persistent --config flag shared by every command.
var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "critique",
	Short: "Code review orchestration engine",
	Long: "Critique reviews source artifacts through a fallback chain of AI and\n" +
		"rule-based analysis backends, scores the findings, and persists every\n" +
		"result for search, export, and trend reporting.",
	SilenceUsage: true,
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command and returns the process exit code.
func Run() int {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error.
		return ExitUsageError
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print critique version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "critique version %s\n", version)
	},
}
