package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-critique/internal/agent"
	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/domain"
)

var (
	flagForce     bool
	flagLang      string
	flagFormat    string
	flagFailUnder float64
)

var reviewCmd = &cobra.Command{
	Use:   "review <path>...",
	Short: "Review source files through the analysis pipeline",
	Long: "Review reads each file, runs it through pre-hooks, the backend\n" +
		"fallback chain, custom checks, and post-hooks, then scores and\n" +
		"persists the result. Identical files are reviewed once.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return runtimeError(err)
		}
		defer eng.Close()

		artifacts, err := loadArtifacts(args, domain.Language(flagLang))
		if err != nil {
			return runtimeError(err)
		}

		var opts []agent.ReviewOption
		if flagForce {
			opts = append(opts, agent.WithForce())
		}
		report, err := eng.agent.Review(cmd.Context(), artifacts, opts...)
		if err != nil {
			return runtimeError(err)
		}

		if err := renderReport(report, flagFormat); err != nil {
			return runtimeError(err)
		}
		exitCode = reportExitCode(report, flagFailUnder)
		return nil
	},
}

// loadArtifacts reads each path into an artifact. An explicit language
// applies to every file; empty detects per file from the extension.
func loadArtifacts(paths []string, lang domain.Language) ([]domain.Artifact, error) {
	artifacts := make([]domain.Artifact, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		art, err := domain.NewArtifact(path, string(data), lang)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, nil
}

// reportExitCode maps a run report onto the process exit code:
// authentication failures dominate, then any failed or cancelled task,
// then the --fail-under quality gate.
func reportExitCode(report *agent.RunReport, failUnder float64) int {
	gateFailed := false
	for _, tr := range report.Results {
		if isAuthFailure(tr.Err) {
			return ExitAuthError
		}
		if tr.Status == agent.StatusFailed || tr.Status == agent.StatusCancelled {
			return ExitRuntimeError
		}
		if failUnder > 0 && tr.Result != nil && tr.Result.Score < failUnder {
			gateFailed = true
		}
	}
	if gateFailed {
		return ExitQualityGate
	}
	return ExitSuccess
}

// isAuthFailure reports whether the error chain contains a classified
// authentication failure from any backend.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	var chainErr *backend.ChainExhaustedError
	if errors.As(err, &chainErr) {
		for _, attempt := range chainErr.Attempts {
			if attempt.Class == backend.ClassAuth {
				return true
			}
		}
	}
	var backendErr *backend.Error
	return errors.As(err, &backendErr) && backendErr.Class == backend.ClassAuth
}

func init() {
	reviewCmd.Flags().BoolVar(&flagForce, "force", false, "Recompute even when a cached result exists")
	reviewCmd.Flags().StringVar(&flagLang, "lang", "", "Language for all files (default: detect per file)")
	reviewCmd.Flags().StringVar(&flagFormat, "format", "text", "Output format (text, json)")
	reviewCmd.Flags().Float64Var(&flagFailUnder, "fail-under", 0, "Exit nonzero when any score is below this threshold")
}
