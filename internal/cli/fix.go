package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-critique/internal/autofix"
	"github.com/ahrav/go-critique/internal/domain"
)

var (
	flagFixActions []string
	flagFixFile    string
	flagFixLang    string
	flagFixDryRun  bool
	flagFixFormat  string
)

var fixCmd = &cobra.Command{
	Use:   "fix <path>",
	Short: "Apply remediation commands and keep them only if the score improves",
	Long: "Fix runs each action against a working copy of the file, re-reviews\n" +
		"the result, and commits the changed content back to the file unless\n" +
		"the score regressed, in which case the copy is rolled back. Actions\n" +
		"use $FILE as the working-copy path placeholder.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actions, err := collectActions()
		if err != nil {
			return usageError(err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return runtimeError(fmt.Errorf("reading %s: %w", args[0], err))
		}
		artifact, err := domain.NewArtifact(args[0], string(data), domain.Language(flagFixLang))
		if err != nil {
			return runtimeError(err)
		}

		eng, err := openEngine(cmd.Context())
		if err != nil {
			return runtimeError(err)
		}
		defer eng.Close()

		fixer, err := eng.fixer()
		if err != nil {
			return runtimeError(err)
		}

		outcome, err := fixer.Apply(cmd.Context(), artifact, nil, actions)
		if err != nil {
			return fixError(err)
		}

		if !flagFixDryRun {
			if err := os.WriteFile(args[0], []byte(outcome.Content), 0o644); err != nil {
				return runtimeError(fmt.Errorf("writing fixed %s: %w", args[0], err))
			}
		}

		if flagFixFormat == "json" {
			return writeJSON(os.Stdout, outcome)
		}
		fmt.Fprintf(os.Stdout, "Fixed %s: score %.1f -> %.1f (%d actions)\n",
			args[0], outcome.ScoreBefore, outcome.ScoreAfter, len(outcome.Actions))
		if flagFixDryRun {
			fmt.Fprintln(os.Stdout, "Dry run: file not modified.")
		}
		return nil
	},
}

// collectActions merges --action flags and the --actions-file entries,
// file entries first so ad-hoc flags append to a curated sequence.
func collectActions() ([]autofix.Action, error) {
	var actions []autofix.Action
	if flagFixFile != "" {
		data, err := os.ReadFile(flagFixFile)
		if err != nil {
			return nil, fmt.Errorf("reading actions file: %w", err)
		}
		if err := yaml.Unmarshal(data, &actions); err != nil {
			return nil, fmt.Errorf("parsing actions file: %w", err)
		}
	}
	for _, command := range flagFixActions {
		actions = append(actions, autofix.Action{Command: command})
	}
	if len(actions) == 0 {
		return nil, errors.New("no actions given; use --action or --actions-file")
	}
	return actions, nil
}

// fixError renders an apply failure. A rolled-back score regression is
// the quality gate saying no; everything else is a runtime failure.
func fixError(err error) error {
	var fixErr *autofix.FixError
	if errors.As(err, &fixErr) {
		fmt.Fprintf(os.Stderr, "Fix rolled back: %v\n", fixErr)
		if errors.Is(err, autofix.ErrScoreRegressed) {
			exitCode = ExitQualityGate
			return nil
		}
		exitCode = ExitRuntimeError
		return nil
	}
	return runtimeError(err)
}

func init() {
	fixCmd.Flags().StringArrayVar(&flagFixActions, "action", nil, "Remediation command template (repeatable)")
	fixCmd.Flags().StringVar(&flagFixFile, "actions-file", "", "YAML file with remediation actions")
	fixCmd.Flags().StringVar(&flagFixLang, "lang", "", "Artifact language (default: detect from extension)")
	fixCmd.Flags().BoolVar(&flagFixDryRun, "dry-run", false, "Do not write the fixed content back to the file")
	fixCmd.Flags().StringVar(&flagFixFormat, "format", "text", "Output format (text, json)")
}
