// Package autofix applies remediation actions to a working copy of an
// artifact and validates the outcome with a forced re-review. The
// canonical artifact is never modified: actions run against a private
// working file with a pre-fix backup retained alongside it, any action
// failure or score regression restores the backup, and committing the
// fixed content back to its origin is the caller's decision.
//
// Actions are opaque external commands. The engine only observes exit
// status and the before/after score; what a command does to the file
// is its own business.
package autofix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-critique/internal/agent"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
)

const (
	// placeholder is substituted with the working-copy path in action
	// command templates.
	placeholder = "$FILE"

	// maxCaptureBytes bounds recorded action stderr.
	maxCaptureBytes = 2048

	// backupSuffix names the pre-fix backup next to the working copy.
	backupSuffix = ".orig"
)

// Action is one remediation step: an external command template whose
// $FILE placeholder is replaced with the working-copy path. Templates
// are whitespace-split into argv with no shell interpretation.
type Action struct {
	// Name identifies the action in outcomes and logs; defaults to the
	// command's first token.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Command is the template, e.g. "gofmt -w $FILE".
	Command string `json:"command" yaml:"command"`

	// Timeout bounds this action; 0 uses the executor default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// actionTimeout decodes YAML scalars in Go duration-string form
// ("30s") or as integer nanoseconds; yaml.v3 has no native
// time.Duration support and actions files are hand-written.
type actionTimeout time.Duration

func (d *actionTimeout) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = actionTimeout(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid action timeout %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid action timeout %q: %w", s, err)
	}
	*d = actionTimeout(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for actions files.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Name    string        `yaml:"name"`
		Command string        `yaml:"command"`
		Timeout actionTimeout `yaml:"timeout"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a.Name = raw.Name
	a.Command = raw.Command
	a.Timeout = time.Duration(raw.Timeout)
	return nil
}

// ActionOutcome records how one action ran.
type ActionOutcome struct {
	// Name is the action's resolved name.
	Name string `json:"name"`

	// Command is the rendered command line.
	Command string `json:"command"`

	// ExitCode is the process exit status; 0 on success, -1 when the
	// process was killed or never ran.
	ExitCode int `json:"exit_code"`

	// Duration is the action's wall time.
	Duration time.Duration `json:"duration"`

	// Stderr is the action's captured standard error, bounded.
	Stderr string `json:"stderr,omitempty"`
}

// Outcome reports a committed auto-fix run.
type Outcome struct {
	// Committed is true when the fixed content was accepted.
	Committed bool `json:"committed"`

	// Content is the accepted fixed content.
	Content string `json:"content"`

	// Result is the validating review of the fixed content.
	Result *domain.ReviewResult `json:"result"`

	// ScoreBefore is the pre-fix score the run had to beat or match.
	ScoreBefore float64 `json:"score_before"`

	// ScoreAfter is the validated post-fix score.
	ScoreAfter float64 `json:"score_after"`

	// Actions holds the per-action run records in execution order.
	Actions []ActionOutcome `json:"actions"`
}

// Reviewer re-reviews modified content, satisfied by *agent.Agent.
type Reviewer interface {
	Review(ctx context.Context, artifacts []domain.Artifact, opts ...agent.ReviewOption) (*agent.RunReport, error)
}

// Executor runs remediation actions under per-action timeouts and
// validates their effect by re-review. Safe for concurrent use; each
// Apply call works in its own scratch directory.
type Executor struct {
	reviewer      Reviewer
	actionTimeout time.Duration
	workDir       string
	logger        *slog.Logger
}

// Option configures optional Executor behavior.
type Option func(*Executor)

// WithLogger sets the logger; defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor builds an executor over a reviewer.
func NewExecutor(reviewer Reviewer, cfg configuration.AutoFixConfig, opts ...Option) (*Executor, error) {
	if reviewer == nil {
		return nil, ErrNoReviewer
	}
	e := &Executor{
		reviewer:      reviewer,
		actionTimeout: cfg.ActionTimeout,
		workDir:       cfg.WorkDir,
		logger:        slog.Default(),
	}
	if e.actionTimeout <= 0 {
		e.actionTimeout = configuration.DefaultActionTimeout
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "autofix")
	return e, nil
}

// Apply runs the actions in order against a working copy of the
// artifact, then validates the modified content with a forced
// re-review. The prior result supplies the score to beat; when nil, a
// baseline review of the unmodified content is run first.
//
// Any action failure, a failed validation review, or a score lower
// than the baseline rolls the working copy back and returns a
// *FixError. Equal scores commit: remediation that cleans content
// without changing the score (formatting, say) must stay applicable.
func (e *Executor) Apply(ctx context.Context, artifact domain.Artifact, prior *domain.ReviewResult, actions []Action) (*Outcome, error) {
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	if len(actions) == 0 {
		return nil, ErrNoActions
	}

	log := e.logger.With("artifact", artifact.Name)

	var scoreBefore float64
	if prior != nil {
		scoreBefore = prior.Score
	} else {
		baseline, err := e.review(ctx, artifact)
		if err != nil {
			return nil, fmt.Errorf("baseline review: %w", err)
		}
		scoreBefore = baseline.Score
	}

	dir, err := os.MkdirTemp(e.workDir, "autofix-*")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// The working copy keeps the artifact's base name so extension
	// sensitive tools behave normally.
	workPath := filepath.Join(dir, filepath.Base(artifact.Name))
	backupPath := workPath + backupSuffix
	if err := os.WriteFile(workPath, []byte(artifact.Content), 0o644); err != nil {
		return nil, fmt.Errorf("writing working copy: %w", err)
	}
	if err := os.WriteFile(backupPath, []byte(artifact.Content), 0o644); err != nil {
		return nil, fmt.Errorf("writing backup: %w", err)
	}

	outcomes := make([]ActionOutcome, 0, len(actions))
	for i, act := range actions {
		out, err := e.runAction(ctx, i, act, workPath, dir)
		outcomes = append(outcomes, out)
		if err != nil {
			e.rollback(workPath, backupPath, log)
			log.Warn("auto-fix action failed, rolled back",
				"action", out.Name, "index", i, "exit_code", out.ExitCode, "error", err)
			return nil, err
		}
		log.Debug("auto-fix action applied", "action", out.Name, "duration", out.Duration)
	}

	fixedBytes, err := os.ReadFile(workPath)
	if err != nil {
		return nil, fmt.Errorf("reading fixed content: %w", err)
	}
	fixed := string(fixedBytes)

	validated, err := e.review(ctx, domain.Artifact{
		Name:     artifact.Name,
		Content:  fixed,
		Language: artifact.Language,
	})
	if err != nil {
		e.rollback(workPath, backupPath, log)
		log.Warn("validation review failed, rolled back", "error", err)
		return nil, &FixError{ActionIndex: -1, ScoreBefore: scoreBefore, Err: err}
	}
	if validated.Score < scoreBefore {
		e.rollback(workPath, backupPath, log)
		log.Warn("score regressed, rolled back",
			"score_before", scoreBefore, "score_after", validated.Score)
		return nil, &FixError{
			ActionIndex: -1,
			ScoreBefore: scoreBefore,
			ScoreAfter:  validated.Score,
			Err:         ErrScoreRegressed,
		}
	}

	log.Info("auto-fix committed",
		"score_before", scoreBefore,
		"score_after", validated.Score,
		"actions", len(actions))
	return &Outcome{
		Committed:   true,
		Content:     fixed,
		Result:      validated,
		ScoreBefore: scoreBefore,
		ScoreAfter:  validated.Score,
		Actions:     outcomes,
	}, nil
}

// runAction executes one rendered action under its timeout.
func (e *Executor) runAction(ctx context.Context, idx int, act Action, workPath, dir string) (ActionOutcome, error) {
	argv := renderCommand(act.Command, workPath)
	name := act.Name
	if name == "" && len(argv) > 0 {
		name = argv[0]
	}
	if len(argv) == 0 {
		return ActionOutcome{Name: name, ExitCode: -1},
			&FixError{ActionIndex: idx, Action: name, ExitCode: -1, Err: ErrEmptyCommand}
	}

	timeout := act.Timeout
	if timeout <= 0 {
		timeout = e.actionTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(actx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	out := ActionOutcome{
		Name:     name,
		Command:  strings.Join(argv, " "),
		Duration: time.Since(started),
		Stderr:   truncate(stderr.String(), maxCaptureBytes),
	}
	if err == nil {
		return out, nil
	}

	out.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("action aborted: %w", ctx.Err())
	case actx.Err() != nil:
		err = fmt.Errorf("action timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
	return out, &FixError{ActionIndex: idx, Action: name, ExitCode: out.ExitCode, Err: err}
}

// review runs a forced re-review and returns the single task's result.
func (e *Executor) review(ctx context.Context, artifact domain.Artifact) (*domain.ReviewResult, error) {
	report, err := e.reviewer.Review(ctx, []domain.Artifact{artifact}, agent.WithForce())
	if err != nil {
		return nil, err
	}
	if len(report.Results) == 0 {
		return nil, errors.New("review produced no result")
	}
	tr := report.Results[0]
	if tr.Result == nil {
		if tr.Err != nil {
			return nil, tr.Err
		}
		return nil, fmt.Errorf("review ended with status %s", tr.Status)
	}
	return tr.Result, nil
}

// rollback restores the working copy from the backup. Best effort: the
// scratch directory is discarded on return either way, the restore
// keeps the on-disk state consistent while it exists.
func (e *Executor) rollback(workPath, backupPath string, log *slog.Logger) {
	data, err := os.ReadFile(backupPath)
	if err == nil {
		err = os.WriteFile(workPath, data, 0o644)
	}
	if err != nil {
		log.Warn("rollback restore failed", "error", err)
	}
}

// renderCommand splits a template into argv and substitutes the
// placeholder per token. Splitting happens before substitution so a
// path containing spaces stays one argument.
func renderCommand(template, workPath string) []string {
	fields := strings.Fields(template)
	argv := make([]string, 0, len(fields))
	for _, f := range fields {
		argv = append(argv, strings.ReplaceAll(f, placeholder, workPath))
	}
	return argv
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
