package providers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
)

// Rule identifiers reported by the static backend.
const (
	RuleMaxLineLength      = "max-line-length"
	RuleTrailingWhitespace = "trailing-whitespace"
	RuleMixedIndentation   = "mixed-indentation"
	RuleTodoMarker         = "todo-marker"
	RuleDangerousCall      = "dangerous-call"
)

// todoMarkers are comment markers flagged by the todo-marker rule.
var todoMarkers = []string{"TODO", "FIXME", "XXX"}

// dangerousPattern describes a risky construct detected by substring
// match within a single line.
type dangerousPattern struct {
	substr   string
	severity domain.Severity
	message  string
}

// dangerousPatterns maps a language to the constructs flagged by the
// dangerous-call rule. Substring matching trades false positives in
// strings and comments for zero parsing cost.
var dangerousPatterns = map[domain.Language][]dangerousPattern{
	domain.LanguagePython: {
		{"eval(", domain.SeverityError, "use of eval() allows arbitrary code execution"},
		{"exec(", domain.SeverityError, "use of exec() allows arbitrary code execution"},
		{"os.system(", domain.SeverityCritical, "os.system() spawns a shell; prefer subprocess with an argument list"},
		{"__import__", domain.SeverityError, "dynamic __import__ obscures dependencies and enables injection"},
	},
	domain.LanguageJavaScript: {
		{"eval(", domain.SeverityError, "use of eval() allows arbitrary code execution"},
		{"child_process", domain.SeverityCritical, "child_process spawns external commands; validate inputs carefully"},
	},
	domain.LanguageTypeScript: {
		{"eval(", domain.SeverityError, "use of eval() allows arbitrary code execution"},
		{"child_process", domain.SeverityCritical, "child_process spawns external commands; validate inputs carefully"},
	},
	domain.LanguageGo: {
		{"unsafe.", domain.SeverityWarning, "unsafe package bypasses type safety"},
	},
	domain.LanguageRuby: {
		{"eval(", domain.SeverityError, "use of eval allows arbitrary code execution"},
		{"system(", domain.SeverityCritical, "system() spawns a shell; prefer explicit argument lists"},
	},
}

// Static is the rule-based backend. It needs no network or
// credentials, which makes it the natural last entry in a fallback
// chain: it cannot fail, only find less.
type Static struct {
	rules configuration.RulesConfig
}

// NewStatic creates the rule-based backend with the given rule
// configuration.
func NewStatic(rules configuration.RulesConfig) *Static {
	return &Static{rules: rules}
}

// Name returns the provider name.
func (s *Static) Name() string { return ProviderStatic }

// Analyze scans the content line by line and reports findings for
// every enabled rule. It never returns an error other than context
// cancellation.
func (s *Static) Analyze(ctx context.Context, req *backend.Request) (*backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []domain.Finding
	lines := strings.Split(req.Content, "\n")
	for i, line := range lines {
		lineNo := i + 1
		findings = append(findings, s.checkLine(line, lineNo, req.Language)...)
	}

	return &backend.Result{
		Findings: findings,
		Provider: ProviderStatic,
	}, nil
}

func (s *Static) checkLine(line string, lineNo int, lang domain.Language) []domain.Finding {
	var findings []domain.Finding

	add := func(sev domain.Severity, msg, rule string, col int) {
		findings = append(findings, domain.Finding{
			Severity: sev,
			Message:  msg,
			Location: domain.Location{Line: lineNo, Column: col},
			RuleID:   rule,
			Source:   ProviderStatic,
		})
	}

	if s.rules.MaxLineLength > 0 {
		if n := utf8.RuneCountInString(line); n > s.rules.MaxLineLength {
			add(domain.SeverityWarning,
				fmt.Sprintf("line is %d characters, limit is %d", n, s.rules.MaxLineLength),
				RuleMaxLineLength, s.rules.MaxLineLength+1)
		}
	}

	if s.rules.TrailingWhitespace && line != strings.TrimRight(line, " \t") {
		add(domain.SeverityInfo, "line has trailing whitespace",
			RuleTrailingWhitespace, len(strings.TrimRight(line, " \t"))+1)
	}

	if s.rules.MixedIndentation && hasMixedIndent(line) {
		add(domain.SeverityWarning, "indentation mixes tabs and spaces",
			RuleMixedIndentation, 1)
	}

	if s.rules.TodoMarkers {
		for _, marker := range todoMarkers {
			if idx := strings.Index(line, marker); idx >= 0 {
				add(domain.SeverityInfo,
					fmt.Sprintf("%s marker left in code", marker),
					RuleTodoMarker, idx+1)
				break
			}
		}
	}

	if s.rules.DangerousCalls {
		for _, p := range dangerousPatterns[lang] {
			if idx := strings.Index(line, p.substr); idx >= 0 {
				add(p.severity, p.message, RuleDangerousCall, idx+1)
			}
		}
	}

	return findings
}

// hasMixedIndent reports whether the leading whitespace contains both
// tabs and spaces.
func hasMixedIndent(line string) bool {
	var tabs, spaces bool
	for _, r := range line {
		switch r {
		case '\t':
			tabs = true
		case ' ':
			spaces = true
		default:
			return tabs && spaces
		}
	}
	return tabs && spaces
}
