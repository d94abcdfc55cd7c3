package providers_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/backend/providers"
	"github.com/ahrav/go-critique/internal/configuration"
	"github.com/ahrav/go-critique/internal/domain"
)

func allRules() configuration.RulesConfig {
	return configuration.RulesConfig{
		MaxLineLength:      40,
		TrailingWhitespace: true,
		MixedIndentation:   true,
		TodoMarkers:        true,
		DangerousCalls:     true,
	}
}

func analyze(t *testing.T, rules configuration.RulesConfig, content string, lang domain.Language) []domain.Finding {
	t.Helper()
	s := providers.NewStatic(rules)
	res, err := s.Analyze(context.Background(), &backend.Request{Content: content, Language: lang})
	require.NoError(t, err)
	require.Equal(t, "static", res.Provider)
	return res.Findings
}

func rulesOf(findings []domain.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.RuleID
	}
	return out
}

func TestStatic_Name(t *testing.T) {
	assert.Equal(t, "static", providers.NewStatic(configuration.RulesConfig{}).Name())
}

func TestStatic_CleanContentHasNoFindings(t *testing.T) {
	findings := analyze(t, allRules(), "def add(a, b):\n    return a + b\n", domain.LanguagePython)
	assert.Empty(t, findings)
}

func TestStatic_MaxLineLength(t *testing.T) {
	long := strings.Repeat("a", 41)
	findings := analyze(t, allRules(), long, domain.LanguagePython)

	require.Len(t, findings, 1)
	assert.Equal(t, providers.RuleMaxLineLength, findings[0].RuleID)
	assert.Equal(t, domain.SeverityWarning, findings[0].Severity)
	assert.Equal(t, 1, findings[0].Location.Line)
	assert.Equal(t, 41, findings[0].Location.Column)
	assert.Contains(t, findings[0].Message, "41 characters")
}

func TestStatic_MaxLineLengthCountsRunesNotBytes(t *testing.T) {
	// 20 three-byte runes: 60 bytes but well under the 40-rune limit.
	findings := analyze(t, allRules(), strings.Repeat("界", 20), domain.LanguagePython)
	assert.Empty(t, findings)

	findings = analyze(t, allRules(), strings.Repeat("界", 41), domain.LanguagePython)
	require.Len(t, findings, 1)
	assert.Equal(t, providers.RuleMaxLineLength, findings[0].RuleID)
}

func TestStatic_TrailingWhitespace(t *testing.T) {
	findings := analyze(t, allRules(), "x = 1   ", domain.LanguagePython)

	require.Len(t, findings, 1)
	assert.Equal(t, providers.RuleTrailingWhitespace, findings[0].RuleID)
	assert.Equal(t, domain.SeverityInfo, findings[0].Severity)
	assert.Equal(t, 6, findings[0].Location.Column)
}

func TestStatic_MixedIndentation(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		flagged bool
	}{
		{"tab then spaces", "\t  x = 1", true},
		{"space then tab", " \tx = 1", true},
		{"spaces only", "    x = 1", false},
		{"tabs only", "\t\tx = 1", false},
		{"no indent", "x = 1", false},
		{"mixed after code ignored", "x\t = 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := configuration.RulesConfig{MixedIndentation: true}
			findings := analyze(t, rules, tt.line, domain.LanguagePython)
			if tt.flagged {
				require.Len(t, findings, 1)
				assert.Equal(t, providers.RuleMixedIndentation, findings[0].RuleID)
				assert.Equal(t, domain.SeverityWarning, findings[0].Severity)
			} else {
				assert.Empty(t, findings)
			}
		})
	}
}

func TestStatic_TodoMarkers(t *testing.T) {
	rules := configuration.RulesConfig{TodoMarkers: true}

	findings := analyze(t, rules, "# TODO: handle errors\ny = 2\n# FIXME later\n# XXX", domain.LanguagePython)
	require.Len(t, findings, 3)
	assert.Equal(t, 1, findings[0].Location.Line)
	assert.Equal(t, 3, findings[1].Location.Line)
	assert.Equal(t, 4, findings[2].Location.Line)
	for _, f := range findings {
		assert.Equal(t, providers.RuleTodoMarker, f.RuleID)
		assert.Equal(t, domain.SeverityInfo, f.Severity)
	}

	// One marker per line, even when several appear.
	findings = analyze(t, rules, "# TODO FIXME", domain.LanguagePython)
	assert.Len(t, findings, 1)
}

func TestStatic_DangerousCalls(t *testing.T) {
	rules := configuration.RulesConfig{DangerousCalls: true}

	tests := []struct {
		name     string
		content  string
		lang     domain.Language
		severity domain.Severity
		count    int
	}{
		{
			name:     "python eval",
			content:  "result = eval(user_input)",
			lang:     domain.LanguagePython,
			severity: domain.SeverityError,
			count:    1,
		},
		{
			name:     "python shell spawn",
			content:  "os.system(cmd)",
			lang:     domain.LanguagePython,
			severity: domain.SeverityCritical,
			count:    1,
		},
		{
			name:     "javascript child process",
			content:  "const cp = require('child_process')",
			lang:     domain.LanguageJavaScript,
			severity: domain.SeverityCritical,
			count:    1,
		},
		{
			name:     "go unsafe",
			content:  "p := unsafe.Pointer(&x)",
			lang:     domain.LanguageGo,
			severity: domain.SeverityWarning,
			count:    1,
		},
		{
			name:     "ruby system",
			content:  "system(\"rm -rf \" + dir)",
			lang:     domain.LanguageRuby,
			severity: domain.SeverityCritical,
			count:    1,
		},
		{
			name:    "patterns are language scoped",
			content: "os.system(cmd)",
			lang:    domain.LanguageGo,
			count:   0,
		},
		{
			name:    "unknown language has no patterns",
			content: "eval(x)",
			lang:    domain.LanguageUnknown,
			count:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := analyze(t, rules, tt.content, tt.lang)
			require.Len(t, findings, tt.count)
			if tt.count > 0 {
				assert.Equal(t, providers.RuleDangerousCall, findings[0].RuleID)
				assert.Equal(t, tt.severity, findings[0].Severity)
			}
		})
	}
}

func TestStatic_DisabledRulesReportNothing(t *testing.T) {
	messy := "\t  eval(x)  # TODO \t\n" + strings.Repeat("a", 200)
	findings := analyze(t, configuration.RulesConfig{}, messy, domain.LanguagePython)
	assert.Empty(t, findings)
}

func TestStatic_MultipleRulesOnOneLine(t *testing.T) {
	findings := analyze(t, allRules(), "\t result = eval(data)  # TODO ", domain.LanguagePython)

	ids := rulesOf(findings)
	assert.Contains(t, ids, providers.RuleTrailingWhitespace)
	assert.Contains(t, ids, providers.RuleMixedIndentation)
	assert.Contains(t, ids, providers.RuleTodoMarker)
	assert.Contains(t, ids, providers.RuleDangerousCall)
	for _, f := range findings {
		assert.Equal(t, 1, f.Location.Line)
		assert.Equal(t, "static", f.Source)
	}
}

func TestStatic_LineNumbersAreOneBased(t *testing.T) {
	content := "ok = 1\nfine = 2\nbad = eval(x)\n"
	findings := analyze(t, configuration.RulesConfig{DangerousCalls: true}, content, domain.LanguagePython)

	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].Location.Line)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := providers.NewStatic(allRules())
	_, err := s.Analyze(ctx, &backend.Request{Content: "x = 1"})
	require.ErrorIs(t, err, context.Canceled)
}
