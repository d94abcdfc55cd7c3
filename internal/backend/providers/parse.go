package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/go-critique/internal/domain"
)

// rawFinding is the JSON shape models are instructed to return.
type rawFinding struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	EndLine  int    `json:"end_line"`
	Column   int    `json:"column"`
	Rule     string `json:"rule"`
}

// parseFindings decodes a model reply into normalized findings.
// A strict decode is tried first; on failure a repair pass strips
// markdown fences and extracts the outermost JSON array before
// retrying, since models routinely wrap the payload in prose.
// Individually malformed entries are dropped rather than failing the
// whole reply: an unknown severity downgrades to info, an empty
// message discards the entry.
func parseFindings(content, source string) ([]domain.Finding, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty model reply")
	}

	var raw []rawFinding
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		repaired := repairJSONArray(trimmed)
		if repaired == "" {
			return nil, fmt.Errorf("no JSON array in model reply: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON array after repair: %w", err)
		}
	}

	findings := make([]domain.Finding, 0, len(raw))
	for _, rf := range raw {
		message := strings.TrimSpace(rf.Message)
		if message == "" {
			continue
		}

		severity, err := domain.ParseSeverity(rf.Severity)
		if err != nil {
			severity = domain.SeverityInfo
		}

		f := domain.Finding{
			Severity: severity,
			Message:  message,
			RuleID:   strings.TrimSpace(rf.Rule),
			Source:   source,
		}
		if rf.Line > 0 {
			f.Location = domain.Location{Line: rf.Line, Column: rf.Column, EndLine: rf.EndLine}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// repairJSONArray extracts the outermost JSON array from a reply that
// wraps it in markdown fences or prose. Returns "" when no array-like
// span exists.
func repairJSONArray(content string) string {
	// Strip a fenced block first: ```json ... ``` or bare fences.
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		} else {
			content = rest
		}
	}

	start := strings.IndexByte(content, '[')
	end := strings.LastIndexByte(content, ']')
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
