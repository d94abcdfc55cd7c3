package providers

import (
	"fmt"

	"github.com/ahrav/go-critique/internal/backend"
)

// Prompt generation constants.
const (
	defaultMaxTokens  = 2000
	reviewTemperature = 0.1
)

// systemPrompt instructs the model to act as a reviewer and reply with
// a bare JSON array. The strict shape lets parseFindings stay simple;
// the repair pass handles models that wrap the array anyway.
const systemPrompt = `You are a code review assistant. Analyze the provided source code and report problems.

Respond with ONLY a JSON array of findings, no prose. Each finding is an object:
  {"severity": "info|warning|error|critical", "message": "...", "line": <number or 0>, "rule": "<short-rule-id>"}

Severity guide: "critical" for security vulnerabilities and data loss, "error" for defects,
"warning" for likely problems, "info" for style. Report an empty array [] for clean code.`

// userPrompt renders the review request for a single artifact.
func userPrompt(req *backend.Request) string {
	return fmt.Sprintf("Review this %s code:\n\n%s", req.Language, req.Content)
}
