package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ahrav/go-critique/internal/agent"
	"github.com/ahrav/go-critique/internal/domain"
)

// runtimeError reports err on stderr and records the runtime exit
// code. It returns nil so cobra does not re-render the failure as a
// usage error.
func runtimeError(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = ExitRuntimeError
	return nil
}

// usageError reports a bad flag or argument value on stderr and
// records the usage exit code.
func usageError(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = ExitUsageError
	return nil
}

// writeJSON renders v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderReport writes a run report to stdout in the requested format.
// Failed and cancelled tasks go to stderr in text mode so piped output
// stays parseable.
func renderReport(report *agent.RunReport, format string) error {
	if format == "json" {
		return writeJSON(os.Stdout, report)
	}

	for _, tr := range report.Results {
		switch tr.Status {
		case agent.StatusFailed:
			fmt.Fprintf(os.Stderr, "%s: failed: %v\n", tr.ArtifactName, tr.Err)
			continue
		case agent.StatusCancelled:
			fmt.Fprintf(os.Stderr, "%s: cancelled\n", tr.ArtifactName)
			continue
		}
		renderResult(os.Stdout, tr)
	}

	fmt.Fprintf(os.Stdout, "%d artifacts: %d completed, %d cached, %d degraded, %d failed, %d cancelled in %s\n",
		len(report.Results), report.Completed, report.Cached,
		report.Degraded, report.Failed, report.Cancelled,
		report.Duration.Round(time.Millisecond))
	return nil
}

// renderResult writes one completed task in text form: a summary line,
// its findings, and any degradation annotations.
func renderResult(w io.Writer, tr agent.TaskResult) {
	res := tr.Result
	origin := ""
	if tr.FromCache {
		origin = " (cached)"
	}
	provider := res.Provider
	if provider == "" {
		provider = "none"
	}

	fmt.Fprintf(w, "%s  score %.1f  findings %d  provider %s%s\n",
		res.ArtifactName, res.Score, len(res.Findings), provider, origin)

	for _, f := range res.Findings {
		loc := f.Location.String()
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(w, "  %-9s %-8s %s [%s]\n", loc, f.Severity, f.Message, f.Source)
	}
	for _, d := range res.Degradations {
		fmt.Fprintf(w, "  degraded: %s/%s: %s\n", d.Phase, d.Component, d.Reason)
	}
}

// renderRecords writes search results as text: one line per record.
func renderRecords(w io.Writer, records []domain.ReviewRecord) {
	for _, rec := range records {
		flags := ""
		if rec.Degraded {
			flags = "  degraded"
		}
		fmt.Fprintf(w, "%s  %s  score %.1f  findings %d  %s%s\n",
			rec.CreatedAt.Format(displayTimeLayout), rec.ArtifactName,
			rec.Score, len(rec.Findings), shortID(rec.ID), flags)
	}
}

// formatSeverityCounts renders finding counts in descending severity
// order, skipping absent severities.
func formatSeverityCounts(counts map[domain.Severity]int) string {
	order := []domain.Severity{
		domain.SeverityCritical,
		domain.SeverityError,
		domain.SeverityWarning,
		domain.SeverityInfo,
	}
	var parts []string
	for _, sev := range order {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// displayTimeLayout keeps text listings aligned without sub-second noise.
const displayTimeLayout = "2006-01-02 15:04:05"

// shortID truncates a record id for text listings.
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}
