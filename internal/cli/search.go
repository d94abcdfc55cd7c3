package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-critique/internal/domain"
	"github.com/ahrav/go-critique/internal/store"
)

var (
	flagSearchArtifact string
	flagSearchProvider string
	flagSearchLang     string
	flagSearchSince    string
	flagSearchUntil    string
	flagSearchMinScore float64
	flagSearchMaxScore float64
	flagSearchSeverity string
	flagSearchText     string
	flagSearchLimit    int
	flagSearchOffset   int
	flagSearchOldest   bool
	flagSearchFormat   string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search persisted review records",
	Long: "Search filters persisted reviews by artifact name, provider,\n" +
		"language, date range, score range, minimum severity, and finding\n" +
		"text. All given predicates must match.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := buildQuery(cmd)
		if err != nil {
			return usageError(err)
		}

		st, _, _, err := openStore()
		if err != nil {
			return runtimeError(err)
		}
		defer st.Close()

		records, err := st.Search(cmd.Context(), q)
		if err != nil {
			return runtimeError(err)
		}

		if flagSearchFormat == "json" {
			return writeJSON(os.Stdout, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "No matching reviews.")
			return nil
		}
		renderRecords(os.Stdout, records)
		return nil
	},
}

// buildQuery translates the search flags into a store query,
// validating enums and timestamps up front.
func buildQuery(cmd *cobra.Command) (store.Query, error) {
	q := store.Query{
		ArtifactName: flagSearchArtifact,
		Provider:     flagSearchProvider,
		Language:     domain.Language(flagSearchLang),
		Text:         flagSearchText,
		OldestFirst:  flagSearchOldest,
		Limit:        flagSearchLimit,
		Offset:       flagSearchOffset,
	}

	var err error
	if q.Since, err = parseTimeFlag(flagSearchSince); err != nil {
		return store.Query{}, err
	}
	if q.Until, err = parseTimeFlag(flagSearchUntil); err != nil {
		return store.Query{}, err
	}

	if flagSearchSeverity != "" {
		sev, err := domain.ParseSeverity(flagSearchSeverity)
		if err != nil {
			return store.Query{}, err
		}
		q.MinSeverity = sev
	}

	if cmd.Flags().Changed("min-score") {
		v := flagSearchMinScore
		q.MinScore = &v
	}
	if cmd.Flags().Changed("max-score") {
		v := flagSearchMaxScore
		q.MaxScore = &v
	}
	return q, nil
}

// parseTimeFlag accepts either a calendar day or a full RFC 3339
// timestamp; empty means unbounded.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want 2006-01-02 or RFC 3339)", value)
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchArtifact, "artifact", "", "Artifact name substring")
	searchCmd.Flags().StringVar(&flagSearchProvider, "provider", "", "Producing backend name")
	searchCmd.Flags().StringVar(&flagSearchLang, "lang", "", "Artifact language")
	searchCmd.Flags().StringVar(&flagSearchSince, "since", "", "Earliest creation time (2006-01-02 or RFC 3339)")
	searchCmd.Flags().StringVar(&flagSearchUntil, "until", "", "Latest creation time (2006-01-02 or RFC 3339)")
	searchCmd.Flags().Float64Var(&flagSearchMinScore, "min-score", 0, "Minimum score")
	searchCmd.Flags().Float64Var(&flagSearchMaxScore, "max-score", 0, "Maximum score")
	searchCmd.Flags().StringVar(&flagSearchSeverity, "severity", "", "Minimum finding severity (info, warning, error, critical)")
	searchCmd.Flags().StringVar(&flagSearchText, "text", "", "Finding message substring")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 0, "Maximum records to return")
	searchCmd.Flags().IntVar(&flagSearchOffset, "offset", 0, "Records to skip for pagination")
	searchCmd.Flags().BoolVar(&flagSearchOldest, "oldest-first", false, "Order oldest first")
	searchCmd.Flags().StringVar(&flagSearchFormat, "format", "text", "Output format (text, json)")
}
