package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagHistoryLimit  int
	flagHistoryFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history <artifact>",
	Short: "Show an artifact's score history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, _, err := openStore()
		if err != nil {
			return runtimeError(err)
		}
		defer st.Close()

		points, err := st.ScoreHistory(cmd.Context(), args[0], flagHistoryLimit)
		if err != nil {
			return runtimeError(err)
		}

		if flagHistoryFormat == "json" {
			return writeJSON(os.Stdout, points)
		}
		if len(points) == 0 {
			fmt.Fprintf(os.Stdout, "No reviews recorded for %s.\n", args[0])
			return nil
		}
		for _, p := range points {
			flags := ""
			if p.Degraded {
				flags = "  degraded"
			}
			provider := p.Provider
			if provider == "" {
				provider = "none"
			}
			fmt.Fprintf(os.Stdout, "%s  score %.1f  provider %s%s\n",
				p.CreatedAt.Format(displayTimeLayout), p.Score, provider, flags)
		}
		return nil
	},
}

var (
	flagTrendsDays   int
	flagTrendsFormat string
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show per-day quality aggregates",
	Long: "Trends aggregates persisted reviews per UTC day: review count,\n" +
		"mean score, degraded count, and finding counts by severity.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagTrendsDays <= 0 {
			return usageError(fmt.Errorf("--days must be positive, got %d", flagTrendsDays))
		}

		st, _, _, err := openStore()
		if err != nil {
			return runtimeError(err)
		}
		defer st.Close()

		since := time.Now().AddDate(0, 0, -flagTrendsDays)
		trends, err := st.Trends(cmd.Context(), since)
		if err != nil {
			return runtimeError(err)
		}

		if flagTrendsFormat == "json" {
			return writeJSON(os.Stdout, trends)
		}
		if len(trends) == 0 {
			fmt.Fprintln(os.Stdout, "No reviews in the window.")
			return nil
		}
		for _, t := range trends {
			fmt.Fprintf(os.Stdout, "%s  reviews %d  mean score %.1f  degraded %d  findings %s\n",
				t.Day, t.Reviews, t.MeanScore, t.Degraded, formatSeverityCounts(t.Findings))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 0, "Maximum entries to show")
	historyCmd.Flags().StringVar(&flagHistoryFormat, "format", "text", "Output format (text, json)")

	trendsCmd.Flags().IntVar(&flagTrendsDays, "days", 30, "Window in days")
	trendsCmd.Flags().StringVar(&flagTrendsFormat, "format", "text", "Output format (text, json)")
}
