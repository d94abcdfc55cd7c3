package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var flagOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete review records older than the retention window",
	Long: "Cleanup deletes records created longer ago than --older-than.\n" +
		"Without the flag the configured retention window applies.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, _, err := openStore()
		if err != nil {
			return runtimeError(err)
		}
		defer st.Close()

		olderThan := flagOlderThan
		if olderThan <= 0 {
			olderThan = time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
		}

		removed, err := st.Cleanup(cmd.Context(), olderThan)
		if err != nil {
			return runtimeError(err)
		}

		fmt.Fprintf(os.Stdout, "Removed %d records older than %s.\n", removed, olderThan)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&flagOlderThan, "older-than", 0, "Retention window (e.g. 720h); default from configuration")
}
