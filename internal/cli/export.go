package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagExportAll  bool
	flagExportDest string
)

var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export review records as JSON files",
	Long: "Export writes one review record, or with --all every record plus\n" +
		"a manifest, as JSON files into the destination directory.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExportAll == (len(args) == 1) {
			return usageError(errors.New("provide exactly one record id, or --all"))
		}

		st, _, _, err := openStore()
		if err != nil {
			return runtimeError(err)
		}
		defer st.Close()

		var path string
		if flagExportAll {
			path, err = st.ExportAll(cmd.Context(), flagExportDest)
		} else {
			path, err = st.Export(cmd.Context(), args[0], flagExportDest)
		}
		if err != nil {
			return runtimeError(err)
		}

		fmt.Fprintf(os.Stdout, "Exported to %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&flagExportAll, "all", false, "Export every record with a manifest")
	exportCmd.Flags().StringVar(&flagExportDest, "dest", ".", "Destination directory")
}
