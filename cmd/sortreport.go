package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/goniometer/internal/report"
	"github.com/andresmejia3/goniometer/internal/utils"
)

var sortReportCmd = &cobra.Command{
	Use:   "sort-report <file.xlsx>",
	Short: "Re-sort an angle workbook by image number in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := report.SortFile(args[0]); err != nil {
			utils.ShowError("Failed to sort report", err, nil)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Sorted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sortReportCmd)
}
