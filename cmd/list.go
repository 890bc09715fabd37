package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/goniometer/internal/report"
	"github.com/andresmejia3/goniometer/internal/store"
	"github.com/andresmejia3/goniometer/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list [run_id]",
	Short: "List recorded measure runs, or the angles of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := openStore(cmd.Context(), true); err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			return runListAngles(cmd.Context(), cmd.OutOrStdout(), id)
		}
		return runList(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, out io.Writer) error {
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tIMAGES\tSKIPPED\tWORK PATH")
	fmt.Fprintln(w, "---\t-------\t------\t-------\t---------")
	for _, r := range runs {
		images := "running"
		if r.FinishedAt != nil {
			images = fmt.Sprint(r.Images)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), images, r.Failures, r.WorkPath)
	}
	w.Flush()
}

func runListAngles(ctx context.Context, out io.Writer, runID uuid.UUID) error {
	angles, err := DB.GetRunAngles(ctx, runID)
	if err != nil {
		utils.ShowError("Failed to load run", err, nil)
		return err
	}
	printRunAngles(out, angles)
	return nil
}

func printRunAngles(out io.Writer, angles []store.AngleRecord) {
	if len(angles) == 0 {
		fmt.Fprintln(out, "No measurements recorded for this run.")
		return
	}
	unavailable := color.New(color.FgRed).SprintFunc()

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tIMAGE\tJOINT\tANGLE")
	fmt.Fprintln(w, "-------\t-----\t-----\t-----")
	for _, a := range angles {
		angle := unavailable(report.NotAvailable + " (" + a.Reason + ")")
		if a.Degrees != nil {
			angle = fmt.Sprintf("%.2f", *a.Degrees)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.Subject, a.ImageKey, a.Joint, angle)
	}
	w.Flush()
}
