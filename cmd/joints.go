package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/goniometer/internal/pose"
)

var jointsCmd = &cobra.Command{
	Use:   "joints",
	Short: "List the measured joints and the keypoints each angle is taken from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printJoints(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(jointsCmd)
}

func printJoints(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "JOINT\tA\tVERTEX\tC")
	fmt.Fprintln(w, "-----\t-\t------\t-")
	for _, j := range pose.Joints() {
		a, b, c := j.Triple()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j, a, b, c)
	}
	w.Flush()
}
