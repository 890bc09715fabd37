package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/goniometer/internal/pipeline"
	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/types"
	"github.com/andresmejia3/goniometer/internal/utils"
)

var (
	inspectJoints []string
	inspectOut    string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image_path>",
	Short: "Measure a single image and print its joint angles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		joints, err := parseJoints(inspectJoints)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runInspect(cmd.Context(), cmd.OutOrStdout(), args[0], joints)
	},
}

func init() {
	inspectCmd.Flags().StringSliceVarP(&inspectJoints, "joint", "j", nil, "Only print these joints (e.g. left_knee,right_knee)")
	inspectCmd.Flags().StringVarP(&inspectOut, "out", "o", "", "Write the annotated image to this path")
	rootCmd.AddCommand(inspectCmd)
}

// parseJoints resolves joint names. An empty list selects every joint.
func parseJoints(names []string) ([]pose.Joint, error) {
	if len(names) == 0 {
		return pose.Joints(), nil
	}
	joints := make([]pose.Joint, 0, len(names))
	for _, n := range names {
		j, err := pose.ParseJoint(n)
		if err != nil {
			return nil, err
		}
		joints = append(joints, j)
	}
	return joints, nil
}

func runInspect(ctx context.Context, out io.Writer, imagePath string, joints []pose.Joint) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}

	c := *cfg
	c.Engines = 1
	p := newProcessor(&c)

	fmt.Fprintln(os.Stderr, "🚀 Starting Pose Engine...")
	if err := p.Start(ctx); err != nil {
		utils.ShowError("Failed to start pose engine", err, nil)
		return err
	}
	defer p.Close()

	res, err := p.Inspect(ctx, imagePath, inspectOut)
	if err := showInspect(out, res, err, joints); err != nil {
		return err
	}
	if inspectOut != "" {
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", inspectOut)
	}
	return nil
}

// showInspect prints the angle table whenever the image was measured, even
// if writing the annotated copy failed afterwards.
func showInspect(out io.Writer, res types.ImageResult, err error, joints []pose.Joint) error {
	var ie *pipeline.ImageError
	if err != nil && !(errors.As(err, &ie) && ie.Stage == pipeline.StageAnnotate) {
		utils.ShowError("Image could not be measured", err, nil)
		return err
	}

	printAngles(out, res, joints)
	if err != nil {
		utils.ShowError("Annotated image could not be written", err, nil)
		return err
	}
	return nil
}

func printAngles(out io.Writer, res types.ImageResult, joints []pose.Joint) {
	unavailable := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(out, "Keypoints detected: %d/%d\n\n", res.Keypoints.Present(), pose.NumKeypoints)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "JOINT\tANGLE\tNOTE")
	fmt.Fprintln(w, "-----\t-----\t----")
	for _, j := range joints {
		m := res.Angles[j]
		if m.OK() {
			fmt.Fprintf(w, "%s\t%.2f\t\n", j, pose.Round2(m.Degrees))
			continue
		}
		note := m.Err.Error()
		var missing *pose.MissingJointError
		if errors.As(m.Err, &missing) {
			note = fmt.Sprintf("%s not detected", missing.Keypoint)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", j, unavailable("n/a"), note)
	}
	w.Flush()
}
