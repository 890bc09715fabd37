package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresmejia3/goniometer/internal/logger"
	"github.com/andresmejia3/goniometer/internal/metrics"
	"github.com/andresmejia3/goniometer/internal/pipeline"
	"github.com/andresmejia3/goniometer/internal/store"
	"github.com/andresmejia3/goniometer/internal/types"
	"github.com/andresmejia3/goniometer/internal/utils"
)

var measureSingle bool

var measureCmd = &cobra.Command{
	Use:   "measure <work_path>",
	Short: "Measure joint angles for every subject directory under work_path",
	Long: `Each subdirectory of work_path is a subject. Every image in it is run
through the pose model; annotated copies and a sorted angle workbook are
written to <subject>/process/. With --single, work_path itself is the subject.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMeasure(cmd.Context(), args[0])
	},
}

func init() {
	measureCmd.Flags().BoolVarP(&measureSingle, "single", "s", false, "Treat work_path as a single subject directory")
	measureCmd.Flags().StringP("extension", "x", ".jpg", "Image file extension to process")
	measureCmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus textfile format")
	bindFlag(measureCmd.Flags().Lookup("extension"), "extension")
	bindFlag(measureCmd.Flags().Lookup("metrics-file"), "metrics_file")
	rootCmd.AddCommand(measureCmd)
}

// runRecorder stores each image's angles under one run.
type runRecorder struct {
	db    *store.Store
	runID uuid.UUID
}

func (r runRecorder) Record(ctx context.Context, subject string, res types.ImageResult) error {
	imageID, err := utils.GenerateImageID(res.Path)
	if err != nil {
		return err
	}
	return r.db.InsertAngles(ctx, r.runID, subject, imageID, res.Key, res.Angles)
}

// resolveSubjects validates work_path and lists the subject directories to process.
func resolveSubjects(workPath string, single bool) ([]string, error) {
	info, err := os.Stat(workPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("work path does not exist: %w", err)
		}
		return nil, fmt.Errorf("unable to access work path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("work path %s is not a directory", workPath)
	}
	if single {
		return []string{workPath}, nil
	}

	dirs, err := utils.SubjectDirs(workPath)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no subject directories in %s (use --single for a flat directory)", workPath)
	}
	return dirs, nil
}

// countImages sizes the progress bar. Unreadable directories count as zero
// and fail later with a proper error.
func countImages(dirs []string, ext string) int {
	total := 0
	for _, d := range dirs {
		names, _ := utils.ListImages(d, ext)
		total += len(names)
	}
	return total
}

func runMeasure(ctx context.Context, workPath string) error {
	log := logger.L()

	subjects, err := resolveSubjects(workPath, measureSingle)
	if err != nil {
		utils.ShowError("Invalid work path", err, nil)
		return err
	}

	if err := openStore(ctx, false); err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}

	p := newProcessor(cfg)
	if cfg.MetricsFile != "" {
		p.Metrics = metrics.New()
	}

	var runID uuid.UUID
	if DB != nil {
		runID, err = DB.CreateRun(ctx, workPath, cfg.Threshold)
		if err != nil {
			utils.ShowError("Failed to register run", err, nil)
			return err
		}
		p.Recorder = runRecorder{db: DB, runID: runID}
		log.Info("recording run", zap.String("run_id", runID.String()))
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Pose Engines (%s backend)...\n", cfg.Engines, cfg.Backend)
	if err := p.Start(ctx); err != nil {
		utils.ShowError("Pose engine startup failed", err, nil)
		return err
	}
	defer p.Close()

	bar := progressbar.NewOptions(countImages(subjects, cfg.Extension),
		progressbar.OptionSetDescription("📐 Measuring"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	p.OnImage = func(types.ImageResult) { bar.Add(1) }

	var summaries []pipeline.Summary
	var failedSubjects []string
	images, failures := 0, 0
	for _, dir := range subjects {
		if ctx.Err() != nil {
			break
		}
		sum, err := p.ProcessSubject(ctx, dir)
		images += sum.Images
		failures += sum.Failed
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("subject failed", zap.String("subject", sum.Subject), zap.Error(err))
			failedSubjects = append(failedSubjects, sum.Subject)
			continue
		}
		summaries = append(summaries, sum)
	}
	bar.Finish()

	if DB != nil {
		if err := DB.FinishRun(context.WithoutCancel(ctx), runID, images, failures); err != nil {
			log.Warn("failed to close run", zap.Error(err))
		}
	}
	if err := p.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn("failed to write metrics", zap.String("path", cfg.MetricsFile), zap.Error(err))
	}

	logger.S().Infow("run finished",
		"subjects", len(subjects),
		"images", images,
		"skipped", failures,
		"failed_subjects", len(failedSubjects))
	printSummary(os.Stderr, summaries, failedSubjects)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(failedSubjects) > 0 {
		return fmt.Errorf("%d of %d subjects failed", len(failedSubjects), len(subjects))
	}
	return nil
}

func printSummary(out io.Writer, summaries []pipeline.Summary, failed []string) {
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "📊 MEASURE SUMMARY\n")
	fmt.Fprintf(out, "---------------------------------------------------------\n")

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tIMAGES\tSKIPPED\tREPORT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Subject, s.Images, s.Failed, s.Report)
	}
	for _, name := range failed {
		fmt.Fprintf(w, "%s\t-\t-\tFAILED\n", name)
	}
	w.Flush()
	fmt.Fprintf(out, "---------------------------------------------------------\n")
}
