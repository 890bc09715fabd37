// Package pipeline runs a directory of images through a pool of pose
// engines and collects the results in file order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andresmejia3/goniometer/internal/metrics"
	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/report"
	"github.com/andresmejia3/goniometer/internal/types"
	"github.com/andresmejia3/goniometer/internal/utils"
)

// Frame is a decoded image ready for inference and drawing.
type Frame interface {
	ModelInput() pose.Image
	Size() (height, width int)
	WriteAnnotated(path string, kps *pose.FilteredKeypoints, angles []pose.Measurement) error
	Close() error
}

// OpenFunc decodes one image file.
type OpenFunc func(path string) (Frame, error)

// SpawnFunc starts engine id.
type SpawnFunc func(ctx context.Context, id int) (pose.Estimator, error)

// Recorder persists the measurements of one image.
type Recorder interface {
	Record(ctx context.Context, subject string, res types.ImageResult) error
}

// Stages an image can fail at, used as the metrics label.
const (
	StageKey      = "key"
	StageDecode   = "decode"
	StageInfer    = "infer"
	StageAnnotate = "annotate"
)

// ImageError is an image-level failure. The batch continues without a row
// for the image.
type ImageError struct {
	Path  string
	Stage string
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", filepath.Base(e.Path), e.Stage, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Processor owns the engine pool for a run. Engines are started once and
// reused for every subject.
type Processor struct {
	Spawn     SpawnFunc
	Open      OpenFunc
	Engines   int
	Threshold float64
	Extension string

	Recorder Recorder         // optional
	Metrics  *metrics.Metrics // optional
	Log      *zap.Logger
	OnImage  func(types.ImageResult) // optional, called in file order

	engines []pose.Estimator
}

// Summary describes one processed subject directory.
type Summary struct {
	Subject string
	Report  string
	Images  int
	Failed  int
}

// Start spawns the engine pool.
func (p *Processor) Start(ctx context.Context) error {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	n := max(1, p.Engines)
	p.engines = make([]pose.Estimator, 0, n)
	for i := 0; i < n; i++ {
		est, err := p.Spawn(ctx, i)
		if err != nil {
			p.Close()
			return fmt.Errorf("engine %d failed to start: %w", i, err)
		}
		p.engines = append(p.engines, est)
	}
	p.Log.Debug("engine pool started", zap.Int("engines", n))
	return nil
}

// Close shuts every engine down.
func (p *Processor) Close() error {
	var errs []error
	for _, est := range p.engines {
		if est != nil {
			errs = append(errs, est.Close())
		}
	}
	p.engines = nil
	return errors.Join(errs...)
}

// ProcessSubject measures every image of one subject directory, writes the
// annotated copies and the sorted report into its process directory, and
// records each image when a Recorder is set.
func (p *Processor) ProcessSubject(ctx context.Context, dir string) (Summary, error) {
	subject := filepath.Base(filepath.Clean(dir))
	sum := Summary{Subject: subject, Report: utils.ReportPath(dir)}

	if len(p.engines) == 0 {
		return sum, errors.New("engine pool is not started")
	}

	names, err := utils.ListImages(dir, p.Extension)
	if err != nil {
		return sum, fmt.Errorf("failed to list images in %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, utils.ProcessDir), 0o755); err != nil {
		return sum, fmt.Errorf("failed to create output directory: %w", err)
	}

	log := p.Log.With(zap.String("subject", subject))
	log.Info("processing subject", zap.Int("images", len(names)))

	tasks := make(chan types.ImageTask, len(p.engines))
	results := make(chan types.ImageResult, len(p.engines)*2)
	var wg sync.WaitGroup

	// Aggregator runs concurrently so engines never block on results
	var rows []report.Row
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		p.aggregate(ctx, subject, results, func(res types.ImageResult) {
			sum.Images++
			if res.Err != nil {
				sum.Failed++
				log.Warn("image skipped", zap.String("image", filepath.Base(res.Path)), zap.Error(res.Err))
				return
			}
			rows = append(rows, report.RowFrom(res.Key, res.Angles))
		})
	}()

	for i := range p.engines {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runEngine(ctx, slot, dir, tasks, results)
		}(i)
	}

feed:
	for i, name := range names {
		select {
		case tasks <- types.ImageTask{Index: i, Path: filepath.Join(dir, name)}:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()
	close(results)
	<-aggDone

	if err := report.Write(sum.Report, rows); err != nil {
		return sum, err
	}
	if err := report.SortFile(sum.Report); err != nil {
		return sum, fmt.Errorf("failed to sort report: %w", err)
	}

	log.Info("subject complete",
		zap.Int("images", sum.Images),
		zap.Int("failed", sum.Failed),
		zap.String("report", sum.Report))
	return sum, ctx.Err()
}

// runEngine serves tasks on one pool slot. A crashed engine is replaced
// once per crash; if it cannot be replaced the slot keeps draining tasks as
// failures so the feeder never blocks.
func (p *Processor) runEngine(ctx context.Context, slot int, dir string, tasks <-chan types.ImageTask, results chan<- types.ImageResult) {
	for task := range tasks {
		est := p.engines[slot]

		var res types.ImageResult
		key, err := utils.ParseStem(task.Path)
		switch {
		case err != nil:
			res = failed(task.Path, StageKey, err)
		case est == nil:
			res = failed(task.Path, StageInfer, pose.ErrEstimatorDown)
		default:
			res = p.measure(ctx, est, task.Path, utils.AnnotatedPath(dir, task.Path))
		}
		res.Index, res.Key = task.Index, key

		if est != nil && errors.Is(res.Err, pose.ErrEstimatorDown) && ctx.Err() == nil {
			p.Log.Warn("engine down, restarting", zap.Int("engine", slot), zap.Error(res.Err))
			est.Close()
			p.engines[slot] = nil
			if next, err := p.Spawn(ctx, slot); err != nil {
				p.Log.Error("engine restart failed", zap.Int("engine", slot), zap.Error(err))
			} else {
				p.engines[slot] = next
			}
		}
		results <- res
	}
}

func failed(path, stage string, err error) types.ImageResult {
	return types.ImageResult{Path: path, Err: &ImageError{Path: path, Stage: stage, Err: err}}
}

// aggregate re-orders results by task index before handing them on.
func (p *Processor) aggregate(ctx context.Context, subject string, results <-chan types.ImageResult, emit func(types.ImageResult)) {
	// Buffer for re-ordering (engine 2 might finish before engine 1)
	buffer := make(map[int]types.ImageResult)
	next := 0

	deliver := func(res types.ImageResult) {
		if res.Err != nil {
			var ie *ImageError
			stage := StageInfer
			if errors.As(res.Err, &ie) {
				stage = ie.Stage
			}
			p.Metrics.ImageFailed(stage)
		} else {
			p.Metrics.ImageProcessed()
			p.Metrics.ObserveAngles(res.Angles)
			if p.Recorder != nil {
				// A cancelled run still records what was drained
				if err := p.Recorder.Record(context.WithoutCancel(ctx), subject, res); err != nil {
					p.Log.Warn("failed to record measurements", zap.String("image", res.Path), zap.Error(err))
				}
			}
		}
		emit(res)
		if p.OnImage != nil {
			p.OnImage(res)
		}
	}

	for res := range results {
		buffer[res.Index] = res

		// Process images in strict order
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			deliver(r)
			next++
		}
	}
}

// measure decodes, infers and measures one image, then writes the annotated
// copy to annotateTo unless it is empty.
func (p *Processor) measure(ctx context.Context, est pose.Estimator, path, annotateTo string) types.ImageResult {
	frame, err := p.Open(path)
	if err != nil {
		return failed(path, StageDecode, err)
	}
	defer frame.Close()

	start := time.Now()
	raw, err := est.Infer(ctx, frame.ModelInput())
	if err != nil {
		return failed(path, StageInfer, err)
	}
	p.Metrics.ObserveInference(time.Since(start))

	h, w := frame.Size()
	kps := pose.FilterKeypoints(raw, h, w, p.Threshold)
	res := types.ImageResult{Path: path, Keypoints: kps, Angles: pose.MeasureAll(kps)}

	if annotateTo != "" {
		if err := frame.WriteAnnotated(annotateTo, kps, res.Angles); err != nil {
			res.Err = &ImageError{Path: path, Stage: StageAnnotate, Err: err}
		}
	}
	return res
}

// Inspect measures a single image on the first engine. Any file name is
// accepted; Key is only set when the stem is numeric.
func (p *Processor) Inspect(ctx context.Context, path, annotateTo string) (types.ImageResult, error) {
	if len(p.engines) == 0 || p.engines[0] == nil {
		return types.ImageResult{}, errors.New("engine pool is not started")
	}
	res := p.measure(ctx, p.engines[0], path, annotateTo)
	res.Key, _ = utils.ParseStem(path)
	return res, res.Err
}
