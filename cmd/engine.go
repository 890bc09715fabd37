package cmd

import (
	"context"

	"github.com/andresmejia3/goniometer/internal/config"
	"github.com/andresmejia3/goniometer/internal/imaging"
	"github.com/andresmejia3/goniometer/internal/logger"
	"github.com/andresmejia3/goniometer/internal/pipeline"
	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/serving"
	"github.com/andresmejia3/goniometer/internal/worker"
)

// newSpawn returns the engine constructor for the configured backend.
func newSpawn(c *config.Config) pipeline.SpawnFunc {
	if c.Backend == config.BackendServing {
		return func(ctx context.Context, id int) (pose.Estimator, error) {
			return serving.New(c.ServingURL, c.ModelName, c.InputSize, c.WorkerTimeout), nil
		}
	}

	wcfg := worker.Config{
		Python:      c.Python,
		Script:      c.WorkerScript,
		InputSize:   c.InputSize,
		ReadTimeout: c.WorkerTimeout,
	}
	return func(ctx context.Context, id int) (pose.Estimator, error) {
		w, err := worker.NewPoseWorker(ctx, id, wcfg)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// newOpen adapts the gocv image source to the pipeline.
func newOpen(c *config.Config) pipeline.OpenFunc {
	src := imaging.Source{InputSize: c.InputSize, DisplaySize: c.DisplaySize}
	return func(path string) (pipeline.Frame, error) {
		f, err := src.Open(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func newProcessor(c *config.Config) *pipeline.Processor {
	return &pipeline.Processor{
		Spawn:     newSpawn(c),
		Open:      newOpen(c),
		Engines:   c.Engines,
		Threshold: c.Threshold,
		Extension: c.Extension,
		Log:       logger.L(),
	}
}
