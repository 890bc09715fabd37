// Package pose holds the MoveNet skeleton tables and the geometry that turns
// model keypoints into joint angles.
package pose

import (
	"context"
	"errors"
)

// Image is a square RGB tensor of Size x Size pixels, row major, 3 bytes per pixel.
type Image struct {
	Size int
	Pix  []byte
}

// Estimator is a pretrained single-pose model.
type Estimator interface {
	// Infer runs the model on one padded input image and returns the
	// keypoints of the single detected person.
	Infer(ctx context.Context, img Image) (RawKeypoints, error)

	// Close releases the model.
	Close() error
}

// ErrEstimatorDown means the estimator can no longer serve requests and has
// to be replaced.
var ErrEstimatorDown = errors.New("estimator is down")
