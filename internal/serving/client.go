// Package serving runs MoveNet through a TensorFlow Serving REST endpoint.
package serving

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/types"
)

// Client is a pose.Estimator backed by TF Serving's predict API.
type Client struct {
	http      *resty.Client
	model     string
	inputSize int
}

type predictRequest struct {
	// One instance of shape [height][width][channel], int32 pixel values.
	Instances [][][][3]int `json:"instances"`
}

type predictResponse struct {
	// Shape [instance][1][17][3] of (y, x, score).
	Predictions [][][][]float64 `json:"predictions"`
}

// New returns a client for model served at baseURL, e.g. http://localhost:8501.
func New(baseURL, model string, inputSize int, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &Client{http: c, model: model, inputSize: inputSize}
}

// Infer implements pose.Estimator.
func (c *Client) Infer(ctx context.Context, img pose.Image) (pose.RawKeypoints, error) {
	var kps pose.RawKeypoints
	if img.Size != c.inputSize || len(img.Pix) != img.Size*img.Size*3 {
		return kps, fmt.Errorf("expected a %dx%d RGB image, got size %d with %d bytes",
			c.inputSize, c.inputSize, img.Size, len(img.Pix))
	}

	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(predictRequest{Instances: [][][][3]int{toInstance(img)}}).
		SetResult(&out).
		SetError(&types.ErrorResult{}).
		Post("/v1/models/{model}:predict")
	if err != nil {
		return kps, fmt.Errorf("predict request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*types.ErrorResult); ok && e.Error != "" {
			return kps, fmt.Errorf("serving error (%d): %s", resp.StatusCode(), e.Error)
		}
		return kps, fmt.Errorf("serving error: %s", resp.Status())
	}

	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return kps, fmt.Errorf("serving returned no detections")
	}
	rows := out.Predictions[0][0]
	if len(rows) != pose.NumKeypoints {
		return kps, fmt.Errorf("expected %d keypoints, got %d", pose.NumKeypoints, len(rows))
	}
	for i, r := range rows {
		if len(r) != 3 {
			return kps, fmt.Errorf("keypoint %d has %d values, want 3", i, len(r))
		}
		kps[i] = pose.RawKeypoint{Y: r[0], X: r[1], Score: r[2]}
	}
	return kps, nil
}

// Close implements pose.Estimator. The HTTP client holds no per-model state.
func (c *Client) Close() error {
	return nil
}

func toInstance(img pose.Image) [][][3]int {
	rows := make([][][3]int, img.Size)
	for y := range rows {
		row := make([][3]int, img.Size)
		for x := range row {
			o := (y*img.Size + x) * 3
			row[x] = [3]int{int(img.Pix[o]), int(img.Pix[o+1]), int(img.Pix[o+2])}
		}
		rows[y] = row
	}
	return rows
}
