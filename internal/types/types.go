package types

import "github.com/andresmejia3/goniometer/internal/pose"

// ImageTask represents a single image sent to an engine for processing
type ImageTask struct {
	Index int    // position in the sorted file list
	Path  string // absolute or work-path-relative file path
}

// ImageResult is what an engine hands back to the aggregator for one image
type ImageResult struct {
	Index     int
	Path      string
	Key       int // numeric file stem, the report row key
	Keypoints *pose.FilteredKeypoints
	Angles    []pose.Measurement
	Err       error // set when the image could not be processed at all
}

// ErrorResult captures the error object returned by a model backend on failure
type ErrorResult struct {
	Error string `json:"error"`
}
