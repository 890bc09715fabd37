package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by python/pose_worker.py.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// keypointsLen is 17 rows of (y, x, score) float32.
const keypointsLen = pose.NumKeypoints * 3 * 4

// ErrWorkerDead is returned once a worker has crashed or been killed.
var ErrWorkerDead = fmt.Errorf("pose worker is no longer running: %w", pose.ErrEstimatorDown)

// Config controls how the Python model process is launched.
type Config struct {
	Python      string
	Script      string
	InputSize   int
	ReadTimeout time.Duration
}

// PoseWorker runs MoveNet in a Python child process and talks to it over
// stdin and a dedicated result pipe.
type PoseWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	inputSize int
	timeout   time.Duration
	dead      bool
}

// NewPoseWorker starts the model process. The process is killed when ctx is done.
func NewPoseWorker(ctx context.Context, id int, cfg Config) (*PoseWorker, error) {
	py := utils.NewSafeCommandContext(ctx, cfg.Python, "-u", cfg.Script,
		"--input-size", strconv.Itoa(cfg.InputSize))

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PoseWorker{
		ID:        id,
		Cmd:       py,
		Stdin:     stdin,
		DataPipe:  r,
		inputSize: cfg.InputSize,
		timeout:   cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PoseWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import crash in the child
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessImage sends raw RGB pixels and decodes the keypoint response.
func (w *PoseWorker) ProcessImage(pix []byte) (pose.RawKeypoints, error) {
	var kps pose.RawKeypoints

	resp, err := w.Communicate(pix)
	if err != nil {
		return kps, err
	}
	if len(resp) == 0 {
		return kps, fmt.Errorf("empty response from python worker")
	}

	body := bytes.NewReader(resp[1:])
	switch resp[0] {
	case statusOK:
		if body.Len() != keypointsLen {
			return kps, fmt.Errorf("expected %d keypoint bytes, got %d", keypointsLen, body.Len())
		}
		var rows [pose.NumKeypoints][3]float32
		if err := binary.Read(body, binary.BigEndian, &rows); err != nil {
			return kps, err
		}
		for i, r := range rows {
			kps[i] = pose.RawKeypoint{Y: float64(r[0]), X: float64(r[1]), Score: float64(r[2])}
		}
		return kps, nil

	case statusError:
		var msgLen uint32
		if err := binary.Read(body, binary.BigEndian, &msgLen); err != nil {
			return kps, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(body, msg); err != nil {
			return kps, fmt.Errorf("malformed error response: %w", err)
		}
		return kps, fmt.Errorf("python worker error: %s", msg)

	default:
		return kps, fmt.Errorf("unknown response status %d", resp[0])
	}
}

// Infer implements pose.Estimator. A read that outlives the timeout kills the
// child, after which the worker returns ErrWorkerDead.
func (w *PoseWorker) Infer(ctx context.Context, img pose.Image) (pose.RawKeypoints, error) {
	if w.dead {
		return pose.RawKeypoints{}, ErrWorkerDead
	}
	if img.Size != w.inputSize || len(img.Pix) != img.Size*img.Size*3 {
		return pose.RawKeypoints{}, fmt.Errorf("expected a %dx%d RGB image, got size %d with %d bytes",
			w.inputSize, w.inputSize, img.Size, len(img.Pix))
	}

	type reply struct {
		kps pose.RawKeypoints
		err error
	}
	done := make(chan reply, 1)
	go func() {
		kps, err := w.ProcessImage(img.Pix)
		done <- reply{kps, err}
	}()

	var timeout <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil && isPipeFailure(r.err) {
			w.dead = true
			return r.kps, fmt.Errorf("%w: %v", ErrWorkerDead, r.err)
		}
		return r.kps, r.err
	case <-timeout:
		w.kill()
		return pose.RawKeypoints{}, fmt.Errorf("%w: worker %d timed out after %s", ErrWorkerDead, w.ID, w.timeout)
	case <-ctx.Done():
		w.kill()
		return pose.RawKeypoints{}, ctx.Err()
	}
}

func isPipeFailure(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed)
}

func (w *PoseWorker) kill() {
	w.dead = true
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

// Close stops the child and waits for it to exit.
func (w *PoseWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	// The child exits non-zero when its stdin closes mid-request or it was killed.
	_ = w.Cmd.Wait()
	return nil
}

// Logs returns what the child wrote to stderr so far.
func (w *PoseWorker) Logs() string {
	if w.Cmd == nil {
		return ""
	}
	return w.Cmd.Stderr.String()
}
