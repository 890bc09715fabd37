package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/goniometer/internal/pose"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("goniometer_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	runID, err := s.CreateRun(ctx, "/data/work", 0.11)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	ms := []pose.Measurement{
		{Joint: pose.LeftElbowAngle, Degrees: 90.004},
		{Joint: pose.RightKneeAngle, Err: &pose.MissingJointError{Joint: pose.RightKneeAngle, Keypoint: pose.RightAnkle}},
	}
	if err := s.InsertAngles(ctx, runID, "subject_a", "img-2", 2, ms); err != nil {
		t.Fatalf("InsertAngles failed: %v", err)
	}
	if err := s.InsertAngles(ctx, runID, "subject_a", "img-1", 1, ms[:1]); err != nil {
		t.Fatalf("InsertAngles failed: %v", err)
	}
	// Frames named by millisecond timestamp exceed 32 bits.
	const timestampKey = 1697040000123
	if err := s.InsertAngles(ctx, runID, "subject_b", "img-3", timestampKey, ms[:1]); err != nil {
		t.Fatalf("InsertAngles with timestamp key failed: %v", err)
	}
	if err := s.FinishRun(ctx, runID, 2, 1); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != runID || runs[0].Images != 2 || runs[0].Failures != 1 || runs[0].FinishedAt == nil {
		t.Errorf("Unexpected run row: %+v", runs[0])
	}

	angles, err := s.GetRunAngles(ctx, runID)
	if err != nil {
		t.Fatalf("GetRunAngles failed: %v", err)
	}
	if len(angles) != 4 {
		t.Fatalf("Expected 4 angle rows, got %d", len(angles))
	}
	if angles[0].ImageKey != 1 {
		t.Errorf("Expected rows ordered by image key, first key is %d", angles[0].ImageKey)
	}
	if angles[1].Degrees == nil || *angles[1].Degrees != 90.0 {
		t.Errorf("Expected 90.00 for left_elbow, got %v", angles[1].Degrees)
	}
	missing := angles[2]
	if missing.Joint != "right_knee" || missing.Degrees != nil || missing.Reason != pose.ReasonMissingKeypoint {
		t.Errorf("Expected NULL right_knee with reason, got %+v", missing)
	}
	if angles[3].Subject != "subject_b" || angles[3].ImageKey != timestampKey {
		t.Errorf("Expected timestamp key %d to round-trip, got %+v", timestampKey, angles[3])
	}

	if _, err := s.GetRunAngles(ctx, uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if err := s.FinishRun(ctx, uuid.New(), 0, 0); err == nil {
		t.Error("Expected FinishRun on unknown run to fail")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx); err == nil {
		t.Error("Expected ListRuns to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
