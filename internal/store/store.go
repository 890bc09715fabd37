package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/goniometer/internal/pose"
)

// Store manages the PostgreSQL connection that records measurement runs.
type Store struct {
	conn *pgx.Conn
}

// Run is one invocation of the measure command.
type Run struct {
	ID         uuid.UUID
	WorkPath   string
	Threshold  float64
	StartedAt  time.Time
	FinishedAt *time.Time
	Images     int
	Failures   int
}

// AngleRecord is one stored (image, joint) measurement. Degrees is nil when
// the angle was unavailable, in which case Reason says why.
type AngleRecord struct {
	Subject  string
	ImageID  string
	ImageKey int
	Joint    string
	Degrees  *float64
	Reason   string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS measurement_runs (
			id UUID PRIMARY KEY,
			work_path TEXT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			images INT NOT NULL DEFAULT 0,
			failures INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS joint_angles (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES measurement_runs(id) ON DELETE CASCADE,
			subject TEXT NOT NULL,
			image_id TEXT NOT NULL,
			image_key BIGINT NOT NULL,
			joint TEXT NOT NULL,
			degrees DOUBLE PRECISION,
			reason TEXT NOT NULL DEFAULT ''
		);
		-- Widen key columns created as INT by earlier versions.
		ALTER TABLE joint_angles ALTER COLUMN image_key TYPE BIGINT;
		CREATE INDEX IF NOT EXISTS joint_angles_run_id_idx ON joint_angles (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a new run and returns its ID.
func (s *Store) CreateRun(ctx context.Context, workPath string, threshold float64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO measurement_runs (id, work_path, threshold, started_at)
		VALUES ($1, $2, $3, NOW())
	`, id, workPath, threshold)
	return id, err
}

// InsertAngles saves every measurement of one image in a single round trip.
func (s *Store) InsertAngles(ctx context.Context, runID uuid.UUID, subject, imageID string, key int, ms []pose.Measurement) error {
	batch := &pgx.Batch{}
	for _, m := range ms {
		var deg *float64
		if m.OK() {
			v := pose.Round2(m.Degrees)
			deg = &v
		}
		batch.Queue(`
			INSERT INTO joint_angles (run_id, subject, image_id, image_key, joint, degrees, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, runID, subject, imageID, key, m.Joint.String(), deg, m.Reason())
	}
	return s.conn.SendBatch(ctx, batch).Close()
}

// FinishRun stamps the run with its final counts.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, images, failures int) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE measurement_runs SET finished_at = NOW(), images = $2, failures = $3 WHERE id = $1
	`, runID, images, failures)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, work_path, threshold, started_at, finished_at, images, failures
		FROM measurement_runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.WorkPath, &r.Threshold, &r.StartedAt, &r.FinishedAt, &r.Images, &r.Failures); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ErrRunNotFound is returned by GetRunAngles for an unknown run.
var ErrRunNotFound = errors.New("run not found")

// GetRunAngles returns the measurements of one run ordered by subject,
// image key and joint table order.
func (s *Store) GetRunAngles(ctx context.Context, runID uuid.UUID) ([]AngleRecord, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM measurement_runs WHERE id = $1)", runID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRunNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT subject, image_id, image_key, joint, degrees, reason
		FROM joint_angles WHERE run_id = $1 ORDER BY subject, image_key, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AngleRecord
	for rows.Next() {
		var a AngleRecord
		if err := rows.Scan(&a.Subject, &a.ImageID, &a.ImageKey, &a.Joint, &a.Degrees, &a.Reason); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS joint_angles CASCADE;
		DROP TABLE IF EXISTS measurement_runs CASCADE;
	`)
	return err
}
