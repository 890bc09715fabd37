package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/goniometer/internal/config"
	"github.com/andresmejia3/goniometer/internal/pipeline"
	"github.com/andresmejia3/goniometer/internal/pose"
	"github.com/andresmejia3/goniometer/internal/report"
	"github.com/andresmejia3/goniometer/internal/serving"
	"github.com/andresmejia3/goniometer/internal/store"
	"github.com/andresmejia3/goniometer/internal/types"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("POSTGRES_HOST", "")
	resetDB, resetFiles, resetYes = false, false, false
	inspectJoints, inspectOut, measureSingle = nil, "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := executeContext(context.Background())
	return out.String(), err
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestResolveSubjects(t *testing.T) {
	work := t.TempDir()
	touch(t, filepath.Join(work, "b", "1.jpg"))
	touch(t, filepath.Join(work, "a", "1.jpg"))
	touch(t, filepath.Join(work, "process", "P_x.jpg"))
	touch(t, filepath.Join(work, "stray.jpg"))

	dirs, err := resolveSubjects(work, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(work, "a"), filepath.Join(work, "b")}, dirs)

	dirs, err = resolveSubjects(work, true)
	require.NoError(t, err)
	assert.Equal(t, []string{work}, dirs)

	flat := t.TempDir()
	touch(t, filepath.Join(flat, "1.jpg"))
	_, err = resolveSubjects(flat, false)
	assert.ErrorContains(t, err, "--single")

	_, err = resolveSubjects(filepath.Join(work, "missing"), false)
	assert.ErrorContains(t, err, "does not exist")

	_, err = resolveSubjects(filepath.Join(work, "stray.jpg"), false)
	assert.ErrorContains(t, err, "not a directory")
}

func TestCountImages(t *testing.T) {
	work := t.TempDir()
	touch(t, filepath.Join(work, "a", "1.jpg"))
	touch(t, filepath.Join(work, "a", "2.JPG"))
	touch(t, filepath.Join(work, "a", "notes.txt"))
	touch(t, filepath.Join(work, "b", "1.jpg"))

	dirs := []string{filepath.Join(work, "a"), filepath.Join(work, "b"), filepath.Join(work, "gone")}
	assert.Equal(t, 3, countImages(dirs, ".jpg"))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, []pipeline.Summary{
		{Subject: "alice", Images: 12, Failed: 1, Report: "/w/alice/process/P_alice.xlsx"},
	}, []string{"bob"})

	s := out.String()
	assert.Contains(t, s, "MEASURE SUMMARY")
	assert.Regexp(t, `alice\s+12\s+1\s+/w/alice/process/P_alice.xlsx`, s)
	assert.Regexp(t, `bob\s+-\s+-\s+FAILED`, s)
}

func TestParseJoints(t *testing.T) {
	all, err := parseJoints(nil)
	require.NoError(t, err)
	assert.Equal(t, pose.Joints(), all)

	some, err := parseJoints([]string{"right_knee", "left_elbow"})
	require.NoError(t, err)
	assert.Equal(t, []pose.Joint{pose.RightKneeAngle, pose.LeftElbowAngle}, some)

	_, err = parseJoints([]string{"Left_Knee"})
	var unsupported *pose.UnsupportedJointError
	assert.ErrorAs(t, err, &unsupported)
}

func TestPrintAngles(t *testing.T) {
	color.NoColor = true

	var raw pose.RawKeypoints
	raw[pose.LeftShoulder] = pose.RawKeypoint{Y: 0.25, X: 0.25, Score: 0.9}
	raw[pose.LeftElbow] = pose.RawKeypoint{Y: 0.5, X: 0.25, Score: 0.9}
	raw[pose.LeftWrist] = pose.RawKeypoint{Y: 0.5, X: 0.5, Score: 0.9}
	kps := pose.FilterKeypoints(raw, 100, 100, pose.DefaultThreshold)
	res := types.ImageResult{Keypoints: kps, Angles: pose.MeasureAll(kps)}

	var out bytes.Buffer
	printAngles(&out, res, []pose.Joint{pose.LeftElbowAngle, pose.RightElbowAngle})

	s := out.String()
	assert.Contains(t, s, "Keypoints detected: 3/17")
	assert.Regexp(t, `left_elbow\s+90.00`, s)
	assert.Regexp(t, `right_elbow\s+n/a\s+right_shoulder not detected`, s)
	assert.NotContains(t, s, "left_knee")
}

func TestShowInspect(t *testing.T) {
	color.NoColor = true

	var raw pose.RawKeypoints
	raw[pose.LeftShoulder] = pose.RawKeypoint{Y: 0.25, X: 0.25, Score: 0.9}
	raw[pose.LeftElbow] = pose.RawKeypoint{Y: 0.5, X: 0.25, Score: 0.9}
	raw[pose.LeftWrist] = pose.RawKeypoint{Y: 0.5, X: 0.5, Score: 0.9}
	kps := pose.FilterKeypoints(raw, 100, 100, pose.DefaultThreshold)
	measured := types.ImageResult{Keypoints: kps, Angles: pose.MeasureAll(kps)}
	joints := []pose.Joint{pose.LeftElbowAngle}

	var out bytes.Buffer
	annotateErr := &pipeline.ImageError{Path: "1.jpg", Stage: pipeline.StageAnnotate, Err: os.ErrPermission}
	err := showInspect(&out, measured, annotateErr, joints)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Regexp(t, `left_elbow\s+90.00`, out.String(), "angles are shown before the annotate error")

	out.Reset()
	decodeErr := &pipeline.ImageError{Path: "1.jpg", Stage: pipeline.StageDecode, Err: os.ErrInvalid}
	err = showInspect(&out, types.ImageResult{}, decodeErr, joints)
	assert.ErrorIs(t, err, os.ErrInvalid)
	assert.Empty(t, out.String())

	out.Reset()
	require.NoError(t, showInspect(&out, measured, nil, joints))
	assert.Contains(t, out.String(), "Keypoints detected: 3/17")
}

func TestNewSpawn_Serving(t *testing.T) {
	c := &config.Config{
		Backend:       config.BackendServing,
		ServingURL:    "http://localhost:8501",
		ModelName:     "movenet",
		InputSize:     256,
		WorkerTimeout: time.Second,
	}
	est, err := newSpawn(c)(t.Context(), 0)
	require.NoError(t, err)
	assert.IsType(t, &serving.Client{}, est)
	assert.NoError(t, est.Close())
}

func TestNewSpawn_PythonMissing(t *testing.T) {
	c := &config.Config{
		Backend:       config.BackendPython,
		Python:        filepath.Join(t.TempDir(), "no-such-python"),
		WorkerScript:  "python/pose_worker.py",
		InputSize:     256,
		WorkerTimeout: time.Second,
	}
	est, err := newSpawn(c)(t.Context(), 0)
	assert.Error(t, err)
	assert.Nil(t, est, "a failed start must not return a typed nil estimator")
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	printRuns(&out, nil)
	assert.Contains(t, out.String(), "No runs found")

	out.Reset()
	finished := time.Now()
	id := uuid.New()
	printRuns(&out, []store.Run{
		{ID: id, WorkPath: "/data/work", StartedAt: finished, FinishedAt: &finished, Images: 20, Failures: 2},
		{ID: uuid.New(), WorkPath: "/data/other", StartedAt: finished},
	})
	assert.Regexp(t, id.String()+`.*\s20\s+2\s+/data/work`, out.String())
	assert.Contains(t, out.String(), "running")
}

func TestPrintRunAngles(t *testing.T) {
	color.NoColor = true
	deg := 91.5

	var out bytes.Buffer
	printRunAngles(&out, []store.AngleRecord{
		{Subject: "alice", ImageKey: 3, Joint: "left_knee", Degrees: &deg},
		{Subject: "alice", ImageKey: 3, Joint: "right_knee", Reason: pose.ReasonMissingKeypoint},
	})
	assert.Regexp(t, `alice\s+3\s+left_knee\s+91.50`, out.String())
	assert.Regexp(t, `right_knee\s+n/a \(missing_keypoint\)`, out.String())
}

func TestJointsCommand(t *testing.T) {
	out, err := execute(t, "", "joints")
	require.NoError(t, err)
	assert.Regexp(t, `left_knee\s+left_hip\s+left_knee\s+left_ankle`, out)
	assert.Regexp(t, `right_shoulder\s+right_elbow\s+right_shoulder\s+right_hip`, out)
}

func TestSortReportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "P_alice.xlsx")
	require.NoError(t, report.Write(path, []report.Row{{Key: 12}, {Key: 3}, {Key: 7}}))

	out, err := execute(t, "", "sort-report", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Sorted")

	rows, err := report.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 12}, []int{rows[0].Key, rows[1].Key, rows[2].Key})
}

func TestInspectCommand_UnsupportedJoint(t *testing.T) {
	_, err := execute(t, "", "inspect", "1.jpg", "--joint", "left_wrist")
	var unsupported *pose.UnsupportedJointError
	assert.ErrorAs(t, err, &unsupported)
}

func TestListCommand_NoDatabase(t *testing.T) {
	_, err := execute(t, "", "list")
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestCleanupsRunWhenCommandFails(t *testing.T) {
	closed := 0
	onExit(func() { closed++ })

	_, err := execute(t, "", "list")
	require.ErrorIs(t, err, errNoDatabase)
	assert.Equal(t, 1, closed)
	assert.Empty(t, cleanups)

	_, err = execute(t, "", "joints")
	require.NoError(t, err)
	assert.Equal(t, 1, closed, "cleanups run once")
}

func TestResetCommand_Files(t *testing.T) {
	work := t.TempDir()
	touch(t, filepath.Join(work, "alice", "1.jpg"))
	touch(t, filepath.Join(work, "alice", "process", "P_1.jpg"))
	touch(t, filepath.Join(work, "bob", "process", "P_bob.xlsx"))

	assert.Len(t, outputDirs(work), 2)

	out, err := execute(t, "n\n", "reset", "--files", work)
	require.NoError(t, err)
	assert.Contains(t, out, "[y/N]")
	assert.DirExists(t, filepath.Join(work, "alice", "process"), "declined prompt keeps outputs")

	_, err = execute(t, "y\n", "reset", "--files", work)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(work, "alice", "process"))
	assert.NoDirExists(t, filepath.Join(work, "bob", "process"))
	assert.FileExists(t, filepath.Join(work, "alice", "1.jpg"))

	_, err = execute(t, "", "reset", "--files")
	assert.Error(t, err)
}
