package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommandContext initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it; the process is
// killed when ctx is done.
func NewSafeCommandContext(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps Python logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 GONIOMETER ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nPYTHON CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy: ShowError, then exit 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Work Tree Layout ---

const (
	// ProcessDir is created inside every subject directory for outputs.
	ProcessDir = "process"
	// OutputPrefix marks generated files.
	OutputPrefix = "P_"
)

// SubjectDirs returns the immediate subdirectories of workPath, sorted by name.
func SubjectDirs(workPath string) ([]string, error) {
	entries, err := os.ReadDir(workPath)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != ProcessDir {
			dirs = append(dirs, filepath.Join(workPath, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ListImages returns the regular files in dir whose extension matches ext
// (case-insensitive), sorted by file name.
func ListImages(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// ParseStem returns the numeric row key of an image file such as "0042.jpg".
func ParseStem(name string) (int, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	key, err := strconv.Atoi(stem)
	if err != nil || stem[0] == '+' || stem[0] == '-' {
		return 0, fmt.Errorf("file name %q is not numeric", base)
	}
	return key, nil
}

// AnnotatedPath is where the annotated copy of image is written.
func AnnotatedPath(subjectDir, image string) string {
	return filepath.Join(subjectDir, ProcessDir, OutputPrefix+filepath.Base(image))
}

// ReportPath is the spreadsheet of a subject directory.
func ReportPath(subjectDir string) string {
	name := filepath.Base(filepath.Clean(subjectDir))
	return filepath.Join(subjectDir, ProcessDir, OutputPrefix+name+".xlsx")
}

// GenerateImageID creates a deterministic hash for a file
// based on its path, size, and modification time.
func GenerateImageID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
