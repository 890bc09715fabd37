package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/andresmejia3/goniometer/internal/config"
	"github.com/andresmejia3/goniometer/internal/logger"
	"github.com/andresmejia3/goniometer/internal/store"
	"github.com/andresmejia3/goniometer/internal/utils"
)

var (
	// DB is the run log shared by subcommands. It stays nil unless a
	// command opens it and a connection string is configured.
	DB *store.Store
	// cfg is resolved once per invocation in PersistentPreRunE.
	cfg *config.Config

	v       = viper.New()
	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

// errNoDatabase is returned by commands that need the run log when none is configured.
var errNoDatabase = errors.New("no database configured (use --database-url or set POSTGRES_HOST)")

var rootCmd = &cobra.Command{
	Use:     "goniometer",
	Short:   "Joint angle measurement from MoveNet pose keypoints",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c

		return logger.Init(logger.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
		})
	},
}

// cleanups run after every command, successful or not. Cobra skips
// PersistentPostRun when RunE fails, so they are run from executeContext.
var cleanups []func()

func onExit(fn func()) {
	cleanups = append(cleanups, fn)
}

func runCleanups() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
	logger.Sync()
}

func executeContext(ctx context.Context) error {
	defer runCleanups()
	return rootCmd.ExecuteContext(ctx)
}

// openStore connects the run log. With required unset a missing connection
// string is not an error and DB stays nil.
func openStore(ctx context.Context, required bool) error {
	if cfg.DB == "" {
		if required {
			return errNoDatabase
		}
		return nil
	}
	db, err := store.New(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db
	onExit(func() {
		// Background, since ctx may already be cancelled by Ctrl+C.
		db.Close(context.Background())
		DB = nil
	})
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := executeContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.String("database-url", "", "PostgreSQL connection string (default: built from POSTGRES_* or disabled)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format on stderr (console, json)")
	pf.String("log-file", "", "Also write JSON logs to this rotated file")

	pf.Float64P("threshold", "t", 0.11, "Minimum keypoint confidence (exclusive)")
	pf.IntP("engines", "e", 1, "Number of parallel pose engines")
	pf.String("backend", config.BackendPython, "Pose backend: python or serving")
	pf.String("python", "python3", "Python interpreter for the python backend")
	pf.String("worker-script", "python/pose_worker.py", "MoveNet worker script for the python backend")
	pf.Duration("worker-timeout", 60*time.Second, "Per-image inference timeout")
	pf.String("serving-url", "http://localhost:8501", "TensorFlow Serving base URL for the serving backend")
	pf.String("model-name", "movenet", "Model name on TensorFlow Serving")
	pf.Int("input-size", 256, "Model input size in pixels")
	pf.Int("display-size", 1280, "Size of the annotated output image in pixels")

	bindFlag(pf.Lookup("database-url"), "db")
	for _, key := range []string{
		"log_level", "log_format", "log_file",
		"threshold", "engines", "backend", "python", "worker_script", "worker_timeout",
		"serving_url", "model_name", "input_size", "display_size",
	} {
		bindFlag(pf.Lookup(flagName(key)), key)
	}
}

// flagName maps a config key to its flag, e.g. worker_timeout to worker-timeout.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// bindFlag lets an explicitly set flag override the environment and config file.
func bindFlag(f *pflag.Flag, key string) {
	if err := v.BindPFlag(key, f); err != nil {
		utils.Die("Invalid flag binding for "+key, err, nil)
	}
}
