package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Threshold     float64       `mapstructure:"threshold"`
	InputSize     int           `mapstructure:"input_size"`
	DisplaySize   int           `mapstructure:"display_size"`
	Engines       int           `mapstructure:"engines"`
	Backend       string        `mapstructure:"backend"`
	Python        string        `mapstructure:"python"`
	WorkerScript  string        `mapstructure:"worker_script"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
	ServingURL    string        `mapstructure:"serving_url"`
	ModelName     string        `mapstructure:"model_name"`
	Extension     string        `mapstructure:"extension"`
	DB            string        `mapstructure:"db"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	LogFile       string        `mapstructure:"log_file"`
	MetricsFile   string        `mapstructure:"metrics_file"`
}

const (
	BackendPython  = "python"
	BackendServing = "serving"
)

// EnvPrefix namespaces environment overrides, e.g. GONIOMETER_ENGINES=4.
const EnvPrefix = "GONIOMETER"

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("threshold", 0.11)
	v.SetDefault("input_size", 256)
	v.SetDefault("display_size", 1280)
	v.SetDefault("engines", 1)
	v.SetDefault("backend", BackendPython)
	v.SetDefault("python", "python3")
	v.SetDefault("worker_script", "python/pose_worker.py")
	v.SetDefault("worker_timeout", "60s")
	v.SetDefault("serving_url", "http://localhost:8501")
	v.SetDefault("model_name", "movenet")
	v.SetDefault("extension", ".jpg")
	v.SetDefault("db", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_file", "")
}

// LoadDotEnv reads .env from the working directory if one exists.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// Load resolves the configuration from defaults, an optional YAML file,
// the environment and whatever flags were bound to v, in increasing
// precedence.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DB == "" {
		cfg.DB = postgresURLFromEnv()
	}
	return cfg, cfg.Validate()
}

// postgresURLFromEnv builds a connection string from the POSTGRES_* variables
// used by the compose setup. It returns "" when POSTGRES_HOST is unset, which
// leaves persistence disabled.
func postgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate checks ranges that flag parsing cannot.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %f", c.Threshold)
	}
	if c.InputSize < 1 {
		return fmt.Errorf("input size must be >= 1, got %d", c.InputSize)
	}
	if c.DisplaySize < 1 {
		return fmt.Errorf("display size must be >= 1, got %d", c.DisplaySize)
	}
	if c.Engines < 1 {
		c.Engines = 1
	}
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("worker timeout must be positive, got %s", c.WorkerTimeout)
	}
	switch c.Backend {
	case BackendPython, BackendServing:
	default:
		return fmt.Errorf("unsupported backend %q (use %q or %q)", c.Backend, BackendPython, BackendServing)
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	return nil
}
