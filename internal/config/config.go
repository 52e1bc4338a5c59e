// Package config handles configuration from environment variables and an
// optional YAML file, with env expansion inside the file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "spindle.db"
	defaultModuleDir  = "modules"

	envListenAddr = "SPINDLE_LISTEN_ADDR"
	envDBPath     = "SPINDLE_DB_PATH"
	envModuleDir  = "SPINDLE_MODULE_DIR"
	envLogLevel   = "SPINDLE_LOG_LEVEL"
	envConfigFile = "SPINDLE_CONFIG"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Modules   ModulesConfig   `yaml:"modules"`
	Worker    WorkerConfig    `yaml:"worker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	LogLevel slog.Level `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // file path or ":memory:"
}

// ModulesConfig holds worker module resolution settings.
type ModulesConfig struct {
	Dir string `yaml:"dir"` // root directory for module references
}

// WorkerConfig holds settings for the singleton background worker.
type WorkerConfig struct {
	Label  string `yaml:"label"`  // diagnostic label, defaults to spindle-worker
	Module string `yaml:"module"` // module reference, defaults to worker.mjs
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load builds the configuration: defaults, then the YAML file named by
// SPINDLE_CONFIG (if set), then individual environment variables on top.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            defaultListenAddr,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: defaultDBPath,
		},
		Modules: ModulesConfig{
			Dir: defaultModuleDir,
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{SampleRate: 1.0},
		},
		LogLevel: slog.LevelInfo,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(envModuleDir); v != "" {
		cfg.Modules.Dir = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
