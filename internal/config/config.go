package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/harliandi/go-kycimage/pkg/compression"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port            int    `yaml:"port"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
	RateLimitPerSec int    `yaml:"rate_limit"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
	WorkerCount     int    `yaml:"worker_count"`
	StorageDir      string `yaml:"storage_dir"`
	AutoCompress    bool   `yaml:"auto_compress"`
	DefaultFormat   string `yaml:"default_format"`
	Resampler       string `yaml:"resampler"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:            8080,
		MaxUploadMB:     20,
		MaxConcurrent:   50,
		RateLimitPerSec: 10,
		RateLimitBurst:  20,
		WorkerCount:     4,
		StorageDir:      "./data/uploads",
		AutoCompress:    true,
		DefaultFormat:   "jpeg",
		Resampler:       "catmullrom",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.MaxConcurrent = getEnvInt("MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.RateLimitPerSec = getEnvInt("RATE_LIMIT", cfg.RateLimitPerSec)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.StorageDir = getEnvString("STORAGE_DIR", cfg.StorageDir)
	cfg.AutoCompress = getEnvBool("AUTO_COMPRESS", cfg.AutoCompress)
	cfg.DefaultFormat = getEnvString("DEFAULT_FORMAT", cfg.DefaultFormat)
	cfg.Resampler = getEnvString("RESAMPLER", cfg.Resampler)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload must be positive, got %d", c.MaxUploadMB)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if _, err := compression.ParseFormat(c.DefaultFormat); err != nil {
		return err
	}
	if _, err := compression.ParseResampler(c.Resampler); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

// NewLogger builds the process logger from LogLevel and LogFormat
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
