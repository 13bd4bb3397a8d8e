// Package config reads the deckform command's settings from the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/session"
)

// Environment variables.
const (
	EnvLogLevel       = "DECKFORM_LOG_LEVEL"
	EnvLogFormat      = "DECKFORM_LOG_FORMAT"
	EnvDataDir        = "DECKFORM_DATA_DIR"
	EnvOverlayBackend = "DECKFORM_OVERLAY_BACKEND"
	EnvMaxUploadBytes = "DECKFORM_MAX_UPLOAD_BYTES"
	EnvOCR            = "DECKFORM_OCR"
	EnvExportTimeout  = "DECKFORM_EXPORT_TIMEOUT"
)

// Config holds process settings.
type Config struct {
	LogLevel       string
	LogFormat      string
	DataDir        string
	OverlayBackend string
	MaxUploadBytes int64
	OCR            bool
	ExportTimeout  time.Duration
}

// New reads the configuration from the environment, using defaults for
// unset or unparsable values.
func New() Config {
	return Config{
		LogLevel:       getEnvOrDefault(EnvLogLevel, "info"),
		LogFormat:      getEnvOrDefault(EnvLogFormat, "text"),
		DataDir:        getEnvOrDefault(EnvDataDir, "./deckform-data"),
		OverlayBackend: getEnvOrDefault(EnvOverlayBackend, session.BackendSQLite),
		MaxUploadBytes: getEnvInt64OrDefault(EnvMaxUploadBytes, assets.DefaultMaxBytes),
		OCR:            getEnvBoolOrDefault(EnvOCR, false),
		ExportTimeout:  getEnvDurationOrDefault(EnvExportTimeout, 2*time.Minute),
	}
}

// Load reads env files into the environment, then the configuration.
// Variables already set win over the files. With no files named, a .env
// in the working directory is read if present.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("env file not found: %w", err)
			}
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	}
	cfg := New()
	return cfg, cfg.Validate()
}

// Validate checks values the session layer cannot work with.
func (c Config) Validate() error {
	switch c.OverlayBackend {
	case session.BackendMemory, session.BackendSQLite:
	default:
		return fmt.Errorf("%s: unknown overlay backend %q", EnvOverlayBackend, c.OverlayBackend)
	}
	if c.OverlayBackend == session.BackendSQLite && c.DataDir == "" {
		return fmt.Errorf("%s: sqlite backend needs %s", EnvOverlayBackend, EnvDataDir)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxUploadBytes)
	}
	if c.ExportTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvExportTimeout)
	}
	return nil
}

// Session returns the session configuration for these settings.
func (c Config) Session(log *slog.Logger) session.Config {
	return session.Config{
		Logger:               log,
		DataDir:              c.DataDir,
		OverlayBackend:       c.OverlayBackend,
		MaxUploadBytes:       c.MaxUploadBytes,
		RecognizePictureText: c.OCR,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
