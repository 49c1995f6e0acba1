package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Server:
// - PORT: HTTP listen port (default: 3000)
// - UPLOAD_MAX_BYTES: multipart upload cap in bytes (default: 500MiB)
// - LOG_LEVEL: debug, info, warn or error (default: info)
//
// Pipeline:
// - SCRATCH_DIR: working directory for extraction and conversion (default: os temp)
// - OGR2OGR_BIN: ogr2ogr binary (default: ogr2ogr)
// - UNZIP_BIN: unzip binary (default: unzip)
// - STAGING_BUCKET: default GCS bucket for staging merged NDJSON (optional)
//
// Monitor:
// - MONITOR_MAX_ATTEMPTS: load job poll attempt cap (default: 30)
// - MONITOR_POLL_SECONDS: interval between polls (default: 5)
// - MONITOR_RETRY_SECONDS: backoff after a transient poll failure (default: 3)
//
// Janitor:
// - JANITOR_CRON: sweep schedule (default: @hourly)
// - SCRATCH_MAX_AGE_HOURS: scratch dir age before sweep (default: 24)
type Config struct {
	Server  ServerConfig
	Scratch ScratchConfig
	GDAL    GDALConfig
	GCS     GCSConfig
	Monitor MonitorConfig
}

type ServerConfig struct {
	Port           int
	UploadMaxBytes int64
	LogLevel       string
}

type ScratchConfig struct {
	Dir         string
	JanitorCron string
	MaxAgeHours int
}

type GDALConfig struct {
	Ogr2ogrBin string
	UnzipBin   string
}

type GCSConfig struct {
	StagingBucket string
}

type MonitorConfig struct {
	MaxAttempts  int
	PollSeconds  int
	RetrySeconds int
}

func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 3000),
			UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 500<<20)),
			LogLevel:       getEnvString("LOG_LEVEL", "info"),
		},
		Scratch: ScratchConfig{
			Dir:         getEnvString("SCRATCH_DIR", os.TempDir()),
			JanitorCron: getEnvString("JANITOR_CRON", "@hourly"),
			MaxAgeHours: getEnvInt("SCRATCH_MAX_AGE_HOURS", 24),
		},
		GDAL: GDALConfig{
			Ogr2ogrBin: getEnvString("OGR2OGR_BIN", "ogr2ogr"),
			UnzipBin:   getEnvString("UNZIP_BIN", "unzip"),
		},
		GCS: GCSConfig{
			StagingBucket: getEnvString("STAGING_BUCKET", ""),
		},
		Monitor: MonitorConfig{
			MaxAttempts:  getEnvInt("MONITOR_MAX_ATTEMPTS", 30),
			PollSeconds:  getEnvInt("MONITOR_POLL_SECONDS", 5),
			RetrySeconds: getEnvInt("MONITOR_RETRY_SECONDS", 3),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.Monitor.MaxAttempts <= 0 {
		return fmt.Errorf("MONITOR_MAX_ATTEMPTS must be positive")
	}
	if c.Monitor.PollSeconds <= 0 || c.Monitor.RetrySeconds <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
