// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string

	// Backend
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
	RateLimit      float64 // requests per second, 0 disables limiting
	RateBurst      int
	MaxRetries     int // retries for idempotent requests only

	Poll PollConfig

	// Conversion defaults
	GrayLevels int
	Locale     string

	// Storage
	DataDir         string
	DownloadDir     string
	VerifyDownloads bool

	// Observability
	LogLevel    string
	LogService  string
	MetricsAddr string
	Telemetry   TelemetryConfig
}

// PollConfig controls the status poll loop.
type PollConfig struct {
	Interval time.Duration
	// MaxFailures is the number of consecutive transport failures after which
	// a session is failed. Zero polls until a terminal status arrives.
	MaxFailures int
}

// TelemetryConfig mirrors telemetry.Config.
type TelemetryConfig struct {
	Enabled      bool
	ExporterType string // "grpc" or "http"
	Endpoint     string
	Environment  string
	SamplingRate float64
}

// FileConfig is the on-disk YAML representation. Pointer fields distinguish
// "absent" from zero values so that only present keys override defaults.
type FileConfig struct {
	BaseURL        *string        `yaml:"base_url"`
	RequestTimeout *time.Duration `yaml:"request_timeout"`
	UserAgent      *string        `yaml:"user_agent"`
	RateLimit      *float64       `yaml:"rate_limit"`
	RateBurst      *int           `yaml:"rate_burst"`
	MaxRetries     *int           `yaml:"max_retries"`

	Poll *FilePollConfig `yaml:"poll"`

	GrayLevels *int    `yaml:"gray_levels"`
	Locale     *string `yaml:"locale"`

	DataDir         *string `yaml:"data_dir"`
	DownloadDir     *string `yaml:"download_dir"`
	VerifyDownloads *bool   `yaml:"verify_downloads"`

	LogLevel    *string              `yaml:"log_level"`
	LogService  *string              `yaml:"log_service"`
	MetricsAddr *string              `yaml:"metrics_addr"`
	Telemetry   *FileTelemetryConfig `yaml:"telemetry"`
}

// FilePollConfig is the YAML form of PollConfig.
type FilePollConfig struct {
	Interval    *time.Duration `yaml:"interval"`
	MaxFailures *int           `yaml:"max_failures"`
}

// FileTelemetryConfig is the YAML form of TelemetryConfig.
type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	ExporterType *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	Environment  *string  `yaml:"environment"`
	SamplingRate *float64 `yaml:"sampling_rate"`
}
