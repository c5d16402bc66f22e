// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultRequestTimeout = 60 * time.Second
	DefaultPollInterval   = time.Second
	DefaultGrayLevels     = 2
	DefaultLocale         = "en"
	DefaultRateLimit      = 10
	DefaultRateBurst      = 20
	DefaultMaxRetries     = 2
	DefaultSamplingRate   = 1.0
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // env keys read during the last Load
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}

	// 1. Set defaults
	l.setDefaults(&cfg)

	// 2. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	// 3. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)

	for _, dir := range []*string{&cfg.DataDir, &cfg.DownloadDir} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Version = l.version

	// 4. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.BaseURL = DefaultBaseURL
	cfg.RequestTimeout = DefaultRequestTimeout
	cfg.UserAgent = "pdfgray/" + l.version
	cfg.RateLimit = DefaultRateLimit
	cfg.RateBurst = DefaultRateBurst
	cfg.MaxRetries = DefaultMaxRetries
	cfg.Poll = PollConfig{Interval: DefaultPollInterval}
	cfg.GrayLevels = DefaultGrayLevels
	cfg.Locale = DefaultLocale
	cfg.DataDir = defaultDataDir()
	cfg.DownloadDir = "."
	cfg.LogLevel = "info"
	cfg.LogService = "pdfgray"
	cfg.Telemetry = TelemetryConfig{
		ExporterType: "grpc",
		Endpoint:     "localhost:4317",
		Environment:  "production",
		SamplingRate: DefaultSamplingRate,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "pdfgray")
	}
	return "data"
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}

	return &fileCfg, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	setIf(&cfg.BaseURL, f.BaseURL)
	setIf(&cfg.RequestTimeout, f.RequestTimeout)
	setIf(&cfg.UserAgent, f.UserAgent)
	setIf(&cfg.RateLimit, f.RateLimit)
	setIf(&cfg.RateBurst, f.RateBurst)
	setIf(&cfg.MaxRetries, f.MaxRetries)
	if f.Poll != nil {
		setIf(&cfg.Poll.Interval, f.Poll.Interval)
		setIf(&cfg.Poll.MaxFailures, f.Poll.MaxFailures)
	}
	setIf(&cfg.GrayLevels, f.GrayLevels)
	setIf(&cfg.Locale, f.Locale)
	setIf(&cfg.DataDir, f.DataDir)
	setIf(&cfg.DownloadDir, f.DownloadDir)
	setIf(&cfg.VerifyDownloads, f.VerifyDownloads)
	setIf(&cfg.LogLevel, f.LogLevel)
	setIf(&cfg.LogService, f.LogService)
	setIf(&cfg.MetricsAddr, f.MetricsAddr)
	if t := f.Telemetry; t != nil {
		setIf(&cfg.Telemetry.Enabled, t.Enabled)
		setIf(&cfg.Telemetry.ExporterType, t.ExporterType)
		setIf(&cfg.Telemetry.Endpoint, t.Endpoint)
		setIf(&cfg.Telemetry.Environment, t.Environment)
		setIf(&cfg.Telemetry.SamplingRate, t.SamplingRate)
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.BaseURL = l.envString("BASE_URL", cfg.BaseURL)
	cfg.RequestTimeout = l.envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.UserAgent = l.envString("USER_AGENT", cfg.UserAgent)
	cfg.RateLimit = l.envFloat("RATE_LIMIT", cfg.RateLimit)
	cfg.RateBurst = l.envInt("RATE_BURST", cfg.RateBurst)
	cfg.MaxRetries = l.envInt("MAX_RETRIES", cfg.MaxRetries)

	cfg.Poll.Interval = l.envDuration("POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.MaxFailures = l.envInt("POLL_MAX_FAILURES", cfg.Poll.MaxFailures)

	cfg.GrayLevels = l.envInt("GRAY_LEVELS", cfg.GrayLevels)
	cfg.Locale = l.envString("LOCALE", cfg.Locale)

	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.DownloadDir = l.envString("DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.VerifyDownloads = l.envBool("VERIFY_DOWNLOADS", cfg.VerifyDownloads)

	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.MetricsAddr = l.envString("METRICS_ADDR", cfg.MetricsAddr)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
