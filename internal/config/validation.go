// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/pdfgray/internal/validate"
)

// Supported display locales.
var Locales = []string{"en", "zh"}

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.URL("BaseURL", cfg.BaseURL, []string{"http", "https"})
	v.DurationRange("RequestTimeout", cfg.RequestTimeout, time.Second, 10*time.Minute)
	v.Range("MaxRetries", cfg.MaxRetries, 0, 10)

	if cfg.RateLimit < 0 {
		v.AddError("RateLimit", "value cannot be negative", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 {
		v.Positive("RateBurst", cfg.RateBurst)
	}

	v.DurationRange("Poll.Interval", cfg.Poll.Interval, 100*time.Millisecond, time.Minute)
	v.NonNegative("Poll.MaxFailures", cfg.Poll.MaxFailures)

	v.Range("GrayLevels", cfg.GrayLevels, 1, 4)
	v.OneOf("Locale", cfg.Locale, Locales)

	v.Directory("DataDir", cfg.DataDir, false)
	v.Directory("DownloadDir", cfg.DownloadDir, false)

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("LogLevel", fmt.Sprintf("invalid log level %q", cfg.LogLevel), cfg.LogLevel)
	}

	if strings.TrimSpace(cfg.MetricsAddr) != "" {
		v.ListenAddr("MetricsAddr", cfg.MetricsAddr)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.ExporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be between 0.0 and 1.0", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
