// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for pdfgray.
//
// Precedence is ENV > YAML file > defaults. The YAML file is parsed strictly:
// unknown keys and multiple documents are rejected. Environment keys use the
// PDFGRAY_ prefix, e.g. PDFGRAY_BASE_URL or PDFGRAY_POLL_INTERVAL.
package config
