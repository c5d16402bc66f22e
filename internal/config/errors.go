// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

// Errors returned by Loader.Load for a config file it refuses to read.
var (
	ErrUnknownConfigField = errors.New("unknown config field")
	ErrUnsupportedFormat  = errors.New("unsupported config format: only .yaml and .yml are read")
	ErrMultipleDocuments  = errors.New("config file must hold exactly one YAML document")
)
