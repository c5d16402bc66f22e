// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import "fmt"

const (
	MinGrayLevels     = 1
	MaxGrayLevels     = 4
	DefaultGrayLevels = 2
)

// Options are the conversion parameters sent with the document.
type Options struct {
	GrayLevels int
}

// DefaultOptions returns the options form defaults.
func DefaultOptions() Options {
	return Options{GrayLevels: DefaultGrayLevels}
}

// Validate checks the gray level range.
func (o Options) Validate() error {
	if o.GrayLevels < MinGrayLevels || o.GrayLevels > MaxGrayLevels {
		return fmt.Errorf("%w: gray levels must be %d-%d, got %d", ErrInvalidOptions, MinGrayLevels, MaxGrayLevels, o.GrayLevels)
	}
	return nil
}
