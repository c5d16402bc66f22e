// SPDX-License-Identifier: MIT
package validate

import (
	"fmt"
	"strings"
)

// LogLevel is a zerolog level name accepted in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLevels lists the accepted levels, most verbose first.
var LogLevels = []LogLevel{LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}

func (l LogLevel) String() string { return string(l) }

// ParseLogLevel accepts a level name in any case, surrounding space ignored.
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range LogLevels {
		if l == level {
			return l, nil
		}
	}
	names := make([]string, len(LogLevels))
	for i, l := range LogLevels {
		names[i] = string(l)
	}
	return "", Error{
		Field:   "log_level",
		Value:   s,
		Message: fmt.Sprintf("unknown level %q (must be one of: %s)", s, strings.Join(names, ", ")),
	}
}
