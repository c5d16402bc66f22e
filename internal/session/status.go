// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session implements the client-side conversion session: intake
// validation, submission, progress polling, preview navigation and reset.
package session

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusValidated  Status = "validated"
	StatusSubmitting Status = "submitting"
	StatusPolling    Status = "polling"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Statuses lists every state in lifecycle order.
var Statuses = []Status{StatusIdle, StatusValidated, StatusSubmitting, StatusPolling, StatusCompleted, StatusError}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether the session is finished (completed or error).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// acceptsFile reports whether a new file may be selected without a reset.
func (s Status) acceptsFile() bool {
	return s == StatusIdle || s == StatusValidated
}

// Session is the single active conversion attempt.
type Session struct {
	TaskID    string
	File      *File
	Options   Options
	Status    Status
	Progress  int
	PageCount int
	Error     string
}

// ViewState is the preview presentation state.
type ViewState struct {
	CurrentPage int
	ZoomPercent int
}

// Scale is the factor applied to both preview surfaces.
func (v ViewState) Scale() float64 {
	return float64(v.ZoomPercent) / 100
}

func defaultView() ViewState {
	return ViewState{CurrentPage: 1, ZoomPercent: DefaultZoom}
}
