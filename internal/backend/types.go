// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// TaskStatus is the status enum reported by GET /api/status/{task_id}.
type TaskStatus string

const (
	// TaskProcessing means the task was accepted and conversion has not started.
	TaskProcessing TaskStatus = "processing"
	// TaskConverting means conversion is running; Progress is meaningful.
	TaskConverting TaskStatus = "converting"
	// TaskCompleted is terminal; PageCount is final.
	TaskCompleted TaskStatus = "completed"
	// TaskError is terminal; Error carries the server message, if any.
	TaskError TaskStatus = "error"
)

// IsTerminal reports whether no further status changes are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskError
}

// IsKnown reports whether s is one of the documented statuses.
func (s TaskStatus) IsKnown() bool {
	switch s {
	case TaskProcessing, TaskConverting, TaskCompleted, TaskError:
		return true
	}
	return false
}

// PreviewType selects which rendering of a page is fetched.
type PreviewType string

const (
	PreviewOriginal  PreviewType = "original"
	PreviewConverted PreviewType = "converted"
)

// PreviewTypes lists both renderings in display order.
var PreviewTypes = []PreviewType{PreviewOriginal, PreviewConverted}

// ParsePreviewType parses a preview_type query value.
func ParsePreviewType(s string) (PreviewType, error) {
	switch PreviewType(strings.ToLower(strings.TrimSpace(s))) {
	case PreviewOriginal:
		return PreviewOriginal, nil
	case PreviewConverted:
		return PreviewConverted, nil
	}
	return "", fmt.Errorf("invalid preview type %q", s)
}

// Upload is the document part of a conversion request.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// ConvertResponse is the success body of POST /api/convert.
type ConvertResponse struct {
	TaskID  string     `json:"task_id"`
	Status  TaskStatus `json:"status,omitempty"`
	Message string     `json:"message,omitempty"`
}

// StatusResponse is the body of GET /api/status/{task_id}.
type StatusResponse struct {
	TaskID    string     `json:"task_id,omitempty"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	PageCount int        `json:"page_count,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// UnmarshalJSON accepts a null error field.
func (s *StatusResponse) UnmarshalJSON(data []byte) error {
	type wire struct {
		TaskID    string     `json:"task_id"`
		Status    TaskStatus `json:"status"`
		Progress  int        `json:"progress"`
		PageCount *int       `json:"page_count"`
		Error     *string    `json:"error"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = StatusResponse{TaskID: w.TaskID, Status: w.Status, Progress: w.Progress}
	if w.PageCount != nil {
		s.PageCount = *w.PageCount
	}
	if w.Error != nil {
		s.Error = *w.Error
	}
	return nil
}

// Image is a rendered preview page.
type Image struct {
	Data        []byte
	ContentType string
}

// errorBody is the failure body. FastAPI-style validation errors carry a
// list instead of a string, so detail is decoded lazily.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func parseDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return s
	}
	return string(eb.Detail)
}
