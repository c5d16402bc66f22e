// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldTaskID    = "task_id"
	FieldTraceID   = "trace_id"
	FieldAssetID   = "asset_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldAttempt   = "attempt"

	// Conversion fields
	FieldFileName   = "file_name"
	FieldFileSize   = "file_size"
	FieldGrayLevels = "gray_levels"
	FieldProgress   = "progress"
	FieldPage       = "page"
	FieldPageCount  = "page_count"
	FieldPreview    = "preview_type"
	FieldZoom       = "zoom_percent"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldURL     = "url"
	FieldStatus  = "status"
)
