// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Conversion attributes
	TaskIDKey      = "conversion.task_id"
	GrayLevelsKey  = "conversion.gray_levels"
	FileSizeKey    = "conversion.file_size"
	PageKey        = "conversion.page"
	PreviewTypeKey = "conversion.preview_type"

	// Retry attributes
	AttemptKey = "retry.attempt"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ConversionAttributes describes a submission. Empty or zero values are omitted.
func ConversionAttributes(taskID string, grayLevels int, fileSize int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if taskID != "" {
		attrs = append(attrs, attribute.String(TaskIDKey, taskID))
	}
	if grayLevels > 0 {
		attrs = append(attrs, attribute.Int(GrayLevelsKey, grayLevels))
	}
	if fileSize > 0 {
		attrs = append(attrs, attribute.Int64(FileSizeKey, fileSize))
	}
	return attrs
}

// PreviewAttributes describes a single preview fetch.
func PreviewAttributes(taskID string, page int, previewType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskIDKey, taskID),
		attribute.Int(PageKey, page),
		attribute.String(PreviewTypeKey, previewType),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
