// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("backend: task or resource not found")
	ErrRejected            = errors.New("backend: request rejected (4xx)")
	ErrUpstreamUnavailable = errors.New("backend: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("backend: internal error (5xx)")
	ErrBadResponse         = errors.New("backend: invalid response format or malformed data")
	ErrTimeout             = errors.New("backend: request timed out")
	ErrUnhealthy           = errors.New("backend: health check reported unhealthy")
)

// APIError wraps a sentinel with the operation, HTTP status and the
// server-provided detail message, if any.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Detail    string
	Err       error // lower-level cause (net.Error, decode error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// Detail returns the server-provided detail message carried by err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// IsTransport reports whether err is a transport-level failure (no usable
// HTTP response), as opposed to a response the server chose to send.
func IsTransport(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout)
}

func sentinelForStatus(status int) error {
	switch {
	case status == 404:
		return ErrNotFound
	case status >= 500:
		return ErrUpstreamError
	case status >= 400:
		return ErrRejected
	default:
		return ErrBadResponse
	}
}
