// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFileSelected is returned by Submit without a validated file.
	ErrNoFileSelected = errors.New("session: no file selected")
	// ErrSessionActive is returned when an operation needs a reset first.
	ErrSessionActive = errors.New("session: a conversion is already in progress")
	// ErrNotCompleted is returned by Download before the conversion completed.
	ErrNotCompleted = errors.New("session: conversion not completed")
	// ErrSuperseded is returned when a reset happened while a request was in flight.
	ErrSuperseded = errors.New("session: superseded by reset")
	// ErrInvalidOptions is returned for out-of-range conversion options.
	ErrInvalidOptions = errors.New("session: invalid options")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: controller closed")
)

// ValidationKind classifies intake rejections.
type ValidationKind int

const (
	WrongType ValidationKind = iota + 1
	TooLarge
)

func (k ValidationKind) String() string {
	switch k {
	case WrongType:
		return "wrong_type"
	case TooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// ValidationError is a local intake rejection. It never involves the network.
type ValidationError struct {
	Kind      ValidationKind
	MediaType string
	ActualMB  float64
	LimitMB   float64
}

func (e *ValidationError) Error() string {
	if e.Kind == TooLarge {
		return fmt.Sprintf("file too large: %.2f MB exceeds the %.2f MB limit", e.ActualMB, e.LimitMB)
	}
	return fmt.Sprintf("unsupported media type %q: only %s is accepted", e.MediaType, AcceptedMediaType)
}

// SubmissionError is a failed conversion request. Message is what the user sees.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return "submission failed: " + e.Message }
func (e *SubmissionError) Unwrap() error { return e.Err }

// ConversionError is a terminal failure reported while polling.
type ConversionError struct {
	TaskID  string
	Message string
	Err     error // set when polling gave up after transport failures
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion %s failed: %s", e.TaskID, e.Message)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// DownloadError is a non-fatal download failure.
type DownloadError struct {
	TaskID string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.TaskID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
