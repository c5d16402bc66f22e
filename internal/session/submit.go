// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
)

// Submit uploads the validated file with the current options. On success the
// session is polling before Submit returns.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sess.File == nil {
		c.disp.ErrorVisible = true
		c.disp.ErrorMessage = c.texts.noFile()
		snap := c.commitLocked()
		c.mu.Unlock()
		c.publish(snap)
		return ErrNoFileSelected
	}
	if c.sess.Status != StatusValidated {
		c.mu.Unlock()
		return ErrSessionActive
	}
	file := *c.sess.File
	opts := c.sess.Options
	gen := c.generation
	sessCtx := c.sessCtx
	c.startedAt = time.Now()
	c.setStatusLocked(StatusSubmitting)
	c.disp.Working = true
	c.disp.ErrorVisible, c.disp.ErrorMessage = false, ""
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	// A reset aborts the upload.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	start := time.Now()
	taskID, err := c.upload(reqCtx, file, opts)
	metrics.ObserveSubmission(time.Since(start), err == nil)

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		c.logger.Info().
			Str(xglog.FieldEvent, "submit.stale").
			Str(xglog.FieldTaskID, taskID).
			Msg("discarding submission response after reset")
		return ErrSuperseded
	}

	if err != nil {
		serr := &SubmissionError{Message: orFallback(backend.Detail(err), c.texts.submitFailed()), Err: err}
		released := c.failLocked(serr.Message, serr)
		o := c.outcomeLocked()
		snap := c.commitLocked()
		c.mu.Unlock()
		c.release(released)
		c.publish(snap)
		c.record(o)
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "submit.failed").
			Str(xglog.FieldFileName, file.Name).
			Msg("conversion request failed")
		return serr
	}

	// Polling starts in the same critical section that enters StatusPolling.
	c.sess.TaskID = taskID
	c.sess.Progress = 0
	c.setStatusLocked(StatusPolling)
	c.startPollLocked(taskID)
	c.disp.Working = false
	c.disp.ProgressVisible = true
	c.disp.ProgressPercent = 0
	c.disp.ProgressText = c.texts.preparing()
	snap = c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logger.Info().
		Str(xglog.FieldEvent, "session.submitted").
		Str(xglog.FieldTaskID, taskID).
		Str(xglog.FieldFileName, file.Name).
		Int(xglog.FieldGrayLevels, opts.GrayLevels).
		Msg("conversion submitted")
	return nil
}

func (c *Controller) upload(ctx context.Context, file File, opts Options) (string, error) {
	body, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer func() { _ = body.Close() }()

	return c.backend.Convert(ctx, backend.Upload{
		Name:        file.Name,
		ContentType: file.MediaType,
		Body:        body,
	}, opts.GrayLevels)
}
