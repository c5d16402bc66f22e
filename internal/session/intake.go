// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
)

const (
	// AcceptedMediaType is the only media type the converter takes.
	AcceptedMediaType = "application/pdf"
	// MaxFileSize is the upload ceiling (50 MiB), inclusive.
	MaxFileSize int64 = 50 * bytesPerMB
)

// Validate checks the declared media type and size of a candidate file. The
// type must be exactly AcceptedMediaType: no parameters, no case folding.
func Validate(f File) (File, error) {
	if f.MediaType != AcceptedMediaType {
		return File{}, &ValidationError{Kind: WrongType, MediaType: f.MediaType}
	}
	if f.Size > MaxFileSize {
		return File{}, &ValidationError{
			Kind:      TooLarge,
			MediaType: f.MediaType,
			ActualMB:  f.SizeMB(),
			LimitMB:   float64(MaxFileSize) / bytesPerMB,
		}
	}
	return f, nil
}

// Select funnels picker and drop deliveries through Validate. Only the first
// file is considered. A valid file replaces any previously selected one as
// long as nothing was submitted yet.
func (c *Controller) Select(files ...File) error {
	if len(files) == 0 {
		return ErrNoFileSelected
	}
	f := files[0]

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.sess.Status.acceptsFile() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	accepted, err := Validate(f)
	if err != nil {
		verr := err.(*ValidationError)
		metrics.RecordIntakeRejection(verr.Kind.String())
		c.disp.Alert = c.texts.validation(verr)
		snap := c.commitLocked()
		c.mu.Unlock()
		c.publish(snap)
		c.logger.Info().
			Str(xglog.FieldEvent, "intake.rejected").
			Str(xglog.FieldFileName, f.Name).
			Int64(xglog.FieldFileSize, f.Size).
			Str("reason", verr.Kind.String()).
			Msg("file rejected")
		return err
	}

	c.sess.File = &accepted
	c.setStatusLocked(StatusValidated)
	c.disp.Alert = ""
	c.disp.ErrorVisible, c.disp.ErrorMessage = false, ""
	c.disp.FileLabel = c.texts.fileLabel(accepted)
	c.disp.OptionsVisible = true
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logger.Info().
		Str(xglog.FieldEvent, "intake.accepted").
		Str(xglog.FieldFileName, accepted.Name).
		Int64(xglog.FieldFileSize, accepted.Size).
		Msg("file accepted")
	return nil
}

// SetGrayLevels updates the options form before submission.
func (c *Controller) SetGrayLevels(levels int) error {
	opts := Options{GrayLevels: levels}
	if err := opts.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.sess.Status.acceptsFile() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.sess.Options = opts
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)
	return nil
}
