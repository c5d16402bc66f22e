// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
	"github.com/ManuGH/pdfgray/internal/validate"
	"github.com/google/renameio/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Reset returns to idle from any state. It cancels the poll task and any
// in-flight request of the session, clears the task and file, restores the
// default options, page and zoom, and releases every preview handle.
// Responses that still arrive for the old session are ignored.
func (c *Controller) Reset() {
	c.mu.Lock()
	prev := c.sess.Status
	taskID := c.sess.TaskID

	c.stopPollLocked()
	c.sessCancel()
	c.generation++
	c.navSeq++
	c.sessCtx, c.sessCancel = context.WithCancel(c.rootCtx)

	c.sess = Session{Status: prev, Options: DefaultOptions()}
	c.setStatusLocked(StatusIdle)
	c.view = defaultView()
	c.disp = defaultDisplay(c.texts)
	c.failure = nil
	c.startedAt = time.Time{}
	snap := c.commitLocked()
	c.mu.Unlock()

	released := c.assets.ReleaseAll()
	c.publish(snap)

	if prev == StatusSubmitting || prev == StatusPolling {
		metrics.RecordSessionFinished("reset")
	}
	c.logger.Debug().
		Str(xglog.FieldEvent, "session.reset").
		Str(xglog.FieldTaskID, taskID).
		Str(xglog.FieldOldState, prev.String()).
		Int("released_assets", released).
		Msg("session reset")
}

// Discard resets the session and deletes the last task's files on the backend.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	taskID := c.sess.TaskID
	c.mu.Unlock()

	c.Reset()
	if taskID == "" {
		return nil
	}
	if err := c.backend.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("discard task %s: %w", taskID, err)
	}
	c.logger.Info().
		Str(xglog.FieldEvent, "session.discarded").
		Str(xglog.FieldTaskID, taskID).
		Msg("task files deleted")
	return nil
}

// DownloadName is the file name a converted document is saved under.
func DownloadName(taskID string) string {
	return "converted_" + taskID + ".pdf"
}

// Download saves the converted document as converted_{taskID}.pdf in the
// download directory and returns its path. A failure is shown as an error
// message while the session stays completed. A reset aborts the transfer;
// a response arriving after a reset is dropped and nothing is written.
func (c *Controller) Download(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.sess.Status != StatusCompleted {
		c.mu.Unlock()
		return "", ErrNotCompleted
	}
	taskID, pageCount, gen, sessCtx := c.sess.TaskID, c.sess.PageCount, c.generation, c.sessCtx
	c.mu.Unlock()

	reqCtx, cancel := context.WithCancel(xglog.ContextWithTaskID(ctx, taskID))
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	pending, path, err := c.fetchDownload(reqCtx, taskID)
	if pending != nil {
		defer func() {
			if cerr := pending.Cleanup(); cerr != nil {
				c.logger.Debug().Err(cerr).Msg("cleanup pending download")
			}
		}()
	}

	c.mu.Lock()
	if c.generation != gen || c.sess.Status != StatusCompleted {
		c.mu.Unlock()
		c.logger.Debug().
			Str(xglog.FieldEvent, "download.superseded").
			Str(xglog.FieldTaskID, taskID).
			Msg("download dropped after reset")
		return "", ErrSuperseded
	}
	if err == nil {
		if rerr := pending.CloseAtomicallyReplace(); rerr != nil {
			err = fmt.Errorf("atomically replace download: %w", rerr)
		}
	}
	metrics.RecordDownload(err == nil)
	if err != nil {
		c.disp.ErrorVisible = true
		c.disp.ErrorMessage = c.texts.downloadFailed(orFallback(backend.Detail(err), err.Error()))
	} else {
		c.disp.ErrorVisible, c.disp.ErrorMessage = false, ""
		c.disp.DownloadedPath = path
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err != nil {
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "download.failed").
			Str(xglog.FieldTaskID, taskID).
			Msg("download failed")
		return "", &DownloadError{TaskID: taskID, Err: err}
	}
	if c.cfg.VerifyDownloads {
		c.verifyPageCount(taskID, path, pageCount)
	}
	c.logger.Info().
		Str(xglog.FieldEvent, "download.saved").
		Str(xglog.FieldTaskID, taskID).
		Str(xglog.FieldPath, path).
		Msg("converted document saved")
	return path, nil
}

// fetchDownload streams the document into a pending file next to its final
// path. The caller publishes it with CloseAtomicallyReplace or discards it
// with Cleanup.
func (c *Controller) fetchDownload(ctx context.Context, taskID string) (*renameio.PendingFile, string, error) {
	name := DownloadName(taskID)
	v := validate.New()
	v.FileName("task_id", name)
	if err := v.Err(); err != nil {
		return nil, "", err
	}
	path := filepath.Join(c.cfg.DownloadDir, name)

	body, err := c.backend.Download(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = body.Close() }()

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, "", fmt.Errorf("create pending download: %w", err)
	}
	if _, err := io.Copy(pending, body); err != nil {
		return pending, "", fmt.Errorf("write download: %w", err)
	}
	return pending, path, nil
}

// verifyPageCount compares the saved document with the reported page count.
// Mismatches are logged, the file is kept.
func (c *Controller) verifyPageCount(taskID, path string, want int) {
	got, err := api.PageCountFile(path)
	if err != nil {
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "download.verify_failed").
			Str(xglog.FieldTaskID, taskID).
			Str(xglog.FieldPath, path).
			Msg("could not read downloaded document")
		return
	}
	if got != want {
		c.logger.Warn().
			Str(xglog.FieldEvent, "download.page_mismatch").
			Str(xglog.FieldTaskID, taskID).
			Int("want_pages", want).
			Int("got_pages", got).
			Msg("downloaded document page count differs")
	}
}
