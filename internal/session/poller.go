// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
	"golang.org/x/time/rate"
)

// pollTask is the handle of the single poll loop bound to one task id.
type pollTask struct {
	taskID   string
	cancel   context.CancelFunc
	failures int            // consecutive transport failures
	logEvery *rate.Sometimes // throttles transport failure logs
}

// startPollLocked replaces any previous poll task with a new one for taskID.
func (c *Controller) startPollLocked(taskID string) {
	c.stopPollLocked()

	ctx, cancel := context.WithCancel(c.sessCtx)
	t := &pollTask{
		taskID:   taskID,
		cancel:   cancel,
		logEvery: &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	c.poll = t
	metrics.IncPollTasks()

	c.wg.Add(1)
	go c.pollLoop(ctx, t)
}

// stopPollLocked cancels the poll task, if any. Safe to call in every state.
func (c *Controller) stopPollLocked() {
	if c.poll == nil {
		return
	}
	c.poll.cancel()
	c.poll = nil
	metrics.DecPollTasks()
}

// pollLoop fires one status request per tick. Ticks do not wait for earlier
// requests; each response is applied on its own and the last one wins.
func (c *Controller) pollLoop(ctx context.Context, t *pollTask) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.wg.Add(1)
			go c.pollOnce(ctx, t)
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context, t *pollTask) {
	defer c.wg.Done()
	ctx = xglog.ContextWithTaskID(ctx, t.taskID)
	resp, err := c.backend.Status(ctx, t.taskID)
	c.applyStatus(t, resp, err)
}

// applyStatus folds one status response into the session.
func (c *Controller) applyStatus(t *pollTask, resp backend.StatusResponse, err error) {
	c.mu.Lock()
	if c.poll != t || c.sess.TaskID != t.taskID || c.sess.Status != StatusPolling {
		c.mu.Unlock()
		metrics.RecordPollTick("stale")
		return
	}

	if err != nil {
		t.failures++
		failures := t.failures
		metrics.RecordPollTick("transport_error")
		t.logEvery.Do(func() {
			c.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "poll.transport_error").
				Str(xglog.FieldTaskID, t.taskID).
				Int(xglog.FieldAttempt, failures).
				Msg("status check failed, retrying on next tick")
		})
		if c.cfg.MaxPollFailures == 0 || failures < c.cfg.MaxPollFailures {
			c.mu.Unlock()
			return
		}
		msg := c.texts.pollGaveUp(failures)
		released := c.failLocked(msg, &ConversionError{TaskID: t.taskID, Message: msg, Err: err})
		o := c.outcomeLocked()
		snap := c.commitLocked()
		c.mu.Unlock()
		c.release(released)
		c.publish(snap)
		c.record(o)
		c.logger.Error().Err(err).
			Str(xglog.FieldEvent, "poll.gave_up").
			Str(xglog.FieldTaskID, t.taskID).
			Int(xglog.FieldAttempt, failures).
			Msg("status checks exhausted")
		return
	}

	t.failures = 0
	metrics.RecordPollTick("ok")
	c.sess.Progress = clampPercent(resp.Progress)
	c.disp.ProgressPercent = c.sess.Progress

	switch resp.Status {
	case backend.TaskProcessing:
		c.disp.ProgressText = c.texts.preparing()
	case backend.TaskConverting:
		c.disp.ProgressText = c.texts.convertingPct(c.sess.Progress)
	case backend.TaskCompleted:
		if resp.PageCount < 1 {
			c.failTerminalLocked(t.taskID, c.texts.noPages())
			return
		}
		c.completeLocked(resp.PageCount)
		return
	case backend.TaskError:
		c.failTerminalLocked(t.taskID, orFallback(resp.Error, c.texts.conversionFailed()))
		return
	default:
		c.disp.ProgressText = c.texts.converting()
		c.logger.Warn().
			Str(xglog.FieldEvent, "poll.unknown_status").
			Str(xglog.FieldTaskID, t.taskID).
			Str(xglog.FieldStatus, string(resp.Status)).
			Msg("unknown task status")
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// completeLocked enters the preview view on page 1 and unlocks mu.
func (c *Controller) completeLocked(pageCount int) {
	taskID := c.sess.TaskID
	c.stopPollLocked()
	c.sess.PageCount = pageCount
	c.setStatusLocked(StatusCompleted)
	c.view.CurrentPage = 1
	c.disp.ProgressText = c.texts.completed()
	c.disp.ProgressVisible = false
	c.disp.PreviewVisible = true
	c.disp.DownloadEnabled = true
	released, load := c.enterPageLocked(1)
	o := c.outcomeLocked()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.release(released)
	c.publish(snap)
	c.record(o)
	c.logger.Info().
		Str(xglog.FieldEvent, "session.completed").
		Str(xglog.FieldTaskID, taskID).
		Int(xglog.FieldPageCount, pageCount).
		Msg("conversion completed")
	load()
}

// failTerminalLocked handles a server-reported failure and unlocks mu.
func (c *Controller) failTerminalLocked(taskID, message string) {
	released := c.failLocked(message, &ConversionError{TaskID: taskID, Message: message})
	o := c.outcomeLocked()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.release(released)
	c.publish(snap)
	c.record(o)
	c.logger.Warn().
		Str(xglog.FieldEvent, "session.failed").
		Str(xglog.FieldTaskID, taskID).
		Str("error", message).
		Msg("conversion failed")
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
