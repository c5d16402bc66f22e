// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
	"github.com/ManuGH/pdfgray/internal/preview"
	"golang.org/x/sync/errgroup"
)

const (
	MinZoom     = 50
	MaxZoom     = 200
	ZoomStep    = 25
	DefaultZoom = 100
)

// GoTo shows page. It is a no-op returning false unless the session is
// completed and page is within [1, PageCount]. Both renderings of the page
// are fetched in the background, independently of each other.
func (c *Controller) GoTo(page int) bool {
	c.mu.Lock()
	if c.closed || c.sess.Status != StatusCompleted || page < 1 || page > c.sess.PageCount {
		c.mu.Unlock()
		return false
	}
	released, load := c.enterPageLocked(page)
	snap := c.commitLocked()
	c.mu.Unlock()

	c.release(released)
	c.publish(snap)
	load()
	return true
}

// Next moves one page forward.
func (c *Controller) Next() bool { return c.GoTo(c.Snapshot().View.CurrentPage + 1) }

// Prev moves one page back.
func (c *Controller) Prev() bool { return c.GoTo(c.Snapshot().View.CurrentPage - 1) }

// enterPageLocked switches the view to page, detaches the previous page's
// handles and returns them with a func that starts the fetches. The fetch
// goroutine is registered with wg while mu is held.
func (c *Controller) enterPageLocked(page int) ([]string, func()) {
	released := c.clearAssetsLocked()
	c.navSeq++
	seq := c.navSeq
	c.view.CurrentPage = page
	c.disp.PageLabel = c.texts.page(page, c.sess.PageCount)
	c.disp.PrevEnabled = page > 1
	c.disp.NextEnabled = page < c.sess.PageCount
	c.disp.PreviewPending = len(backend.PreviewTypes)

	taskID, ctx := c.sess.TaskID, c.sessCtx
	c.wg.Add(1)
	return released, func() { go c.loadPage(ctx, taskID, page, seq) }
}

func (c *Controller) loadPage(ctx context.Context, taskID string, page int, seq uint64) {
	defer c.wg.Done()
	ctx = xglog.ContextWithTaskID(ctx, taskID)

	var g errgroup.Group
	for _, kind := range backend.PreviewTypes {
		g.Go(func() error { return c.fetchPreview(ctx, taskID, page, kind, seq) })
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug().Err(err).
			Str(xglog.FieldTaskID, taskID).
			Int(xglog.FieldPage, page).
			Msg("page preview incomplete")
	}
}

// fetchPreview loads one rendering. Failures leave the surface unset and are
// only logged; responses for a page that is no longer shown are dropped.
func (c *Controller) fetchPreview(ctx context.Context, taskID string, page int, kind backend.PreviewType, seq uint64) error {
	img, err := c.backend.Preview(ctx, taskID, page, kind)
	var asset preview.Asset
	if err == nil {
		asset, err = c.assets.Put(taskID, page, kind, img)
	}

	c.mu.Lock()
	if c.navSeq != seq || c.sess.TaskID != taskID || c.sess.Status != StatusCompleted {
		c.mu.Unlock()
		c.assets.Release(asset.ID)
		metrics.RecordPreviewFetch(string(kind), "stale")
		return nil
	}
	c.disp.PreviewPending--
	if err == nil {
		switch kind {
		case backend.PreviewOriginal:
			c.disp.OriginalAsset = asset.ID
		case backend.PreviewConverted:
			c.disp.ConvertedAsset = asset.ID
		}
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err != nil {
		metrics.RecordPreviewFetch(string(kind), "error")
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "preview.fetch_failed").
			Str(xglog.FieldTaskID, taskID).
			Int(xglog.FieldPage, page).
			Str(xglog.FieldPreview, string(kind)).
			Msg("preview fetch failed")
		return fmt.Errorf("%s preview of page %d: %w", kind, page, err)
	}
	metrics.RecordPreviewFetch(string(kind), "ok")
	return nil
}

// Zoom changes the shared zoom of both surfaces by delta percent. Results
// outside [MinZoom, MaxZoom] are rejected as a no-op.
func (c *Controller) Zoom(delta int) bool {
	c.mu.Lock()
	next := c.view.ZoomPercent + delta
	if delta == 0 || c.sess.Status != StatusCompleted || next < MinZoom || next > MaxZoom {
		c.mu.Unlock()
		return false
	}
	c.view.ZoomPercent = next
	c.disp.ZoomLabel = c.texts.zoom(next)
	c.disp.Scale = c.view.Scale()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	c.logger.Debug().
		Str(xglog.FieldTaskID, snap.Session.TaskID).
		Int(xglog.FieldZoom, next).
		Msg("zoom changed")
	return true
}

// ZoomIn applies +ZoomStep.
func (c *Controller) ZoomIn() bool { return c.Zoom(ZoomStep) }

// ZoomOut applies -ZoomStep.
func (c *Controller) ZoomOut() bool { return c.Zoom(-ZoomStep) }
