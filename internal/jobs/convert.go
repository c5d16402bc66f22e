// SPDX-License-Identifier: MIT

// Package jobs drives a session controller headlessly: select, submit, wait,
// export the previews of every page, download.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/session"
	"github.com/rs/zerolog"
)

// Options controls a conversion run.
type Options struct {
	GrayLevels int // 0 keeps the controller default
	// ExportDir receives page-NNN-{original,converted}.png files. Empty skips the export.
	ExportDir string
	// SkipDownload leaves the converted document on the backend.
	SkipDownload bool
	// Discard deletes the task on the backend once the run is over.
	Discard bool
	// PageTimeout bounds the wait for one page's previews.
	PageTimeout time.Duration
}

// Result describes a finished run.
type Result struct {
	TaskID       string
	PageCount    int
	DownloadPath string
	Exported     []string
	// MissingPreviews lists renderings the backend failed to deliver.
	MissingPreviews []string
	Duration        time.Duration
}

// Runner runs conversions on one controller, one at a time.
type Runner struct {
	ctl    *session.Controller
	opts   Options
	logger zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(ctl *session.Controller, opts Options) *Runner {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	return &Runner{ctl: ctl, opts: opts, logger: xglog.WithComponent("jobs")}
}

// RunPaths converts the first of paths; the rest are ignored like extra
// files of a multi-file drop.
func (r *Runner) RunPaths(ctx context.Context, paths ...string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, session.ErrNoFileSelected
	}
	if len(paths) > 1 {
		r.logger.Info().
			Str(xglog.FieldEvent, "job.extra_files_ignored").
			Strs("ignored", paths[1:]).
			Msg("only the first file is converted")
	}
	f, err := session.FileFromPath(paths[0])
	if err != nil {
		return Result{}, err
	}
	return r.Run(ctx, f)
}

// Run converts one document. The controller is reset first, so a previous
// session never leaks into this run.
func (r *Runner) Run(ctx context.Context, files ...session.File) (res Result, err error) {
	start := time.Now()
	r.ctl.Reset()
	if r.opts.GrayLevels != 0 {
		if err := r.ctl.SetGrayLevels(r.opts.GrayLevels); err != nil {
			return res, err
		}
	}
	if err := r.ctl.Select(files...); err != nil {
		return res, err
	}
	if err := r.ctl.Submit(ctx); err != nil {
		return res, err
	}

	snap, err := r.ctl.AwaitTerminal(ctx)
	if err != nil {
		r.ctl.Reset()
		return res, fmt.Errorf("wait for conversion: %w", err)
	}
	res.TaskID = snap.Session.TaskID
	if snap.Session.Status == session.StatusError {
		return res, snap.Err()
	}
	res.PageCount = snap.Session.PageCount

	logger := r.logger.With().Str(xglog.FieldTaskID, res.TaskID).Logger()
	logger.Info().
		Str(xglog.FieldEvent, "job.converted").
		Int(xglog.FieldPageCount, res.PageCount).
		Msg("conversion completed")

	if r.opts.Discard {
		defer func() {
			if derr := r.ctl.Discard(context.WithoutCancel(ctx)); derr != nil {
				logger.Warn().Err(derr).Msg("discard failed")
			}
		}()
	}

	if r.opts.ExportDir != "" {
		if err := r.exportPages(ctx, &res); err != nil {
			return res, err
		}
	}
	if !r.opts.SkipDownload {
		path, err := r.ctl.Download(ctx)
		if err != nil {
			return res, err
		}
		res.DownloadPath = path
	}

	res.Duration = time.Since(start)
	logger.Info().
		Str(xglog.FieldEvent, "job.done").
		Str(xglog.FieldPath, res.DownloadPath).
		Int("exported", len(res.Exported)).
		Dur("duration", res.Duration).
		Msg("conversion job finished")
	return res, nil
}

// exportPages walks every page and copies both renderings into ExportDir.
func (r *Runner) exportPages(ctx context.Context, res *Result) error {
	if err := os.MkdirAll(r.opts.ExportDir, 0o750); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	for page := 1; page <= res.PageCount; page++ {
		if page > 1 && !r.ctl.GoTo(page) {
			return fmt.Errorf("navigate to page %d: session no longer completed", page)
		}
		snap, err := r.awaitPage(ctx, page)
		if err != nil {
			return err
		}
		for _, side := range []struct {
			kind  backend.PreviewType
			asset string
		}{
			{backend.PreviewOriginal, snap.Display.OriginalAsset},
			{backend.PreviewConverted, snap.Display.ConvertedAsset},
		} {
			name := PreviewFileName(page, side.kind)
			if side.asset == "" {
				res.MissingPreviews = append(res.MissingPreviews, name)
				continue
			}
			dst := filepath.Join(r.opts.ExportDir, name)
			if err := r.ctl.Assets().Export(side.asset, dst); err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
			res.Exported = append(res.Exported, dst)
		}
	}
	return nil
}

var errPageTimeout = errors.New("timed out waiting for page previews")

func (r *Runner) awaitPage(ctx context.Context, page int) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PageTimeout)
	defer cancel()
	snap, err := r.ctl.Await(ctx, func(s session.Snapshot) bool {
		return s.Session.Status != session.StatusCompleted ||
			(s.View.CurrentPage == page && s.Display.PreviewPending == 0)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return snap, fmt.Errorf("page %d: %w", page, errPageTimeout)
		}
		return snap, err
	}
	if snap.Session.Status != session.StatusCompleted {
		return snap, fmt.Errorf("page %d: session %s", page, snap.Session.Status)
	}
	return snap, nil
}

// PreviewFileName is the export name of one rendering.
func PreviewFileName(page int, kind backend.PreviewType) string {
	return fmt.Sprintf("page-%03d-%s.png", page, kind)
}
