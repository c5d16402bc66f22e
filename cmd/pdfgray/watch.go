// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/pdfgray/internal/dropzone"
	"github.com/ManuGH/pdfgray/internal/jobs"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/spf13/cobra"
)

type watchFlags struct {
	outDir   string
	existing bool
	debounce time.Duration
	discard  bool
}

func newWatchCmd(root *rootFlags) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Convert every PDF dropped into a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()
			return a.withMetrics(cmd.Context(), func(ctx context.Context) error {
				return runWatch(ctx, cmd, a, f, args[0])
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.outDir, "out", "o", "", "directory for converted documents (default from config)")
	fl.BoolVar(&f.existing, "existing", false, "also convert files already in DIR")
	fl.DurationVar(&f.debounce, "debounce", dropzone.DefaultDebounce, "quiet period before a drop is processed")
	fl.BoolVar(&f.discard, "discard", true, "delete tasks on the backend after download")
	return cmd
}

// outputSubdir receives converted documents when the output directory would
// otherwise be the watched folder itself.
const outputSubdir = "converted"

// resolveOutputDir returns the absolute output directory for a watch of dir.
// Output never lands in dir: saved documents would be picked up as new drops.
func resolveOutputDir(dir, outDir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve drop folder: %w", err)
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if sameDir(absDir, absOut) {
		return filepath.Join(absDir, outputSubdir), nil
	}
	return absOut, nil
}

func sameDir(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}

func runWatch(ctx context.Context, cmd *cobra.Command, a *app, f *watchFlags, dir string) error {
	w, err := dropzone.New(dir, dropzone.Options{Debounce: f.debounce, IncludeExisting: f.existing})
	if err != nil {
		return err
	}
	outDir := f.outDir
	if outDir == "" {
		outDir = a.cfg.DownloadDir
	}
	outDir, err = resolveOutputDir(dir, outDir)
	if err != nil {
		return err
	}
	ctl, err := a.newController(ctx, outDir, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ctl.Close() }()

	runner := jobs.NewRunner(ctl, jobs.Options{GrayLevels: a.cfg.GrayLevels, Discard: f.discard})
	out := cmd.OutOrStdout()

	// Each dropped file is its own session; files are converted one by one.
	handle := func(ctx context.Context, paths []string) error {
		var errs []error
		for _, p := range paths {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if abs, err := filepath.Abs(p); err == nil && sameDir(filepath.Dir(abs), outDir) {
				continue
			}
			res, err := runner.RunPaths(ctx, p)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(p), err))
				continue
			}
			fmt.Fprintf(out, "%s -> %s\n", p, res.DownloadPath)
		}
		return errors.Join(errs...)
	}

	a.logger.Info().
		Str(xglog.FieldEvent, "watch.start").
		Str(xglog.FieldPath, dir).
		Str("output_dir", outDir).
		Msg("watching drop folder")
	err = w.Run(ctx, handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
