// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/ManuGH/pdfgray/internal/jobs"
	"github.com/spf13/cobra"
)

type convertFlags struct {
	grayLevels int
	outDir     string
	exportDir  string
	noDownload bool
	discard    bool
	quiet      bool
	preflight  bool
}

func newConvertCmd(root *rootFlags) *cobra.Command {
	f := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert FILE.pdf",
		Short: "Convert one PDF document and download the result",
		Long: `Uploads FILE.pdf, waits for the conversion, optionally exports the
original and converted preview of every page, and saves the result as
converted_<task id>.pdf. Only the first file argument is converted.`,
		Args: cobra.MinimumNArgs(1),
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
				return runConvert(ctx, cmd, a, f, args)
			})
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.grayLevels, "gray-levels", 0, "gray levels 1-4 (default from config)")
	fl.StringVarP(&f.outDir, "out", "o", "", "directory for the converted document (default from config)")
	fl.StringVar(&f.exportDir, "export-previews", "", "export page previews as PNG into this directory")
	fl.BoolVar(&f.noDownload, "no-download", false, "do not download the converted document")
	fl.BoolVar(&f.discard, "discard", false, "delete the task on the backend afterwards")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "do not print progress")
	fl.BoolVar(&f.preflight, "preflight", true, "check backend health before uploading")
	return cmd
}

func runConvert(ctx context.Context, cmd *cobra.Command, a *app, f *convertFlags, args []string) error {
	if f.preflight {
		if err := a.client.Health(ctx); err != nil {
			return fmt.Errorf("backend %s not healthy: %w", maskURL(a.cfg.BaseURL), err)
		}
	}
	var onChange = progressPrinter(cmd.ErrOrStderr())
	if f.quiet {
		onChange = nil
	}
	ctl, err := a.newController(ctx, f.outDir, onChange)
	if err != nil {
		return err
	}
	defer func() { _ = ctl.Close() }()

	levels := f.grayLevels
	if levels == 0 {
		levels = a.cfg.GrayLevels
	}
	runner := jobs.NewRunner(ctl, jobs.Options{
		GrayLevels:   levels,
		ExportDir:    f.exportDir,
		SkipDownload: f.noDownload,
		Discard:      f.discard,
	})
	res, err := runner.RunPaths(ctx, args...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.DownloadPath != "" {
		fmt.Fprintln(out, res.DownloadPath)
	} else {
		fmt.Fprintf(out, "%s: %d pages\n", res.TaskID, res.PageCount)
	}
	for _, name := range res.MissingPreviews {
		fmt.Fprintf(cmd.ErrOrStderr(), "preview unavailable: %s\n", name)
	}
	return nil
}
