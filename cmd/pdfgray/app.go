// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/ManuGH/pdfgray/internal/config"
	"github.com/ManuGH/pdfgray/internal/history"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/session"
	"github.com/ManuGH/pdfgray/internal/telemetry"
	"github.com/ManuGH/pdfgray/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// app holds the wiring shared by the subcommands.
type app struct {
	cfg    config.AppConfig
	client *backend.Client
	tel    *telemetry.Provider
	hist   *history.Store
	logger zerolog.Logger
}

// newApp resolves configuration (defaults < file < env < flags) and
// initializes logging, tracing and the backend client.
func newApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := config.NewLoader(flags.configPath, version.Version).Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  cmd.ErrOrStderr(),
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger := xglog.WithComponent("cli")

	tel, err := telemetry.NewProvider(cmd.Context(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	retries := cfg.MaxRetries
	if retries == 0 {
		retries = -1
	}
	client := backend.NewClientWithOptions(cfg.BaseURL, backend.Options{
		Timeout:        cfg.RequestTimeout,
		MaxRetries:     retries,
		UserAgent:      cfg.UserAgent,
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateLimitBurst: cfg.RateBurst,
		Traced:         cfg.Telemetry.Enabled,
	})

	logger.Debug().
		Str(xglog.FieldEvent, "cli.configured").
		Str(xglog.FieldBaseURL, maskURL(cfg.BaseURL)).
		Str("data_dir", cfg.DataDir).
		Msg("configuration loaded")

	return &app{cfg: cfg, client: client, tel: tel, logger: logger}, nil
}

// openHistory opens the history database lazily; commands that never record
// anything do not create it.
func (a *app) openHistory(ctx context.Context) (*history.Store, error) {
	if a.hist != nil {
		return a.hist, nil
	}
	h, err := history.Open(ctx, a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.hist = h
	return h, nil
}

// newController builds a controller recording outcomes to the history store.
func (a *app) newController(ctx context.Context, downloadDir string, onChange func(session.Snapshot)) (*session.Controller, error) {
	hist, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if downloadDir == "" {
		downloadDir = a.cfg.DownloadDir
	}
	if err := os.MkdirAll(downloadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return session.New(a.client, session.Config{
		PollInterval:    a.cfg.Poll.Interval,
		MaxPollFailures: a.cfg.Poll.MaxFailures,
		DownloadDir:     downloadDir,
		VerifyDownloads: a.cfg.VerifyDownloads,
		Locale:          a.cfg.Locale,
		Recorder:        hist,
		OnChange:        onChange,
	})
}

// Close flushes spans and closes the history store.
func (a *app) Close() error {
	var errs []error
	if a.hist != nil {
		errs = append(errs, a.hist.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// withMetrics runs fn while serving /metrics on the configured address.
// Without an address fn runs alone.
func (a *app) withMetrics(ctx context.Context, fn func(context.Context) error) error {
	if a.cfg.MetricsAddr == "" {
		return fn(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().
			Str(xglog.FieldEvent, "metrics.listen").
			Str("addr", a.cfg.MetricsAddr).
			Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return fn(gctx)
	})
	return g.Wait()
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	return u.String()
}

// progressPrinter writes progress text changes as lines. Snapshots older
// than the last printed one are skipped.
func progressPrinter(w io.Writer) func(session.Snapshot) {
	var (
		mu      sync.Mutex
		last    string
		lastSeq uint64
	)
	return func(s session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Seq < lastSeq {
			return
		}
		lastSeq = s.Seq
		text := s.Display.ProgressText
		if s.Display.ErrorVisible {
			text = s.Display.ErrorMessage
		}
		if text == "" || text == last {
			return
		}
		last = text
		fmt.Fprintln(w, text)
	}
}
