// SPDX-License-Identifier: MIT

// Package dropzone delivers files dropped into a directory in debounced batches.
package dropzone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the directory must stay quiet before a batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives one batch of dropped files, in drop order.
type Handler func(ctx context.Context, paths []string) error

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	// IncludeExisting delivers the files already present as the first batch.
	IncludeExisting bool
}

// Watcher watches one directory (not recursively).
type Watcher struct {
	dir    string
	opts   Options
	logger zerolog.Logger
}

// New returns a watcher for dir.
func New(dir string, opts Options) (*Watcher, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("drop folder: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("drop folder: %s is not a directory", dir)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, opts: opts, logger: xglog.WithComponent("dropzone")}, nil
}

// Run blocks until ctx is done, calling h for every batch. Handler errors are
// logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info().
		Str(xglog.FieldEvent, "dropzone.started").
		Str(xglog.FieldPath, w.dir).
		Msg("watching drop folder")

	var pending []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			pending = append(pending, path)
		}
	}

	if w.opts.IncludeExisting {
		existing, err := w.existing()
		if err != nil {
			return err
		}
		for _, p := range existing {
			add(p)
		}
	}

	debounce := time.NewTimer(w.opts.Debounce)
	if len(pending) == 0 && !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(xglog.FieldEvent, "dropzone.stopped").Msg("drop folder watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("drop folder watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if ignored(filepath.Base(event.Name)) {
				continue
			}
			w.logger.Debug().
				Str(xglog.FieldEvent, "dropzone.file_changed").
				Str(xglog.FieldPath, event.Name).
				Str("op", event.Op.String()).
				Msg("drop folder changed")
			add(event.Name)
			// quiet period restarts on every event
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("drop folder watcher closed")
			}
			w.logger.Error().Err(err).Str(xglog.FieldEvent, "dropzone.watcher_error").Msg("drop folder watcher error")

		case <-debounce.C:
			batch := regularFiles(pending)
			pending, seen = nil, make(map[string]bool)
			if len(batch) == 0 {
				continue
			}
			w.logger.Info().
				Str(xglog.FieldEvent, "dropzone.batch").
				Strs("files", batch).
				Msg("files dropped")
			if err := h(ctx, batch); err != nil {
				w.logger.Warn().Err(err).
					Str(xglog.FieldEvent, "dropzone.handler_failed").
					Msg("drop handler failed")
			}
		}
	}
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list drop folder: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && !ignored(e.Name()) {
			out = append(out, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ignored skips hidden files and editor or download temporaries.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".crdownload")
}

// regularFiles drops paths that vanished or are not regular files.
func regularFiles(paths []string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}
