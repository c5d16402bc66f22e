// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package preview keeps fetched page renderings as releasable file handles.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/ManuGH/pdfgray/internal/metrics"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ErrUnknownAsset is returned for handles that were never issued or are already released.
var ErrUnknownAsset = errors.New("preview: unknown asset")

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("preview: store closed")

// Asset describes one stored page rendering.
type Asset struct {
	ID          string
	TaskID      string
	Page        int
	Kind        backend.PreviewType
	ContentType string
	Path        string
	Size        int64
	Width       int // 0 when the format is not decodable
	Height      int
}

// Stats holds handle counters.
type Stats struct {
	Created  int64
	Released int64
	Live     int
}

// Store owns the scratch directory holding preview files. Every Put returns a
// handle that must be released; Release and ReleaseAll delete the backing file.
type Store struct {
	dir   string
	owned bool

	mu     sync.Mutex
	assets map[string]Asset
	stats  Stats
	closed bool
}

// NewStore creates a store under dir. An empty dir allocates a private
// temporary directory that Close removes.
func NewStore(dir string) (*Store, error) {
	owned := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "pdfgray-preview-")
		if err != nil {
			return nil, fmt.Errorf("create preview dir: %w", err)
		}
		dir, owned = tmp, true
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &Store{dir: dir, owned: owned, assets: make(map[string]Asset)}, nil
}

// Dir returns the scratch directory.
func (s *Store) Dir() string { return s.dir }

// Put stores img and returns a new handle.
func (s *Store) Put(taskID string, page int, kind backend.PreviewType, img backend.Image) (Asset, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Asset{}, ErrClosed
	}

	id := uuid.NewString()
	a := Asset{
		ID:          id,
		TaskID:      taskID,
		Page:        page,
		Kind:        kind,
		ContentType: img.ContentType,
		Path:        filepath.Join(s.dir, id+extensionFor(img.ContentType)),
		Size:        int64(len(img.Data)),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err == nil {
		a.Width, a.Height = cfg.Width, cfg.Height
	}
	if err := renameio.WriteFile(a.Path, img.Data, 0o600); err != nil {
		return Asset{}, fmt.Errorf("write preview %s page %d: %w", kind, page, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = os.Remove(a.Path)
		return Asset{}, ErrClosed
	}
	s.assets[id] = a
	s.stats.Created++
	live := len(s.assets)
	s.mu.Unlock()

	metrics.SetPreviewAssets(live)
	return a, nil
}

// Get returns the asset behind a live handle.
func (s *Store) Get(id string) (Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	return a, ok
}

// Open returns a reader over a live handle's bytes.
func (s *Store) Open(id string) (io.ReadCloser, error) {
	a, ok := s.Get(id)
	if !ok {
		return nil, ErrUnknownAsset
	}
	return os.Open(a.Path)
}

// Export copies a live handle to dst atomically.
func (s *Store) Export(id, dst string) error {
	a, ok := s.Get(id)
	if !ok {
		return ErrUnknownAsset
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return fmt.Errorf("read preview: %w", err)
	}
	if err := renameio.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("export preview: %w", err)
	}
	return nil
}

// Release frees one handle. Releasing an unknown or empty id is a no-op.
func (s *Store) Release(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	a, ok := s.assets[id]
	if ok {
		delete(s.assets, id)
		s.stats.Released++
	}
	live := len(s.assets)
	s.mu.Unlock()

	if !ok {
		return false
	}
	_ = os.Remove(a.Path)
	metrics.SetPreviewAssets(live)
	return true
}

// ReleaseAll frees every live handle and returns how many were released.
func (s *Store) ReleaseAll() int {
	s.mu.Lock()
	paths := make([]string, 0, len(s.assets))
	for id, a := range s.assets {
		paths = append(paths, a.Path)
		delete(s.assets, id)
	}
	s.stats.Released += int64(len(paths))
	s.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
	metrics.SetPreviewAssets(0)
	return len(paths)
}

// Live returns the live handle IDs in sorted order.
func (s *Store) Live() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.assets))
	for id := range s.assets {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Stats returns a copy of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Live = len(s.assets)
	return st
}

// Close releases everything and removes the scratch directory if the store created it.
func (s *Store) Close() error {
	s.ReleaseAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.owned {
		return os.RemoveAll(s.dir)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
