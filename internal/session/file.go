// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

const bytesPerMB = 1024 * 1024

// File is a candidate input document.
type File struct {
	Name      string
	Size      int64
	MediaType string

	open func() (io.ReadCloser, error)
}

// NewFile describes a file whose content is produced by open.
func NewFile(name string, size int64, mediaType string, open func() (io.ReadCloser, error)) File {
	return File{Name: name, Size: size, MediaType: mediaType, open: open}
}

// FileFromBytes wraps an in-memory document.
func FileFromBytes(name, mediaType string, data []byte) File {
	return NewFile(name, int64(len(data)), mediaType, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// FileFromPath describes a file on disk. The declared media type comes from
// the extension, falling back to content sniffing.
func FileFromPath(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s is not a regular file", path)
	}
	mt, err := detectMediaType(path)
	if err != nil {
		return File{}, err
	}
	return NewFile(filepath.Base(path), fi.Size(), mt, func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

func detectMediaType(path string) (string, error) {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	base, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return base, nil
}

// SizeMB returns the size in MiB.
func (f File) SizeMB() float64 {
	return float64(f.Size) / bytesPerMB
}

// Open returns the document content.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %q has no content", f.Name)
	}
	return f.open()
}
