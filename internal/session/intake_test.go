// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		file     File
		wantKind ValidationKind
		wantMsg  string
	}{
		{name: "pdf", file: pdfFile("a.pdf", 10*1024*1024)},
		{name: "exactly at limit", file: pdfFile("a.pdf", 50*1024*1024)},
		{name: "empty file", file: pdfFile("a.pdf", 0)},
		{
			name:     "one byte over",
			file:     pdfFile("a.pdf", 52428801),
			wantKind: TooLarge,
			wantMsg:  "file too large: 50.00 MB exceeds the 50.00 MB limit",
		},
		{
			name:     "far over",
			file:     pdfFile("a.pdf", 75*1024*1024+5000),
			wantKind: TooLarge,
			wantMsg:  "file too large: 75.00 MB exceeds the 50.00 MB limit",
		},
		{name: "word document", file: FileFromBytes("a.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", nil), wantKind: WrongType},
		{name: "png", file: FileFromBytes("a.png", "image/png", nil), wantKind: WrongType},
		{name: "no type", file: FileFromBytes("a", "", nil), wantKind: WrongType},
		{name: "pdf with parameters", file: FileFromBytes("a.pdf", "application/pdf; charset=binary", []byte("%PDF")), wantKind: WrongType},
		{name: "upper case pdf type", file: FileFromBytes("a.pdf", "APPLICATION/PDF", []byte("%PDF")), wantKind: WrongType},
		{name: "pdf type with padding", file: FileFromBytes("a.pdf", " application/pdf", []byte("%PDF")), wantKind: WrongType},
		// type is checked first
		{name: "large non pdf", file: FileFromBytes("a.zip", "application/zip", make([]byte, 60*1024*1024)), wantKind: WrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.file)
			if tt.wantKind == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.file.Name, got.Name)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
			assert.Equal(t, tt.wantKind, verr.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, verr.Error())
			}
		})
	}
}

func TestSelect_AcceptsAndShowsOptions(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)

	require.NoError(t, c.Select(pdfFile("report.pdf", 10*1024*1024)))

	snap := c.Snapshot()
	assert.Equal(t, StatusValidated, snap.Session.Status)
	require.NotNil(t, snap.Session.File)
	assert.Equal(t, "report.pdf", snap.Session.File.Name)
	assert.Equal(t, "report.pdf (10.00 MB)", snap.Display.FileLabel)
	assert.True(t, snap.Display.OptionsVisible)
	assert.Empty(t, snap.Session.TaskID)
	assert.Zero(t, fb.networkCalls())
}

func TestSelect_RejectionNeverTouchesNetwork(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)

	err := c.Select(FileFromBytes("photo.jpg", "image/jpeg", []byte{0xff, 0xd8}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, WrongType, verr.Kind)

	err = c.Select(pdfFile("big.pdf", 52428801))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TooLarge, verr.Kind)

	snap := c.Snapshot()
	assert.Equal(t, StatusIdle, snap.Session.Status)
	assert.Nil(t, snap.Session.File)
	assert.False(t, snap.Display.OptionsVisible)
	assert.Equal(t, "File exceeds the size limit: 50.00 MB (maximum 50.00 MB)", snap.Display.Alert)

	assert.ErrorIs(t, c.Submit(t.Context()), ErrNoFileSelected)
	assert.Zero(t, fb.networkCalls())
}

func TestSelect_OnlyFirstFileCounts(t *testing.T) {
	c := newTestController(t, newFakeBackend())

	require.NoError(t, c.Select(pdfFile("first.pdf", 10), FileFromBytes("second.txt", "text/plain", nil)))
	assert.Equal(t, "first.pdf", c.Snapshot().Session.File.Name)

	err := c.Select(FileFromBytes("first.txt", "text/plain", nil), pdfFile("second.pdf", 10))
	require.Error(t, err)
	assert.Equal(t, "first.pdf", c.Snapshot().Session.File.Name, "rejected selection keeps the earlier file")

	assert.ErrorIs(t, c.Select(), ErrNoFileSelected)
}

func TestSelect_NewFileSupersedesBeforeSubmit(t *testing.T) {
	c := newTestController(t, newFakeBackend())

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Select(pdfFile("b.pdf", 20)))

	snap := c.Snapshot()
	assert.Equal(t, StatusValidated, snap.Session.Status)
	assert.Equal(t, "b.pdf", snap.Session.File.Name)
}

func TestSelect_RequiresResetAfterSubmit(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	complete(t, c, fb, 2)

	assert.ErrorIs(t, c.Select(pdfFile("next.pdf", 10)), ErrSessionActive)
	assert.ErrorIs(t, c.SetGrayLevels(3), ErrSessionActive)

	c.Reset()
	require.NoError(t, c.Select(pdfFile("next.pdf", 10)))
}

func TestSetGrayLevels(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)

	assert.Equal(t, DefaultGrayLevels, c.Snapshot().Session.Options.GrayLevels)
	assert.ErrorIs(t, c.SetGrayLevels(0), ErrInvalidOptions)
	assert.ErrorIs(t, c.SetGrayLevels(5), ErrInvalidOptions)

	require.NoError(t, c.SetGrayLevels(4))
	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Len(t, fb.uploads, 1)
	assert.Equal(t, 4, fb.uploads[0].grayLevels)
	assert.Equal(t, AcceptedMediaType, fb.uploads[0].contentType)
}

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()

	pdf := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0o600))
	f, err := FileFromPath(pdf)
	require.NoError(t, err)
	assert.Equal(t, "scan.pdf", f.Name)
	assert.Equal(t, AcceptedMediaType, f.MediaType)
	assert.Equal(t, int64(9), f.Size)

	// no extension: sniffed from content
	sniffed := filepath.Join(dir, "upload")
	require.NoError(t, os.WriteFile(sniffed, []byte("%PDF-1.7\n%binary"), 0o600))
	f, err = FileFromPath(sniffed)
	require.NoError(t, err)
	assert.Equal(t, AcceptedMediaType, f.MediaType)

	text := filepath.Join(dir, "notes")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o600))
	f, err = FileFromPath(text)
	require.NoError(t, err)
	_, err = Validate(f)
	assert.Error(t, err)

	_, err = FileFromPath(dir)
	assert.Error(t, err)
	_, err = FileFromPath(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}
