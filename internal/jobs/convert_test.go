// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/ManuGH/pdfgray/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*backend.MockServer, *session.Controller, string) {
	t.Helper()
	m := backend.NewMockServer()
	t.Cleanup(m.Close)
	client := backend.NewClientWithOptions(m.URL, backend.Options{Timeout: 5 * time.Second, MaxRetries: -1})
	downloads := t.TempDir()
	ctl, err := session.New(client, session.Config{PollInterval: 10 * time.Millisecond, DownloadDir: downloads})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })
	return m, ctl, downloads
}

func writePDF(t *testing.T, name string, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, backend.MinimalPDF(pages), 0o600))
	return path
}

func TestRun_ExportsEveryPageAndDownloads(t *testing.T) {
	m, ctl, downloads := setup(t)
	m.QueueTaskIDs("job-1")
	m.SetScript(backend.DefaultScript(3)...)
	m.FailPreview(backend.PreviewConverted, 2, http.StatusInternalServerError)
	exportDir := filepath.Join(t.TempDir(), "export")

	r := NewRunner(ctl, Options{GrayLevels: 3, ExportDir: exportDir, Discard: true})
	res, err := r.RunPaths(context.Background(), writePDF(t, "in.pdf", 3), "/ignored/second.pdf")
	require.NoError(t, err)

	assert.Equal(t, "job-1", res.TaskID)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, filepath.Join(downloads, "converted_job-1.pdf"), res.DownloadPath)
	assert.FileExists(t, res.DownloadPath)
	assert.Len(t, res.Exported, 5)
	assert.Equal(t, []string{"page-002-converted.png"}, res.MissingPreviews)
	assert.FileExists(t, filepath.Join(exportDir, "page-003-original.png"))
	assert.NoFileExists(t, filepath.Join(exportDir, "page-002-converted.png"))

	uploads := m.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "in.pdf", uploads[0].FileName)
	assert.Equal(t, 3, uploads[0].GrayLevels)

	assert.False(t, m.HasTask("job-1"), "task discarded on the backend")
	assert.Equal(t, session.StatusIdle, ctl.Snapshot().Session.Status)
}

func TestRun_ConversionErrorIsReturned(t *testing.T) {
	m, ctl, _ := setup(t)
	m.SetScript(backend.StatusStep{Status: backend.TaskError, Error: "PDF is encrypted"})

	_, err := NewRunner(ctl, Options{}).RunPaths(context.Background(), writePDF(t, "locked.pdf", 1))
	var cerr *session.ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "PDF is encrypted", cerr.Message)
}

func TestRun_RejectedLocally(t *testing.T) {
	m, ctl, _ := setup(t)
	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))

	_, err := NewRunner(ctl, Options{}).RunPaths(context.Background(), txt)
	var verr *session.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, session.WrongType, verr.Kind)
	assert.Zero(t, m.Calls("/api/convert"))
}

func TestRun_SkipDownload(t *testing.T) {
	m, ctl, downloads := setup(t)
	m.SetScript(backend.DefaultScript(1)...)

	res, err := NewRunner(ctl, Options{SkipDownload: true}).RunPaths(context.Background(), writePDF(t, "a.pdf", 1))
	require.NoError(t, err)
	assert.Empty(t, res.DownloadPath)
	entries, err := os.ReadDir(downloads)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, m.Calls("/api/download/{task_id}"))
}

func TestRunPaths_RequiresAFile(t *testing.T) {
	_, ctl, _ := setup(t)
	_, err := NewRunner(ctl, Options{}).RunPaths(context.Background())
	assert.ErrorIs(t, err, session.ErrNoFileSelected)
}

func TestPreviewFileName(t *testing.T) {
	assert.Equal(t, "page-007-original.png", PreviewFileName(7, backend.PreviewOriginal))
}
