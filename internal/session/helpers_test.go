// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/ManuGH/pdfgray/internal/preview"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend. Status answers walk statuses and stick
// to the last entry; statusFn overrides that when set.
type fakeBackend struct {
	mu sync.Mutex

	taskID     string
	convertErr error
	convertFn  func(ctx context.Context) (string, error)
	uploads    []fakeUpload

	statuses    []statusResult
	statusFn    func(ctx context.Context, call int) (backend.StatusResponse, error)
	statusCalls int

	previewErr   map[backend.PreviewType]error
	previewCalls []previewCall

	download    []byte
	downloadErr error
	downloadFn  func(ctx context.Context) (io.ReadCloser, error)
	deleted     []string
}

type fakeUpload struct {
	name        string
	contentType string
	size        int
	grayLevels  int
}

type statusResult struct {
	resp backend.StatusResponse
	err  error
}

type previewCall struct {
	taskID string
	page   int
	kind   backend.PreviewType
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{taskID: "task-1", previewErr: map[backend.PreviewType]error{}}
}

func (f *fakeBackend) Convert(ctx context.Context, up backend.Upload, grayLevels int) (string, error) {
	data, _ := io.ReadAll(up.Body)
	f.mu.Lock()
	f.uploads = append(f.uploads, fakeUpload{name: up.Name, contentType: up.ContentType, size: len(data), grayLevels: grayLevels})
	fn, id, err := f.convertFn, f.taskID, f.convertErr
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return id, err
}

func (f *fakeBackend) Status(ctx context.Context, taskID string) (backend.StatusResponse, error) {
	f.mu.Lock()
	call := f.statusCalls
	f.statusCalls++
	fn := f.statusFn
	var res statusResult
	if n := len(f.statuses); n > 0 {
		res = f.statuses[min(call, n-1)]
	} else {
		res = statusResult{resp: backend.StatusResponse{Status: backend.TaskProcessing}}
	}
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, call)
	}
	res.resp.TaskID = taskID
	return res.resp, res.err
}

func (f *fakeBackend) Preview(_ context.Context, taskID string, page int, kind backend.PreviewType) (backend.Image, error) {
	f.mu.Lock()
	f.previewCalls = append(f.previewCalls, previewCall{taskID: taskID, page: page, kind: kind})
	err := f.previewErr[kind]
	f.mu.Unlock()
	if err != nil {
		return backend.Image{}, err
	}
	return backend.Image{Data: backend.RenderPage(page, kind), ContentType: "image/png"}, nil
}

func (f *fakeBackend) Download(ctx context.Context, _ string) (io.ReadCloser, error) {
	f.mu.Lock()
	fn := f.downloadFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	body := f.download
	if body == nil {
		body = backend.MinimalPDF(3)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeBackend) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, taskID)
	return nil
}

func (f *fakeBackend) setStatuses(results ...statusResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = results
	f.statusCalls = 0
}

func (f *fakeBackend) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads) + f.statusCalls + len(f.previewCalls)
}

func (f *fakeBackend) previews() []previewCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]previewCall(nil), f.previewCalls...)
}

func ok(status backend.TaskStatus, progress, pages int) statusResult {
	return statusResult{resp: backend.StatusResponse{Status: status, Progress: progress, PageCount: pages}}
}

func failed(err error) statusResult { return statusResult{err: err} }

var errTransport = errors.New("connection refused")

// pdfFile returns an in-memory PDF candidate of the given size.
func pdfFile(name string, size int) File {
	return FileFromBytes(name, AcceptedMediaType, make([]byte, size))
}

func newTestController(t *testing.T, b Backend, opts ...func(*Config)) *Controller {
	t.Helper()
	store, err := preview.NewStore(t.TempDir())
	require.NoError(t, err)
	cfg := Config{
		PollInterval: 5 * time.Millisecond,
		DownloadDir:  t.TempDir(),
		Assets:       store,
	}
	for _, o := range opts {
		o(&cfg)
	}
	c, err := New(b, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = store.Close()
	})
	return c
}

func await(t *testing.T, c *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Await(ctx, cond)
	require.NoError(t, err, "condition not reached, last state %+v", snap.Session)
	return snap
}

func previewsSettled(s Snapshot) bool {
	return s.Session.Status == StatusCompleted && s.Display.PreviewPending == 0
}

// complete drives a fresh controller to completed with pages pages and
// waits for the first page previews.
func complete(t *testing.T, c *Controller, fb *fakeBackend, pages int) Snapshot {
	t.Helper()
	fb.setStatuses(ok(backend.TaskCompleted, 100, pages))
	require.NoError(t, c.Select(pdfFile("doc.pdf", 1024)))
	require.NoError(t, c.Submit(context.Background()))
	return await(t, c, previewsSettled)
}
