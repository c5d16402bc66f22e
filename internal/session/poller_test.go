// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// recorder collects every published snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) progressTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.snaps {
		if t := s.Display.ProgressText; t != "" && (len(out) == 0 || out[len(out)-1] != t) {
			out = append(out, t)
		}
	}
	return out
}

func TestPoll_StatusTexts(t *testing.T) {
	fb := newFakeBackend()
	fb.setStatuses(
		ok(backend.TaskProcessing, 0, 0),
		ok(backend.TaskConverting, 40, 0),
		ok("queued", 45, 0),
		ok(backend.TaskCompleted, 100, 2),
	)
	rec := &recorder{}
	c := newTestController(t, fb, func(cfg *Config) { cfg.OnChange = rec.observe })

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	await(t, c, previewsSettled)

	texts := rec.progressTexts()
	assert.Contains(t, texts, "Preparing...")
	assert.Contains(t, texts, "Converting... 40%")
	assert.Contains(t, texts, "Converting...")
	assert.Equal(t, "Conversion complete!", texts[len(texts)-1])
}

func TestPoll_SubmitStartsPollingAtomically(t *testing.T) {
	fb := newFakeBackend()
	var observed []int
	var mu sync.Mutex
	var c *Controller
	c = newTestController(t, fb, func(cfg *Config) {
		cfg.PollInterval = time.Hour
		cfg.OnChange = func(s Snapshot) {
			if s.Session.Status == StatusPolling {
				mu.Lock()
				observed = append(observed, c.LivePollTasks())
				mu.Unlock()
			}
		}
	})

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))

	snap := c.Snapshot()
	assert.Equal(t, StatusPolling, snap.Session.Status)
	assert.Equal(t, "task-1", snap.Session.TaskID)
	assert.Equal(t, 1, c.LivePollTasks())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	for _, n := range observed {
		assert.Equal(t, 1, n)
	}
}

func TestPoll_TransportFailuresAreSwallowed(t *testing.T) {
	fb := newFakeBackend()
	fb.setStatuses(
		failed(errTransport),
		failed(errTransport),
		ok(backend.TaskConverting, 60, 0),
		failed(errTransport),
		ok(backend.TaskCompleted, 100, 1),
	)
	c := newTestController(t, fb)

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	snap := await(t, c, previewsSettled)

	assert.Equal(t, StatusCompleted, snap.Session.Status)
	assert.False(t, snap.Display.ErrorVisible)
	assert.NoError(t, snap.Err())
}

func TestPoll_ForeverWithoutCeiling(t *testing.T) {
	fb := newFakeBackend()
	fb.setStatuses(failed(errTransport))
	c := newTestController(t, fb)

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))

	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.statusCalls >= 10
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusPolling, c.Snapshot().Session.Status)
	assert.Equal(t, 1, c.LivePollTasks())
}

func TestPoll_FailureCeiling(t *testing.T) {
	fb := newFakeBackend()
	fb.setStatuses(failed(errTransport))
	c := newTestController(t, fb, func(cfg *Config) { cfg.MaxPollFailures = 3 })

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	snap := await(t, c, func(s Snapshot) bool { return s.Session.Status == StatusError })

	assert.Equal(t, "Status check failed 3 times in a row", snap.Display.ErrorMessage)
	assert.Equal(t, 0, c.LivePollTasks())
	var cerr *ConversionError
	require.ErrorAs(t, snap.Err(), &cerr)
	assert.Equal(t, "task-1", cerr.TaskID)
	assert.ErrorIs(t, snap.Err(), errTransport)
}

func TestPoll_ServerReportedError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "with message", message: "PDF is encrypted", want: "PDF is encrypted"},
		{name: "fallback", want: "An error occurred during conversion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.setStatuses(
				ok(backend.TaskConverting, 20, 0),
				statusResult{resp: backend.StatusResponse{Status: backend.TaskError, Progress: 20, Error: tt.message}},
			)
			c := newTestController(t, fb)

			require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
			require.NoError(t, c.Submit(t.Context()))
			snap := await(t, c, func(s Snapshot) bool { return s.Session.Status.IsTerminal() })

			assert.Equal(t, StatusError, snap.Session.Status)
			assert.Equal(t, tt.want, snap.Display.ErrorMessage)
			assert.True(t, snap.Display.ErrorVisible)
			assert.False(t, snap.Display.OptionsVisible)
			assert.False(t, snap.Display.ProgressVisible)
			assert.False(t, snap.Display.PreviewVisible)
			assert.False(t, snap.Display.DownloadEnabled)
			assert.Equal(t, 0, c.LivePollTasks())

			var cerr *ConversionError
			require.ErrorAs(t, snap.Err(), &cerr)
			assert.Equal(t, tt.want, cerr.Message)
		})
	}
}

func TestPoll_CompletedWithoutPagesFails(t *testing.T) {
	fb := newFakeBackend()
	fb.setStatuses(ok(backend.TaskCompleted, 100, 0))
	c := newTestController(t, fb)

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	snap := await(t, c, func(s Snapshot) bool { return s.Session.Status.IsTerminal() })

	assert.Equal(t, StatusError, snap.Session.Status)
	assert.Equal(t, "The converted document has no pages", snap.Display.ErrorMessage)
}

func TestPoll_OverlappingTicksLastWriteWins(t *testing.T) {
	fb := newFakeBackend()
	slow := make(chan struct{})
	var once sync.Once
	fb.statusFn = func(ctx context.Context, call int) (backend.StatusResponse, error) {
		switch call {
		case 0:
			// the first tick answers after the second one was applied
			select {
			case <-slow:
			case <-ctx.Done():
				return backend.StatusResponse{}, ctx.Err()
			}
			return backend.StatusResponse{Status: backend.TaskConverting, Progress: 30}, nil
		case 1:
			return backend.StatusResponse{Status: backend.TaskConverting, Progress: 50}, nil
		default:
			return backend.StatusResponse{}, errTransport
		}
	}
	rec := &recorder{}
	c := newTestController(t, fb, func(cfg *Config) {
		cfg.PollInterval = 20 * time.Millisecond
		cfg.OnChange = func(s Snapshot) {
			rec.observe(s)
			if s.Session.Progress == 50 {
				once.Do(func() { close(slow) })
			}
		}
	})

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	snap := await(t, c, func(s Snapshot) bool { return s.Session.Progress == 30 })
	assert.Equal(t, StatusPolling, snap.Session.Status)

	texts := rec.progressTexts()
	i50 := indexOf(texts, "Converting... 50%")
	i30 := indexOf(texts, "Converting... 30%")
	require.GreaterOrEqual(t, i50, 0)
	assert.Greater(t, i30, i50, "the late answer of the first tick is applied last")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestPoll_StaleResponseAfterResetIsIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fb.statusFn = func(ctx context.Context, call int) (backend.StatusResponse, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release // ignores cancellation, like a response already on the wire
		return backend.StatusResponse{Status: backend.TaskCompleted, Progress: 100, PageCount: 4}, nil
	}
	c, err := New(fb, Config{PollInterval: 5 * time.Millisecond, DownloadDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	<-started
	c.Reset()
	close(release)

	// give the in-flight ticks a chance to land
	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.statusCalls > 0
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, StatusIdle, snap.Session.Status)
	assert.Zero(t, snap.Session.PageCount)
	assert.Empty(t, fb.previews())
	assert.Equal(t, 0, c.LivePollTasks())
}

func TestPoll_ContextErrorsDoNotCountAfterReset(t *testing.T) {
	fb := newFakeBackend()
	fb.statusFn = func(ctx context.Context, _ int) (backend.StatusResponse, error) {
		<-ctx.Done()
		return backend.StatusResponse{}, errors.Join(backend.ErrUpstreamUnavailable, ctx.Err())
	}
	c := newTestController(t, fb, func(cfg *Config) { cfg.MaxPollFailures = 1 })

	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))
	require.NoError(t, c.Submit(t.Context()))
	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.statusCalls > 0
	}, time.Second, time.Millisecond)
	c.Reset()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusIdle, c.Snapshot().Session.Status)
}
