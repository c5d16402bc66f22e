// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ManuGH/pdfgray/internal/backend"
	xglog "github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/metrics"
	"github.com/ManuGH/pdfgray/internal/preview"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the status polling cadence.
const DefaultPollInterval = time.Second

// Backend is the conversion service as seen by the controller.
type Backend interface {
	Convert(ctx context.Context, up backend.Upload, grayLevels int) (string, error)
	Status(ctx context.Context, taskID string) (backend.StatusResponse, error)
	Preview(ctx context.Context, taskID string, page int, kind backend.PreviewType) (backend.Image, error)
	Download(ctx context.Context, taskID string) (io.ReadCloser, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Outcome summarizes a finished session.
type Outcome struct {
	TaskID     string
	FileName   string
	FileSize   int64
	GrayLevels int
	Status     Status
	PageCount  int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder receives every terminal outcome.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Config configures a Controller.
type Config struct {
	PollInterval time.Duration
	// MaxPollFailures fails the session after this many consecutive status
	// transport failures. Zero polls until a terminal status.
	MaxPollFailures int
	DownloadDir     string
	VerifyDownloads bool
	Locale          string
	// Assets holds preview handles. A private store is created when nil.
	Assets   *preview.Store
	Recorder Recorder
	// OnChange is called after every state change, outside the controller lock.
	OnChange func(Snapshot)
}

// Snapshot is a consistent copy of the controller state. Seq increases with
// every change.
type Snapshot struct {
	Seq     uint64
	Session Session
	View    ViewState
	Display Display

	err error
}

// Err returns the failure behind StatusError: a *SubmissionError or a
// *ConversionError. It is nil in every other state.
func (s Snapshot) Err() error { return s.err }

// Controller owns one conversion session at a time. All state changes are
// serialized by mu; network calls run without it and their results are
// discarded when the session moved on in the meantime.
type Controller struct {
	backend    Backend
	cfg        Config
	assets     *preview.Store
	ownsAssets bool
	texts      texts
	logger     zerolog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	sess       Session
	view       ViewState
	disp       Display
	seq        uint64
	changed    chan struct{}
	generation uint64 // bumped by every reset
	navSeq     uint64 // bumped by every page change
	sessCtx    context.Context
	sessCancel context.CancelFunc
	poll       *pollTask
	startedAt  time.Time
	failure    error
	closed     bool
}

// New creates an idle controller.
func New(b Backend, cfg Config) (*Controller, error) {
	if b == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollFailures < 0 {
		cfg.MaxPollFailures = 0
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}

	c := &Controller{
		backend: b,
		cfg:     cfg,
		assets:  cfg.Assets,
		texts:   newTexts(cfg.Locale),
		logger:  xglog.WithComponent("session"),
		changed: make(chan struct{}),
	}
	if c.assets == nil {
		store, err := preview.NewStore("")
		if err != nil {
			return nil, err
		}
		c.assets, c.ownsAssets = store, true
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.sessCtx, c.sessCancel = context.WithCancel(c.rootCtx)
	c.sess = Session{Status: StatusIdle, Options: DefaultOptions()}
	c.view = defaultView()
	c.disp = defaultDisplay(c.texts)
	return c, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Seq: c.seq, Session: c.sess, View: c.view, Display: c.disp, err: c.failure}
}

// commitLocked publishes a state change to waiters and returns the snapshot
// that publish should hand to OnChange once the lock is released.
func (c *Controller) commitLocked() Snapshot {
	c.seq++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.snapshotLocked()
}

func (c *Controller) publish(s Snapshot) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(s)
	}
}

// Await blocks until cond holds for the current state or ctx ends.
func (c *Controller) Await(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snapshotLocked()
		ch := c.changed
		c.mu.Unlock()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// AwaitTerminal waits for completed or error.
func (c *Controller) AwaitTerminal(ctx context.Context) (Snapshot, error) {
	return c.Await(ctx, func(s Snapshot) bool { return s.Session.Status.IsTerminal() })
}

// setStatusLocked moves the state machine and counts the transition.
func (c *Controller) setStatusLocked(to Status) {
	from := c.sess.Status
	if from == to {
		return
	}
	c.sess.Status = to
	metrics.RecordTransition(from.String(), to.String())
	c.logger.Debug().
		Str(xglog.FieldEvent, "session.transition").
		Str(xglog.FieldTaskID, c.sess.TaskID).
		Str(xglog.FieldOldState, from.String()).
		Str(xglog.FieldNewState, to.String()).
		Msg("session state changed")
}

// failLocked moves to error and hides settings, progress and preview. It
// returns the preview handles to release once mu is dropped.
func (c *Controller) failLocked(message string, cause error) []string {
	c.stopPollLocked()
	c.setStatusLocked(StatusError)
	c.sess.Error = message
	c.failure = cause
	released := c.clearAssetsLocked()
	c.disp.Working = false
	c.disp.OptionsVisible = false
	c.disp.ProgressVisible = false
	c.disp.PreviewVisible = false
	c.disp.DownloadEnabled = false
	c.disp.ErrorVisible = true
	c.disp.ErrorMessage = message
	return released
}

// clearAssetsLocked detaches the current page handles and returns them for release.
func (c *Controller) clearAssetsLocked() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{c.disp.OriginalAsset, c.disp.ConvertedAsset} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	c.disp.OriginalAsset, c.disp.ConvertedAsset = "", ""
	c.disp.PreviewPending = 0
	return ids
}

func (c *Controller) release(ids []string) {
	for _, id := range ids {
		c.assets.Release(id)
	}
}

// outcomeLocked builds the history entry of the current session.
func (c *Controller) outcomeLocked() Outcome {
	o := Outcome{
		TaskID:     c.sess.TaskID,
		GrayLevels: c.sess.Options.GrayLevels,
		Status:     c.sess.Status,
		PageCount:  c.sess.PageCount,
		Error:      c.sess.Error,
		StartedAt:  c.startedAt,
		FinishedAt: time.Now(),
	}
	if f := c.sess.File; f != nil {
		o.FileName, o.FileSize = f.Name, f.Size
	}
	return o
}

func (c *Controller) record(o Outcome) {
	outcome := "failed"
	if o.Status == StatusCompleted {
		outcome = "completed"
	}
	metrics.RecordSessionFinished(outcome)
	if !o.StartedAt.IsZero() {
		metrics.ObserveConversion(o.FinishedAt.Sub(o.StartedAt))
	}
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.Record(c.rootCtx, o); err != nil {
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "history.record_failed").
			Str(xglog.FieldTaskID, o.TaskID).
			Msg("failed to record conversion outcome")
	}
}

// LivePollTasks returns the number of poll tasks the controller owns (0 or 1).
func (c *Controller) LivePollTasks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poll != nil {
		return 1
	}
	return 0
}

// Assets exposes the preview store holding the current page handles.
func (c *Controller) Assets() *preview.Store { return c.assets }

// Close stops polling, waits for every controller goroutine and releases
// all preview handles. The controller is unusable afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopPollLocked()
	c.rootCancel()
	c.mu.Unlock()

	c.wg.Wait()
	if c.ownsAssets {
		return c.assets.Close()
	}
	c.assets.ReleaseAll()
	return nil
}
