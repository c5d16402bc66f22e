// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend is the HTTP client for the conversion service: upload,
// status polling, page previews, download and task deletion.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/pdfgray/internal/log"
	"github.com/ManuGH/pdfgray/internal/platform/httpx"
	"github.com/ManuGH/pdfgray/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultRetries    = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
	defaultUserAgent  = "pdfgray"

	// maxErrorBody bounds how much of a failure body is read for the detail message.
	maxErrorBody = 64 << 10
	// maxPreviewBytes bounds a single rendered page.
	maxPreviewBytes = 32 << 20

	requestIDHeader = "X-Request-ID"
)

// Route templates, used as low-cardinality metric and span labels.
const (
	routeConvert  = "/api/convert"
	routeStatus   = "/api/status/{task_id}"
	routePreview  = "/api/preview/{task_id}/{page}"
	routeDownload = "/api/download/{task_id}"
	routeTask     = "/api/task/{task_id}"
	routeHealth   = "/health"
)

// Client talks to the conversion backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	rnd        *rand.Rand
	mu         sync.Mutex
}

// Options configures the client behavior.
type Options struct {
	Timeout time.Duration
	// MaxRetries applies to idempotent requests only; the upload is never retried.
	// Negative disables retries, zero selects the default.
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
	RateLimit      rate.Limit // <= 0 disables client-side limiting
	RateLimitBurst int
	Traced         bool
	// HTTPClient overrides the hardened default client (tests).
	HTTPClient *http.Client
}

// NewClient creates a client with default options.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithOptions(baseURL, Options{Timeout: timeout})
}

// NewClientWithOptions creates a client with explicit options.
func NewClientWithOptions(baseURL string, opts Options) *Client {
	nopts := normalizeOptions(opts)

	httpClient := nopts.HTTPClient
	if httpClient == nil {
		httpClient = httpx.New(httpx.Options{Timeout: nopts.Timeout, Traced: nopts.Traced})
	}

	var limiter *rate.Limiter
	if nopts.RateLimit > 0 {
		limiter = rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst)
	}

	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: httpClient,
		limiter:    limiter,
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		userAgent:  nopts.UserAgent,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit > 0 && opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 1
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return opts
}

// Convert uploads a document and returns the task id assigned by the backend.
func (c *Client) Convert(ctx context.Context, up Upload, grayLevels int) (string, error) {
	const op = "convert"
	if up.Body == nil {
		return "", &APIError{Sentinel: ErrRejected, Operation: op, Err: errors.New("empty upload")}
	}

	resp, err := c.do(ctx, call{
		op:     op,
		method: http.MethodPost,
		route:  routeConvert,
		path:   routeConvert,
		accept: "application/json",
		body: func() (io.ReadCloser, string) {
			return multipartBody(up, grayLevels)
		},
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out ConvertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	if strings.TrimSpace(out.TaskID) == "" {
		return "", &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: errors.New("missing task_id")}
	}
	return out.TaskID, nil
}

// multipartBody streams the form through a pipe so large documents are not buffered.
// The writer goroutine ends when the transport closes the read side.
func multipartBody(up Upload, grayLevels int) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, up, grayLevels))
	}()
	return pr, mw.FormDataContentType()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(mw *multipart.Writer, up Upload, grayLevels int) error {
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(up.Name)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.WriteField("gray_levels", strconv.Itoa(grayLevels)); err != nil {
		return err
	}
	return mw.Close()
}

// Status fetches the current status of a task.
func (c *Client) Status(ctx context.Context, taskID string) (StatusResponse, error) {
	const op = "status"
	resp, err := c.do(ctx, call{
		op:         op,
		method:     http.MethodGet,
		route:      routeStatus,
		path:       "/api/status/" + url.PathEscape(taskID),
		accept:     "application/json",
		idempotent: true,
	})
	if err != nil {
		return StatusResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StatusResponse{}, &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

// Preview fetches one rendered page. Pages are 1-based.
func (c *Client) Preview(ctx context.Context, taskID string, page int, kind PreviewType) (Image, error) {
	const op = "preview"
	q := url.Values{}
	q.Set("preview_type", string(kind))
	resp, err := c.do(ctx, call{
		op:         op,
		method:     http.MethodGet,
		route:      routePreview,
		path:       "/api/preview/" + url.PathEscape(taskID) + "/" + strconv.Itoa(page),
		query:      q,
		accept:     "image/*",
		idempotent: true,
	})
	if err != nil {
		return Image{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPreviewBytes+1))
	if err != nil {
		return Image{}, &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Status: resp.StatusCode, Err: err}
	}
	if len(data) > maxPreviewBytes {
		return Image{}, &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: errors.New("preview exceeds size limit")}
	}
	if len(data) == 0 {
		return Image{}, &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: errors.New("empty preview body")}
	}
	return Image{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Download opens the converted document. The caller must close the reader.
func (c *Client) Download(ctx context.Context, taskID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, call{
		op:         "download",
		method:     http.MethodGet,
		route:      routeDownload,
		path:       "/api/download/" + url.PathEscape(taskID),
		accept:     "application/pdf",
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DeleteTask removes the task and its files on the backend.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	resp, err := c.do(ctx, call{
		op:         "delete",
		method:     http.MethodDelete,
		route:      routeTask,
		path:       "/api/task/" + url.PathEscape(taskID),
		accept:     "application/json",
		idempotent: true,
	})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	const op = "health"
	resp, err := c.do(ctx, call{
		op:     op,
		method: http.MethodGet,
		route:  routeHealth,
		path:   routeHealth,
		accept: "application/json",
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	if out.Status != "healthy" {
		return &APIError{Sentinel: ErrUnhealthy, Operation: op, Status: resp.StatusCode, Detail: out.Status}
	}
	return nil
}

type call struct {
	op         string
	method     string
	route      string
	path       string
	query      url.Values
	accept     string
	idempotent bool
	// body builds a fresh request body per attempt.
	body func() (io.ReadCloser, string)
}

// do executes a call with rate limiting, tracing, metrics and, for
// idempotent calls, retries on transport errors and 5xx responses.
// It returns the response only for 2xx statuses; everything else is an *APIError.
func (c *Client) do(ctx context.Context, cl call) (*http.Response, error) {
	rawURL := c.BaseURL + cl.path
	if len(cl.query) > 0 {
		rawURL += "?" + cl.query.Encode()
	}

	requestID := log.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := log.WithContext(ctx, log.WithComponent("backend"))

	tracer := telemetry.Tracer("pdfgray.backend")
	ctx, span := tracer.Start(ctx, "backend."+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.route", cl.route),
		attribute.String("request.id", requestID),
	)
	defer span.End()

	maxAttempts := 1
	if cl.idempotent {
		maxAttempts = c.maxRetries + 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "backend."+cl.op+".attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(
			attribute.Int(telemetry.AttemptKey, attempt),
			attribute.Bool("retry", attempt > 1),
		)

		if c.limiter != nil {
			if err := c.limiter.Wait(attemptCtx); err != nil {
				markError(attemptSpan, err)
				attemptSpan.End()
				markError(span, err)
				return nil, c.transportError(cl.op, err)
			}
		}

		var body io.ReadCloser
		var contentType string
		if cl.body != nil {
			body, contentType = cl.body()
		}
		req, err := http.NewRequestWithContext(attemptCtx, cl.method, rawURL, body)
		if err != nil {
			if body != nil {
				_ = body.Close()
			}
			markError(attemptSpan, err)
			attemptSpan.End()
			markError(span, err)
			return nil, &APIError{Sentinel: ErrUpstreamUnavailable, Operation: cl.op, Err: err}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		c.applyHeaders(req, cl.accept, requestID)
		otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		retry := attempt < maxAttempts && shouldRetry(resp, err) && ctx.Err() == nil
		recordAttemptMetrics(cl.method, cl.route, status, duration, err, retry)
		attemptSpan.SetAttributes(telemetry.HTTPAttributes(cl.method, cl.route, cl.route, status)...)

		if err == nil && status >= 200 && status < 300 {
			attemptSpan.SetStatus(codes.Ok, "")
			attemptSpan.End()
			span.SetAttributes(attribute.Int("http.status_code", status))
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if err != nil {
			lastErr = c.transportError(cl.op, err)
		} else {
			lastErr = c.statusError(cl.op, resp)
		}
		markError(attemptSpan, lastErr)
		attemptSpan.End()

		logger.Debug().
			Str(log.FieldEvent, "backend.attempt_failed").
			Str(log.FieldOperation, cl.op).
			Int(log.FieldAttempt, attempt).
			Int(log.FieldStatus, status).
			Bool("retry", retry).
			Err(lastErr).
			Msg("backend request attempt failed")

		if !retry {
			break
		}
		if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
			lastErr = c.transportError(cl.op, err)
			break
		}
	}

	markError(span, lastErr)
	return nil, lastErr
}

func (c *Client) applyHeaders(req *http.Request, accept, requestID string) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set(requestIDHeader, requestID)
}

func (c *Client) transportError(op string, err error) *APIError {
	sentinel := ErrUpstreamUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		sentinel = ErrTimeout
	} else {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			sentinel = ErrTimeout
		}
	}
	return &APIError{Sentinel: sentinel, Operation: op, Err: err}
}

// statusError drains and closes resp.
func (c *Client) statusError(op string, resp *http.Response) *APIError {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Sentinel:  sentinelForStatus(resp.StatusCode),
		Operation: op,
		Status:    resp.StatusCode,
		Detail:    parseDetail(body),
	}
}

func markError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
