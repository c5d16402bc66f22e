// SPDX-License-Identifier: MIT
package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StatusStep is one scripted answer of the status endpoint.
type StatusStep struct {
	Status    TaskStatus
	Progress  int
	PageCount int
	Error     string
}

// RecordedUpload describes a conversion request received by the mock.
type RecordedUpload struct {
	TaskID      string
	FileName    string
	ContentType string
	Size        int
	GrayLevels  int
	Header      http.Header
}

type mockTask struct {
	id         string
	steps      []StatusStep
	idx        int
	pageCount  int
	grayLevels int
	completed  bool // a completed step has been served
}

func (t *mockTask) current() StatusStep {
	return t.steps[t.idx]
}

// MockServer is a scriptable in-process conversion backend for tests.
// Each new task walks the status script one step per status request and
// then sticks to the last step.
type MockServer struct {
	*httptest.Server
	mu        sync.Mutex
	tasks     map[string]*mockTask
	taskIDs   []string
	script    []StatusStep
	pageCount int
	reject    *rejection
	delay     map[string]time.Duration // per route template
	failures  map[string]int           // 503 responses before success, per route template
	calls     map[string]int
	uploads   []RecordedUpload
	previews  map[string]int // status override per "type/page"
	download  []byte
}

type rejection struct {
	status int
	detail string
}

// DefaultScript is processing -> converting 10% -> completed with 3 pages.
func DefaultScript(pages int) []StatusStep {
	return []StatusStep{
		{Status: TaskProcessing, Progress: 0, PageCount: pages},
		{Status: TaskConverting, Progress: 10, PageCount: pages},
		{Status: TaskCompleted, Progress: 100, PageCount: pages},
	}
}

// NewMockServer starts a mock backend.
func NewMockServer() *MockServer {
	m := &MockServer{}
	m.resetNoLock()

	r := chi.NewRouter()
	r.Post(routeConvert, m.wrap(routeConvert, m.handleConvert))
	r.Get(routeStatus, m.wrap(routeStatus, m.handleStatus))
	r.Get(routePreview, m.wrap(routePreview, m.handlePreview))
	r.Get(routeDownload, m.wrap(routeDownload, m.handleDownload))
	r.Delete(routeTask, m.wrap(routeTask, m.handleDelete))
	r.Get(routeHealth, m.wrap(routeHealth, m.handleHealth))

	m.Server = httptest.NewServer(r)
	return m
}

// Reset restores the default script and clears recorded state.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetNoLock()
}

func (m *MockServer) resetNoLock() {
	m.tasks = make(map[string]*mockTask)
	m.taskIDs = nil
	m.pageCount = 3
	m.script = DefaultScript(3)
	m.reject = nil
	m.delay = make(map[string]time.Duration)
	m.failures = make(map[string]int)
	m.calls = make(map[string]int)
	m.uploads = nil
	m.previews = make(map[string]int)
	m.download = nil
}

// QueueTaskIDs fixes the ids handed out to the next conversions.
func (m *MockServer) QueueTaskIDs(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskIDs = append(m.taskIDs, ids...)
}

// SetScript sets the status script for tasks created afterwards.
func (m *MockServer) SetScript(steps ...StatusStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append([]StatusStep(nil), steps...)
	for _, s := range steps {
		if s.PageCount > 0 {
			m.pageCount = s.PageCount
		}
	}
}

// RejectConversions makes POST /api/convert answer status with {detail}.
// An empty detail sends a body without a detail field.
func (m *MockServer) RejectConversions(status int, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = &rejection{status: status, detail: detail}
}

// SetDelay delays every response of a route template, e.g. "/api/status/{task_id}".
func (m *MockServer) SetDelay(route string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[route] = d
}

// SetFailures answers the next count requests of a route with 503.
func (m *MockServer) SetFailures(route string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[route] = count
}

// FailPreview answers previews of one page and type with status.
func (m *MockServer) FailPreview(kind PreviewType, page, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews[previewKey(kind, page)] = status
}

// SetDownload overrides the downloaded document body.
func (m *MockServer) SetDownload(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.download = append([]byte(nil), body...)
}

// Calls returns the number of requests received for a route template.
func (m *MockServer) Calls(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[route]
}

// Uploads returns the conversion requests received so far.
func (m *MockServer) Uploads() []RecordedUpload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedUpload(nil), m.uploads...)
}

// HasTask reports whether a task exists (and was not deleted).
func (m *MockServer) HasTask(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

func previewKey(kind PreviewType, page int) string {
	return string(kind) + "/" + strconv.Itoa(page)
}

func (m *MockServer) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls[route]++
		delay := m.delay[route]
		fail := m.failures[route] > 0
		if fail {
			m.failures[route]--
		}
		m.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			writeDetail(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (m *MockServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed form: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file")
		return
	}
	defer func() { _ = file.Close() }()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		writeDetail(w, http.StatusBadRequest, "unreadable file")
		return
	}

	contentType := hdr.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err != nil || mt != "application/pdf" {
		writeDetail(w, http.StatusBadRequest, "only PDF files are accepted")
		return
	}
	levels := 2
	if raw := r.FormValue("gray_levels"); raw != "" {
		levels, err = strconv.Atoi(raw)
		if err != nil || levels < 1 || levels > 4 {
			writeDetail(w, http.StatusBadRequest, "gray_levels must be 1-4")
			return
		}
	}

	m.mu.Lock()
	if rej := m.reject; rej != nil {
		m.mu.Unlock()
		if rej.detail == "" {
			writeJSON(w, rej.status, map[string]string{})
			return
		}
		writeDetail(w, rej.status, rej.detail)
		return
	}
	id := uuid.NewString()
	if len(m.taskIDs) > 0 {
		id, m.taskIDs = m.taskIDs[0], m.taskIDs[1:]
	}
	m.tasks[id] = &mockTask{
		id:         id,
		steps:      append([]StatusStep(nil), m.script...),
		pageCount:  m.pageCount,
		grayLevels: levels,
	}
	m.uploads = append(m.uploads, RecordedUpload{
		TaskID:      id,
		FileName:    hdr.Filename,
		ContentType: contentType,
		Size:        buf.Len(),
		GrayLevels:  levels,
		Header:      r.Header.Clone(),
	})
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, ConvertResponse{TaskID: id, Status: TaskProcessing, Message: "conversion started"})
}

func (m *MockServer) lookup(w http.ResponseWriter, r *http.Request) (*mockTask, bool) {
	t, ok := m.tasks[chi.URLParam(r, "task_id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "task not found")
	}
	return t, ok
}

func (m *MockServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	t, ok := m.lookup(w, r)
	if !ok {
		m.mu.Unlock()
		return
	}
	step := t.current()
	if step.Status == TaskCompleted {
		t.completed = true
	}
	if t.idx < len(t.steps)-1 {
		t.idx++
	}
	m.mu.Unlock()

	var errField *string
	if step.Error != "" {
		errField = &step.Error
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":    t.id,
		"status":     step.Status,
		"progress":   step.Progress,
		"page_count": step.PageCount,
		"error":      errField,
	})
}

func (m *MockServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	t, ok := m.lookup(w, r)
	if !ok {
		m.mu.Unlock()
		return
	}
	pageCount := t.pageCount
	completed := t.completed
	m.mu.Unlock()

	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 || page > pageCount {
		writeDetail(w, http.StatusBadRequest, "invalid page number")
		return
	}
	kind := PreviewOriginal
	if raw := r.URL.Query().Get("preview_type"); raw != "" {
		kind, err = ParsePreviewType(raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if kind == PreviewConverted && !completed {
		writeDetail(w, http.StatusBadRequest, "conversion not finished")
		return
	}

	m.mu.Lock()
	override := m.previews[previewKey(kind, page)]
	m.mu.Unlock()
	if override != 0 {
		writeDetail(w, override, fmt.Sprintf("preview generation failed for page %d", page))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(RenderPage(page, kind))
}

func (m *MockServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	t, ok := m.lookup(w, r)
	if !ok {
		m.mu.Unlock()
		return
	}
	completed := t.completed
	pages := t.pageCount
	body := m.download
	m.mu.Unlock()

	if !completed {
		writeDetail(w, http.StatusBadRequest, "conversion not finished")
		return
	}
	if body == nil {
		body = MinimalPDF(pages)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="converted_%s.pdf"`, t.id))
	_, _ = w.Write(body)
}

func (m *MockServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	t, ok := m.lookup(w, r)
	if ok {
		delete(m.tasks, t.id)
	}
	m.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
	}
}

func (m *MockServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// RenderPage draws a small deterministic PNG for a page. Originals are
// tinted, conversions are gray; the width encodes the page number.
func RenderPage(page int, kind PreviewType) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40+page, 56))
	fill := color.RGBA{R: 200, G: 120, B: 40, A: 255}
	if kind == PreviewConverted {
		fill = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	}
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// MinimalPDF builds a structurally valid PDF with the given number of blank pages.
func MinimalPDF(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]byte, 0, pages*8)
	for i := 0; i < pages; i++ {
		kids = fmt.Appendf(kids, "%d 0 R ", i+3)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [ %s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj(i+3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	size := pages + 3
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}
