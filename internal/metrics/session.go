// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus instruments of the conversion session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_session_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_sessions_finished_total",
		Help: "Sessions that reached a terminal state",
	}, []string{"outcome"}) // outcome=completed|failed|reset

	intakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_intake_rejections_total",
		Help: "Files rejected before submission",
	}, []string{"reason"}) // reason=wrong_type|too_large

	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pdfgray_submission_duration_seconds",
		Help:    "Upload round trip duration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"outcome"})

	pollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_poll_ticks_total",
		Help: "Status poll responses by result",
	}, []string{"result"}) // result=ok|transport_error|stale

	pollTasksLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdfgray_poll_tasks_live",
		Help: "Poll tasks currently owned by a controller",
	})

	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfgray_conversion_duration_seconds",
		Help:    "Time from submission to a terminal status",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	previewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_preview_fetch_total",
		Help: "Preview fetches by preview type and outcome",
	}, []string{"preview_type", "outcome"}) // outcome=ok|error|stale

	previewAssetsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdfgray_preview_assets_live",
		Help: "Preview asset handles currently held",
	})

	downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfgray_downloads_total",
		Help: "Converted document downloads by outcome",
	}, []string{"outcome"})
)

// RecordTransition counts a session state change.
func RecordTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordSessionFinished counts a terminal session outcome.
func RecordSessionFinished(outcome string) {
	sessionsFinished.WithLabelValues(outcome).Inc()
}

// RecordIntakeRejection counts a locally rejected file.
func RecordIntakeRejection(reason string) {
	intakeRejections.WithLabelValues(reason).Inc()
}

// ObserveSubmission records an upload round trip.
func ObserveSubmission(d time.Duration, ok bool) {
	submissionDuration.WithLabelValues(outcome(ok)).Observe(d.Seconds())
}

// RecordPollTick counts one status response.
func RecordPollTick(result string) {
	pollTicks.WithLabelValues(result).Inc()
}

func IncPollTasks() { pollTasksLive.Inc() }
func DecPollTasks() { pollTasksLive.Dec() }

// ObserveConversion records submission-to-terminal latency.
func ObserveConversion(d time.Duration) {
	conversionDuration.Observe(d.Seconds())
}

// RecordPreviewFetch counts a preview fetch.
func RecordPreviewFetch(previewType, result string) {
	previewFetches.WithLabelValues(previewType, result).Inc()
}

// SetPreviewAssets sets the number of live preview handles.
func SetPreviewAssets(n int) {
	previewAssetsLive.Set(float64(n))
}

// RecordDownload counts a download attempt.
func RecordDownload(ok bool) {
	downloads.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
