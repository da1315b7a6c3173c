// Package metrics provides Prometheus metrics for kitsupub.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task-tree synchronization
	syncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitsupub_sync_passes_total",
			Help: "Total task-tree passes by outcome",
		},
		[]string{"outcome"},
	)

	syncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kitsupub_sync_pass_duration_seconds",
			Help:    "Task-tree pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	syncTasksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitsupub_sync_tasks_skipped_total",
			Help: "Tasks left out of a tree because their detail could not be fetched",
		},
	)

	syncThumbnailFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitsupub_sync_thumbnail_failures_total",
			Help: "Element thumbnails that could not be downloaded or decoded",
		},
	)

	treeTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitsupub_tree_tasks",
			Help: "Number of task leaves in the last completed tree",
		},
	)

	// Publishing
	publishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitsupub_publishes_total",
			Help: "Total publish attempts by outcome",
		},
		[]string{"outcome"},
	)

	publishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kitsupub_publish_duration_seconds",
			Help:    "Publish duration in seconds, transcode included",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	transcodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kitsupub_transcode_duration_seconds",
			Help:    "ffmpeg preview transcode duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"mode", "status"},
	)

	// Sidecar API
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitsupub_http_requests_total",
			Help: "Total number of sidecar HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitsupub_ws_connections_active",
			Help: "Number of connected event stream clients",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSyncPass records a finished task-tree pass. tasks is only applied to
// the tree gauge for completed passes.
func RecordSyncPass(outcome string, duration time.Duration, tasks, skipped, thumbnailFailures int) {
	syncPassesTotal.WithLabelValues(outcome).Inc()
	syncPassDuration.Observe(duration.Seconds())
	syncTasksSkipped.Add(float64(skipped))
	syncThumbnailFailures.Add(float64(thumbnailFailures))
	if outcome == "completed" {
		treeTasks.Set(float64(tasks))
	}
}

// RecordPublish records a publish attempt.
func RecordPublish(outcome string, duration time.Duration) {
	publishesTotal.WithLabelValues(outcome).Inc()
	publishDuration.Observe(duration.Seconds())
}

// RecordTranscode records an ffmpeg run. mode is "single" or "sequence".
func RecordTranscode(mode string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	transcodeDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// RecordHTTPRequest records a sidecar HTTP request.
func RecordHTTPRequest(method, path string, status int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// WSConnected increments the active event stream gauge.
func WSConnected() {
	wsConnectionsActive.Inc()
}

// WSDisconnected decrements the active event stream gauge.
func WSDisconnected() {
	wsConnectionsActive.Dec()
}
