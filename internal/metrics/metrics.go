// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture Metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetlens_sessions_active",
			Help: "Number of running capture sessions",
		},
	)

	SessionStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_session_starts_total",
			Help: "Total number of capture sessions started",
		},
		[]string{"mode"},
	)

	SessionTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_session_terminations_total",
			Help: "Total number of capture sessions that ended",
		},
		[]string{"reason"},
	)

	// Ingestion Metrics
	LinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_lines_read_total",
			Help: "Total number of raw lines read from capture tools",
		},
		[]string{"mode"},
	)

	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_decode_errors_total",
			Help: "Total number of capture lines that failed to decode",
		},
		[]string{"mode"},
	)

	FlowFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packetlens_flow_flushes_total",
			Help: "Total number of flow window flushes",
		},
	)

	FlowRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packetlens_flow_records_total",
			Help: "Total number of aggregated flow records produced",
		},
	)

	// Scoring Metrics
	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_pipeline_errors_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"pipeline", "stage"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packetlens_batch_duration_seconds",
			Help:    "Duration of one pipeline evaluation over a batch",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"pipeline"},
	)

	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_anomalies_total",
			Help: "Total number of anomalous rows detected",
		},
		[]string{"pipeline"},
	)

	// Explainability and Alerting Metrics
	ExplainErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_explain_errors_total",
			Help: "Total number of explanation failures",
		},
		[]string{"kind"},
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_alerts_fired_total",
			Help: "Total number of alert policy notifications triggered",
		},
		[]string{"key_type"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_notification_failures_total",
			Help: "Total number of alert notifications that failed to send",
		},
		[]string{"notifier"},
	)

	// Publish WAL Metrics
	WALOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_wal_operations_total",
			Help: "Total WAL operations by kind (write, confirm, retry, dropped_*)",
		},
		[]string{"op"},
	)

	WALPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetlens_wal_pending_entries",
			Help: "Pending WAL entries seen by the last scan",
		},
	)

	// Operational HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetlens_http_requests_total",
			Help: "Total number of operational HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packetlens_http_request_duration_seconds",
			Help:    "Operational HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetlens_http_active_requests",
			Help: "Number of operational HTTP requests in flight",
		},
	)
)

// RecordBatch records one pipeline evaluation and the anomalies it found.
func RecordBatch(pipeline string, duration time.Duration, anomalies int) {
	BatchDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	if anomalies > 0 {
		Anomalies.WithLabelValues(pipeline).Add(float64(anomalies))
	}
}

// RecordPipelineError records a failed pipeline stage.
func RecordPipelineError(pipeline, stage string) {
	PipelineErrors.WithLabelValues(pipeline, stage).Inc()
}

// RecordSessionStart records a started session of the given capture mode.
func RecordSessionStart(mode string) {
	SessionStarts.WithLabelValues(mode).Inc()
	SessionsActive.Inc()
}

// RecordSessionEnd records a session termination with its reason.
func RecordSessionEnd(reason string) {
	SessionTerminations.WithLabelValues(reason).Inc()
	SessionsActive.Dec()
}

// RecordHTTPRequest records one served operational request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		HTTPActiveRequests.Inc()
		return
	}
	HTTPActiveRequests.Dec()
}
