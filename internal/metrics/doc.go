// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package metrics provides Prometheus instrumentation for the capture,
ingestion, scoring and alerting stages.

Metrics are exposed at /metrics by the operational HTTP service:

	curl http://localhost:9477/metrics

# Available Metrics

Capture:
  - packetlens_sessions_active: running capture sessions (gauge)
  - packetlens_session_starts_total: sessions started (counter)
    Labels: mode
  - packetlens_session_terminations_total: sessions ended (counter)
    Labels: reason (stopped, stream_ended, start_failed)

Ingestion:
  - packetlens_lines_read_total: raw lines read from capture tools (counter)
    Labels: mode
  - packetlens_decode_errors_total: lines that failed to decode (counter)
    Labels: mode
  - packetlens_flow_flushes_total: flow window flushes (counter)
  - packetlens_flow_records_total: aggregated flow records produced (counter)

Scoring:
  - packetlens_pipeline_errors_total: per-stage pipeline failures (counter)
    Labels: pipeline, stage (transform, predict)
  - packetlens_batch_duration_seconds: pipeline evaluation latency (histogram)
    Labels: pipeline
  - packetlens_anomalies_total: anomalous rows detected (counter)
    Labels: pipeline

Explainability and alerting:
  - packetlens_explain_errors_total: explanation failures (counter)
    Labels: kind
  - packetlens_alerts_fired_total: alert policy notifications (counter)
    Labels: key_type (ip, port)
  - packetlens_notification_failures_total: failed notifications (counter)
    Labels: notifier
*/
package metrics
