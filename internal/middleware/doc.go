// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package middleware provides HTTP middleware for the operational endpoints.

Components:

  - CorrelationID: tags each request with a correlation id for log tracing
  - PrometheusMetrics: request count, latency and in-flight instrumentation

Both are chi-compatible (func(http.Handler) http.Handler):

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.PrometheusMetrics)

PrometheusMetrics labels requests with the matched chi route pattern rather
than the raw path, so unmatched paths collapse into a single "unmatched"
series.
*/
package middleware
