// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

// Package api serves the operational HTTP endpoints using the Chi router:
// Prometheus metrics at /metrics and a health report at /healthz listing
// the capture sessions.
package api
