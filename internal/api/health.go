// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/session"
)

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status         string           `json:"status"`
	Version        string           `json:"version"`
	Uptime         float64          `json:"uptime_seconds"`
	ActiveSessions int              `json:"active_sessions"`
	Sessions       []session.Status `json:"sessions"`
}

// APIResponse is the response envelope.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health reports process uptime and the capture sessions. The status is
// degraded while a tracked session is no longer running, which happens
// when its capture tool exited on its own.
func (router *Router) Health(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:   "healthy",
		Version:  router.version,
		Uptime:   time.Since(router.startTime).Seconds(),
		Sessions: []session.Status{},
	}
	if router.sessions != nil {
		health.Sessions = router.sessions.Sessions()
	}
	for _, s := range health.Sessions {
		if s.Running {
			health.ActiveSessions++
		} else {
			health.Status = "degraded"
		}
	}

	if health.Status != "healthy" {
		logging.Ctx(r.Context()).Debug().
			Int("sessions", len(health.Sessions)).
			Int("active", health.ActiveSessions).
			Msg("Health check degraded")
	}

	respondJSON(w, r, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   health,
		Metadata: Metadata{
			Timestamp:     time.Now(),
			CorrelationID: logging.CorrelationIDFromContext(r.Context()),
		},
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // HTTP response write errors are not recoverable
	w.Write(data)
}
