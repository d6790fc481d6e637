// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/packetlens/internal/middleware"
	"github.com/tomtom215/packetlens/internal/session"
)

// SessionLister reports the tracked capture sessions.
type SessionLister interface {
	Sessions() []session.Status
}

// Router holds the dependencies of the operational endpoints.
type Router struct {
	sessions  SessionLister
	startTime time.Time
	version   string

	rateRequests int
	rateWindow   time.Duration
}

// NewRouter returns a router. sessions may be nil before a manager exists.
func NewRouter(sessions SessionLister, version string) *Router {
	return &Router{sessions: sessions, startTime: time.Now(), version: version}
}

// WithRateLimit limits each client IP to requests per window.
func (router *Router) WithRateLimit(requests int, window time.Duration) *Router {
	router.rateRequests = requests
	router.rateWindow = window
	return router
}

// Handler builds the Chi handler.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.RateLimitByIP(router.rateRequests, router.rateWindow))

	r.Get("/healthz", router.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
