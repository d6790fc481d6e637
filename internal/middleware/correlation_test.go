// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/packetlens/internal/logging"
)

func TestCorrelationID(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
	}{
		{name: "generates id", upstream: ""},
		{name: "preserves upstream id", upstream: "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inContext string
			handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inContext = logging.CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.upstream != "" {
				req.Header.Set(CorrelationIDHeader, tt.upstream)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(CorrelationIDHeader)
			if got == "" {
				t.Fatal("missing correlation header")
			}
			if tt.upstream != "" && got != tt.upstream {
				t.Errorf("header = %q, want %q", got, tt.upstream)
			}
			if inContext != got {
				t.Errorf("context id = %q, header id = %q", inContext, got)
			}
		})
	}
}

func TestCorrelationID_UniquePerRequest(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(CorrelationIDHeader)
		if seen[id] {
			t.Fatalf("duplicate correlation id %q", id)
		}
		seen[id] = true
	}
}
