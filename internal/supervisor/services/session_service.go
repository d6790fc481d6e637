// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/session"
)

// SessionRunner matches session.Manager.Run.
type SessionRunner interface {
	Run(ctx context.Context, sessionID string, capture config.CaptureConfig, ssh config.SSHConfig) error
}

// SessionService runs one capture session under supervision.
type SessionService struct {
	runner  SessionRunner
	id      string
	capture config.CaptureConfig
	ssh     config.SSHConfig
}

// NewSessionService creates the wrapper for session id.
func NewSessionService(runner SessionRunner, id string, capture config.CaptureConfig, ssh config.SSHConfig) *SessionService {
	return &SessionService{runner: runner, id: id, capture: capture, ssh: ssh}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx, s.id, s.capture, s.ssh)
	switch {
	case err == nil, ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, session.ErrStreamTerminated):
		logging.Error().Err(err).
			Str("session", s.id).
			Msg("Capture stream ended, session will not be restarted")
		return suture.ErrDoNotRestart
	default:
		return err
	}
}

// String implements fmt.Stringer.
func (s *SessionService) String() string {
	return "session-" + s.id
}
