// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

var (
	errExitTimeout = errors.New("capture process did not exit in time")
	errJoinTimeout = errors.New("session tasks did not finish in time")
)

// killGrace bounds the wait for exit after a kill.
const killGrace = time.Second

// Stop shuts the session down. It is idempotent: later calls return the
// result of the first. The returned error is a *ShutdownError describing
// failed steps; the session is stopped either way.
func (m *Manager) Stop(s *Session) error {
	s.stopOnce.Do(func() {
		s.stopErr = m.stop(s)
	})
	return s.stopErr
}

func (m *Manager) stop(s *Session) error {
	start := time.Now()
	shutdown := &ShutdownError{SessionID: s.ID}
	exited := false

	step := func(name string, fn func() error) {
		defer func() {
			if rec := recover(); rec != nil {
				shutdown.Steps = append(shutdown.Steps, StepError{Step: name, Err: fmt.Errorf("panic: %v", rec)})
			}
		}()
		if err := fn(); err != nil {
			shutdown.Steps = append(shutdown.Steps, StepError{Step: name, Err: err})
		}
	}

	step("status", func() error {
		s.status(fmt.Sprintf("session %s stopping", s.ID))
		return nil
	})
	step("deregister", func() error {
		s.gate.Close()
		m.opts.Registry.Stop(s.ID, s.gen)
		s.cancel()
		return nil
	})
	step("terminate", func() error {
		select {
		case <-s.process.Done():
			return nil
		default:
		}
		return s.process.Terminate()
	})
	step("close pipes", func() error {
		return s.process.ClosePipes()
	})
	step("wait exit", func() error {
		exited = waitFor(s.process.Done(), m.opts.Session.ExitTimeout)
		if !exited {
			return errExitTimeout
		}
		return nil
	})
	step("kill", func() error {
		if exited {
			return nil
		}
		if err := s.process.Kill(); err != nil {
			return err
		}
		if !waitFor(s.process.Done(), killGrace) {
			return fmt.Errorf("process %d survived kill", s.process.Pid())
		}
		return nil
	})
	step("join", func() error {
		deadline := time.Now().Add(m.opts.Session.JoinTimeout)
		if !waitFor(s.readerDone, time.Until(deadline)) || !waitFor(s.scorerDone, time.Until(deadline)) {
			return errJoinTimeout
		}
		return nil
	})

	m.opts.Registry.Remove(s.ID, s.gen)
	m.mu.Lock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	reason := "stopped"
	if s.Err() != nil {
		reason = "terminated"
	}
	metrics.RecordSessionEnd(reason)

	event := logging.Ctx(s.ctx).Info()
	if len(shutdown.Steps) > 0 {
		event = logging.Ctx(s.ctx).Warn().Err(shutdown)
	}
	event.
		Dur("duration", time.Since(start)).
		Int("exit_code", s.process.ExitCode()).
		Int("anomalies", s.Anomalies()).
		Msg("Capture session stopped")

	if len(shutdown.Steps) > 0 {
		return shutdown
	}
	return nil
}
