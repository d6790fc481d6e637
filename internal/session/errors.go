// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStreamTerminated is reported when the capture process exits
	// while the session is still meant to be running.
	ErrStreamTerminated = errors.New("capture stream terminated")

	// ErrUnknownSession is returned for ids the manager does not track.
	ErrUnknownSession = errors.New("unknown session")
)

// TerminationError describes an unexpected capture process exit.
type TerminationError struct {
	SessionID  string
	ExitCode   int
	StderrTail string
}

func (e *TerminationError) Error() string {
	msg := fmt.Sprintf("session %s: capture exited with code %d", e.SessionID, e.ExitCode)
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		msg += ": " + lastLine(tail)
	}
	return msg
}

func (e *TerminationError) Unwrap() error { return ErrStreamTerminated }

// StepError is one failed shutdown step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

// ShutdownError aggregates the failed steps of one Stop.
type ShutdownError struct {
	SessionID string
	Steps     []StepError
}

func (e *ShutdownError) Error() string {
	parts := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		parts[i] = s.Error()
	}
	return fmt.Sprintf("stop session %s: %s", e.SessionID, strings.Join(parts, "; "))
}

// Unwrap exposes the step errors to errors.Is and errors.As.
func (e *ShutdownError) Unwrap() []error {
	errs := make([]error, len(e.Steps))
	for i, s := range e.Steps {
		errs[i] = s.Err
	}
	return errs
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
