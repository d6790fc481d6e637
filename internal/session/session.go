// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/capture"
	"github.com/tomtom215/packetlens/internal/explain"
	"github.com/tomtom215/packetlens/internal/graph"
	"github.com/tomtom215/packetlens/internal/inference"
	"github.com/tomtom215/packetlens/internal/ingest"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// idlePause is the reader's wait after an empty read from a live process.
const idlePause = 50 * time.Millisecond

// Session is one running capture.
type Session struct {
	ID        string
	Mode      string
	StartedAt time.Time

	gen        uint64
	argv       []string
	process    capture.Process
	processor  ingest.Processor
	pipelines  []*graph.PipelineDef
	dispatcher *explain.Dispatcher
	gate       *gatedStore

	backgrounds map[string]*explain.Background

	lines      chan []byte
	readerDone chan struct{}
	scorerDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	decodeLog *rate.Limiter
	callbacks Callbacks

	mu        sync.Mutex
	err       error
	stopOnce  sync.Once
	stopErr   error
	anomalies int
}

// Argv returns the capture command line.
func (s *Session) Argv() []string { return append([]string(nil), s.argv...) }

// Done is closed when the reader has finished.
func (s *Session) Done() <-chan struct{} { return s.readerDone }

// Err returns the reason the stream ended on its own, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Anomalies returns the number of anomalies persisted by the session.
func (s *Session) Anomalies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anomalies
}

func (s *Session) status(msg string) {
	if s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(msg)
		return
	}
	logging.Ctx(s.ctx).Info().Msg(msg)
}

func (s *Session) onError(err error) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
		return
	}
	logging.Ctx(s.ctx).Error().Err(err).Msg("Session error")
}

func (s *Session) onAnomaly(ev *anomaly.Event) {
	s.mu.Lock()
	s.anomalies++
	s.mu.Unlock()

	if s.callbacks.OnAnomaly != nil {
		s.callbacks.OnAnomaly(ev)
		return
	}
	logging.Ctx(s.ctx).Info().
		Str("pipeline", ev.PipelineID).
		Int("index", ev.Index).
		Str("feature", ev.FeatureName).
		Str("description", ev.Description).
		Msg("Anomaly recorded")
}

// read is the reader goroutine. It is the only reader of the process's
// stdout and the only sender on s.lines.
func (m *Manager) read(s *Session) {
	defer close(s.readerDone)
	defer close(s.lines)

	reg := m.opts.Registry
	r := bufio.NewReaderSize(s.process.Stdout(), 64*1024)
	lines := metrics.LinesRead.WithLabelValues(s.Mode)

	for reg.RunningAs(s.ID, s.gen) {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			lines.Inc()
			select {
			case s.lines <- trimmed:
			case <-s.ctx.Done():
				return
			}
		}
		if err == nil {
			continue
		}
		if !reg.RunningAs(s.ID, s.gen) {
			return
		}
		if !errors.Is(err, io.EOF) {
			logging.Ctx(s.ctx).Warn().Err(err).Msg("Capture read failed")
		}

		select {
		case <-s.process.Done():
			m.terminated(s)
			return
		case <-s.ctx.Done():
			return
		case <-time.After(idlePause):
		}
	}
}

// terminated records an unexpected process exit.
func (m *Manager) terminated(s *Session) {
	if !m.opts.Registry.Stop(s.ID, s.gen) {
		return
	}
	err := &TerminationError{
		SessionID:  s.ID,
		ExitCode:   s.process.ExitCode(),
		StderrTail: s.process.StderrTail(),
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	logging.Ctx(s.ctx).Error().
		Int("exit_code", err.ExitCode).
		Str("stderr", err.StderrTail).
		Msg("Capture process exited")
	s.onError(err)
}

// score is the scoring goroutine. It owns the processor and the dispatcher.
func (m *Manager) score(s *Session) {
	defer close(s.scorerDone)

	var tick <-chan time.Time
	if _, ok := s.processor.(*ingest.FlowProcessor); ok {
		ticker := time.NewTicker(m.opts.Session.FlowInterval / 4)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				m.drain(s)
				return
			}
			records, err := s.processor.Feed(line, time.Now())
			if err != nil {
				m.decodeFailed(s, err)
			}
			if !m.scoreBatch(s, records) {
				return
			}
		case now := <-tick:
			if !m.scoreBatch(s, s.processor.Tick(now)) {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// drain flushes a partial flow window after the stream ended on its own.
func (m *Manager) drain(s *Session) {
	fp, ok := s.processor.(*ingest.FlowProcessor)
	if !ok || s.gate.isClosed() || fp.Window().Len() == 0 {
		return
	}
	m.scoreBatch(s, fp.Window().Flush(time.Now()))
}

func (m *Manager) decodeFailed(s *Session, err error) {
	metrics.DecodeErrors.WithLabelValues(s.Mode).Inc()
	if s.decodeLog.Allow() {
		logging.Ctx(s.ctx).Warn().Err(err).Msg("Skipping undecodable capture line")
	}
}

// scoreBatch runs every pipeline over the records and dispatches their
// anomalies. It returns false once persistence has stopped.
func (m *Manager) scoreBatch(s *Session, records []ingest.Record) bool {
	if len(records) == 0 {
		return true
	}
	if s.gate.isClosed() {
		return false
	}
	frame := inference.FrameFromMaps(ingest.Maps(records))

	pipelines := make([]*inference.Pipeline, len(s.pipelines))
	defs := make(map[*inference.Pipeline]*graph.PipelineDef, len(s.pipelines))
	for i, def := range s.pipelines {
		pipelines[i] = &def.Pipeline
		defs[&def.Pipeline] = def
	}

	results := m.opts.Runner.RunAll(s.ctx, pipelines, frame, s.onError)
	for _, res := range results {
		def := defs[res.Pipeline]
		events, err := s.dispatcher.Dispatch(s.ctx, explain.Input{
			Result:     res,
			Config:     def.Explain,
			Background: s.backgrounds[def.ID],
		})
		m.observe(s, events)
		if err != nil {
			if errors.Is(err, explain.ErrStopped) || s.ctx.Err() != nil {
				return false
			}
			s.onError(err)
		}
	}
	return true
}

func (m *Manager) observe(s *Session, events []*anomaly.Event) {
	if m.opts.Alerts == nil {
		return
	}
	for _, ev := range events {
		m.opts.Alerts.Observe(s.ctx, ev.SourceIP, ev.SourcePort)
	}
}
