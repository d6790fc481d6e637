// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/packetlens/internal/alerting"
	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/capture"
	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/explain"
	"github.com/tomtom215/packetlens/internal/graph"
	"github.com/tomtom215/packetlens/internal/inference"
	"github.com/tomtom215/packetlens/internal/ingest"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// Compiler produces the pipelines of a scenario.
type Compiler interface {
	Compile(ctx context.Context, scenarioID string) ([]*graph.PipelineDef, error)
}

// AlertObserver counts anomalies by source and fires alert policies.
type AlertObserver interface {
	Observe(ctx context.Context, ip string, port int) []alerting.Trigger
}

// Callbacks receive session progress. Nil callbacks fall back to logging.
type Callbacks struct {
	OnStatus  func(msg string)
	OnError   func(err error)
	OnAnomaly func(ev *anomaly.Event)
}

// Options configures a Manager.
type Options struct {
	Registry *capture.Registry
	Launcher capture.Launcher
	Compiler Compiler
	Store    anomaly.Store

	// Alerts is optional.
	Alerts AlertObserver

	// Runner defaults to a runner with the default normalizer.
	Runner   *inference.Runner
	Renderer explain.Renderer

	// OutputDir receives attribution charts.
	OutputDir string

	Session   config.SessionConfig
	Callbacks Callbacks
}

// Status is a snapshot of one tracked session.
type Status struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Pid       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	Pipelines []string  `json:"pipelines"`
}

// Manager starts and stops capture sessions.
type Manager struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager.
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = capture.NewRegistry()
	}
	if opts.Launcher == nil {
		opts.Launcher = capture.ExecLauncher{}
	}
	if opts.Runner == nil {
		opts.Runner = inference.NewRunner(nil)
	}
	if opts.Store == nil {
		opts.Store = anomaly.NewMemoryStore()
	}
	if opts.Session.QueueSize <= 0 {
		opts.Session.QueueSize = 1024
	}
	if opts.Session.FlowInterval <= 0 {
		opts.Session.FlowInterval = ingest.DefaultFlowInterval
	}
	if opts.Session.ExitTimeout <= 0 {
		opts.Session.ExitTimeout = 5 * time.Second
	}
	if opts.Session.JoinTimeout <= 0 {
		opts.Session.JoinTimeout = 5 * time.Second
	}
	if opts.Session.DecodeLogRate <= 0 {
		opts.Session.DecodeLogRate = 1
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}
}

// Registry returns the registry holding the running flags.
func (m *Manager) Registry() *capture.Registry { return m.opts.Registry }

// Start launches a capture session. It refuses an id that is already
// running with capture.ErrAlreadyRunning.
func (m *Manager) Start(ctx context.Context, sessionID string, capCfg config.CaptureConfig, sshCfg config.SSHConfig) (*Session, error) {
	if m.opts.Registry.Running(sessionID) {
		return nil, fmt.Errorf("start session %s: %w", sessionID, capture.ErrAlreadyRunning)
	}

	ctx = logging.ContextWithSessionID(ctx, sessionID)
	scenarioID := m.opts.Session.ScenarioID

	defs, err := m.opts.Compiler.Compile(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("compile scenario %s: %w", scenarioID, err)
	}

	argv, err := capture.BuildCommand(capCfg, sshCfg)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	proc, err := ingest.NewProcessor(capCfg.Mode, capCfg.OutputIsStructured, m.opts.Session.FlowInterval, now)
	if err != nil {
		return nil, err
	}

	gen, err := m.opts.Registry.Register(sessionID)
	if err != nil {
		return nil, fmt.Errorf("start session %s: %w", sessionID, err)
	}

	process, err := m.opts.Launcher.Launch(ctx, argv)
	if err != nil {
		m.opts.Registry.Remove(sessionID, gen)
		return nil, fmt.Errorf("launch capture for session %s: %w", sessionID, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	gate := newGatedStore(m.opts.Store)

	s := &Session{
		ID:         sessionID,
		Mode:       capCfg.Mode,
		gen:        gen,
		StartedAt:  now,
		argv:       argv,
		process:    process,
		processor:  proc,
		pipelines:  defs,
		gate:       gate,
		lines:      make(chan []byte, m.opts.Session.QueueSize),
		readerDone: make(chan struct{}),
		scorerDone: make(chan struct{}),
		ctx:        runCtx,
		cancel:     cancel,
		decodeLog:  rate.NewLimiter(rate.Limit(m.opts.Session.DecodeLogRate), 1),
		callbacks:  m.opts.Callbacks,
	}
	s.dispatcher = explain.NewDispatcher(explain.Options{
		Store:        gate,
		Renderer:     m.opts.Renderer,
		OutputDir:    m.opts.OutputDir,
		ScenarioID:   scenarioID,
		Execution:    m.opts.Session.Execution,
		IsProduction: m.opts.Session.IsProduction,
		OnAnomaly:    s.onAnomaly,
		OnError:      s.onError,
	})
	s.backgrounds = backgrounds(runCtx, m.opts.Runner, defs)

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()

	metrics.RecordSessionStart(capCfg.Mode)
	go m.read(s)
	go m.score(s)

	logging.Ctx(ctx).Info().
		Str("mode", capCfg.Mode).
		Str("environment", capCfg.RunEnvironment).
		Int("pipelines", len(defs)).
		Int("pid", process.Pid()).
		Msg("Capture session started")
	s.status(fmt.Sprintf("session %s started (%s capture, %d pipelines)", sessionID, capCfg.Mode, len(defs)))
	return s, nil
}

// backgrounds processes each pipeline's training reference into the
// feature space its model scores.
func backgrounds(ctx context.Context, runner *inference.Runner, defs []*graph.PipelineDef) map[string]*explain.Background {
	out := make(map[string]*explain.Background)
	for _, def := range defs {
		if def.TrainingReference == nil || !def.Explain.Enabled() {
			continue
		}
		cols, matrix, err := runner.Process(&def.Pipeline, def.TrainingReference)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("pipeline", def.ID).
				Msg("Training reference could not be processed, explanations need a background")
			continue
		}
		out[def.ID] = &explain.Background{Columns: cols, Matrix: matrix}
	}
	return out
}

// Get returns a tracked session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Sessions lists the tracked sessions sorted by id.
func (m *Manager) Sessions() []Status {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, s := range list {
		names := make([]string, len(s.pipelines))
		for i, def := range s.pipelines {
			names[i] = def.ID
		}
		out = append(out, Status{
			ID:        s.ID,
			Mode:      s.Mode,
			Pid:       s.process.Pid(),
			Running:   m.opts.Registry.Running(s.ID),
			StartedAt: s.StartedAt,
			Pipelines: names,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Join waits up to timeout for the session's reader to finish and reports
// whether it did.
func (m *Manager) Join(s *Session, timeout time.Duration) bool {
	return waitFor(s.readerDone, timeout)
}

// StopAll stops every tracked session.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range list {
		if err := m.Stop(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func waitFor(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// Run starts a session and holds it until ctx is cancelled or the capture
// stream ends. It returns the termination error when the stream ended on
// its own, and ctx.Err() otherwise.
func (m *Manager) Run(ctx context.Context, sessionID string, capCfg config.CaptureConfig, sshCfg config.SSHConfig) error {
	s, err := m.Start(ctx, sessionID, capCfg, sshCfg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.Done():
	}

	if err := m.Stop(s); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("Session shutdown incomplete")
	}
	if err := s.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
