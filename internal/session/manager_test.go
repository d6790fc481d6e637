// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/capture"
	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/explain"
	"github.com/tomtom215/packetlens/internal/graph"
	"github.com/tomtom215/packetlens/internal/ingest"
)

func packetLine(src string, length int) string {
	return fmt.Sprintf(`{"timestamp":"1760780000123","layers":{"frame":{"frame_frame_len":"%d"},"ip":{"ip_ip_src":"%s","ip_ip_dst":"10.0.0.2","ip_ip_ttl":"64"},"tcp":{"tcp_tcp_srcport":"43512","tcp_tcp_dstport":"443"}}}`, length, src)
}

var (
	packetCapture = config.CaptureConfig{Mode: capture.ModePacket, RunEnvironment: capture.EnvLocal}
	flowCapture   = config.CaptureConfig{Mode: capture.ModeFlow, RunEnvironment: capture.EnvLocal}
)

type harness struct {
	manager  *Manager
	process  *fakeProcess
	launcher *fakeLauncher
	store    *anomaly.MemoryStore
	alerts   *recordingObserver

	anomalies chan *anomaly.Event

	mu     sync.Mutex
	errs   []error
	status []string
}

func newHarness(t *testing.T, defs ...*graph.PipelineDef) *harness {
	t.Helper()
	h := &harness{
		process:   newFakeProcess(),
		store:     anomaly.NewMemoryStore(),
		alerts:    &recordingObserver{},
		anomalies: make(chan *anomaly.Event, 16),
	}
	h.launcher = &fakeLauncher{process: h.process}
	h.manager = NewManager(Options{
		Launcher:  h.launcher,
		Compiler:  staticCompiler{defs: defs},
		Store:     h.store,
		Alerts:    h.alerts,
		OutputDir: t.TempDir(),
		Session: config.SessionConfig{
			ScenarioID:    "scn-1",
			Execution:     1,
			FlowInterval:  time.Hour,
			ExitTimeout:   200 * time.Millisecond,
			JoinTimeout:   time.Second,
			QueueSize:     4,
			DecodeLogRate: 10,
		},
		Callbacks: Callbacks{
			OnStatus: func(msg string) {
				h.mu.Lock()
				h.status = append(h.status, msg)
				h.mu.Unlock()
			},
			OnError: func(err error) {
				h.mu.Lock()
				h.errs = append(h.errs, err)
				h.mu.Unlock()
			},
			OnAnomaly: func(ev *anomaly.Event) { h.anomalies <- ev },
		},
	})
	return h
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *harness) waitAnomaly(t *testing.T) *anomaly.Event {
	t.Helper()
	select {
	case ev := <-h.anomalies:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for anomaly")
		return nil
	}
}

func TestStartScoresLinesAndPersistsAnomalies(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	ctx := context.Background()

	s, err := h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.launcher.launches() != 1 {
		t.Fatalf("launches = %d, want 1", h.launcher.launches())
	}
	if got := s.Argv(); len(got) == 0 || got[0] != "tshark" {
		t.Errorf("Argv() = %v", got)
	}
	if !h.manager.Registry().Running("sess-1") {
		t.Error("session not registered as running")
	}

	lines := []string{
		packetLine("10.0.0.1", 104),
		"{not json",
		packetLine("10.0.0.9", 1500),
	}
	for _, line := range lines {
		if err := h.process.writeLine(line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	ev := h.waitAnomaly(t)
	if ev.SourceIP != "10.0.0.9" || ev.SourcePort != 43512 {
		t.Errorf("anomaly source = %s:%d", ev.SourceIP, ev.SourcePort)
	}
	if ev.Index != 1 || ev.PipelineID != "m1" || ev.ScenarioID != "scn-1" {
		t.Errorf("anomaly = %+v", ev)
	}

	if err := h.manager.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	n, err := h.store.Count(ctx, "scn-1", 1)
	if err != nil || n != 1 {
		t.Errorf("stored anomalies = %d, %v; want 1", n, err)
	}
	obs := h.alerts.observations()
	if len(obs) != 1 || obs[0].ip != "10.0.0.9" || obs[0].port != 43512 {
		t.Errorf("alert observations = %+v", obs)
	}
	if s.Anomalies() != 1 {
		t.Errorf("Anomalies() = %d", s.Anomalies())
	}
	if len(h.manager.Sessions()) != 0 {
		t.Errorf("Sessions() after stop = %+v", h.manager.Sessions())
	}
}

func TestStartRefusesRunningSession(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	ctx := context.Background()

	s, err := h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.manager.Stop(s)

	_, err = h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{})
	if !errors.Is(err, capture.ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if h.launcher.launches() != 1 {
		t.Errorf("launches = %d, want 1", h.launcher.launches())
	}

	status := h.manager.Sessions()
	if len(status) != 1 || status[0].ID != "sess-1" || !status[0].Running || status[0].Pipelines[0] != "m1" {
		t.Errorf("Sessions() = %+v", status)
	}
}

func TestStartFailuresDoNotLaunch(t *testing.T) {
	ctx := context.Background()

	t.Run("compile error", func(t *testing.T) {
		h := newHarness(t)
		h.manager.opts.Compiler = staticCompiler{err: errCompile}
		_, err := h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{})
		if !errors.Is(err, errCompile) {
			t.Errorf("Start = %v, want compile error", err)
		}
		if h.launcher.launches() != 0 {
			t.Error("process launched despite compile failure")
		}
	})

	t.Run("remote without host", func(t *testing.T) {
		h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
		remote := config.CaptureConfig{Mode: capture.ModePacket, RunEnvironment: capture.EnvRemote}
		_, err := h.manager.Start(ctx, "sess-1", remote, config.SSHConfig{})
		if !errors.Is(err, capture.ErrRemoteTarget) {
			t.Errorf("Start = %v, want ErrRemoteTarget", err)
		}
		if h.launcher.launches() != 0 {
			t.Error("process launched despite command failure")
		}
	})

	t.Run("launch error releases id", func(t *testing.T) {
		h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
		h.launcher.err = errors.New("exec: tshark not found")
		if _, err := h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{}); err == nil {
			t.Fatal("Start succeeded without a process")
		}
		if h.manager.Registry().Running("sess-1") {
			t.Error("failed session left registered")
		}
	})
}

func TestStreamTerminated(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	h.process.stderr = "tshark: permission denied\n"

	s, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.process.exit(2)
	if !h.manager.Join(s, 5*time.Second) {
		t.Fatal("reader did not finish after process exit")
	}

	if !errors.Is(s.Err(), ErrStreamTerminated) {
		t.Fatalf("Err() = %v, want ErrStreamTerminated", s.Err())
	}
	var te *TerminationError
	if !errors.As(s.Err(), &te) || te.ExitCode != 2 {
		t.Errorf("termination = %+v", te)
	}
	if h.manager.Registry().Running("sess-1") {
		t.Error("terminated session still marked running")
	}
	reported := false
	for _, err := range h.errors() {
		if errors.Is(err, ErrStreamTerminated) {
			reported = true
		}
	}
	if !reported {
		t.Error("termination not reported through OnError")
	}

	if err := h.manager.Stop(s); err != nil {
		t.Errorf("Stop after termination: %v", err)
	}
}

func TestFlowWindowFlushedWhenStreamEnds(t *testing.T) {
	h := newHarness(t, zscorePipeline("flows", "packet_count", 0, 0.5))

	s, err := h.manager.Start(context.Background(), "sess-flow", flowCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	lines := []string{
		"frame.time_epoch,ip.src,ip.dst,tcp.srcport,tcp.dstport,udp.srcport,udp.dstport,_ws.col.Protocol,frame.len,ip.ttl",
		"1760780000.2,10.0.0.1,10.0.0.2,43512,443,,,TCP,60,64",
		"1760780000.4,10.0.0.2,10.0.0.1,443,43512,,,TCP,1500,64",
		"1760780000.9,10.0.0.1,10.0.0.2,43512,443,,,TCP,60,64",
	}
	for _, line := range lines {
		if err := h.process.writeLine(line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	h.process.exit(0)

	ev := h.waitAnomaly(t)
	if got := ev.FeatureValues["packet_count"]; got != 3 {
		t.Errorf("packet_count = %v, want 3", got)
	}
	if err := h.manager.Stop(s); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestNoPersistenceAfterStop(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	ctx := context.Background()

	s, err := h.manager.Start(ctx, "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.manager.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec, ok, err := ingest.PacketDecoder{}.Decode([]byte(packetLine("10.0.0.9", 9000)))
	if err != nil || !ok {
		t.Fatalf("Decode: %v, %v", ok, err)
	}
	if h.manager.scoreBatch(s, []ingest.Record{rec}) {
		t.Error("scoreBatch kept going after stop")
	}

	n, _ := h.store.Count(ctx, "scn-1", 1)
	if n != 0 {
		t.Errorf("stored %d anomalies after stop", n)
	}
	if len(h.alerts.observations()) != 0 {
		t.Error("alert observed after stop")
	}
}

func TestGatedStore(t *testing.T) {
	ctx := context.Background()
	store := anomaly.NewMemoryStore()
	gate := newGatedStore(store)

	first := anomaly.NewEvent("scn", 1)
	first.Index = 1
	if err := gate.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	gate.Close()

	second := anomaly.NewEvent("scn", 1)
	second.Index = 2
	if err := gate.Save(ctx, second); !errors.Is(err, explain.ErrStopped) {
		t.Errorf("Save after Close = %v, want ErrStopped", err)
	}
	if n, _ := gate.Count(ctx, "scn", 1); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestRunReturnsTermination(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.manager.Run(context.Background(), "sess-run", packetCapture, config.SSHConfig{})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.launcher.launches() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.process.exit(1)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStreamTerminated) {
			t.Errorf("Run = %v, want ErrStreamTerminated", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the stream ended")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.manager.Run(ctx, "sess-run", packetCapture, config.SSHConfig{})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.launcher.launches() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if terminates, _ := h.process.counts(); terminates != 1 {
		t.Errorf("terminates = %d, want 1", terminates)
	}
}
