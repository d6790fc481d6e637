// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/packetlens/internal/config"
)

func TestStopIdempotent(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))

	s, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := h.manager.Stop(s); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := h.manager.Stop(s); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	terminates, kills := h.process.counts()
	if terminates != 1 || kills != 0 {
		t.Errorf("terminates=%d kills=%d, want 1/0", terminates, kills)
	}
	if !h.manager.Join(s, 0) {
		t.Error("reader still running after Stop")
	}
	if h.manager.Registry().Running("sess-1") {
		t.Error("session still running")
	}

	// The id is free again.
	h.process = newFakeProcess()
	h.launcher.process = h.process
	s2, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	_ = h.manager.Stop(s2)
}

func TestStopKillsStubbornProcess(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))
	h.process.ignoreTerminate = true

	s, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	err = h.manager.Stop(s)
	elapsed := time.Since(start)

	var shutdown *ShutdownError
	if !errors.As(err, &shutdown) {
		t.Fatalf("Stop = %v, want ShutdownError", err)
	}
	if !errors.Is(err, errExitTimeout) {
		t.Errorf("Stop = %v, want exit timeout step", err)
	}
	if len(shutdown.Steps) != 1 || shutdown.Steps[0].Step != "wait exit" {
		t.Errorf("steps = %+v", shutdown.Steps)
	}

	_, kills := h.process.counts()
	if kills != 1 {
		t.Errorf("kills = %d, want 1", kills)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if !errors.Is(h.manager.Stop(s), errExitTimeout) {
		t.Error("second Stop did not return the first result")
	}
}

func TestStopRecoversPanickingStep(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))

	s, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.callbacks.OnStatus = func(string) { panic("status sink gone") }

	err = h.manager.Stop(s)
	var shutdown *ShutdownError
	if !errors.As(err, &shutdown) {
		t.Fatalf("Stop = %v, want ShutdownError", err)
	}
	if len(shutdown.Steps) != 1 || shutdown.Steps[0].Step != "status" {
		t.Errorf("steps = %+v", shutdown.Steps)
	}

	// The remaining steps still ran.
	if h.manager.Registry().Running("sess-1") {
		t.Error("session still running")
	}
	if terminates, _ := h.process.counts(); terminates != 1 {
		t.Errorf("terminates = %d, want 1", terminates)
	}
	if !h.manager.Join(s, time.Second) {
		t.Error("reader still running")
	}
}

func TestStopStaleHandleAfterRestart(t *testing.T) {
	h := newHarness(t, zscorePipeline("m1", "length", 100, 10))

	old, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.process.exit(0)
	if !h.manager.Join(old, 5*time.Second) {
		t.Fatal("reader did not finish after process exit")
	}

	h.process = newFakeProcess()
	h.launcher.process = h.process
	fresh, err := h.manager.Start(context.Background(), "sess-1", packetCapture, config.SSHConfig{})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer h.manager.Stop(fresh)

	if err := h.manager.Stop(old); err != nil {
		t.Errorf("Stop(old) = %v", err)
	}

	if !h.manager.Registry().Running("sess-1") {
		t.Error("stopping the old handle cleared the restarted session's flag")
	}
	if got, err := h.manager.Get("sess-1"); err != nil || got != fresh {
		t.Errorf("Get() = %v, %v, want the restarted session", got, err)
	}
	if h.manager.Join(fresh, 50*time.Millisecond) {
		t.Error("stopping the old handle ended the restarted session's reader")
	}
	if terminates, _ := h.process.counts(); terminates != 0 {
		t.Errorf("restarted process terminated %d times, want 0", terminates)
	}
}
