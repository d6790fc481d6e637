// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

//go:build unix

package capture

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecLauncherReadsOutput(t *testing.T) {
	p, err := ExecLauncher{}.Launch(context.Background(), []string{"/bin/sh", "-c", "echo one; echo two; echo oops >&2; exit 3"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer p.ClosePipes()

	var lines []string
	scanner := bufio.NewScanner(p.Stdout())
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if strings.Join(lines, ",") != "one,two" {
		t.Errorf("stdout lines = %v", lines)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	if p.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", p.ExitCode())
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(p.StderrTail(), "oops") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(p.StderrTail(), "oops") {
		t.Errorf("StderrTail() = %q, want oops", p.StderrTail())
	}
}

func TestExecLauncherTerminateAndKill(t *testing.T) {
	p, err := ExecLauncher{}.Launch(context.Background(), []string{"/bin/sh", "-c", "trap '' TERM; sleep 30"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer p.ClosePipes()

	if p.ExitCode() != -1 {
		t.Errorf("ExitCode() while running = %d, want -1", p.ExitCode())
	}
	if err := p.Terminate(); err != nil {
		t.Errorf("Terminate() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Errorf("Kill() error = %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process group was not killed")
	}
	if err := p.Kill(); err != nil {
		t.Errorf("Kill() after exit error = %v", err)
	}
}

func TestClosePipesUnblocksReader(t *testing.T) {
	p, err := ExecLauncher{}.Launch(context.Background(), []string{"/bin/sh", "-c", "sleep 30"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer p.Kill()

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := p.Stdout().Read(buf)
		readDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := p.ClosePipes(); err != nil {
		t.Errorf("ClosePipes() error = %v", err)
	}
	if err := p.ClosePipes(); err != nil {
		t.Errorf("second ClosePipes() error = %v", err)
	}

	select {
	case err := <-readDone:
		if err == nil {
			t.Error("read after close should fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ClosePipes did not unblock the reader")
	}
}

func TestExecLauncherErrors(t *testing.T) {
	if _, err := (ExecLauncher{}).Launch(context.Background(), nil); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Launch(nil) error = %v, want ErrEmptyCommand", err)
	}
	if _, err := (ExecLauncher{}).Launch(context.Background(), []string{"/nonexistent/tshark"}); err == nil {
		t.Error("Launch() of missing binary should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (ExecLauncher{}).Launch(ctx, []string{"/bin/true"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Launch() with canceled ctx error = %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("abcd"))
	_, _ = tb.Write([]byte("efgh"))
	_, _ = tb.Write([]byte("ij"))
	if got := tb.String(); got != "cdefghij" {
		t.Errorf("String() = %q, want cdefghij", got)
	}
	_, _ = tb.Write([]byte("0123456789"))
	if got := tb.String(); got != "23456789" {
		t.Errorf("String() = %q, want 23456789", got)
	}
}
