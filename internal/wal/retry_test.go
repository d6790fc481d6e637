// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package wal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu   sync.Mutex
	ids  []string
	fail error
}

func (p *recordingPublisher) PublishEntry(_ context.Context, entry *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.ids = append(p.ids, entry.ID)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func TestRetryPending(t *testing.T) {
	ctx := context.Background()
	w := openTestWAL(t, testConfig())
	pub := &recordingPublisher{}
	loop := NewRetryLoop(w, pub)

	_ = w.Write(ctx, "e1", testEvent{ID: "e1"})
	_ = w.Write(ctx, "e2", testEvent{ID: "e2"})

	stats := loop.RetryPending(ctx)
	if stats.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", stats.Succeeded)
	}
	if got := pub.published(); len(got) != 2 {
		t.Errorf("published = %v", got)
	}
	if pending, _ := w.GetPending(ctx); len(pending) != 0 {
		t.Errorf("pending after retry = %d, want 0", len(pending))
	}
}

func TestRetryFailureBacksOff(t *testing.T) {
	ctx := context.Background()
	w := openTestWAL(t, testConfig())
	pub := &recordingPublisher{fail: errors.New("nats: no servers available")}
	loop := NewRetryLoop(w, pub)

	_ = w.Write(ctx, "e1", testEvent{ID: "e1"})

	if stats := loop.RetryPending(ctx); stats.Failed != 1 {
		t.Fatalf("first pass = %+v, want 1 failure", stats)
	}

	// Attempt 1 needs 2s of backoff.
	if stats := loop.RetryPending(ctx); stats.Skipped != 1 {
		t.Fatalf("second pass = %+v, want backoff skip", stats)
	}

	pub.mu.Lock()
	pub.fail = nil
	pub.mu.Unlock()
	loop.now = func() time.Time { return time.Now().Add(3 * time.Second) }

	if stats := loop.RetryPending(ctx); stats.Succeeded != 1 {
		t.Errorf("third pass = %+v, want success", stats)
	}
}

func TestRetryDropsExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxRetries = 1
	w := openTestWAL(t, cfg)
	loop := NewRetryLoop(w, &recordingPublisher{fail: errors.New("down")})

	_ = w.Write(ctx, "e1", testEvent{ID: "e1"})
	loop.RetryPending(ctx)

	if stats := loop.RetryPending(ctx); stats.MaxRetried != 1 {
		t.Errorf("stats = %+v, want 1 max-retried", stats)
	}
	if pending, _ := w.GetPending(ctx); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestRetryDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	w := openTestWAL(t, testConfig())
	pub := &recordingPublisher{}
	loop := NewRetryLoop(w, pub)
	loop.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_ = w.Write(ctx, "old", testEvent{ID: "old"})

	if stats := loop.RetryPending(ctx); stats.Expired != 1 {
		t.Errorf("stats = %+v, want 1 expired", stats)
	}
	if len(pub.published()) != 0 {
		t.Error("expired entry was published")
	}
}

func TestRetrySkipsClaimedEntries(t *testing.T) {
	ctx := context.Background()
	w := openTestWAL(t, testConfig())
	pub := &recordingPublisher{}
	loop := NewRetryLoop(w, pub)

	_ = w.Write(ctx, "e1", testEvent{ID: "e1"})
	w.TryClaimEntry("e1")

	if stats := loop.RetryPending(ctx); stats.Skipped != 1 {
		t.Errorf("stats = %+v, want skip", stats)
	}
	if len(pub.published()) != 0 {
		t.Error("claimed entry was published")
	}
}

func TestServeRecoversOnStart(t *testing.T) {
	w := openTestWAL(t, testConfig())
	_ = w.Write(context.Background(), "left-over", testEvent{ID: "left-over"})

	pub := &recordingPublisher{}
	loop := NewRetryLoop(w, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(pub.published()) == 0 {
		select {
		case <-deadline:
			t.Fatal("pending entry not recovered on start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{20, maxBackoff},
		{100, maxBackoff},
	}
	for _, tt := range tests {
		if got := calculateBackoff(time.Second, tt.attempts); got != tt.want {
			t.Errorf("calculateBackoff(1s, %d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
