// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package session

import (
	"context"
	"sync"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/explain"
)

// gatedStore forwards to an anomaly store until it is closed. Close waits
// for in-flight saves, so nothing is written after it returns.
type gatedStore struct {
	next anomaly.Store

	mu     sync.RWMutex
	closed bool
}

func newGatedStore(next anomaly.Store) *gatedStore {
	return &gatedStore{next: next}
}

func (g *gatedStore) Save(ctx context.Context, ev *anomaly.Event) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return explain.ErrStopped
	}
	return g.next.Save(ctx, ev)
}

func (g *gatedStore) Count(ctx context.Context, scenarioID string, execution int) (int, error) {
	return g.next.Count(ctx, scenarioID, execution)
}

func (g *gatedStore) List(ctx context.Context, scenarioID string, execution int) ([]*anomaly.Event, error) {
	return g.next.List(ctx, scenarioID, execution)
}

// Close stops further saves.
func (g *gatedStore) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *gatedStore) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}
