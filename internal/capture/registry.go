// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package capture

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyRunning is returned when a session id already owns a capture.
var ErrAlreadyRunning = errors.New("capture already running for session")

// Registry maps session ids to their running flag. Each registration gets
// a generation number; Stop and Remove only act on the generation they name,
// so a stale handle cannot touch a later session reusing the id.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	entries map[string]registration
}

type registration struct {
	gen     uint64
	running bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register marks a session as running and returns its generation. It fails
// if the id is already running.
func (r *Registry) Register(id string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id].running {
		return 0, ErrAlreadyRunning
	}
	r.next++
	r.entries[id] = registration{gen: r.next, running: true}
	return r.next, nil
}

// Running reports whether the session's capture should keep being read.
func (r *Registry) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].running
}

// RunningAs reports whether generation gen of the session is still running.
func (r *Registry) RunningAs(id string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	return e.running && e.gen == gen
}

// Stop clears the running flag of generation gen and reports whether it
// was set.
func (r *Registry) Stop(id string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen {
		return false
	}
	was := e.running
	e.running = false
	r.entries[id] = e
	return was
}

// Remove forgets generation gen of a session.
func (r *Registry) Remove(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id].gen == gen {
		delete(r.entries, id)
	}
}

// Active returns the running session ids in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.running {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
