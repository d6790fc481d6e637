// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrDuplicateIndex is returned when an index is already used for the
// event's scenario and execution.
var ErrDuplicateIndex = errors.New("anomaly index already recorded")

// Store persists anomaly events.
type Store interface {
	// Save appends an event. The event's Index must be unused.
	Save(ctx context.Context, ev *Event) error

	// Count returns the number of events stored for a scenario and execution.
	Count(ctx context.Context, scenarioID string, execution int) (int, error)

	// List returns the events of a scenario and execution ordered by index.
	List(ctx context.Context, scenarioID string, execution int) ([]*Event, error)
}

// MemoryStore keeps events in memory. Used when no store path is configured
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]*Event)}
}

func groupKey(scenarioID string, execution int) string {
	return fmt.Sprintf("%s:%08d", scenarioID, execution)
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupKey(ev.ScenarioID, ev.Execution)
	for _, existing := range s.events[key] {
		if existing.Index == ev.Index {
			return fmt.Errorf("%w: %s #%d", ErrDuplicateIndex, key, ev.Index)
		}
	}
	cp := *ev
	s.events[key] = append(s.events[key], &cp)
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, scenarioID string, execution int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[groupKey(scenarioID, execution)]), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, scenarioID string, execution int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.events[groupKey(scenarioID, execution)]
	out := make([]*Event, len(src))
	for i, ev := range src {
		cp := *ev
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Key prefix for BadgerDB storage
const anomalyKeyPrefix = "anomaly:"

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed anomaly store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens a BadgerDB at path with synchronous writes.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	// Reduce logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

func groupPrefix(scenarioID string, execution int) []byte {
	return []byte(anomalyKeyPrefix + groupKey(scenarioID, execution) + ":")
}

func eventKey(ev *Event) []byte {
	return append(groupPrefix(ev.ScenarioID, ev.Execution), []byte(fmt.Sprintf("%010d", ev.Index))...)
}

// Save implements Store.
func (s *BadgerStore) Save(_ context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := eventKey(ev)
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateIndex, key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check anomaly key: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set anomaly: %w", err)
		}
		return nil
	})
}

// Count implements Store.
func (s *BadgerStore) Count(_ context.Context, scenarioID string, execution int) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := groupPrefix(scenarioID, execution)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return count, nil
}

// List implements Store. Keys are zero-padded so iteration order is index order.
func (s *BadgerStore) List(_ context.Context, scenarioID string, execution int) ([]*Event, error) {
	var events []*Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := groupPrefix(scenarioID, execution)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			events = append(events, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	return events, nil
}
