// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

var (
	// ErrWALClosed is returned by operations on a closed WAL.
	ErrWALClosed = errors.New("wal is closed")

	// ErrNilEvent is returned when writing a nil event.
	ErrNilEvent = errors.New("wal: nil event")

	// ErrEmptyEntryID is returned when an entry id is empty.
	ErrEmptyEntryID = errors.New("wal: empty entry id")

	// ErrEntryNotFound is returned when no pending entry has the id.
	ErrEntryNotFound = errors.New("wal: entry not found")
)

const prefixPending = "pending:"

// Entry is one pending record.
type Entry struct {
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// UnmarshalPayload deserializes the payload into v.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// BadgerWAL stores pending entries in BadgerDB.
type BadgerWAL struct {
	db     *badger.DB
	config config.WALConfig

	mu     sync.RWMutex
	closed bool

	// processing prevents the inline publisher and the retry loop from
	// handling the same entry concurrently.
	processing sync.Map
}

// Open opens (or creates) the WAL at cfg.Path.
func Open(cfg config.WALConfig) (*BadgerWAL, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wal: path is required")
	}
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil
	return open(opts, cfg)
}

// OpenInMemory opens a WAL without disk persistence, for tests.
func OpenInMemory(cfg config.WALConfig) (*BadgerWAL, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, cfg)
}

func open(opts badger.Options, cfg config.WALConfig) (*BadgerWAL, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("entry_ttl", cfg.EntryTTL).
		Msg("WAL opened")
	return &BadgerWAL{db: db, config: cfg}, nil
}

// Config returns the WAL configuration.
func (w *BadgerWAL) Config() config.WALConfig {
	return w.config
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write persists event under id. Writing an existing id replaces the entry
// and resets its attempt count.
func (w *BadgerWAL) Write(ctx context.Context, id string, event interface{}) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyEntryID
	}
	if event == nil {
		return ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	entry := &Entry{ID: id, Payload: payload, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+id), data)
		if w.config.EntryTTL > 0 {
			e = e.WithTTL(w.config.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		metrics.WALOperations.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	metrics.WALOperations.WithLabelValues("write").Inc()
	return nil
}

// Confirm removes a published entry.
func (w *BadgerWAL) Confirm(ctx context.Context, id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyEntryID
	}

	key := []byte(prefixPending + id)
	err := w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	metrics.WALOperations.WithLabelValues("confirm").Inc()
	return nil
}

// GetPending returns all unconfirmed entries in id order.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("WAL failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	metrics.WALPending.Set(float64(len(entries)))
	return entries, nil
}

// UpdateAttempt records a failed publish attempt.
func (w *BadgerWAL) UpdateAttempt(ctx context.Context, id, lastError string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}

	key := []byte(prefixPending + id)
	return w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		e := badger.NewEntry(key, data)
		if exp := item.ExpiresAt(); exp > 0 {
			if remaining := time.Until(time.Unix(int64(exp), 0)); remaining > 0 {
				e = e.WithTTL(remaining)
			}
		}
		return txn.SetEntry(e)
	})
}

// DeleteEntry removes an entry without publishing it.
func (w *BadgerWAL) DeleteEntry(ctx context.Context, id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixPending + id))
	})
}

// TryClaimEntry marks id as being processed. It returns false if another
// goroutine holds the claim.
func (w *BadgerWAL) TryClaimEntry(id string) bool {
	_, loaded := w.processing.LoadOrStore(id, time.Now())
	return !loaded
}

// ReleaseEntry drops the claim on id.
func (w *BadgerWAL) ReleaseEntry(id string) {
	w.processing.Delete(id)
}

// Close closes the database. It is safe to call more than once.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	logging.Info().Str("path", w.config.Path).Msg("WAL closing")
	return w.db.Close()
}
