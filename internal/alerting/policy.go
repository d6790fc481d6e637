// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package alerting

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/packetlens/internal/validation"
)

// ErrPolicyNotFound is returned when deleting a key with no policy.
var ErrPolicyNotFound = errors.New("alert policy not found")

// Policy is a durable alert rule for one IP address or port.
type Policy struct {
	Key         string `json:"key" validate:"required"`
	Threshold   int    `json:"threshold" validate:"gte=1"`
	TargetEmail string `json:"target_email" validate:"required,email"`
}

// Validate checks the policy fields.
func (p Policy) Validate() error {
	if verr := validation.ValidateStruct(p); verr != nil {
		return fmt.Errorf("invalid alert policy %q: %w", p.Key, verr)
	}
	return nil
}

// PolicyStore persists alert policies.
type PolicyStore interface {
	// Load returns all policies keyed by Policy.Key.
	Load(ctx context.Context) (map[string]Policy, error)

	// Save replaces the stored policies.
	Save(ctx context.Context, policies map[string]Policy) error

	// Add inserts or replaces one policy.
	Add(ctx context.Context, p Policy) error

	// Delete removes the policy for key.
	Delete(ctx context.Context, key string) error

	// List returns all policies sorted by key.
	List(ctx context.Context) ([]Policy, error)
}

func sortedPolicies(m map[string]Policy) []Policy {
	out := make([]Policy, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// filePolicy is the on-disk value of a policy; the key is the map key.
type filePolicy struct {
	Threshold   int    `json:"threshold"`
	TargetEmail string `json:"target_email"`
}

// FileStore keeps policies in a JSON object keyed by policy key.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. A missing file holds no policies.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements PolicyStore.
func (s *FileStore) Load(_ context.Context) (map[string]Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (map[string]Policy, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Policy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alert policies: %w", err)
	}

	raw := map[string]filePolicy{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode alert policies %s: %w", s.path, err)
		}
	}
	out := make(map[string]Policy, len(raw))
	for k, v := range raw {
		out[k] = Policy{Key: k, Threshold: v.Threshold, TargetEmail: v.TargetEmail}
	}
	return out, nil
}

// Save implements PolicyStore.
func (s *FileStore) Save(_ context.Context, policies map[string]Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(policies)
}

func (s *FileStore) save(policies map[string]Policy) error {
	raw := make(map[string]filePolicy, len(policies))
	for k, p := range policies {
		raw[k] = filePolicy{Threshold: p.Threshold, TargetEmail: p.TargetEmail}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alert policies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write alert policies: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace alert policies: %w", err)
	}
	return nil
}

// Add implements PolicyStore.
func (s *FileStore) Add(_ context.Context, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	policies, err := s.load()
	if err != nil {
		return err
	}
	policies[p.Key] = p
	return s.save(policies)
}

// Delete implements PolicyStore.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	policies, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := policies[key]; !ok {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, key)
	}
	delete(policies, key)
	return s.save(policies)
}

// List implements PolicyStore.
func (s *FileStore) List(ctx context.Context) ([]Policy, error) {
	policies, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedPolicies(policies), nil
}

// Key prefix for BadgerDB storage
const policyKeyPrefix = "alert_policy:"

// BadgerStore keeps policies in BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed policy store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func policyKey(key string) []byte {
	return []byte(policyKeyPrefix + key)
}

// Load implements PolicyStore.
func (s *BadgerStore) Load(_ context.Context) (map[string]Policy, error) {
	out := make(map[string]Policy)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(policyKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p Policy
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out[p.Key] = p
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load alert policies: %w", err)
	}
	return out, nil
}

// Save implements PolicyStore.
func (s *BadgerStore) Save(_ context.Context, policies map[string]Policy) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, []byte(policyKeyPrefix)); err != nil {
			return err
		}
		for _, p := range policies {
			if err := setPolicy(txn, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Add implements PolicyStore.
func (s *BadgerStore) Add(_ context.Context, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setPolicy(txn, p)
	})
}

// Delete implements PolicyStore.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		k := policyKey(key)
		if _, err := txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrPolicyNotFound, key)
		} else if err != nil {
			return fmt.Errorf("get alert policy: %w", err)
		}
		return txn.Delete(k)
	})
}

// List implements PolicyStore.
func (s *BadgerStore) List(ctx context.Context) ([]Policy, error) {
	policies, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedPolicies(policies), nil
}

func setPolicy(txn *badger.Txn, p Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal alert policy: %w", err)
	}
	if err := txn.Set(policyKey(p.Key), data); err != nil {
		return fmt.Errorf("set alert policy: %w", err)
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("delete alert policy: %w", err)
		}
	}
	return nil
}
