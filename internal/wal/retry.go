// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package wal

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// maxBackoff caps the per-entry retry delay.
const maxBackoff = 5 * time.Minute

// publishTimeout bounds a single retry publish.
const publishTimeout = 10 * time.Second

// Publisher republishes a pending entry.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry *Entry) error

// PublishEntry implements Publisher.
func (f PublisherFunc) PublishEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// RetryLoop republishes pending entries. It implements suture.Service: the
// first pass runs immediately on Serve to recover entries left by a previous
// run, then once per RetryInterval.
type RetryLoop struct {
	wal       *BadgerWAL
	publisher Publisher
	now       func() time.Time
}

// NewRetryLoop creates a retry loop over w.
func NewRetryLoop(w *BadgerWAL, publisher Publisher) *RetryLoop {
	return &RetryLoop{wal: w, publisher: publisher, now: time.Now}
}

// Serve runs until ctx is canceled.
func (r *RetryLoop) Serve(ctx context.Context) error {
	cfg := r.wal.Config()
	logging.Info().
		Dur("interval", cfg.RetryInterval).
		Int("max_retries", cfg.MaxRetries).
		Msg("WAL retry loop started")

	r.RetryPending(ctx)

	ticker := time.NewTicker(cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("WAL retry loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RetryPending(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (r *RetryLoop) String() string {
	return "wal-retry"
}

// retryResult tracks the outcome of processing a single entry.
type retryResult int

const (
	retryResultSuccess retryResult = iota
	retryResultFailed
	retryResultExpired
	retryResultMaxRetried
	retryResultSkipped
)

// RetryStats summarizes one retry pass.
type RetryStats struct {
	Succeeded  int
	Failed     int
	Expired    int
	MaxRetried int
	Skipped    int
}

// RetryPending makes one pass over the pending entries.
func (r *RetryLoop) RetryPending(ctx context.Context) RetryStats {
	var stats RetryStats

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		logging.Err(err).Msg("WAL retry: failed to get pending entries")
		return stats
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch r.processEntry(ctx, entry) {
		case retryResultSuccess:
			stats.Succeeded++
		case retryResultFailed:
			stats.Failed++
		case retryResultExpired:
			stats.Expired++
		case retryResultMaxRetried:
			stats.MaxRetried++
		case retryResultSkipped:
			stats.Skipped++
		}
	}

	if stats.Succeeded > 0 || stats.Failed > 0 || stats.Expired > 0 || stats.MaxRetried > 0 {
		logging.Info().
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("expired", stats.Expired).
			Int("max_retried", stats.MaxRetried).
			Msg("WAL retry complete")
	}
	return stats
}

func (r *RetryLoop) processEntry(ctx context.Context, entry *Entry) retryResult {
	if !r.wal.TryClaimEntry(entry.ID) {
		return retryResultSkipped
	}
	defer r.wal.ReleaseEntry(entry.ID)

	cfg := r.wal.Config()
	if cfg.EntryTTL > 0 && r.now().Sub(entry.CreatedAt) > cfg.EntryTTL {
		r.drop(ctx, entry, "expired")
		return retryResultExpired
	}
	if entry.Attempts >= cfg.MaxRetries {
		r.drop(ctx, entry, "max_retries")
		return retryResultMaxRetried
	}
	if !r.isReadyForRetry(entry) {
		return retryResultSkipped
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := r.publisher.PublishEntry(pubCtx, entry)
	cancel()

	if err != nil {
		logging.Warn().
			Err(err).
			Str("entry_id", entry.ID).
			Int("attempt", entry.Attempts+1).
			Msg("WAL retry: failed to publish entry")
		if updateErr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); updateErr != nil {
			logging.Err(updateErr).Str("entry_id", entry.ID).Msg("WAL retry: failed to update attempt")
		}
		metrics.WALOperations.WithLabelValues("retry_failed").Inc()
		return retryResultFailed
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		logging.Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to confirm entry")
		return retryResultFailed
	}
	metrics.WALOperations.WithLabelValues("retry").Inc()
	return retryResultSuccess
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry, reason string) {
	logging.Warn().
		Str("entry_id", entry.ID).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Str("last_error", entry.LastError).
		Msg("WAL retry: dropping entry")
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil {
		logging.Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to delete entry")
	}
	metrics.WALOperations.WithLabelValues("dropped_" + reason).Inc()
}

// isReadyForRetry checks if enough time has passed since last attempt.
func (r *RetryLoop) isReadyForRetry(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return r.now().Sub(entry.LastAttemptAt) >= calculateBackoff(r.wal.Config().RetryBackoff, entry.Attempts)
}

// calculateBackoff returns base * 2^attempts, capped at maxBackoff.
func calculateBackoff(base time.Duration, attempts int) time.Duration {
	if attempts > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempts)))
	if backoff < 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
