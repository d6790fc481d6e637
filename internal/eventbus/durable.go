// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package eventbus

import (
	"context"
	"fmt"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/wal"
)

// AnomalyPublisher publishes one anomaly event.
type AnomalyPublisher interface {
	PublishAnomaly(ctx context.Context, ev *anomaly.Event) error
}

// DurablePublisher writes each anomaly to the WAL before publishing it and
// confirms the entry once the publish succeeds. Failed publishes stay in the
// WAL for the retry loop.
type DurablePublisher struct {
	wal       *wal.BadgerWAL
	publisher AnomalyPublisher
}

// NewDurablePublisher wraps publisher with w.
func NewDurablePublisher(w *wal.BadgerWAL, publisher AnomalyPublisher) *DurablePublisher {
	return &DurablePublisher{wal: w, publisher: publisher}
}

// Publish persists then publishes ev. A non-nil error means ev is not in
// the WAL; a publish failure after a successful write is logged, not returned.
func (d *DurablePublisher) Publish(ctx context.Context, ev *anomaly.Event) error {
	if err := d.wal.Write(ctx, ev.ID, ev); err != nil {
		return fmt.Errorf("wal write anomaly %s: %w", ev.ID, err)
	}

	if !d.wal.TryClaimEntry(ev.ID) {
		// The retry loop holds it and will publish.
		return nil
	}
	defer d.wal.ReleaseEntry(ev.ID)

	if err := d.publisher.PublishAnomaly(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("entry_id", ev.ID).Msg("Anomaly publish failed, kept in WAL for retry")
		if updateErr := d.wal.UpdateAttempt(ctx, ev.ID, err.Error()); updateErr != nil {
			logging.Error().Err(updateErr).Str("entry_id", ev.ID).Msg("Failed to record WAL attempt")
		}
		return nil
	}

	if err := d.wal.Confirm(ctx, ev.ID); err != nil {
		logging.Error().Err(err).Str("entry_id", ev.ID).Msg("Failed to confirm WAL entry")
	}
	return nil
}

// OnAnomaly publishes ev, logging failures. It matches the session
// anomaly callback.
func (d *DurablePublisher) OnAnomaly(ev *anomaly.Event) {
	if err := d.Publish(context.Background(), ev); err != nil {
		logging.Error().Err(err).
			Str("scenario", ev.ScenarioID).
			Int("index", ev.Index).
			Msg("Failed to persist anomaly for publishing")
	}
}

// PublishEntry implements wal.Publisher for the retry loop.
func (d *DurablePublisher) PublishEntry(ctx context.Context, entry *wal.Entry) error {
	var ev anomaly.Event
	if err := entry.UnmarshalPayload(&ev); err != nil {
		return fmt.Errorf("decode wal entry %s: %w", entry.ID, err)
	}
	return d.publisher.PublishAnomaly(ctx, &ev)
}
