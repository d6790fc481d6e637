// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/packetlens/internal/alerting"
	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/capture"
	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/eventbus"
	"github.com/tomtom215/packetlens/internal/graph"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/session"
	"github.com/tomtom215/packetlens/internal/wal"
)

// app holds the wired components and the resources they own.
type app struct {
	manager   *session.Manager
	alerts    *alerting.Engine
	publisher *eventbus.Publisher
	retry     *wal.RetryLoop

	dbs []*badger.DB
	wal *wal.BadgerWAL
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := a.anomalyStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	policies, err := a.policyStore(cfg)
	if err != nil {
		return nil, err
	}
	if list, listErr := policies.List(ctx); listErr == nil {
		logging.Info().Int("count", len(list)).Str("store", cfg.Alerts.PolicyStore).Msg("Alert policies loaded")
	}

	a.alerts = alerting.NewEngine(policies, cfg.Alerts.SendTimeout)
	for _, n := range alerting.NewNotifiers(cfg.Alerts) {
		a.alerts.RegisterNotifier(n)
	}

	var onAnomaly func(*anomaly.Event)
	if cfg.NATS.Enabled {
		a.publisher, err = eventbus.NewNATSPublisher(ctx, cfg.NATS, eventbus.NewLogger())
		if err != nil {
			return nil, fmt.Errorf("anomaly publisher: %w", err)
		}
		onAnomaly = a.publisher.OnAnomaly

		if cfg.NATS.WAL.Path != "" {
			a.wal, err = wal.Open(cfg.NATS.WAL)
			if err != nil {
				return nil, fmt.Errorf("publish wal: %w", err)
			}
			durable := eventbus.NewDurablePublisher(a.wal, a.publisher)
			a.retry = wal.NewRetryLoop(a.wal, durable)
			onAnomaly = durable.OnAnomaly
		}
	}

	a.manager = session.NewManager(session.Options{
		Registry:  capture.NewRegistry(),
		Launcher:  capture.ExecLauncher{},
		Compiler:  &graph.Compiler{Builder: graph.NewBuilder(cfg.Pipeline.ArtifactDir), GraphPath: cfg.Pipeline.GraphPath},
		Store:     store,
		Alerts:    a.alerts,
		OutputDir: cfg.Explain.OutputDir,
		Session:   cfg.Session,
		Callbacks: session.Callbacks{OnAnomaly: onAnomaly},
	})
	return a, nil
}

func (a *app) openBadger(path string) (*badger.DB, error) {
	db, err := anomaly.OpenBadger(path)
	if err != nil {
		return nil, err
	}
	a.dbs = append(a.dbs, db)
	return db, nil
}

func (a *app) anomalyStore(cfg config.StoreConfig) (anomaly.Store, error) {
	if cfg.Path == "" {
		logging.Warn().Msg("STORE_PATH not set, anomaly records are kept in memory only")
		return anomaly.NewMemoryStore(), nil
	}
	db, err := a.openBadger(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("anomaly store: %w", err)
	}
	return anomaly.NewBadgerStore(db), nil
}

func (a *app) policyStore(cfg *config.Config) (alerting.PolicyStore, error) {
	if cfg.Alerts.PolicyStore != "badger" {
		return alerting.NewFileStore(cfg.Alerts.PolicyPath), nil
	}
	// Policies share the anomaly database when both point at one directory.
	if cfg.Alerts.PolicyPath == cfg.Store.Path && len(a.dbs) > 0 {
		return alerting.NewBadgerStore(a.dbs[0]), nil
	}
	db, err := a.openBadger(cfg.Alerts.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("alert policy store: %w", err)
	}
	return alerting.NewBadgerStore(db), nil
}

// Close releases the databases.
func (a *app) Close() {
	var errs []error
	for _, db := range a.dbs {
		errs = append(errs, db.Close())
	}
	a.dbs = nil
	if a.wal != nil {
		errs = append(errs, a.wal.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logging.Err(err).Msg("Error closing databases")
	}
}
