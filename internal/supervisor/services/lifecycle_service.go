// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package services

import (
	"context"
	"io"
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
)

// CloserService keeps a component open until shutdown, then closes it.
type CloserService struct {
	closer io.Closer
	name   string
}

// NewCloserService creates the wrapper.
func NewCloserService(name string, closer io.Closer) *CloserService {
	return &CloserService{closer: closer, name: name}
}

// Serve implements suture.Service.
func (c *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := c.closer.Close(); err != nil {
		logging.Warn().Err(err).Str("service", c.name).Msg("Close failed")
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (c *CloserService) String() string {
	return c.name
}

// Drainer waits for in-flight work.
type Drainer interface {
	Wait(ctx context.Context) error
}

// DrainService waits at shutdown for a Drainer, bounded by a timeout.
type DrainService struct {
	drainer Drainer
	timeout time.Duration
	name    string
}

// NewDrainService creates the wrapper. A non-positive timeout uses 10 seconds.
func NewDrainService(name string, drainer Drainer, timeout time.Duration) *DrainService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DrainService{drainer: drainer, timeout: timeout, name: name}
}

// Serve implements suture.Service.
func (d *DrainService) Serve(ctx context.Context) error {
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.drainer.Wait(drainCtx); err != nil {
		logging.Warn().Err(err).Str("service", d.name).Msg("Shutdown drain incomplete")
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (d *DrainService) String() string {
	return d.name
}
