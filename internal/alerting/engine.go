// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package alerting

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// UnknownPort is the port of sources without a transport layer. It is never counted.
const UnknownPort = -1

// Key types reported in Trigger.
const (
	KeyTypeIP   = "ip"
	KeyTypePort = "port"
)

// DefaultSendTimeout bounds one notification delivery.
const DefaultSendTimeout = 10 * time.Second

// Trigger is a policy whose threshold was reached by an observation.
type Trigger struct {
	Policy  Policy    `json:"policy"`
	KeyType string    `json:"key_type"`
	Count   int       `json:"count"`
	FiredAt time.Time `json:"fired_at"`

	// SessionID is the capture session whose anomaly fired the policy.
	SessionID string `json:"session_id,omitempty"`
}

// Engine keeps the per-source anomaly counters and evaluates policies.
type Engine struct {
	store       PolicyStore
	sendTimeout time.Duration

	mu         sync.Mutex
	ipCounts   map[string]int
	portCounts map[int]int
	notifiers  []Notifier

	inflight sync.WaitGroup
}

// NewEngine creates an engine reading policies from store.
func NewEngine(store PolicyStore, sendTimeout time.Duration) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Engine{
		store:       store,
		sendTimeout: sendTimeout,
		ipCounts:    make(map[string]int),
		portCounts:  make(map[int]int),
	}
}

// RegisterNotifier adds a notifier to the engine.
func (e *Engine) RegisterNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.notifiers = append(e.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// Counts returns the current counters of an IP and a port.
func (e *Engine) Counts(ip string, port int) (ipCount, portCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ipCounts[ip], e.portCounts[port]
}

// Observe records one anomalous row from ip:port and returns the policies
// it triggered. Notifications are sent in the background.
func (e *Engine) Observe(ctx context.Context, ip string, port int) []Trigger {
	e.mu.Lock()
	ipCount, portCount := 0, 0
	if ip != "" {
		e.ipCounts[ip]++
		ipCount = e.ipCounts[ip]
	}
	if port != UnknownPort && port >= 0 {
		e.portCounts[port]++
		portCount = e.portCounts[port]
	}
	e.mu.Unlock()

	policies, err := e.store.Load(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to load alert policies")
		return nil
	}
	if len(policies) == 0 {
		return nil
	}

	now := time.Now()
	sessionID := logging.SessionIDFromContext(ctx)
	var triggers []Trigger
	if p, ok := policies[ip]; ok && ipCount > 0 && ipCount >= p.Threshold {
		triggers = append(triggers, Trigger{Policy: p, KeyType: KeyTypeIP, Count: ipCount, FiredAt: now, SessionID: sessionID})
	}
	if portCount > 0 {
		if p, ok := policies[strconv.Itoa(port)]; ok && portCount >= p.Threshold {
			triggers = append(triggers, Trigger{Policy: p, KeyType: KeyTypePort, Count: portCount, FiredAt: now, SessionID: sessionID})
		}
	}

	for _, t := range triggers {
		metrics.AlertsFired.WithLabelValues(t.KeyType).Inc()
		logging.Ctx(ctx).Warn().
			Str("key", t.Policy.Key).
			Str("key_type", t.KeyType).
			Int("count", t.Count).
			Int("threshold", t.Policy.Threshold).
			Msg("Alert policy triggered")
	}
	e.notify(ctx, triggers)
	return triggers
}

// notify sends triggers to all enabled notifiers.
func (e *Engine) notify(ctx context.Context, triggers []Trigger) {
	if len(triggers) == 0 {
		return
	}

	e.mu.Lock()
	notifiers := make([]Notifier, 0, len(e.notifiers))
	for _, n := range e.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	e.mu.Unlock()

	// Deliveries outlive the observing call but not its values.
	base := context.WithoutCancel(ctx)
	for _, t := range triggers {
		for _, n := range notifiers {
			e.inflight.Add(1)
			go func(n Notifier, t Trigger) {
				defer e.inflight.Done()
				sendCtx, cancel := context.WithTimeout(base, e.sendTimeout)
				defer cancel()
				if err := n.Send(sendCtx, t); err != nil {
					logging.Error().Err(err).Str("notifier", n.Name()).Str("key", t.Policy.Key).Msg("failed to send alert")
				}
			}(n, t)
		}
	}
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
