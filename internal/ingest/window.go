// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"time"

	"github.com/tomtom215/packetlens/internal/metrics"
)

// DefaultFlowInterval is the flow window length used when none is configured.
const DefaultFlowInterval = time.Second

type endpoint struct {
	ip   string
	port int
}

func (e endpoint) less(o endpoint) bool {
	if e.ip != o.ip {
		return e.ip < o.ip
	}
	return e.port < o.port
}

// flowKey identifies a flow regardless of direction.
type flowKey struct {
	lo, hi   endpoint
	protocol string
}

func keyOf(obs Observation) flowKey {
	a := endpoint{obs.SrcIP, obs.SrcPort}
	b := endpoint{obs.DstIP, obs.DstPort}
	if b.less(a) {
		a, b = b, a
	}
	return flowKey{lo: a, hi: b, protocol: obs.Protocol}
}

type flowStats struct {
	// src and dst are oriented as the first observed packet.
	src, dst    endpoint
	count       int
	bytes       float64
	first, last time.Time
	ttlSum      float64
	ttlCount    int
}

// FlowWindow aggregates observations per flow over fixed intervals. It is
// not safe for concurrent use.
type FlowWindow struct {
	interval time.Duration
	start    time.Time
	flows    map[flowKey]*flowStats
	order    []flowKey
}

// NewFlowWindow returns a window whose first interval begins at start.
func NewFlowWindow(interval time.Duration, start time.Time) *FlowWindow {
	if interval <= 0 {
		interval = DefaultFlowInterval
	}
	return &FlowWindow{
		interval: interval,
		start:    start,
		flows:    make(map[flowKey]*flowStats),
	}
}

// Interval returns the window length.
func (w *FlowWindow) Interval() time.Duration { return w.interval }

// Len returns the number of flows in the current window.
func (w *FlowWindow) Len() int { return len(w.order) }

// Due reports whether the current interval has ended at now.
func (w *FlowWindow) Due(now time.Time) bool {
	return !now.Before(w.start.Add(w.interval))
}

// Add records an observation. If the interval has already ended at now,
// the current window is flushed first and its records returned, so the
// observation opens the next window.
func (w *FlowWindow) Add(obs Observation, now time.Time) []Record {
	var flushed []Record
	if w.Due(now) {
		flushed = w.Flush(now)
	}

	key := keyOf(obs)
	st, ok := w.flows[key]
	if !ok {
		st = &flowStats{
			src:   endpoint{obs.SrcIP, obs.SrcPort},
			dst:   endpoint{obs.DstIP, obs.DstPort},
			first: obs.Time,
		}
		w.flows[key] = st
		w.order = append(w.order, key)
	}
	st.count++
	st.bytes += obs.Length
	if obs.Time.Before(st.first) {
		st.first = obs.Time
	}
	if obs.Time.After(st.last) {
		st.last = obs.Time
	}
	if obs.HasTTL {
		st.ttlSum += obs.TTL
		st.ttlCount++
	}
	return flushed
}

// Flush returns one record per flow in first-seen order, clears the window
// and starts the next interval at now.
func (w *FlowWindow) Flush(now time.Time) []Record {
	w.start = now
	if len(w.order) == 0 {
		return nil
	}

	records := make([]Record, 0, len(w.order))
	for _, key := range w.order {
		st := w.flows[key]
		avgTTL := 0.0
		if st.ttlCount > 0 {
			avgTTL = st.ttlSum / float64(st.ttlCount)
		}
		records = append(records, Record{
			Time: now,
			Fields: map[string]any{
				"timestamp":        unixSeconds(now),
				"src_ip":           st.src.ip,
				"dst_ip":           st.dst.ip,
				"src_port":         float64(st.src.port),
				"dst_port":         float64(st.dst.port),
				"protocol":         key.protocol,
				"packet_count":     float64(st.count),
				"total_bytes":      st.bytes,
				"avg_packet_size":  st.bytes / float64(st.count),
				"duration_seconds": st.last.Sub(st.first).Seconds(),
				"avg_ttl":          avgTTL,
			},
		})
	}

	w.flows = make(map[flowKey]*flowStats)
	w.order = w.order[:0]

	metrics.FlowFlushes.Inc()
	metrics.FlowRecords.Add(float64(len(records)))
	return records
}
