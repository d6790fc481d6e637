// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/packetlens/internal/capture"
)

// ErrShortRow is returned for text flow rows with fewer columns than the header.
var ErrShortRow = errors.New("flow row has too few columns")

// Observation is one packet seen by the flow aggregator.
type Observation struct {
	Time     time.Time
	SrcIP    string
	DstIP    string
	SrcPort  int
	DstPort  int
	Protocol string
	Length   float64
	TTL      float64
	HasTTL   bool
}

// FlowDecoder decodes flow mode output into observations.
type FlowDecoder struct {
	// Structured selects tshark EK JSON instead of comma separated fields.
	Structured bool

	// Now supplies timestamps for rows without one. Nil uses time.Now.
	Now func() time.Time

	packet  PacketDecoder
	columns map[string]int
}

// NewFlowDecoder returns a flow decoder. Text rows are read in
// capture.FlowFields order until a header row says otherwise.
func NewFlowDecoder(structured bool) *FlowDecoder {
	d := &FlowDecoder{Structured: structured}
	d.setColumns(capture.FlowFields)
	return d
}

func (d *FlowDecoder) setColumns(names []string) {
	d.columns = make(map[string]int, len(names))
	for i, n := range names {
		d.columns[strings.TrimSpace(n)] = i
	}
}

func (d *FlowDecoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// DecodeObservation decodes one line. ok is false for header and index lines.
func (d *FlowDecoder) DecodeObservation(line []byte) (Observation, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Observation{}, false, nil
	}
	if d.Structured {
		d.packet.Now = d.Now
		rec, ok, err := d.packet.Decode(line)
		if err != nil || !ok {
			return Observation{}, ok, err
		}
		obs, err := observation(rec)
		if err != nil {
			return Observation{}, false, newDecodeError("flow", line, err)
		}
		return obs, true, nil
	}
	return d.decodeText(line)
}

func (d *FlowDecoder) decodeText(line []byte) (Observation, bool, error) {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	row, err := r.Read()
	if err != nil {
		return Observation{}, false, newDecodeError("flow", line, err)
	}

	if isHeader(row) {
		d.setColumns(row)
		return Observation{}, false, nil
	}

	get := func(name string) string {
		i, ok := d.columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	if len(row) < 3 {
		return Observation{}, false, newDecodeError("flow", line, fmt.Errorf("%w: %d", ErrShortRow, len(row)))
	}

	obs := Observation{
		SrcIP:   get("ip.src"),
		DstIP:   get("ip.dst"),
		SrcPort: UnknownPort,
		DstPort: UnknownPort,
	}
	if obs.SrcIP == "" && obs.DstIP == "" {
		obs.SrcIP, obs.DstIP = get("ipv6.src"), get("ipv6.dst")
	}
	if obs.SrcIP == "" && obs.DstIP == "" {
		return Observation{}, false, newDecodeError("flow", line, ErrNoNetworkLayer)
	}

	ts, ok := epochSeconds(get("frame.time_epoch"))
	if !ok {
		ts = d.now()
	}
	obs.Time = ts

	transport := ""
	for _, tl := range []string{"tcp", "udp"} {
		sp, dp := get(tl+".srcport"), get(tl+".dstport")
		if sp != "" || dp != "" {
			obs.SrcPort, obs.DstPort = parsePort(sp), parsePort(dp)
			transport = tl
			break
		}
	}
	obs.Protocol = strings.ToLower(get("_ws.col.Protocol"))
	if transport != "" && (obs.Protocol == "" || !isKnownTransport(obs.Protocol)) {
		obs.Protocol = transport
	}
	obs.Length, _ = parseFloat(get("frame.len"))
	obs.TTL, obs.HasTTL = parseFloat(get("ip.ttl"))
	return obs, true, nil
}

func isKnownTransport(p string) bool {
	for _, tl := range transportLayers {
		if p == tl {
			return true
		}
	}
	return false
}

// isHeader reports whether a row names tshark fields rather than values.
func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	if _, ok := parseFloat(row[0]); ok {
		return false
	}
	for _, col := range row {
		col = strings.TrimSpace(col)
		for _, f := range capture.FlowFields {
			if col == f {
				return true
			}
		}
	}
	return false
}
