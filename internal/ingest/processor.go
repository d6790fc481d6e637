// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"fmt"
	"time"

	"github.com/tomtom215/packetlens/internal/capture"
)

// Processor turns lines into batches of records for scoring. A processor
// is owned by a single goroutine.
type Processor interface {
	// Feed decodes one line and returns any records that became ready.
	Feed(line []byte, now time.Time) ([]Record, error)

	// Tick returns records that became ready through the passage of time.
	Tick(now time.Time) []Record
}

// NewProcessor returns the processor for a capture mode. start begins the
// first flow interval.
func NewProcessor(mode string, structured bool, interval time.Duration, start time.Time) (Processor, error) {
	switch mode {
	case capture.ModePacket:
		return &LineProcessor{Decoder: PacketDecoder{}}, nil
	case capture.ModeSyscalls:
		return &LineProcessor{Decoder: SyscallDecoder{}}, nil
	case capture.ModeFlow:
		return NewFlowProcessor(NewFlowDecoder(structured), interval, start), nil
	default:
		return nil, fmt.Errorf("%w: %q", capture.ErrUnknownMode, mode)
	}
}

// LineProcessor emits one record per decoded line.
type LineProcessor struct {
	Decoder Decoder
}

// Feed implements Processor.
func (p *LineProcessor) Feed(line []byte, _ time.Time) ([]Record, error) {
	rec, ok, err := p.Decoder.Decode(line)
	if err != nil || !ok {
		return nil, err
	}
	return []Record{rec}, nil
}

// Tick implements Processor.
func (p *LineProcessor) Tick(time.Time) []Record { return nil }

// FlowProcessor aggregates observations into per-flow records.
type FlowProcessor struct {
	decoder *FlowDecoder
	window  *FlowWindow
}

// NewFlowProcessor returns a flow processor.
func NewFlowProcessor(decoder *FlowDecoder, interval time.Duration, start time.Time) *FlowProcessor {
	return &FlowProcessor{decoder: decoder, window: NewFlowWindow(interval, start)}
}

// Window returns the processor's flow window.
func (p *FlowProcessor) Window() *FlowWindow { return p.window }

// Feed implements Processor.
func (p *FlowProcessor) Feed(line []byte, now time.Time) ([]Record, error) {
	obs, ok, err := p.decoder.DecodeObservation(line)
	if err != nil || !ok {
		return nil, err
	}
	return p.window.Add(obs, now), nil
}

// Tick implements Processor.
func (p *FlowProcessor) Tick(now time.Time) []Record {
	if !p.window.Due(now) {
		return nil
	}
	return p.window.Flush(now)
}
