// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnknownPort marks records without a transport layer port.
const UnknownPort = -1

// Record is one decoded item ready for scoring.
type Record struct {
	Time   time.Time
	Fields map[string]any
}

// Decoder turns one line of tool output into a record. ok is false for
// lines that carry no record, such as header or index lines.
type Decoder interface {
	Decode(line []byte) (rec Record, ok bool, err error)
}

// DecodeError reports a line that could not be decoded.
type DecodeError struct {
	Mode string
	Line string
	Err  error
}

const maxErrorLine = 120

func newDecodeError(mode string, line []byte, err error) *DecodeError {
	s := string(line)
	if len(s) > maxErrorLine {
		s = s[:maxErrorLine] + "..."
	}
	return &DecodeError{Mode: mode, Line: s, Err: err}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s line %q: %v", e.Mode, e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Maps returns the field maps of records, in order.
func Maps(records []Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.Fields
	}
	return out
}

// epochSeconds parses a decimal seconds timestamp such as 1700000000.123456.
func epochSeconds(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)), true
}

// unixSeconds returns t as fractional epoch seconds.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func parsePort(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownPort
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return UnknownPort
	}
	return n
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
