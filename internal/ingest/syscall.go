// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SyscallDecoder decodes sysdig -j output.
type SyscallDecoder struct {
	// Now supplies timestamps for events without evt.outputtime. Nil uses time.Now.
	Now func() time.Time
}

// Decode implements Decoder.
func (d SyscallDecoder) Decode(line []byte) (Record, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, false, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(line, &doc); err != nil {
		return Record{}, false, newDecodeError("syscalls", line, err)
	}

	fields := make(map[string]any, len(doc)+1)
	flatten("", doc, fields)

	ts := time.Time{}
	if ns, ok := fields["evt_outputtime"].(float64); ok && ns > 0 {
		ts = time.Unix(0, int64(ns))
	} else if s, ok := fields["evt_time"].(string); ok {
		ts, _ = epochSeconds(s)
	}
	if ts.IsZero() {
		if d.Now != nil {
			ts = d.Now()
		} else {
			ts = time.Now()
		}
	}
	fields["timestamp"] = unixSeconds(ts)
	return Record{Time: ts, Fields: fields}, true, nil
}

// flatten copies nested objects into out with underscore-joined keys.
// Booleans become 1 or 0 and arrays are kept as JSON text.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ReplaceAll(k, ".", "_")
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch t := v.(type) {
		case nil:
		case map[string]any:
			flatten(key, t, out)
		case bool:
			if t {
				out[key] = 1.0
			} else {
				out[key] = 0.0
			}
		case float64, string:
			out[key] = t
		case []any:
			data, err := json.Marshal(t)
			if err == nil {
				out[key] = string(data)
			}
		}
	}
}
