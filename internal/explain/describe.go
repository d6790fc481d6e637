// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/packetlens/internal/inference"
)

// UnknownPort is the source port of records without a transport layer.
const UnknownPort = -1

// Describe builds a short human-readable description of a captured row.
func Describe(raw *inference.Frame, row int) string {
	get := func(col string) (string, bool) {
		v, ok := raw.Get(row, col)
		if !ok {
			return "", false
		}
		s := v.String()
		return s, s != ""
	}

	var parts []string
	if src, ok := get("src_ip"); ok {
		parts = append(parts, "src="+src)
	}
	if dst, ok := get("dst_ip"); ok {
		parts = append(parts, "dst="+dst)
	}
	sp, spOK := get("src_port")
	dp, dpOK := get("dst_port")
	if spOK && dpOK && sp != "-1" && dp != "-1" {
		parts = append(parts, fmt.Sprintf("ports=%s->%s", sp, dp))
	}
	if proto, ok := get("protocol"); ok {
		parts = append(parts, "protocol="+proto)
	}

	if len(parts) == 0 {
		if proc, ok := get("proc_name"); ok {
			parts = append(parts, "proc="+proc)
		}
		if pid, ok := get("proc_pid"); ok {
			parts = append(parts, "pid="+pid)
		}
		if evt, ok := get("evt_type"); ok {
			parts = append(parts, "evt="+evt)
		}
		if dir, ok := get("evt_dir"); ok {
			parts = append(parts, "dir="+dir)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("row %d", row)
	}
	return strings.Join(parts, ", ")
}

// Source returns the source address and port of a captured row. The port
// is UnknownPort when absent.
func Source(raw *inference.Frame, row int) (string, int) {
	ip := ""
	if v, ok := raw.Get(row, "src_ip"); ok {
		ip = v.String()
	}
	port := UnknownPort
	if v, ok := raw.Get(row, "src_port"); ok {
		n := v.Num
		if v.IsText {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return ip, port
			}
			n = parsed
		}
		if n >= 0 && n <= math.MaxUint16 && n == math.Trunc(n) {
			port = int(n)
		}
	}
	return ip, port
}

// RawContext serializes a captured row as a JSON object.
func RawContext(raw *inference.Frame, row int) string {
	if row < 0 || row >= raw.Len() {
		return ""
	}
	obj := make(map[string]any, len(raw.Columns))
	for i, c := range raw.Columns {
		v := raw.Rows[row][i]
		if v.IsText {
			obj[c] = v.Str
		} else {
			obj[c] = clean(v.Num)
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(data)
}

// clean replaces non-finite values with zero.
func clean(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// featureValues maps processed columns to cleaned values of one row.
func featureValues(columns []string, row []float64) map[string]float64 {
	out := make(map[string]float64, len(columns))
	for i, c := range columns {
		if i < len(row) {
			out[c] = clean(row[i])
		}
	}
	return out
}
