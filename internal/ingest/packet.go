// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrNoLayers is returned for EK documents without a layers object.
	ErrNoLayers = errors.New("packet has no layers")

	// ErrNoNetworkLayer is returned when a flow observation has no addresses.
	ErrNoNetworkLayer = errors.New("packet has no network layer")
)

// transport layers in the order they take precedence as the protocol.
var transportLayers = []string{"tcp", "udp", "sctp", "icmpv6", "icmp"}

type ekDocument struct {
	Index     json.RawMessage `json:"index"`
	Timestamp any             `json:"timestamp"`
	Layers    map[string]any  `json:"layers"`
}

// packetLayers gives typed access to the layers of one EK document.
type packetLayers map[string]any

// layer returns the named protocol layer, taking the outermost instance of
// repeated layers.
func (l packetLayers) layer(name string) (map[string]any, bool) {
	switch v := l[name].(type) {
	case map[string]any:
		return v, true
	case []any:
		if len(v) > 0 {
			m, ok := v[0].(map[string]any)
			return m, ok
		}
	}
	return nil, false
}

// field looks up proto.name, accepting both the EK key form (ip_ip_src)
// and the dotted form (ip.src).
func (l packetLayers) field(proto, name string) (string, bool) {
	layer, ok := l.layer(proto)
	if !ok {
		return "", false
	}
	for _, key := range []string{proto + "_" + proto + "_" + name, proto + "." + name, proto + "_" + name} {
		if v, ok := layer[key]; ok {
			return scalar(v)
		}
	}
	return "", false
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		if len(t) > 0 {
			return scalar(t[0])
		}
	}
	return "", false
}

// PacketDecoder decodes tshark -T ek output.
type PacketDecoder struct {
	// Now supplies timestamps for packets without one. Nil uses time.Now.
	Now func() time.Time
}

// Decode implements Decoder.
func (d PacketDecoder) Decode(line []byte) (Record, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, false, nil
	}
	var doc ekDocument
	if err := json.Unmarshal(line, &doc); err != nil {
		return Record{}, false, newDecodeError("packet", line, err)
	}
	if len(doc.Index) > 0 && doc.Layers == nil {
		return Record{}, false, nil
	}
	if doc.Layers == nil {
		return Record{}, false, newDecodeError("packet", line, ErrNoLayers)
	}

	layers := packetLayers(doc.Layers)
	ts, ok := ekTimestamp(doc.Timestamp)
	if !ok {
		if s, found := layers.field("frame", "time_epoch"); found {
			ts, ok = epochSeconds(s)
		}
	}
	if !ok {
		ts = d.now()
	}

	fields := map[string]any{
		"timestamp": unixSeconds(ts),
		"src_ip":    "",
		"dst_ip":    "",
		"src_port":  float64(UnknownPort),
		"dst_port":  float64(UnknownPort),
		"protocol":  packetProtocol(layers),
	}
	for _, ipLayer := range []string{"ip", "ipv6"} {
		src, okSrc := layers.field(ipLayer, "src")
		dst, okDst := layers.field(ipLayer, "dst")
		if okSrc || okDst {
			fields["src_ip"] = src
			fields["dst_ip"] = dst
			break
		}
	}
	for _, tl := range []string{"tcp", "udp", "sctp"} {
		if _, ok := layers.layer(tl); !ok {
			continue
		}
		if sp, ok := layers.field(tl, "srcport"); ok {
			fields["src_port"] = float64(parsePort(sp))
		}
		if dp, ok := layers.field(tl, "dstport"); ok {
			fields["dst_port"] = float64(parsePort(dp))
		}
		break
	}
	if s, ok := layers.field("frame", "len"); ok {
		if n, ok := parseFloat(s); ok {
			fields["length"] = n
		}
	}
	if s, ok := layers.field("ip", "ttl"); ok {
		if n, ok := parseFloat(s); ok {
			fields["ttl"] = n
		}
	} else if s, ok := layers.field("ipv6", "hlim"); ok {
		if n, ok := parseFloat(s); ok {
			fields["ttl"] = n
		}
	}

	return Record{Time: ts, Fields: fields}, true, nil
}

func (d PacketDecoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ekTimestamp parses the EK document timestamp, epoch milliseconds as a
// string or number.
func ekTimestamp(v any) (time.Time, bool) {
	var ms int64
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		ms = n
	case float64:
		ms = int64(t)
	default:
		return time.Time{}, false
	}
	if ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// packetProtocol names the transport layer of a packet, falling back to
// the last entry of frame.protocols.
func packetProtocol(l packetLayers) string {
	for _, name := range transportLayers {
		if _, ok := l.layer(name); ok {
			return name
		}
	}
	if s, ok := l.field("frame", "protocols"); ok && s != "" {
		parts := strings.Split(s, ":")
		return strings.ToLower(parts[len(parts)-1])
	}
	return ""
}

// observation converts a decoded packet record into a flow observation.
func observation(rec Record) (Observation, error) {
	obs := Observation{Time: rec.Time, SrcPort: UnknownPort, DstPort: UnknownPort}
	str := func(k string) string {
		s, _ := rec.Fields[k].(string)
		return s
	}
	num := func(k string) (float64, bool) {
		f, ok := rec.Fields[k].(float64)
		return f, ok
	}
	obs.SrcIP = str("src_ip")
	obs.DstIP = str("dst_ip")
	obs.Protocol = str("protocol")
	if obs.SrcIP == "" && obs.DstIP == "" {
		return obs, ErrNoNetworkLayer
	}
	if p, ok := num("src_port"); ok {
		obs.SrcPort = int(p)
	}
	if p, ok := num("dst_port"); ok {
		obs.DstPort = int(p)
	}
	obs.Length, _ = num("length")
	obs.TTL, obs.HasTTL = num("ttl")
	return obs, nil
}
