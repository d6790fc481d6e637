// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package ingest

import (
	"errors"
	"testing"
	"time"
)

const (
	ekIndexLine = `{"index":{"_index":"packets-2026-10-18","_type":"doc"}}`
	ekTCPLine   = `{"timestamp":"1760780000123","layers":{"frame":{"frame_frame_len":"74","frame_frame_protocols":"eth:ethertype:ip:tcp"},"ip":{"ip_ip_src":"10.0.0.1","ip_ip_dst":"10.0.0.2","ip_ip_ttl":"64"},"tcp":{"tcp_tcp_srcport":"43512","tcp_tcp_dstport":"443"}}}`
	ekUDPDotted = `{"layers":{"frame":{"frame.len":"90","frame.time_epoch":"1760780001.5"},"ipv6":{"ipv6.src":"fe80::1","ipv6.dst":"fe80::2","ipv6.hlim":"255"},"udp":{"udp.srcport":"5353","udp.dstport":"5353"}}}`
	ekARPLine   = `{"timestamp":"1760780002000","layers":{"frame":{"frame_frame_len":"42","frame_frame_protocols":"eth:ethertype:arp"},"arp":{"arp_arp_opcode":"1"}}}`
)

func TestPacketDecoderTCP(t *testing.T) {
	rec, ok, err := PacketDecoder{}.Decode([]byte(ekTCPLine))
	if err != nil || !ok {
		t.Fatalf("Decode() = %v, %v", ok, err)
	}
	want := map[string]any{
		"src_ip":   "10.0.0.1",
		"dst_ip":   "10.0.0.2",
		"src_port": 43512.0,
		"dst_port": 443.0,
		"protocol": "tcp",
		"length":   74.0,
		"ttl":      64.0,
	}
	for k, v := range want {
		if rec.Fields[k] != v {
			t.Errorf("Fields[%q] = %v, want %v", k, rec.Fields[k], v)
		}
	}
	if !rec.Time.Equal(time.UnixMilli(1760780000123)) {
		t.Errorf("Time = %v", rec.Time)
	}
}

func TestPacketDecoderDottedIPv6(t *testing.T) {
	rec, ok, err := PacketDecoder{}.Decode([]byte(ekUDPDotted))
	if err != nil || !ok {
		t.Fatalf("Decode() = %v, %v", ok, err)
	}
	if rec.Fields["src_ip"] != "fe80::1" || rec.Fields["protocol"] != "udp" {
		t.Errorf("Fields = %v", rec.Fields)
	}
	if rec.Fields["ttl"] != 255.0 {
		t.Errorf("ttl = %v, want hop limit 255", rec.Fields["ttl"])
	}
	if rec.Time.Unix() != 1760780001 {
		t.Errorf("Time = %v, want frame.time_epoch", rec.Time)
	}
}

func TestPacketDecoderWithoutTransport(t *testing.T) {
	rec, ok, err := PacketDecoder{}.Decode([]byte(ekARPLine))
	if err != nil || !ok {
		t.Fatalf("Decode() = %v, %v", ok, err)
	}
	if rec.Fields["src_port"] != float64(UnknownPort) || rec.Fields["dst_port"] != float64(UnknownPort) {
		t.Errorf("ports = %v, %v, want unknown", rec.Fields["src_port"], rec.Fields["dst_port"])
	}
	if rec.Fields["protocol"] != "arp" {
		t.Errorf("protocol = %v, want arp", rec.Fields["protocol"])
	}
	if rec.Fields["src_ip"] != "" {
		t.Errorf("src_ip = %v, want empty", rec.Fields["src_ip"])
	}
}

func TestPacketDecoderSkipsAndErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantErr bool
	}{
		{"index line", ekIndexLine, false, false},
		{"blank line", "   ", false, false},
		{"malformed json", `{"layers":`, false, true},
		{"no layers", `{"timestamp":"1"}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := PacketDecoder{}.Decode([]byte(tt.line))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var de *DecodeError
				if !errors.As(err, &de) || de.Mode != "packet" {
					t.Errorf("err = %v, want *DecodeError", err)
				}
			}
		})
	}
}

func TestPacketDecoderFallbackClock(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	d := PacketDecoder{Now: func() time.Time { return fixed }}
	rec, ok, err := d.Decode([]byte(`{"layers":{"ip":{"ip_ip_src":"1.1.1.1","ip_ip_dst":"2.2.2.2"}}}`))
	if err != nil || !ok {
		t.Fatalf("Decode() = %v, %v", ok, err)
	}
	if !rec.Time.Equal(fixed) {
		t.Errorf("Time = %v, want %v", rec.Time, fixed)
	}
}

func TestDecodeErrorTruncatesLine(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	de := newDecodeError("packet", long, errors.New("boom"))
	if len(de.Line) > maxErrorLine+3 {
		t.Errorf("len(Line) = %d", len(de.Line))
	}
}
