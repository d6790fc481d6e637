// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"encoding/binary"
	"math"
	"net/netip"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tomtom215/packetlens/internal/logging"
)

// UnknownProtocolCode is the sentinel for protocol names outside ProtocolCodes.
const UnknownProtocolCode = -1

// ProtocolCodes maps protocol names to IANA protocol numbers.
var ProtocolCodes = map[string]float64{
	"hopopt":    0,
	"icmp":      1,
	"igmp":      2,
	"ipv4":      4,
	"tcp":       6,
	"egp":       8,
	"udp":       17,
	"ipv6":      41,
	"rsvp":      46,
	"gre":       47,
	"esp":       50,
	"ah":        51,
	"icmpv6":    58,
	"ipv6-icmp": 58,
	"eigrp":     88,
	"ospf":      89,
	"pim":       103,
	"vrrp":      112,
	"l2tp":      115,
	"sctp":      132,
	"udplite":   136,
}

// DefaultAddressColumns are coerced to address ordinals.
var DefaultAddressColumns = []string{"src_ip", "dst_ip", "ip_src", "ip_dst"}

// DefaultProtocolColumns are coerced to protocol numbers.
var DefaultProtocolColumns = []string{"protocol", "proto"}

// Normalizer coerces text values to numbers. It is safe for concurrent use.
type Normalizer struct {
	addressCols  map[string]bool
	protocolCols map[string]bool
	// warned deduplicates unknown-protocol log lines
	warned *lru.Cache[string, struct{}]
}

// NewNormalizer returns a normalizer for the default address and protocol columns.
func NewNormalizer() *Normalizer {
	return NewNormalizerFor(DefaultAddressColumns, DefaultProtocolColumns)
}

// NewNormalizerFor returns a normalizer for explicit address and protocol columns.
func NewNormalizerFor(addressCols, protocolCols []string) *Normalizer {
	warned, _ := lru.New[string, struct{}](256) //nolint:errcheck // size is positive
	n := &Normalizer{
		addressCols:  make(map[string]bool, len(addressCols)),
		protocolCols: make(map[string]bool, len(protocolCols)),
		warned:       warned,
	}
	for _, c := range addressCols {
		n.addressCols[c] = true
	}
	for _, c := range protocolCols {
		n.protocolCols[c] = true
	}
	return n
}

// Coerce converts one value of the given column to a number.
func (n *Normalizer) Coerce(column string, v Value) float64 {
	if !v.IsText {
		return v.Num
	}
	s := strings.TrimSpace(v.Str)
	switch {
	case n.addressCols[column]:
		return AddressOrdinal(s)
	case n.protocolCols[column]:
		return n.protocolCode(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		return f
	}
	if f, err := strconv.ParseInt(s, 0, 64); err == nil {
		return float64(f)
	}
	return 0
}

func (n *Normalizer) protocolCode(s string) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	name := strings.ToLower(s)
	if code, ok := ProtocolCodes[name]; ok {
		return code
	}
	if ok, _ := n.warned.ContainsOrAdd(name, struct{}{}); !ok {
		logging.Warn().Str("protocol", s).Msg("Unknown protocol name, using sentinel code")
	}
	return UnknownProtocolCode
}

// AddressOrdinal returns the integer ordinal of an IPv4 or IPv6 address.
// IPv6 addresses use their low 64 bits. Unparseable input yields zero.
func AddressOrdinal(s string) float64 {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0
	}
	if addr.Is4() || addr.Is4In6() {
		b := addr.Unmap().As4()
		return float64(binary.BigEndian.Uint32(b[:]))
	}
	b := addr.As16()
	return float64(binary.BigEndian.Uint64(b[8:]))
}

// CoerceFrame replaces every text value in the frame with its numeric form.
func (n *Normalizer) CoerceFrame(f *Frame) {
	for r, row := range f.Rows {
		for i, v := range row {
			if v.IsText {
				f.Rows[r][i] = Num(n.Coerce(f.Columns[i], v))
			}
		}
	}
}

// Matrix returns the frame as a numeric matrix, coercing text on the way.
func (n *Normalizer) Matrix(f *Frame) [][]float64 {
	out := make([][]float64, len(f.Rows))
	for r, row := range f.Rows {
		nr := make([]float64, len(row))
		for i, v := range row {
			nr[i] = n.Coerce(f.Columns[i], v)
		}
		out[r] = nr
	}
	return out
}

// columnValues returns the numeric values of a column, or nil when absent.
func (n *Normalizer) columnValues(f *Frame, column string) ([]float64, bool) {
	i, ok := f.Index(column)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = n.Coerce(column, row[i])
	}
	return out, true
}
