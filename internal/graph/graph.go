// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Node is one element of a graph.
type Node struct {
	Type       string         `json:"type" yaml:"type" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Connection is a directed edge between two nodes.
type Connection struct {
	StartID     string `json:"startId" yaml:"startId" validate:"required"`
	EndID       string `json:"endId" yaml:"endId" validate:"required"`
	StartOutput string `json:"startOutput,omitempty" yaml:"startOutput,omitempty"`
}

// Graph is a node graph as authored by a user.
type Graph struct {
	Elements    map[string]Node `json:"elements" yaml:"elements"`
	Connections []Connection    `json:"connections" yaml:"connections"`
}

// NodeIDs returns the element ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Elements))
	for id := range g.Elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// parents returns, per node, the start ids of its incoming connections in
// connection order.
func (g *Graph) parents() map[string][]string {
	out := make(map[string][]string)
	for _, c := range g.Connections {
		out[c.EndID] = append(out[c.EndID], c.StartID)
	}
	return out
}

// children returns, per node, the end ids of its outgoing connections in
// connection order.
func (g *Graph) children() map[string][]string {
	out := make(map[string][]string)
	for _, c := range g.Connections {
		out[c.StartID] = append(out[c.StartID], c.EndID)
	}
	return out
}

// Decode parses a graph document. Format is "yaml" or "json".
func Decode(data []byte, format string) (*Graph, error) {
	g := &Graph{}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, g); err != nil {
			return nil, fmt.Errorf("decode yaml graph: %w", err)
		}
	case "json", "":
		if err := json.Unmarshal(data, g); err != nil {
			return nil, fmt.Errorf("decode json graph: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported graph format %q", format)
	}
	if g.Elements == nil {
		g.Elements = make(map[string]Node)
	}
	return g, nil
}

// LoadFile reads a graph document, choosing the format by file extension.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format != "yaml" && format != "yml" {
		format = "json"
	}
	return Decode(data, format)
}
