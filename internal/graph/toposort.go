// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import "sort"

// discoveryOrder lists node ids by first appearance in the connections,
// followed by unconnected elements in sorted order.
func discoveryOrder(g *Graph) []string {
	seen := make(map[string]bool)
	var order []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, c := range g.Connections {
		add(c.StartID)
		add(c.EndID)
	}
	var rest []string
	for id := range g.Elements {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// TopologicalOrder orders the graph's nodes so every connection points
// forward, using Kahn's algorithm. Ties are broken by discovery order; the
// order among independent branches carries no meaning.
func TopologicalOrder(g *Graph) ([]string, error) {
	nodes := discoveryOrder(g)
	indegree := make(map[string]int, len(nodes))
	for _, id := range nodes {
		indegree[id] = 0
	}
	for _, c := range g.Connections {
		indegree[c.EndID]++
	}
	adjacency := g.children()

	queue := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		for _, id := range nodes {
			if indegree[id] > 0 {
				return nil, &ValidationError{NodeID: id, Rule: RuleCycle}
			}
		}
	}
	return order, nil
}
