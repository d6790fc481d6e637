// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package graph

import (
	"errors"
	"fmt"

	"github.com/tomtom215/packetlens/internal/validation"
)

// Validation rules reported in ValidationError.
const (
	RuleMissingType        = "missing_type"
	RuleMissingEndpoint    = "missing_endpoint"
	RuleDanglingConnection = "dangling_connection"
	RuleSelfLoop           = "self_loop"
	RuleSourceHasIncoming  = "source_has_incoming"
	RuleMonitorHasOutgoing = "monitor_has_outgoing"
	RuleMissingInput       = "missing_input"
	RuleMissingOutput      = "missing_output"
	RuleCycle              = "cycle"
)

// ErrCycle is returned when the graph is not acyclic.
var ErrCycle = errors.New("graph contains a cycle")

// ValidationError names the node and the rule it violates.
type ValidationError struct {
	NodeID string
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("graph validation: node %q violates %s: %s", e.NodeID, e.Rule, e.Detail)
	}
	return fmt.Sprintf("graph validation: node %q violates %s", e.NodeID, e.Rule)
}

// Unwrap returns ErrCycle for cycle violations.
func (e *ValidationError) Unwrap() error {
	if e.Rule == RuleCycle {
		return ErrCycle
	}
	return nil
}

// Validate checks the structural and role invariants of a graph and returns
// the first violation in node id order. Nodes of unregistered types are not
// checked here; they fail the pipelines that contain them at build time.
func Validate(g *Graph, types TypeTable) error {
	for _, id := range g.NodeIDs() {
		if verr := validation.ValidateStruct(g.Elements[id]); verr != nil {
			return &ValidationError{NodeID: id, Rule: RuleMissingType, Detail: verr.Error()}
		}
	}

	in := make(map[string]int)
	out := make(map[string]int)
	for i, c := range g.Connections {
		if verr := validation.ValidateStruct(c); verr != nil {
			return &ValidationError{
				NodeID: c.StartID + "->" + c.EndID,
				Rule:   RuleMissingEndpoint,
				Detail: fmt.Sprintf("connection %d", i),
			}
		}
		if _, ok := g.Elements[c.StartID]; !ok {
			return &ValidationError{NodeID: c.StartID, Rule: RuleDanglingConnection, Detail: "connection start is not an element"}
		}
		if _, ok := g.Elements[c.EndID]; !ok {
			return &ValidationError{NodeID: c.EndID, Rule: RuleDanglingConnection, Detail: "connection end is not an element"}
		}
		if c.StartID == c.EndID {
			return &ValidationError{NodeID: c.StartID, Rule: RuleSelfLoop}
		}
		out[c.StartID]++
		in[c.EndID]++
	}

	for _, id := range g.NodeIDs() {
		nt, ok := types.Lookup(g.Elements[id].Type)
		if !ok {
			continue
		}
		switch nt.Category {
		case CategorySource:
			if in[id] > 0 {
				return &ValidationError{NodeID: id, Rule: RuleSourceHasIncoming}
			}
		case CategoryMonitor:
			if out[id] > 0 {
				return &ValidationError{NodeID: id, Rule: RuleMonitorHasOutgoing}
			}
		case CategoryPreprocessing, CategoryModel:
			if in[id] == 0 {
				return &ValidationError{NodeID: id, Rule: RuleMissingInput}
			}
			if out[id] == 0 {
				return &ValidationError{NodeID: id, Rule: RuleMissingOutput}
			}
		case CategoryExplainability:
			if in[id] == 0 {
				return &ValidationError{NodeID: id, Rule: RuleMissingInput}
			}
		}
	}

	if _, err := TopologicalOrder(g); err != nil {
		return err
	}
	return nil
}
