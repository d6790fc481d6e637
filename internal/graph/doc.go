// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package graph compiles a user-defined node graph into executable pipelines.

A Graph is a set of typed nodes joined by directed connections. Each node
type has a category in a TypeTable:

	source          capture input, never receives connections
	preprocessing   fitted transformer, needs input and output
	model           fitted detector, needs input and output
	explainability  SHAP or LIME binding, needs input
	monitor         sink, never originates connections

Builder.Build validates the graph, orders it topologically, and emits one
PipelineDef per model node. A model's steps are its preprocessing ancestors
in root-to-leaf order. Its explainer is the first SHAP or LIME node found
walking forward from it. Fitted artifacts are loaded from

	{ArtifactDir}/{nodeID}_{scenarioID}.json

with an optional training reference sample in

	{ArtifactDir}/{nodeID}_{scenarioID}.reference.json

A violated graph invariant fails the whole build. A missing artifact or
unknown node type fails only the pipeline that needs it.

Graph documents are JSON or YAML:

	{
	  "elements": {
	    "cap":   {"type": "PacketCapture"},
	    "scale": {"type": "StandardScaler"},
	    "model": {"type": "IsolationForest"},
	    "shap":  {"type": "SHAP", "parameters": {"explainer_class": "KernelExplainer"}},
	    "out":   {"type": "Monitor"}
	  },
	  "connections": [
	    {"startId": "cap", "endId": "scale"},
	    {"startId": "scale", "endId": "model"},
	    {"startId": "model", "endId": "shap"},
	    {"startId": "model", "endId": "out"}
	  ]
	}
*/
package graph
