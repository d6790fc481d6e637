// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package main is the entry point for the packetlens server.

packetlens runs a capture tool (tshark or sysdig, locally or over SSH),
scores its output through the pipelines compiled from a scenario graph,
and records every anomaly with its explanation.

# Application Architecture

	RootSupervisor ("packetlens")
	├── SessionsSupervisor ("sessions-layer")
	│   └── SessionService (the configured capture session)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── alert delivery drain
	│   ├── anomaly publisher (NATS, optional)
	│   └── WAL retry loop (when WAL_PATH is set)
	└── APISupervisor ("api-layer")
	    └── HTTP server (/metrics, /healthz)

Component initialization order:

 1. Configuration: koanf v2 (defaults, config.yaml, environment)
 2. Stores: anomaly records and alert policies (file or BadgerDB)
 3. Alert engine and notifiers (email, webhook) behind circuit breakers
 4. Anomaly publisher (NATS core or JetStream) when NATS_ENABLED=true,
    behind a BadgerDB write-ahead log when WAL_PATH is set
 5. Session manager and supervisor tree

# Signal Handling

SIGINT and SIGTERM cancel the tree. The capture session is stopped, pending
alert notifications are drained and the HTTP server shuts down gracefully.

# Example Usage

	export SCENARIO_ID=lab-01
	export GRAPH_PATH=/data/lab-01/graph.yaml
	export ARTIFACT_DIR=/data/lab-01/artifacts
	export CAPTURE_MODE=flow
	export CAPTURE_INTERFACE=eth0
	./packetlens
*/
package main
