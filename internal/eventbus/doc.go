// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package eventbus publishes recorded anomalies to other systems.

A Publisher wraps any Watermill publisher and sends each anomaly event as a
JSON message on one topic (packetlens.anomalies by default). The message
UUID is the event id, which JetStream uses as Nats-Msg-Id for
deduplication, and the scenario, execution, pipeline and source address
are carried as metadata.

NewNATSPublisher connects to a NATS server. With JetStream enabled it first
ensures a stream covering the topic exists; otherwise messages use core
NATS. NewGoChannelPublisher keeps messages in process, which is useful for
tests and for embedding.

Publisher.OnAnomaly has the signature of the session anomaly callback so
the bus can be plugged into a session directly.
*/
package eventbus
