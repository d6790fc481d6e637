// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package alerting counts anomalous sources and notifies when a stored alert
policy's threshold is reached.

A Policy maps a key, either a source IP address or a source port number
written in decimal, to a threshold and a target email address. Policies
live in a PolicyStore: FileStore keeps them in a JSON file and BadgerStore
in a BadgerDB.

Engine.Observe increments the in-memory counters of a source IP and, when
known, its port, then returns a Trigger for every policy whose counter has
reached the threshold. Counters only grow and are reset by a restart.
Alerts are not throttled: every observation at or above the threshold
notifies again.

Notifications are delivered asynchronously by the registered notifiers
(email over SMTP, webhook, or the log). Each notifier is wrapped in a
circuit breaker so an unreachable mail server cannot stall the stream.
*/
package alerting
