// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

// Package wal provides a durable write-ahead log for anomaly publishing,
// backed by BadgerDB.
//
// Records are persisted before they are handed to NATS so that a broker
// outage or a crash between scoring and publishing does not lose them:
//
//	Anomaly → WAL Write (fsync) → NATS Publish → WAL Confirm
//	                                   ↓ (on failure)
//	                             entry kept for RetryLoop
//
// # Components
//
//   - BadgerWAL: pending entries keyed by caller-chosen id
//   - RetryLoop: suture service that recovers pending entries on start and
//     republishes them with exponential backoff
//
// Entry ids are the anomaly record ids. Combined with JetStream message
// deduplication, a publish that succeeded but was not confirmed before a
// crash is not duplicated on the stream when retried.
package wal
