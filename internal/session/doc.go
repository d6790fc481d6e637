// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package session runs capture sessions: one capture subprocess, one reader
goroutine and one scoring goroutine per session.

# Lifecycle

Manager.Start compiles the scenario's pipelines, builds the capture
command, registers the session as running and launches the process.
Compilation happens first, so an invalid graph never starts a subprocess.

The reader goroutine is the only reader of the process's stdout. It reads
lines while the registry flag stays true and hands them to the scoring
goroutine over a bounded channel, so a slow scorer slows the reader rather
than growing memory. When the process exits on its own the reader logs the
exit code and stderr tail and the session ends with ErrStreamTerminated.

The scoring goroutine decodes lines into records, batches flow
observations into windows, runs every pipeline over each batch and
dispatches anomalies for explanation, persistence and alerting.

# Stopping

Manager.Stop runs seven steps, each isolated from the failures of the
others:

 1. report the stop through OnStatus
 2. close the persistence gate and clear the registry flag
 3. ask the process to terminate
 4. close the process pipes, unblocking the reader
 5. wait up to ExitTimeout for the process to exit
 6. kill the process group if it is still alive
 7. wait up to JoinTimeout for the reader and scorer

Once the gate is closed no further anomaly is persisted, even if the
scorer is mid-batch. Stop is idempotent; step failures are collected in a
ShutdownError that callers log.
*/
package session
