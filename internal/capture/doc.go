// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package capture starts and tracks the external capture tools that feed a
session: tshark for packet and flow modes and sysdig for system calls,
either locally or on a remote host over ssh.

BuildCommand turns the capture and ssh configuration into an argv. A
Launcher spawns it and returns a Process, whose stdout carries one record
per line and whose stderr is kept as a bounded tail for diagnostics.
Processes are started in their own process group where the platform
supports it so that Kill also reaches tools spawned by ssh or sudo.

Registry records which session ids currently own a running capture. It is
the single source of truth read by the session reader loop to decide
whether to keep consuming output.
*/
package capture
