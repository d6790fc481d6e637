// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package supervisor runs the long-lived parts of packetlens under a suture v4
supervisor tree.

The tree has three layers, each a child supervisor of the root:

  - sessions: one SessionService per configured capture session
  - messaging: anomaly publisher and alert delivery drain
  - api: the operational HTTP server

A crash in one layer is restarted with backoff without touching the others.
Supervisor events are logged through sutureslog into the global zerolog
logger (see logging.NewSlogLogger).
*/
package supervisor
