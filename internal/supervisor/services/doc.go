// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package services provides suture.Service wrappers for packetlens components.

Each wrapper translates a component's lifecycle into suture's Serve pattern
and implements fmt.Stringer so supervisor events name the service.

SessionService runs one capture session through session.Manager.Run. A
session whose capture tool exits on its own returns suture.ErrDoNotRestart:
a dead capture usually means a permission or interface problem that a
restart would only repeat. Start failures are returned as ordinary errors
and restarted with backoff.

HTTPServerService wraps an *http.Server with graceful shutdown.

CloserService holds a component open until shutdown and then closes it;
it wraps the anomaly publisher.

DrainService waits for in-flight work at shutdown; it wraps the alert
engine's pending notifications.
*/
package services
