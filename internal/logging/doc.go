// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

// Package logging provides the zerolog-based structured logger shared by every
// Packetlens component.
//
// A single global logger is configured at startup from the logging section of
// the configuration and is safe for concurrent use by capture readers,
// scoring tasks and the supervisor tree.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("session_id", id).Msg("capture started")
//	logging.Error().Err(err).Str("pipeline", p.ID).Msg("predict failed")
//
// # Configuration
//
// Environment Variables:
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Context Loggers
//
// Session-scoped code carries the session id through the context:
//
//	ctx = logging.ContextWithSessionID(ctx, sessionID)
//	logging.Ctx(ctx).Info().Msg("flushing flow window")
//
// # slog Adapter
//
// Suture reports supervisor events through log/slog. NewSlogLogger bridges
// those events into zerolog so all output shares one format.
//
// Always terminate log chains with .Msg() or .Send(); an unterminated chain
// is never emitted.
package logging
