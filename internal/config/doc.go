// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package config provides configuration loading for packetlens.

Configuration is layered with Koanf v2:

 1. Defaults: built-in values from defaultConfig()
 2. Config file: optional YAML file (CONFIG_PATH, config.yaml, /etc/packetlens/config.yaml)
 3. Environment variables: highest priority, mapped through envTransformFunc

Only environment variables listed in the mapping table are consumed, so
unrelated variables never leak into the configuration.

# Sections

  - capture: capture mode (packet, flow, syscalls), structured output, run environment
  - ssh: remote capture host, user, sudo and tool paths
  - session: scenario identity, execution number, flow window and shutdown timeouts
  - pipeline: graph file and artifact directory
  - explain: chart output directory
  - alerts: policy store, SMTP, webhook and circuit breaker settings
  - store: badger path for anomaly records
  - nats: optional anomaly fan-out
  - server: operational HTTP endpoints
  - logging: zerolog level, format and caller

# Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
	logging.Init(cfg.Logging.ToLoggingConfig())
*/
package config
