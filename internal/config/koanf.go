// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/packetlens/config.yaml",
	"/etc/packetlens/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Mode:           "packet",
			RunEnvironment: "local",
			Interface:      "any",
			TsharkPath:     "tshark",
			SysdigPath:     "sysdig",
		},
		SSH: SSHConfig{
			Port:       22,
			TsharkPath: "tshark",
			SysdigPath: "sysdig",
		},
		Session: SessionConfig{
			ScenarioID:    "default",
			Execution:     1,
			FlowInterval:  10 * time.Second,
			ExitTimeout:   5 * time.Second,
			JoinTimeout:   5 * time.Second,
			QueueSize:     1024,
			DecodeLogRate: 1,
		},
		Pipeline: PipelineConfig{
			GraphPath:   "/data/graph.json",
			ArtifactDir: "/data/artifacts",
		},
		Explain: ExplainConfig{
			OutputDir: "/data/explanations",
		},
		Alerts: AlertsConfig{
			PolicyStore:        "file",
			PolicyPath:         "/data/alert_policies.json",
			SMTP:               SMTPConfig{Port: 587, UseTLS: true, FromName: "Packetlens"},
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			SendTimeout:        10 * time.Second,
		},
		Store: StoreConfig{
			Path: "",
		},
		NATS: NATSConfig{
			Enabled:   false,
			URL:       "nats://127.0.0.1:4222",
			Topic:     "packetlens.anomalies",
			Stream:    "PACKETLENS_ANOMALIES",
			JetStream: false,
			WAL: WALConfig{
				SyncWrites:    true,
				EntryTTL:      24 * time.Hour,
				RetryInterval: 30 * time.Second,
				RetryBackoff:  5 * time.Second,
				MaxRetries:    100,
			},
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              9464,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads and validates configuration. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Capture
	"capture_mode":                 "capture.mode",
	"capture_output_is_structured": "capture.output_is_structured",
	"capture_run_environment":      "capture.run_environment",
	"capture_interface":            "capture.interface",
	"tshark_path":                  "capture.tshark_path",
	"sysdig_path":                  "capture.sysdig_path",

	// Remote capture
	"ssh_username":      "ssh.username",
	"ssh_host":          "ssh.host",
	"ssh_port":          "ssh.port",
	"ssh_identity_file": "ssh.identity_file",
	"ssh_use_sudo":      "ssh.use_sudo",
	"ssh_tshark_path":   "ssh.tshark_path",
	"ssh_sysdig_path":   "ssh.sysdig_path",

	// Session
	"scenario_id":             "session.scenario_id",
	"execution":               "session.execution",
	"is_production":           "session.is_production",
	"flow_interval":           "session.flow_interval",
	"session_exit_timeout":    "session.exit_timeout",
	"session_join_timeout":    "session.join_timeout",
	"session_queue_size":      "session.queue_size",
	"session_decode_log_rate": "session.decode_log_rate",

	// Pipelines
	"graph_path":   "pipeline.graph_path",
	"artifact_dir": "pipeline.artifact_dir",

	// Explainability
	"explain_output_dir": "explain.output_dir",

	// Alerting
	"alert_policy_store":         "alerts.policy_store",
	"alert_policy_path":          "alerts.policy_path",
	"alert_webhook_url":          "alerts.webhook_url",
	"alert_breaker_max_failures": "alerts.breaker_max_failures",
	"alert_breaker_timeout":      "alerts.breaker_timeout",
	"alert_send_timeout":         "alerts.send_timeout",
	"smtp_host":                  "alerts.smtp.host",
	"smtp_port":                  "alerts.smtp.port",
	"smtp_username":              "alerts.smtp.username",
	"smtp_password":              "alerts.smtp.password",
	"smtp_from":                  "alerts.smtp.from",
	"smtp_from_name":             "alerts.smtp.from_name",
	"smtp_use_tls":               "alerts.smtp.use_tls",

	// Anomaly store
	"store_path": "store.path",

	// NATS
	"nats_enabled":   "nats.enabled",
	"nats_url":       "nats.url",
	"nats_topic":     "nats.topic",
	"nats_jetstream": "nats.jetstream",
	"nats_stream":    "nats.stream",

	"wal_path":           "nats.wal.path",
	"wal_sync_writes":    "nats.wal.sync_writes",
	"wal_entry_ttl":      "nats.wal.entry_ttl",
	"wal_retry_interval": "nats.wal.retry_interval",
	"wal_retry_backoff":  "nats.wal.retry_backoff",
	"wal_max_retries":    "nats.wal.max_retries",

	// Server
	"http_enabled":          "server.enabled",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_rate_limit":       "server.rate_limit_requests",
	"http_rate_window":      "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - CAPTURE_MODE -> capture.mode
//   - SSH_HOST -> ssh.host
//   - SMTP_HOST -> alerts.smtp.host
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated variables never pollute config
	return ""
}
