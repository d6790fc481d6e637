// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package config

import (
	"time"

	"github.com/tomtom215/packetlens/internal/logging"
)

// Config holds all application configuration loaded from defaults,
// an optional YAML file and environment variables.
type Config struct {
	Capture  CaptureConfig  `koanf:"capture"`
	SSH      SSHConfig      `koanf:"ssh"`
	Session  SessionConfig  `koanf:"session"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Explain  ExplainConfig  `koanf:"explain"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// CaptureConfig selects what is captured and where the capture tool runs.
type CaptureConfig struct {
	// Mode is one of packet, flow or syscalls.
	Mode string `koanf:"mode" validate:"required,oneof=packet flow syscalls"`

	// OutputIsStructured selects the JSON output format of the capture
	// tool. Only meaningful for flow mode, where the default is CSV text.
	OutputIsStructured bool `koanf:"output_is_structured"`

	// RunEnvironment is local or remote.
	RunEnvironment string `koanf:"run_environment" validate:"required,oneof=local remote"`

	// Interface is the capture interface passed to the network tool.
	Interface string `koanf:"interface"`

	// TsharkPath and SysdigPath override the local tool binaries.
	TsharkPath string `koanf:"tshark_path"`
	SysdigPath string `koanf:"sysdig_path"`
}

// SSHConfig describes the remote host used when RunEnvironment is remote.
type SSHConfig struct {
	Username     string `koanf:"username"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port" validate:"gte=0,lte=65535"`
	IdentityFile string `koanf:"identity_file"`
	UseSudo      bool   `koanf:"use_sudo"`
	TsharkPath   string `koanf:"tshark_path"`
	SysdigPath   string `koanf:"sysdig_path"`
}

// SessionConfig controls a capture session's identity and timing.
type SessionConfig struct {
	// ScenarioID identifies the scenario whose graph and artifacts are used.
	ScenarioID string `koanf:"scenario_id" validate:"required"`

	// Execution groups anomaly records of one run of the scenario.
	Execution int `koanf:"execution" validate:"gte=1"`

	// IsProduction marks anomalies recorded during production runs.
	IsProduction bool `koanf:"is_production"`

	// FlowInterval is the flow aggregation window length.
	FlowInterval time.Duration `koanf:"flow_interval" validate:"gt=0"`

	// ExitTimeout bounds the wait for the capture process after terminate.
	ExitTimeout time.Duration `koanf:"exit_timeout" validate:"gt=0"`

	// JoinTimeout bounds the wait for the reader and scoring tasks.
	JoinTimeout time.Duration `koanf:"join_timeout" validate:"gt=0"`

	// QueueSize is the capacity of the line queue between reader and scorer.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// DecodeLogRate limits decode error log lines per second.
	DecodeLogRate float64 `koanf:"decode_log_rate" validate:"gt=0"`
}

// PipelineConfig locates the node graph and the fitted artifacts.
type PipelineConfig struct {
	GraphPath   string `koanf:"graph_path" validate:"required"`
	ArtifactDir string `koanf:"artifact_dir" validate:"required"`
}

// ExplainConfig controls explanation output.
type ExplainConfig struct {
	// OutputDir receives rendered attribution charts, one directory per scenario.
	OutputDir string `koanf:"output_dir" validate:"required"`
}

// AlertsConfig configures alert policies and notification delivery.
type AlertsConfig struct {
	// PolicyStore is file or badger.
	PolicyStore string `koanf:"policy_store" validate:"oneof=file badger"`

	// PolicyPath is the JSON file path (file store) or badger directory.
	PolicyPath string `koanf:"policy_path" validate:"required"`

	SMTP SMTPConfig `koanf:"smtp"`

	// WebhookURL, when set, receives a JSON payload for every alert.
	WebhookURL string `koanf:"webhook_url" validate:"omitempty,url"`

	// BreakerMaxFailures trips the notifier circuit breaker after this
	// many consecutive failures.
	BreakerMaxFailures uint32 `koanf:"breaker_max_failures" validate:"gte=1"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	// SendTimeout bounds a single notification delivery.
	SendTimeout time.Duration `koanf:"send_timeout" validate:"gt=0"`
}

// SMTPConfig holds SMTP delivery settings. Email is disabled when Host is empty.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"gte=0,lte=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from" validate:"omitempty,email"`
	FromName string `koanf:"from_name"`
	UseTLS   bool   `koanf:"use_tls"`
}

// StoreConfig configures anomaly record persistence.
type StoreConfig struct {
	// Path is the badger directory. Empty keeps records in memory.
	Path string `koanf:"path"`
}

// NATSConfig configures optional fan-out of anomaly records.
type NATSConfig struct {
	Enabled   bool   `koanf:"enabled"`
	URL       string `koanf:"url"`
	Topic     string `koanf:"topic" validate:"required"`
	JetStream bool   `koanf:"jetstream"`

	// Stream is the JetStream stream created over Topic when JetStream is on.
	Stream string `koanf:"stream"`

	// WAL persists anomaly records before publishing when WAL.Path is set.
	WAL WALConfig `koanf:"wal"`
}

// WALConfig configures the durable publish log in front of NATS.
type WALConfig struct {
	// Path is the BadgerDB directory. Empty disables the WAL.
	Path string `koanf:"path"`

	// SyncWrites fsyncs every write before returning.
	SyncWrites bool `koanf:"sync_writes"`

	// EntryTTL drops entries that could not be published in time.
	EntryTTL time.Duration `koanf:"entry_ttl" validate:"gt=0"`

	// RetryInterval is how often pending entries are republished.
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`

	// RetryBackoff is the base of the exponential per-entry backoff.
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"gt=0"`

	// MaxRetries drops an entry after this many failed attempts.
	MaxRetries int `koanf:"max_retries" validate:"gte=1"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"portnum"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file:line to log entries.
	Caller bool `koanf:"caller"`
}

// ToLoggingConfig converts to the logging package configuration.
func (l LoggingConfig) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}
