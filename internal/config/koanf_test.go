// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Capture.Mode != "packet" {
		t.Errorf("Capture.Mode = %q, want packet", cfg.Capture.Mode)
	}
	if cfg.Capture.RunEnvironment != "local" {
		t.Errorf("Capture.RunEnvironment = %q, want local", cfg.Capture.RunEnvironment)
	}
	if cfg.Session.FlowInterval != 10*time.Second {
		t.Errorf("Session.FlowInterval = %v, want 10s", cfg.Session.FlowInterval)
	}
	if cfg.Session.Execution != 1 {
		t.Errorf("Session.Execution = %d, want 1", cfg.Session.Execution)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled should be false by default")
	}
	if cfg.NATS.Topic != "packetlens.anomalies" {
		t.Errorf("NATS.Topic = %q, want packetlens.anomalies", cfg.NATS.Topic)
	}
	if cfg.Alerts.PolicyStore != "file" {
		t.Errorf("Alerts.PolicyStore = %q, want file", cfg.Alerts.PolicyStore)
	}
	if cfg.Server.Port != 9464 {
		t.Errorf("Server.Port = %d, want 9464", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Capture.Mode != "packet" {
		t.Errorf("Capture.Mode = %q, want packet", cfg.Capture.Mode)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
capture:
  mode: flow
  output_is_structured: true
session:
  scenario_id: lab-7
  flow_interval: 30s
alerts:
  smtp:
    host: smtp.example.com
    from: alerts@example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Capture.Mode != "flow" {
		t.Errorf("Capture.Mode = %q, want flow", cfg.Capture.Mode)
	}
	if !cfg.Capture.OutputIsStructured {
		t.Error("Capture.OutputIsStructured should be true")
	}
	if cfg.Session.ScenarioID != "lab-7" {
		t.Errorf("Session.ScenarioID = %q, want lab-7", cfg.Session.ScenarioID)
	}
	if cfg.Session.FlowInterval != 30*time.Second {
		t.Errorf("Session.FlowInterval = %v, want 30s", cfg.Session.FlowInterval)
	}
	if cfg.Alerts.SMTP.Host != "smtp.example.com" {
		t.Errorf("Alerts.SMTP.Host = %q", cfg.Alerts.SMTP.Host)
	}
	// Untouched defaults survive the file layer
	if cfg.Session.QueueSize != 1024 {
		t.Errorf("Session.QueueSize = %d, want 1024", cfg.Session.QueueSize)
	}
}

func TestLoadWithKoanf_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("capture:\n  mode: flow\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CAPTURE_MODE", "syscalls")
	t.Setenv("EXECUTION", "4")
	t.Setenv("SESSION_EXIT_TIMEOUT", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Capture.Mode != "syscalls" {
		t.Errorf("Capture.Mode = %q, want syscalls", cfg.Capture.Mode)
	}
	if cfg.Session.Execution != 4 {
		t.Errorf("Session.Execution = %d, want 4", cfg.Session.Execution)
	}
	if cfg.Session.ExitTimeout != 2*time.Second {
		t.Errorf("Session.ExitTimeout = %v, want 2s", cfg.Session.ExitTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_InvalidMode(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CAPTURE_MODE", "netflow")

	_, err := LoadWithKoanf()
	if err == nil {
		t.Fatal("expected validation error for unknown capture mode")
	}
	if !strings.Contains(err.Error(), "Capture.Mode") {
		t.Errorf("error should name Capture.Mode, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CAPTURE_MODE", "capture.mode"},
		{"SSH_HOST", "ssh.host"},
		{"SMTP_HOST", "alerts.smtp.host"},
		{"HTTP_PORT", "server.port"},
		{"SCENARIO_ID", "session.scenario_id"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := envTransformFunc(tt.in); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
