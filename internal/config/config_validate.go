// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package config

import (
	"fmt"

	"github.com/tomtom215/packetlens/internal/validation"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	return c.validateNATS()
}

// validateRemote requires SSH coordinates when capture runs remotely.
func (c *Config) validateRemote() error {
	if c.Capture.RunEnvironment != "remote" {
		return nil
	}
	if c.SSH.Host == "" {
		return fmt.Errorf("SSH_HOST is required when CAPTURE_RUN_ENVIRONMENT=remote")
	}
	if c.SSH.Username == "" {
		return fmt.Errorf("SSH_USERNAME is required when CAPTURE_RUN_ENVIRONMENT=remote")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.SMTP.Host != "" && c.Alerts.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.Enabled && c.NATS.JetStream && c.NATS.Stream == "" {
		return fmt.Errorf("NATS_STREAM is required when NATS_JETSTREAM=true")
	}
	return nil
}
