// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/metrics"
)

// Notifier delivers triggered alerts.
type Notifier interface {
	// Send delivers a trigger to the notification channel.
	Send(ctx context.Context, t Trigger) error

	// Name returns the notifier name (e.g., "email", "webhook").
	Name() string

	// Enabled returns whether this notifier is enabled.
	Enabled() bool
}

func subject(t Trigger) string {
	return fmt.Sprintf("Packetlens alert: %s %s reached %d anomalies", t.KeyType, t.Policy.Key, t.Count)
}

// EmailNotifier sends alerts to the policy's target address over SMTP.
type EmailNotifier struct {
	cfg         config.SMTPConfig
	dialTimeout time.Duration
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, dialTimeout: 30 * time.Second}
}

// Name returns the notifier name.
func (n *EmailNotifier) Name() string { return "email" }

// Enabled returns whether an SMTP server and sender are configured.
func (n *EmailNotifier) Enabled() bool {
	return n.cfg.Host != "" && n.cfg.From != ""
}

// Send delivers the alert via email.
func (n *EmailNotifier) Send(ctx context.Context, t Trigger) error {
	if t.Policy.TargetEmail == "" {
		return fmt.Errorf("alert policy %q has no target email", t.Policy.Key)
	}
	return n.sendSMTP(ctx, t.Policy.TargetEmail, n.buildMessage(t))
}

// buildMessage constructs the email message with headers.
func (n *EmailNotifier) buildMessage(t Trigger) string {
	var msg strings.Builder

	fromName := n.cfg.FromName
	if fromName == "" {
		fromName = "Packetlens"
	}

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, n.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", t.Policy.TargetEmail))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject(t)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", t.FiredAt.Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("Anomalies from %s %s: %d\r\n", t.KeyType, t.Policy.Key, t.Count))
	msg.WriteString(fmt.Sprintf("Policy threshold: %d\r\n", t.Policy.Threshold))
	msg.WriteString(fmt.Sprintf("Fired at: %s\r\n", t.FiredAt.UTC().Format(time.RFC3339)))
	if t.SessionID != "" {
		msg.WriteString(fmt.Sprintf("Capture session: %s\r\n", t.SessionID))
	}
	return msg.String()
}

// sendSMTP sends the email via SMTP.
func (n *EmailNotifier) sendSMTP(ctx context.Context, to, msg string) error {
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))

	dialer := &net.Dialer{Timeout: n.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // Best effort cleanup
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }() //nolint:errcheck // Best effort cleanup

	if n.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: n.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// The message is accepted once DATA completes.
	_ = client.Quit()
	return nil
}

// WebhookNotifier posts alerts as JSON to a URL.
type WebhookNotifier struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client
}

// WebhookPayload is the JSON payload sent to the webhook endpoint.
type WebhookPayload struct {
	Alert     Trigger   `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(webhookURL string, headers map[string]string) *WebhookNotifier {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &WebhookNotifier{
		webhookURL: webhookURL,
		headers:    h,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Enabled returns whether a webhook URL is configured.
func (n *WebhookNotifier) Enabled() bool { return n.webhookURL != "" }

// Send delivers an alert to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, t Trigger) error {
	payload := WebhookPayload{
		Alert:     t,
		EventType: "anomaly_alert",
		Timestamp: time.Now(),
		Source:    "packetlens",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes alerts to the log. It is the fallback when no other
// notifier is configured.
type LogNotifier struct{}

// Name returns the notifier name.
func (LogNotifier) Name() string { return "log" }

// Enabled always returns true.
func (LogNotifier) Enabled() bool { return true }

// Send logs the alert.
func (LogNotifier) Send(_ context.Context, t Trigger) error {
	logging.Warn().
		Str("key", t.Policy.Key).
		Str("key_type", t.KeyType).
		Str("target_email", t.Policy.TargetEmail).
		Str("session_id", t.SessionID).
		Int("count", t.Count).
		Msg(subject(t))
	return nil
}

// BreakerNotifier guards a notifier with a circuit breaker.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerNotifier wraps next in a breaker that opens after maxFailures
// consecutive failures and stays open for timeout.
func NewBreakerNotifier(next Notifier, maxFailures uint32, timeout time.Duration) *BreakerNotifier {
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "notifier-" + next.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notifier circuit breaker state changed")
		},
	}
	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Name returns the wrapped notifier's name.
func (b *BreakerNotifier) Name() string { return b.next.Name() }

// Enabled returns whether the wrapped notifier is enabled.
func (b *BreakerNotifier) Enabled() bool { return b.next.Enabled() }

// State returns the breaker state for monitoring.
func (b *BreakerNotifier) State() string { return b.cb.State().String() }

// Send delivers through the breaker. An open breaker fails fast with
// gobreaker.ErrOpenState.
func (b *BreakerNotifier) Send(ctx context.Context, t Trigger) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, t)
	})
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(b.next.Name()).Inc()
	}
	return err
}

// NewNotifiers builds the notifiers enabled by cfg, each behind a breaker.
// The log notifier is used when nothing else is configured.
func NewNotifiers(cfg config.AlertsConfig) []Notifier {
	var out []Notifier
	if email := NewEmailNotifier(cfg.SMTP); email.Enabled() {
		out = append(out, NewBreakerNotifier(email, cfg.BreakerMaxFailures, cfg.BreakerTimeout))
	}
	if cfg.WebhookURL != "" {
		out = append(out, NewBreakerNotifier(NewWebhookNotifier(cfg.WebhookURL, nil), cfg.BreakerMaxFailures, cfg.BreakerTimeout))
	}
	if len(out) == 0 {
		out = append(out, LogNotifier{})
	}
	return out
}
