// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/packetlens/internal/api"
	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/logging"
	"github.com/tomtom215/packetlens/internal/supervisor"
	"github.com/tomtom215/packetlens/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.ToLoggingConfig())

	logging.Info().
		Str("version", version).
		Str("scenario", cfg.Session.ScenarioID).
		Int("execution", cfg.Session.Execution).
		Str("mode", cfg.Capture.Mode).
		Str("environment", cfg.Capture.RunEnvironment).
		Msg("Starting packetlens")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer app.Close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Session.ExitTimeout + cfg.Session.JoinTimeout + 5*time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddSessionService(services.NewSessionService(app.manager, sessionID(cfg), cfg.Capture, cfg.SSH))
	tree.AddMessagingService(services.NewDrainService("alert-drain", app.alerts, cfg.Alerts.SendTimeout))
	if app.publisher != nil {
		tree.AddMessagingService(services.NewCloserService("anomaly-publisher", app.publisher))
	}
	if app.retry != nil {
		tree.AddMessagingService(app.retry)
	}

	if cfg.Server.Enabled {
		server := &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           api.NewRouter(app.manager, version).WithRateLimit(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("Operational endpoints enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Packetlens stopped")
}

// sessionID names the configured session after its scenario and execution.
func sessionID(cfg *config.Config) string {
	return fmt.Sprintf("%s-%d", cfg.Session.ScenarioID, cfg.Session.Execution)
}
