package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clawtrap/clawtrap/internal/alert"
	"github.com/clawtrap/clawtrap/internal/config"
	"github.com/clawtrap/clawtrap/internal/db"
	"github.com/clawtrap/clawtrap/internal/gateway"
	"github.com/clawtrap/clawtrap/internal/geoip"
	"github.com/clawtrap/clawtrap/internal/httpapi"
	"github.com/clawtrap/clawtrap/internal/methods"
	"github.com/clawtrap/clawtrap/internal/server"
	"github.com/clawtrap/clawtrap/internal/telemetry"
	"github.com/clawtrap/clawtrap/internal/tracker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()
	cfg := config.Load()

	logger := server.SetupLogger(cfg.LogLevel, cfg.LogToFile, cfg.LogPath)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres is the only hard dependency. Without it there is no
	// evidence trail, so startup fails fast.
	database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	var geo geoip.Resolver = geoip.Disabled{}
	if cfg.GeoIPPath != "" {
		if r, err := geoip.LoadFile(cfg.GeoIPPath); err != nil {
			logger.Warn("geoip feed unavailable, enrichment disabled", "path", cfg.GeoIPPath, "err", err)
		} else {
			geo = r
		}
	}

	telemetry.Register()

	alerts := alert.NewNotifier(cfg.AlertWebhookURL, database, logger)
	track := tracker.New(database, geo, alerts, logger)
	registry := methods.NewRegistry(logger)
	manager := gateway.NewManager(database, track, registry, cfg.FakeVersion, cfg.FakeGatewayToken, logger)
	handler := httpapi.New(database, track, manager, cfg.FakeVersion, cfg.StaticDir, logger)

	go server.RunWithRecovery(ctx, logger, "alert-dispatcher", alerts.Run)
	go server.RunWithRecovery(ctx, logger, "connection-janitor", manager.Janitor)

	// Metrics live on their own listener. They must never be reachable
	// through the deception surface.
	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			logger.Info("metrics listener starting", "addr", cfg.MetricsAddress)
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("metrics listener failed", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No write timeout: WebSocket sessions are long-lived.
		WriteTimeout: 0,
	}

	go func() {
		logger.Info("honeypot listening", "addr", cfg.Addr(), "version", cfg.FakeVersion)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listener failed", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	// Forced-exit bound: whatever shutdown does, the process is gone in 10s.
	go func() {
		time.Sleep(10 * time.Second)
		logger.Error("shutdown deadline exceeded, forcing exit")
		os.Exit(1)
	}()

	manager.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	cancel()
	logger.Info("shutdown complete")
}
