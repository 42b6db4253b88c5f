// Package main is the entry point for the stock notification API server.
//
// It loads configuration, connects to Postgres, wires the CleverTap client
// (or a logging stub when APP_ENV=local), builds the HTTP server with the
// core chassis (middleware, routing, health checks), and mounts the
// administrative routes.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocknotify/internal/api/handlers"
	"stocknotify/internal/config"
	"stocknotify/internal/core"
	"stocknotify/internal/db"
	"stocknotify/internal/dedup"
	"stocknotify/internal/external"
	"stocknotify/internal/notifications"
	"stocknotify/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("stock notification API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := db.NewStockEventRepository(pool)

	// In local mode the campaign trigger is stubbed so the server can run
	// without CleverTap credentials.
	var trigger external.CampaignTrigger
	var pusher external.PushSender
	if cfg.Environment == "local" {
		stub := external.NewStubCampaignTrigger(logger)
		trigger = stub
		pusher = stub
	} else {
		client := external.NewCleverTapClient(&http.Client{Timeout: 30 * time.Second}, cfg.CleverTap, logger)
		trigger = client
		pusher = client
	}

	processor := dedup.NewProcessor(dedup.ProcessorConfig{
		Store:   repo,
		Trigger: trigger,
		Logger:  logger,
	})

	registry := notifications.NewRegistry()
	registry.Register(types.NotificationPush, notifications.NewCleverTapPushSender(pusher))
	registry.Register(types.NotificationWhatsApp, notifications.NewLoggingSender(types.NotificationWhatsApp, logger))
	registry.Register(types.NotificationSMS, notifications.NewLoggingSender(types.NotificationSMS, logger))
	notificationService := notifications.NewService(registry, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	stockHandler := handlers.NewStockNotificationHandler(processor, repo, logger)
	stockHandler.RegisterRoutes(srv.Router())
	notificationHandler := handlers.NewNotificationHandler(notificationService, logger)
	notificationHandler.RegisterRoutes(srv.Router())

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
