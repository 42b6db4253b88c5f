// Package main is the entry point for the SQS intake worker.
//
// The worker long-polls the stock notification queue, persists every valid
// message as a PENDING event, and deletes the message only after the event is
// stored. Delivery happens later in the daily deduplication batch; the worker
// never calls CleverTap.
//
// A small HTTP listener exposes /health and /stats for liveness probes and
// operational visibility. Both the poll loop and the listener shut down on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"stocknotify/internal/config"
	"stocknotify/internal/db"
	"stocknotify/internal/intake"
	"stocknotify/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("intake worker starting",
		"environment", cfg.Environment,
		"queue_url", cfg.AWS.StockQueueURL,
		"region", cfg.AWS.Region,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	var recorder intake.MetricsRecorder = metrics.NopRecorder{}
	if cfg.Observability.EnableMetrics && cfg.Environment != "local" {
		cwClient := cloudwatch.NewFromConfig(awsCfg)
		recorder = metrics.NewRecorder(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	consumer := intake.NewConsumer(intake.ConsumerConfig{
		Client:  sqsClient,
		Repo:    db.NewStockEventRepository(pool),
		Metrics: recorder,
		AWS:     cfg.AWS,
		Logger:  logger,
	})

	statsServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           statsHandler(consumer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("stats listener starting", "addr", statsServer.Addr)
		if err := statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stats listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return statsServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := consumer.Stats()
	logger.Info("intake worker stopped",
		"received", stats.Received,
		"stored", stats.Stored,
		"dropped", stats.Dropped,
		"failed", stats.Failed,
	)
	return nil
}

// statsHandler serves /health and /stats from the consumer's counters.
func statsHandler(consumer *intake.Consumer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(consumer.Stats())
	})
	return mux
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
