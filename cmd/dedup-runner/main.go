// Package main is the entry point for the daily deduplication runner.
//
// By default the runner schedules the batch with cron (10:00 IST unless
// configured otherwise) and keeps running until terminated. With --once it
// executes a single batch for today, or for the day given via --date, and
// exits; this is the mode used for backfills and manual reruns.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/robfig/cron/v3"

	"stocknotify/internal/config"
	"stocknotify/internal/db"
	"stocknotify/internal/dedup"
	"stocknotify/internal/external"
	"stocknotify/internal/metrics"
)

const dateLayout = "2006-01-02"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "run a single batch and exit instead of scheduling")
	date := flag.String("date", "", "day to process in YYYY-MM-DD (only with --once, default today)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dedup runner starting",
		"environment", cfg.Environment,
		"schedule", cfg.Stock.CronSchedule,
		"timezone", cfg.Stock.Timezone,
		"once", *once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := db.NewStockEventRepository(pool)

	var trigger external.CampaignTrigger
	if cfg.Environment == "local" {
		trigger = external.NewStubCampaignTrigger(logger)
	} else {
		trigger = external.NewCleverTapClient(&http.Client{Timeout: 30 * time.Second}, cfg.CleverTap, logger)
	}

	var recorder dedup.MetricsRecorder = metrics.NopRecorder{}
	if cfg.Observability.EnableMetrics && cfg.Environment != "local" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		recorder = metrics.NewRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	processor := dedup.NewProcessor(dedup.ProcessorConfig{
		Store:   repo,
		Trigger: trigger,
		Metrics: recorder,
		Logger:  logger,
	})

	if *once {
		day := time.Now().UTC()
		if *date != "" {
			day, err = time.Parse(dateLayout, *date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: must be YYYY-MM-DD", *date)
			}
		}
		return runOnce(ctx, processor, day, logger)
	}

	return runScheduled(ctx, processor, cfg.Stock, logger)
}

// runOnce executes a single batch for the given day.
func runOnce(ctx context.Context, processor *dedup.Processor, day time.Time, logger *slog.Logger) error {
	result, err := processor.ProcessDay(ctx, day)
	if err != nil {
		return fmt.Errorf("batch run for %s: %w", day.Format(dateLayout), err)
	}
	logger.Info("batch run finished",
		"date", result.Date,
		"sent", result.TotalSent,
		"failed", result.TotalFailed,
		"skipped", result.TotalSkipped,
	)
	if !result.Success() {
		return fmt.Errorf("batch run for %s finished with %d failures", result.Date, result.TotalFailed)
	}
	return nil
}

// runScheduled runs the batch on the configured cron schedule until the
// context is cancelled. The schedule is evaluated in the configured timezone
// while the batch itself always processes the current UTC day.
func runScheduled(ctx context.Context, processor *dedup.Processor, cfg config.StockConfig, logger *slog.Logger) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		if err := runOnce(ctx, processor, time.Now().UTC(), logger); err != nil {
			logger.Error("scheduled batch run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", cfg.CronSchedule, err)
	}

	c.Start()
	logger.Info("cron schedule active", "schedule", cfg.CronSchedule, "timezone", cfg.Timezone)

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for in-flight run")

	// Stop returns a context that is done once any running job completes.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Minute):
		logger.Warn("in-flight run did not finish within grace period")
	}

	logger.Info("dedup runner stopped")
	return nil
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
