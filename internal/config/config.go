// Package config defines the global configuration structure for the stock
// notification service. Configuration is loaded once at process start and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"stocknotify/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the service. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"stock-notification-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	CleverTap     CleverTapConfig
	Stock         StockConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers, regional configuration, and the
// intake queue polling parameters.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-south-1"`

	// Intake queue
	StockQueueURL     string        `envconfig:"SQS_STOCK_NOTIFICATIONS" validate:"required,url"`
	MaxMessages       int32         `envconfig:"SQS_MAX_MESSAGES" default:"10" validate:"min=1,max=10"`
	WaitTime          time.Duration `envconfig:"SQS_WAIT_TIME" default:"20s"`
	VisibilityTimeout int32         `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"30"`
	PollBackoff       time.Duration `envconfig:"SQS_POLL_BACKOFF" default:"5s"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// CleverTapConfig holds credentials and routing for the CleverTap campaign
// APIs. BaseURL overrides the regional endpoint when set (used in tests and
// local mode against a stub server).
type CleverTapConfig struct {
	AccountID string       `envconfig:"CLEVERTAP_ACCOUNT_ID" validate:"required"`
	Passcode  SecretString `envconfig:"CLEVERTAP_PASSCODE" validate:"required"`
	Region    string       `envconfig:"CLEVERTAP_REGION" default:"in1"`
	BaseURL   string       `envconfig:"CLEVERTAP_BASE_URL"`
}

// StockConfig holds the daily deduplication batch schedule.
type StockConfig struct {
	// CronSchedule is a standard 5-field cron expression evaluated in Timezone.
	CronSchedule string `envconfig:"STOCK_CRON_SCHEDULE" default:"0 10 * * *"`
	Timezone     string `envconfig:"STOCK_CRON_TIMEZONE" default:"Asia/Kolkata"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"StockNotify"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
