// Package dedup implements the daily deduplication batch. For each calendar
// day it collapses all PENDING events sharing a (recipient, sku) pair into a
// single campaign delivery, marking the rest SKIPPED.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stocknotify/internal/external"
	"stocknotify/internal/metrics"
	"stocknotify/internal/types"
)

// EventStore is the repository surface the processor needs. Implemented by
// db.StockEventRepository.
type EventStore interface {
	FindDistinctPendingForDay(ctx context.Context, day time.Time) ([]*types.StockNotificationEvent, error)
	ExistsSentForRecipientSkuOnDay(ctx context.Context, recipientID, sku string, day time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, status types.EventStatus) (bool, error)
	UpdateStatusWithError(ctx context.Context, id string, status types.EventStatus, errMsg string) (bool, error)
	MarkSiblingsSkipped(ctx context.Context, recipientID, sku string, day time.Time, exceptID string) (int64, error)
}

// MetricsRecorder counts delivery outcomes.
type MetricsRecorder interface {
	RecordDelivery(ctx context.Context, result metrics.Result)
}

// RunResult summarizes one batch run.
type RunResult struct {
	Date           string   `json:"date"`
	TotalEvents    int      `json:"totalEvents"`    // distinct pairs considered
	TotalProcessed int      `json:"totalProcessed"` // sent + failed
	TotalSent      int      `json:"totalSent"`
	TotalFailed    int      `json:"totalFailed"`
	TotalSkipped   int      `json:"totalSkipped"` // guard skips + sibling skips
	FailedEventIDs []string `json:"failedEventIds,omitempty"`
	ErrorMessages  []string `json:"errorMessages,omitempty"`
}

// Success reports whether the run completed without delivery failures.
func (r *RunResult) Success() bool {
	return r.TotalFailed == 0
}

// Processor runs the deduplication batch over one day's pending events.
type Processor struct {
	store   EventStore
	trigger external.CampaignTrigger
	metrics MetricsRecorder
	logger  *slog.Logger
}

// ProcessorConfig holds the dependencies for creating a Processor.
type ProcessorConfig struct {
	Store   EventStore
	Trigger external.CampaignTrigger
	Metrics MetricsRecorder
	Logger  *slog.Logger
}

// NewProcessor creates a new Processor from the given configuration.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NopRecorder{}
	}
	return &Processor{
		store:   cfg.Store,
		trigger: cfg.Trigger,
		metrics: m,
		logger:  logger,
	}
}

// ProcessDay delivers at most one notification per (recipient, sku) pair for
// the given day.
//
// For each distinct pending event, in (received_at, id) order:
//  1. If a SENT event already exists for the pair, mark this one SKIPPED and
//     move on. The check and the send are not atomic; a concurrent run can
//     slip a duplicate through, which is accepted.
//  2. Mark PROCESSING. If no row was updated the event was already picked up
//     elsewhere; skip it silently.
//  3. Trigger the campaign. Success marks the event SENT and its remaining
//     PENDING siblings SKIPPED; failure marks it FAILED with the error
//     recorded and leaves siblings pending.
//
// One pair's failure never aborts the run. The returned error is non-nil
// only when the run itself cannot proceed (the initial query fails).
func (p *Processor) ProcessDay(ctx context.Context, day time.Time) (*RunResult, error) {
	result := &RunResult{Date: day.UTC().Format("2006-01-02")}

	events, err := p.store.FindDistinctPendingForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	result.TotalEvents = len(events)

	p.logger.InfoContext(ctx, "deduplication batch starting",
		"date", result.Date,
		"distinct_pairs", len(events),
	)

	for _, event := range events {
		p.processEvent(ctx, event, day, result)
	}

	p.logger.InfoContext(ctx, "deduplication batch finished",
		"date", result.Date,
		"total_events", result.TotalEvents,
		"sent", result.TotalSent,
		"failed", result.TotalFailed,
		"skipped", result.TotalSkipped,
	)

	return result, nil
}

// processEvent handles one representative event. All failure paths are
// absorbed into the RunResult.
func (p *Processor) processEvent(ctx context.Context, event *types.StockNotificationEvent, day time.Time, result *RunResult) {
	recipientID := event.EffectiveRecipientID()

	alreadySent, err := p.store.ExistsSentForRecipientSkuOnDay(ctx, recipientID, event.SKU, day)
	if err != nil {
		p.recordFailure(ctx, event, fmt.Sprintf("unexpected error: %v", err), result)
		return
	}
	if alreadySent {
		if _, err := p.store.UpdateStatusWithError(ctx, event.ID, types.EventSkipped, types.SkippedDuplicateReason); err != nil {
			p.recordFailure(ctx, event, fmt.Sprintf("unexpected error: %v", err), result)
			return
		}
		result.TotalSkipped++
		p.metrics.RecordDelivery(ctx, metrics.ResultSkipped)
		p.logger.InfoContext(ctx, "skipping duplicate pair",
			"event_id", event.ID,
			"recipient_id", recipientID,
			"sku", event.SKU,
		)
		return
	}

	claimed, err := p.store.UpdateStatus(ctx, event.ID, types.EventProcessing)
	if err != nil {
		p.recordFailure(ctx, event, fmt.Sprintf("unexpected error: %v", err), result)
		return
	}
	if !claimed {
		// The id matched no row. Events are never deleted, so this should
		// not happen; treat it as a benign miss rather than a failure.
		p.logger.WarnContext(ctx, "event no longer claimable, skipping",
			"event_id", event.ID,
		)
		return
	}

	if err := p.trigger.TriggerStockNotification(ctx, event); err != nil {
		p.recordFailure(ctx, event, deliveryErrorMessage(err), result)
		return
	}

	if _, err := p.store.UpdateStatus(ctx, event.ID, types.EventSent); err != nil {
		// The notification went out but the status write failed. Record the
		// event as failed so the discrepancy is visible.
		p.recordFailure(ctx, event, fmt.Sprintf("unexpected error: %v", err), result)
		return
	}
	result.TotalSent++
	result.TotalProcessed++
	p.metrics.RecordDelivery(ctx, metrics.ResultSent)

	skipped, err := p.store.MarkSiblingsSkipped(ctx, recipientID, event.SKU, day, event.ID)
	if err != nil {
		// The send already counted; sibling cleanup failure is logged but
		// does not fail the pair. Leftover PENDING siblings are caught by
		// the existsSent guard on the next run.
		p.logger.ErrorContext(ctx, "failed to skip sibling events",
			"event_id", event.ID,
			"recipient_id", recipientID,
			"sku", event.SKU,
			"error", err.Error(),
		)
	} else {
		result.TotalSkipped += int(skipped)
	}

	p.logger.InfoContext(ctx, "stock notification sent",
		"event_id", event.ID,
		"recipient_id", recipientID,
		"sku", event.SKU,
		"siblings_skipped", skipped,
	)
}

// recordFailure marks the event FAILED and records the failure in the run
// result.
func (p *Processor) recordFailure(ctx context.Context, event *types.StockNotificationEvent, msg string, result *RunResult) {
	if _, err := p.store.UpdateStatusWithError(ctx, event.ID, types.EventFailed, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to record event failure",
			"event_id", event.ID,
			"error", err.Error(),
		)
	}

	result.TotalFailed++
	result.TotalProcessed++
	result.FailedEventIDs = append(result.FailedEventIDs, event.ID)
	result.ErrorMessages = append(result.ErrorMessages, msg)
	p.metrics.RecordDelivery(ctx, metrics.ResultFailed)

	p.logger.ErrorContext(ctx, "stock notification failed",
		"event_id", event.ID,
		"recipient_id", event.EffectiveRecipientID(),
		"sku", event.SKU,
		"error", msg,
	)
}

// deliveryErrorMessage extracts the human-readable message from a delivery
// error for persistence on the event row.
func deliveryErrorMessage(err error) string {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
