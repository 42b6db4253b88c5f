package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stocknotify/internal/types"
)

// uniqueViolationCode is the Postgres error code for unique constraint
// violations.
const uniqueViolationCode = "23505"

// eventColumns is the canonical column list for stock_notification_events,
// kept in sync with scanEvent.
const eventColumns = `id, source_message_id, source_group_id, recipient_id, guest_id,
	item_id, sku, screen, source_type, source_name, status,
	received_at, processed_at, sent_at, error_message, retry_count,
	raw_payload, created_at, updated_at`

// StockEventRepository provides data access for the stock_notification_events
// table.
//
// Query performance depends on a composite index over
// (status, received_at, recipient_id, sku); day-scoped queries use half-open
// [start, end) ranges on received_at so the index applies.
type StockEventRepository struct {
	db DBTX
}

// NewStockEventRepository creates a new StockEventRepository backed by the
// given database connection (pool or transaction).
func NewStockEventRepository(db DBTX) *StockEventRepository {
	return &StockEventRepository{db: db}
}

// Save inserts a new event record. The caller sets the ID and all domain
// fields; rows are never updated through this method.
func (r *StockEventRepository) Save(ctx context.Context, e *types.StockNotificationEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO stock_notification_events
		 (id, source_message_id, source_group_id, recipient_id, guest_id,
		  item_id, sku, screen, source_type, source_name, status,
		  received_at, retry_count, raw_payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())`,
		e.ID,
		nilIfEmpty(e.SourceMessageID),
		nilIfEmpty(e.SourceGroupID),
		e.RecipientID,
		nilIfEmpty(e.GuestID),
		e.ItemID,
		e.SKU,
		nilIfEmpty(e.Screen),
		nilIfEmpty(e.SourceType),
		nilIfEmpty(e.SourceName),
		string(e.Status),
		e.ReceivedAt,
		e.RetryCount,
		rawPayloadJSON(e),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return types.NewAppError(types.ErrCodeConflictDuplicateEvent, "stock notification event already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save stock notification event", err)
	}
	return nil
}

// FindByID retrieves a single event. Returns a not-found AppError when no
// row matches.
func (r *StockEventRepository) FindByID(ctx context.Context, id string) (*types.StockNotificationEvent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM stock_notification_events
		 WHERE id = $1`,
		id,
	)
	e, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundEvent, "stock notification event not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find event", err)
	}
	return e, nil
}

// FindByStatus retrieves events in the given status ordered oldest first.
// limit caps the result set; values <= 0 default to 100.
func (r *StockEventRepository) FindByStatus(ctx context.Context, status types.EventStatus, limit int) ([]*types.StockNotificationEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM stock_notification_events
		 WHERE status = $1
		 ORDER BY received_at ASC, id ASC
		 LIMIT $2`,
		string(status),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query events by status", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// FindPendingForDay retrieves every PENDING event received on the given
// calendar day, ordered by (received_at, id) ascending.
func (r *StockEventRepository) FindPendingForDay(ctx context.Context, day time.Time) ([]*types.StockNotificationEvent, error) {
	start, end := dayRange(day)

	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM stock_notification_events
		 WHERE status = 'PENDING'
		   AND received_at >= $1 AND received_at < $2
		 ORDER BY received_at ASC, id ASC`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query pending events", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// FindDistinctPendingForDay retrieves one PENDING event per distinct
// (recipient_id, sku) pair received on the given day. The representative for
// each pair is the event with the earliest received_at, ties broken by lowest
// id; the overall result is ordered by (received_at, id) ascending.
func (r *StockEventRepository) FindDistinctPendingForDay(ctx context.Context, day time.Time) ([]*types.StockNotificationEvent, error) {
	start, end := dayRange(day)

	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM (
		     SELECT DISTINCT ON (recipient_id, sku) `+eventColumns+`
		     FROM stock_notification_events
		     WHERE status = 'PENDING'
		       AND received_at >= $1 AND received_at < $2
		     ORDER BY recipient_id, sku, received_at ASC, id ASC
		 ) d
		 ORDER BY received_at ASC, id ASC`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query distinct pending events", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ExistsSentForRecipientSkuOnDay reports whether a SENT event already exists
// for the (recipient, sku) pair among events received on the given day.
func (r *StockEventRepository) ExistsSentForRecipientSkuOnDay(ctx context.Context, recipientID, sku string, day time.Time) (bool, error) {
	start, end := dayRange(day)

	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM stock_notification_events
		     WHERE recipient_id = $1 AND sku = $2 AND status = 'SENT'
		       AND received_at >= $3 AND received_at < $4
		 )`,
		recipientID, sku, start, end,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check sent duplicates", err)
	}
	return exists, nil
}

// UpdateStatus transitions an event to the given status. SENT sets sent_at
// and clears error_message; any terminal status stamps processed_at.
//
// Returns false with a nil error when no row was updated (unknown id). The
// batch treats that as a benign skip, not a failure.
func (r *StockEventRepository) UpdateStatus(ctx context.Context, id string, status types.EventStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE stock_notification_events SET
			status = $1,
			processed_at = CASE WHEN $1 IN ('SENT', 'FAILED', 'SKIPPED') THEN NOW() ELSE processed_at END,
			sent_at = CASE WHEN $1 = 'SENT' THEN NOW() ELSE sent_at END,
			error_message = CASE WHEN $1 = 'SENT' THEN NULL ELSE error_message END,
			updated_at = NOW()
		 WHERE id = $2`,
		string(status),
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update event status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatusWithError transitions an event to the given status and records
// an error message. A FAILED transition also increments retry_count.
//
// Returns false with a nil error when no row was updated.
func (r *StockEventRepository) UpdateStatusWithError(ctx context.Context, id string, status types.EventStatus, errMsg string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE stock_notification_events SET
			status = $1,
			error_message = $2,
			retry_count = CASE WHEN $1 = 'FAILED' THEN retry_count + 1 ELSE retry_count END,
			processed_at = NOW(),
			updated_at = NOW()
		 WHERE id = $3`,
		string(status),
		errMsg,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update event status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSiblingsSkipped flips the remaining PENDING events for the (recipient,
// sku) pair on the given day to SKIPPED with the sibling skip reason.
// exceptID excludes the representative that was just sent. Returns the number
// of events skipped.
func (r *StockEventRepository) MarkSiblingsSkipped(ctx context.Context, recipientID, sku string, day time.Time, exceptID string) (int64, error) {
	start, end := dayRange(day)

	tag, err := r.db.Exec(ctx,
		`UPDATE stock_notification_events SET
			status = 'SKIPPED',
			error_message = $1,
			processed_at = NOW(),
			updated_at = NOW()
		 WHERE status = 'PENDING'
		   AND recipient_id = $2 AND sku = $3
		   AND received_at >= $4 AND received_at < $5
		   AND id <> $6`,
		types.SkippedSiblingReason,
		recipientID, sku, start, end, exceptID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to skip duplicate events", err)
	}
	return tag.RowsAffected(), nil
}

// PendingCounts summarizes the PENDING backlog for one day.
type PendingCounts struct {
	Total         int64 `json:"total"`
	DistinctPairs int64 `json:"distinctPairs"`
}

// PendingCountsForDay returns the total PENDING events and distinct
// (recipient, sku) pairs among them for the given day.
func (r *StockEventRepository) PendingCountsForDay(ctx context.Context, day time.Time) (*PendingCounts, error) {
	start, end := dayRange(day)

	var counts PendingCounts
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT (recipient_id, sku))
		 FROM stock_notification_events
		 WHERE status = 'PENDING'
		   AND received_at >= $1 AND received_at < $2`,
		start, end,
	)
	if err := row.Scan(&counts.Total, &counts.DistinctPairs); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count pending events", err)
	}
	return &counts, nil
}

// dayRange returns the half-open UTC interval [start, end) covering the
// calendar day of t.
func dayRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// collectEvents drains a pgx.Rows result set into event structs.
func collectEvents(rows pgx.Rows) ([]*types.StockNotificationEvent, error) {
	var results []*types.StockNotificationEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event row", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating event rows", err)
	}
	return results, nil
}

// scanEvent scans one stock_notification_events row in eventColumns order.
// Handles nullable columns using pointer types.
func scanEvent(row pgx.Row) (*types.StockNotificationEvent, error) {
	var (
		e types.StockNotificationEvent

		sourceMessageID *string
		sourceGroupID   *string
		guestID         *string
		screen          *string
		sourceType      *string
		sourceName      *string
		status          string
		processedAt     *time.Time
		sentAt          *time.Time
		errorMessage    *string
		rawPayload      []byte
	)

	err := row.Scan(
		&e.ID,
		&sourceMessageID,
		&sourceGroupID,
		&e.RecipientID,
		&guestID,
		&e.ItemID,
		&e.SKU,
		&screen,
		&sourceType,
		&sourceName,
		&status,
		&e.ReceivedAt,
		&processedAt,
		&sentAt,
		&errorMessage,
		&e.RetryCount,
		&rawPayload,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = types.EventStatus(status)
	if sourceMessageID != nil {
		e.SourceMessageID = *sourceMessageID
	}
	if sourceGroupID != nil {
		e.SourceGroupID = *sourceGroupID
	}
	if guestID != nil {
		e.GuestID = *guestID
	}
	if screen != nil {
		e.Screen = *screen
	}
	if sourceType != nil {
		e.SourceType = *sourceType
	}
	if sourceName != nil {
		e.SourceName = *sourceName
	}
	if processedAt != nil {
		e.ProcessedAt = *processedAt
	}
	if sentAt != nil {
		e.SentAt = *sentAt
	}
	if errorMessage != nil {
		e.ErrorMessage = *errorMessage
	}
	if len(rawPayload) > 0 {
		_ = json.Unmarshal(rawPayload, &e.RawPayload)
	}

	return &e, nil
}

// rawPayloadJSON returns the raw_payload JSONB value for an event, or an
// empty object when none was captured.
func rawPayloadJSON(e *types.StockNotificationEvent) []byte {
	if e.RawPayload != nil {
		if b, err := json.Marshal(e.RawPayload); err == nil {
			return b
		}
	}
	return []byte("{}")
}

// nilIfEmpty converts empty strings to nil for nullable text columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
