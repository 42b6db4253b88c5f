package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Skip reasons recorded in error_message distinguish how a duplicate was
// resolved: SkippedDuplicateReason marks an event whose pair had already been
// sent before the batch reached it; SkippedSiblingReason marks the remaining
// pending events of a pair whose representative was just sent.
const (
	SkippedDuplicateReason = "duplicate: already sent today"
	SkippedSiblingReason   = "duplicate: another event for this pair was sent today"
)

// StockNotificationEvent is one "item restocked" interest record received
// from the intake queue. Events are append-only; state changes flow through
// the Mark* copy helpers and are persisted via the event repository.
type StockNotificationEvent struct {
	ID              string         `json:"id"`
	SourceMessageID string         `json:"sourceMessageId,omitempty"`
	SourceGroupID   string         `json:"sourceGroupId,omitempty"`
	RecipientID     string         `json:"recipientId"`
	GuestID         string         `json:"guestId,omitempty"`
	ItemID          int64          `json:"itemId"`
	SKU             string         `json:"sku"`
	Screen          string         `json:"screen,omitempty"`
	SourceType      string         `json:"sourceType,omitempty"`
	SourceName      string         `json:"sourceName,omitempty"`
	Status          EventStatus    `json:"status"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	ProcessedAt     time.Time      `json:"processedAt,omitzero"`
	SentAt          time.Time      `json:"sentAt,omitzero"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	RetryCount      int            `json:"retryCount"`
	RawPayload      map[string]any `json:"rawPayload,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// NewStockNotificationEvent builds a PENDING event from validated queue
// payload fields. The recipient is the user ID when non-blank, otherwise the
// guest ID; callers must ensure at least one is non-blank. Identities are
// stored trimmed.
func NewStockNotificationEvent(userID, guestID string, itemID int64, sku string) *StockNotificationEvent {
	now := time.Now().UTC()
	userID = strings.TrimSpace(userID)
	guestID = strings.TrimSpace(guestID)
	recipient := userID
	if recipient == "" {
		recipient = guestID
	}
	return &StockNotificationEvent{
		ID:          uuid.New().String(),
		RecipientID: recipient,
		GuestID:     guestID,
		ItemID:      itemID,
		SKU:         sku,
		Status:      EventPending,
		ReceivedAt:  now,
		RetryCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// EffectiveRecipientID returns the identity used for delivery and duplicate
// checks. RecipientID is already normalized at intake, so this is a plain
// accessor kept for call-site clarity.
func (e *StockNotificationEvent) EffectiveRecipientID() string {
	return e.RecipientID
}

// IsTerminal reports whether the event has reached a final status.
func (e *StockNotificationEvent) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// MarkProcessing returns a copy of the event in PROCESSING state.
func (e *StockNotificationEvent) MarkProcessing() *StockNotificationEvent {
	c := *e
	c.Status = EventProcessing
	c.UpdatedAt = time.Now().UTC()
	return &c
}

// MarkSent returns a copy of the event in SENT state with the delivery
// timestamps set and any previous error cleared.
func (e *StockNotificationEvent) MarkSent() *StockNotificationEvent {
	now := time.Now().UTC()
	c := *e
	c.Status = EventSent
	c.ProcessedAt = now
	c.SentAt = now
	c.ErrorMessage = ""
	c.UpdatedAt = now
	return &c
}

// MarkFailed returns a copy of the event in FAILED state carrying the error
// message, with the retry count incremented.
func (e *StockNotificationEvent) MarkFailed(msg string) *StockNotificationEvent {
	now := time.Now().UTC()
	c := *e
	c.Status = EventFailed
	c.ProcessedAt = now
	c.ErrorMessage = msg
	c.RetryCount = e.RetryCount + 1
	c.UpdatedAt = now
	return &c
}

// MarkSkipped returns a copy of the event in SKIPPED state with the skip
// reason recorded. The retry count is left unchanged.
func (e *StockNotificationEvent) MarkSkipped(reason string) *StockNotificationEvent {
	now := time.Now().UTC()
	c := *e
	c.Status = EventSkipped
	c.ProcessedAt = now
	c.ErrorMessage = reason
	c.UpdatedAt = now
	return &c
}

// Notification is a generic outbound notification on the multi-channel send
// path. Stock notifications do not pass through this type; it backs the
// administrative send API.
type Notification struct {
	ID           string               `json:"id"`
	Type         NotificationType     `json:"type"`
	Recipient    string               `json:"recipient"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Data         map[string]string    `json:"data,omitempty"`
	DeepLink     string               `json:"deepLink,omitempty"`
	Priority     NotificationPriority `json:"priority"`
	Status       NotificationStatus   `json:"status"`
	CreatedAt    time.Time            `json:"createdAt"`
	SentAt       time.Time            `json:"sentAt,omitzero"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
}

// NewNotification builds a PENDING notification with a fresh ID. Priority
// defaults to NORMAL when empty.
func NewNotification(typ NotificationType, recipient, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Recipient: recipient,
		Title:     title,
		Message:   message,
		Priority:  PriorityNormal,
		Status:    NotificationPending,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkNotificationSent returns a copy of the notification in SENT state.
func (n *Notification) MarkNotificationSent() *Notification {
	c := *n
	c.Status = NotificationSent
	c.SentAt = time.Now().UTC()
	c.ErrorMessage = ""
	return &c
}

// MarkNotificationFailed returns a copy of the notification in FAILED state
// with the error message recorded.
func (n *Notification) MarkNotificationFailed(msg string) *Notification {
	c := *n
	c.Status = NotificationFailed
	c.ErrorMessage = msg
	return &c
}
