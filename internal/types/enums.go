package types

// EventStatus is the lifecycle state of a StockNotificationEvent.
//
// Events move strictly forward:
//
//	PENDING -> PROCESSING -> {SENT, FAILED, SKIPPED}
//
// SENT, FAILED and SKIPPED are terminal; no transition re-enters PENDING.
type EventStatus string

const (
	// EventPending marks an event received from the queue, awaiting the
	// daily batch run.
	EventPending EventStatus = "PENDING"
	// EventProcessing marks an event currently being delivered.
	EventProcessing EventStatus = "PROCESSING"
	// EventSent marks an event successfully delivered to the campaign API.
	EventSent EventStatus = "SENT"
	// EventFailed marks an event whose delivery attempt failed.
	EventFailed EventStatus = "FAILED"
	// EventSkipped marks an event resolved as a duplicate of a sent event.
	EventSkipped EventStatus = "SKIPPED"
)

// ParseEventStatus converts a string (case-sensitive, upper-case) into an
// EventStatus. Returns false if the value is not a known status.
func ParseEventStatus(s string) (EventStatus, bool) {
	switch EventStatus(s) {
	case EventPending, EventProcessing, EventSent, EventFailed, EventSkipped:
		return EventStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether the status is one an event never leaves.
func (s EventStatus) IsTerminal() bool {
	return s == EventSent || s == EventFailed || s == EventSkipped
}

// NotificationType identifies the delivery channel of a generic notification.
type NotificationType string

const (
	NotificationPush     NotificationType = "PUSH"
	NotificationWhatsApp NotificationType = "WHATSAPP"
	NotificationEmail    NotificationType = "EMAIL"
	NotificationSMS      NotificationType = "SMS"
)

// NotificationStatus is the lifecycle state of a generic notification.
type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "PENDING"
	NotificationProcessing NotificationStatus = "PROCESSING"
	NotificationSent       NotificationStatus = "SENT"
	NotificationFailed     NotificationStatus = "FAILED"
	NotificationCancelled  NotificationStatus = "CANCELLED"
)

// NotificationPriority orders generic notifications for channel senders that
// support priority hints.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// Metric names and dimensions emitted to CloudWatch.
const (
	MetricNamespace = "StockNotify"

	MetricIntakeMessage    = "IntakeMessage"
	MetricCampaignDelivery = "CampaignDelivery"

	DimStage  = "Stage"
	DimResult = "Result"
)
