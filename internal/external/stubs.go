package external

import (
	"context"
	"log/slog"

	"stocknotify/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the application to boot in local mode without
// real CleverTap credentials. They log all actions and return predictable,
// safe default values.
// ---------------------------------------------------------------------------

// StubCampaignTrigger implements CampaignTrigger and PushSender by logging
// calls and reporting success. Used when APP_ENV=local.
type StubCampaignTrigger struct {
	logger *slog.Logger
}

// NewStubCampaignTrigger creates a new StubCampaignTrigger.
func NewStubCampaignTrigger(logger *slog.Logger) *StubCampaignTrigger {
	return &StubCampaignTrigger{logger: logger}
}

func (s *StubCampaignTrigger) TriggerStockNotification(ctx context.Context, event *types.StockNotificationEvent) error {
	s.logger.InfoContext(ctx, "stub: TriggerStockNotification called",
		"event_id", event.ID,
		"recipient_id", event.EffectiveRecipientID(),
		"sku", event.SKU,
	)
	return nil
}

func (s *StubCampaignTrigger) SendPush(ctx context.Context, n *types.Notification) error {
	s.logger.InfoContext(ctx, "stub: SendPush called",
		"notification_id", n.ID,
		"recipient", n.Recipient,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ CampaignTrigger = (*StubCampaignTrigger)(nil)
var _ PushSender = (*StubCampaignTrigger)(nil)
