package external

import (
	"context"

	"stocknotify/internal/types"
)

// CampaignTrigger raises a campaign event for a stock notification. The
// production implementation is CleverTapClient; local mode uses the stub.
type CampaignTrigger interface {
	// TriggerStockNotification uploads a stock_status_changed event for the
	// event's effective recipient, firing the back-in-stock campaign.
	TriggerStockNotification(ctx context.Context, event *types.StockNotificationEvent) error
}

// PushSender delivers an ad-hoc push notification through an external
// trigger campaign.
type PushSender interface {
	SendPush(ctx context.Context, n *types.Notification) error
}
