package notifications

import (
	"context"
	"log/slog"

	"stocknotify/internal/external"
	"stocknotify/internal/types"
)

// CleverTapPushSender delivers PUSH notifications through the CleverTap
// external trigger API.
type CleverTapPushSender struct {
	client external.PushSender
}

// NewCleverTapPushSender creates a push sender backed by the given client.
func NewCleverTapPushSender(client external.PushSender) *CleverTapPushSender {
	return &CleverTapPushSender{client: client}
}

func (s *CleverTapPushSender) Send(ctx context.Context, n *types.Notification) error {
	return s.client.SendPush(ctx, n)
}

// LoggingSender is a placeholder channel sender that logs the notification
// and succeeds. WhatsApp and SMS providers are not integrated yet; their
// types route here so the send API stays stable.
type LoggingSender struct {
	channel types.NotificationType
	logger  *slog.Logger
}

// NewLoggingSender creates a LoggingSender for the given channel.
func NewLoggingSender(channel types.NotificationType, logger *slog.Logger) *LoggingSender {
	return &LoggingSender{channel: channel, logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, n *types.Notification) error {
	s.logger.InfoContext(ctx, "channel sender not integrated, logging only",
		"channel", string(s.channel),
		"notification_id", n.ID,
		"recipient", n.Recipient,
	)
	return nil
}

var _ Sender = (*CleverTapPushSender)(nil)
var _ Sender = (*LoggingSender)(nil)
