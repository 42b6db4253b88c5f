package notifications

import (
	"context"
	"log/slog"

	"stocknotify/internal/types"
)

// SendInput carries the fields of a send request.
type SendInput struct {
	Type      types.NotificationType
	Recipient string
	Title     string
	Message   string
	Data      map[string]string
	DeepLink  string
	Priority  types.NotificationPriority
}

// Service routes notifications to channel senders and tracks their outcome.
type Service struct {
	registry *Registry
	logger   *slog.Logger
}

// NewService creates a Service over the given registry.
func NewService(registry *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, logger: logger}
}

// Send builds a notification from the input, dispatches it through the
// channel sender for its type, and returns the notification in its terminal
// state. An unsupported type or a failed dispatch returns the error alongside
// the FAILED notification.
func (s *Service) Send(ctx context.Context, input SendInput) (*types.Notification, error) {
	n := types.NewNotification(input.Type, input.Recipient, input.Title, input.Message)
	n.Data = input.Data
	n.DeepLink = input.DeepLink
	if input.Priority != "" {
		n.Priority = input.Priority
	}

	sender, err := s.registry.Get(input.Type)
	if err != nil {
		return n.MarkNotificationFailed(err.Error()), err
	}

	n.Status = types.NotificationProcessing
	if err := sender.Send(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "notification send failed",
			"notification_id", n.ID,
			"type", string(n.Type),
			"error", err.Error(),
		)
		return n.MarkNotificationFailed(deliveryMessage(err)), err
	}

	s.logger.InfoContext(ctx, "notification sent",
		"notification_id", n.ID,
		"type", string(n.Type),
		"recipient", n.Recipient,
	)
	return n.MarkNotificationSent(), nil
}

func deliveryMessage(err error) string {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
