// Package notifications implements the generic multi-channel send path.
// Channels register a Sender per NotificationType; the Service routes each
// notification to the sender capable of handling its type.
package notifications

import (
	"context"
	"fmt"

	"stocknotify/internal/types"
)

// Sender delivers a notification over one channel.
type Sender interface {
	Send(ctx context.Context, n *types.Notification) error
}

// Registry maps notification types to their senders.
type Registry struct {
	senders map[types.NotificationType]Sender
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[types.NotificationType]Sender)}
}

// Register binds a sender to a notification type, replacing any previous
// binding.
func (r *Registry) Register(typ types.NotificationType, s Sender) {
	r.senders[typ] = s
}

// Get returns the sender for a type, or an AppError when no channel handles
// it.
func (r *Registry) Get(typ types.NotificationType) (Sender, error) {
	s, ok := r.senders[typ]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeChannelNotSupported,
			fmt.Sprintf("no sender registered for notification type %s", typ),
			nil,
		)
	}
	return s, nil
}

// Types returns the registered notification types.
func (r *Registry) Types() []types.NotificationType {
	out := make([]types.NotificationType, 0, len(r.senders))
	for t := range r.senders {
		out = append(out, t)
	}
	return out
}
