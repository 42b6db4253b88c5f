package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"stocknotify/internal/core"
	"stocknotify/internal/notifications"
	"stocknotify/internal/types"
)

// NotificationSender dispatches a generic notification. Implemented by
// notifications.Service.
type NotificationSender interface {
	Send(ctx context.Context, input notifications.SendInput) (*types.Notification, error)
}

// NotificationHandler serves the generic multi-channel send route.
type NotificationHandler struct {
	service  NotificationSender
	validate *validator.Validate
	logger   *slog.Logger
}

// NewNotificationHandler creates a handler over the notification service.
func NewNotificationHandler(service NotificationSender, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the notification routes on the router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/notifications/send", h.Send)
}

// sendRequest is the request body for POST /v1/notifications/send.
type sendRequest struct {
	Type      string            `json:"type" validate:"required,oneof=PUSH WHATSAPP EMAIL SMS"`
	Recipient string            `json:"recipient" validate:"required"`
	Title     string            `json:"title" validate:"required"`
	Message   string            `json:"message" validate:"required"`
	Data      map[string]string `json:"data"`
	DeepLink  string            `json:"deepLink"`
	Priority  string            `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

// Send dispatches a notification through the channel registry. The terminal
// notification is returned; a delivery failure yields the error status with
// the failed notification in the details.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"invalid send request: "+err.Error(),
			err,
		))
		return
	}

	n, err := h.service.Send(r.Context(), notifications.SendInput{
		Type:      types.NotificationType(req.Type),
		Recipient: req.Recipient,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		DeepLink:  req.DeepLink,
		Priority:  types.NotificationPriority(req.Priority),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: n})
}
