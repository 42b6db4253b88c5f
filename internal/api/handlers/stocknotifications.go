// Package handlers contains the HTTP handlers for the administrative API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stocknotify/internal/core"
	"stocknotify/internal/db"
	"stocknotify/internal/dedup"
	"stocknotify/internal/types"
)

// dateLayout is the wire format for day parameters.
const dateLayout = "2006-01-02"

// BatchRunner runs the deduplication batch for one day. Implemented by
// dedup.Processor.
type BatchRunner interface {
	ProcessDay(ctx context.Context, day time.Time) (*dedup.RunResult, error)
}

// EventReader is the read-side repository surface the handlers need.
// Implemented by db.StockEventRepository.
type EventReader interface {
	FindByID(ctx context.Context, id string) (*types.StockNotificationEvent, error)
	FindByStatus(ctx context.Context, status types.EventStatus, limit int) ([]*types.StockNotificationEvent, error)
	PendingCountsForDay(ctx context.Context, day time.Time) (*db.PendingCounts, error)
}

// StockNotificationHandler serves the stock notification admin routes.
type StockNotificationHandler struct {
	runner BatchRunner
	events EventReader
	logger *slog.Logger
}

// NewStockNotificationHandler creates a handler over the batch runner and the
// event repository.
func NewStockNotificationHandler(runner BatchRunner, events EventReader, logger *slog.Logger) *StockNotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockNotificationHandler{
		runner: runner,
		events: events,
		logger: logger,
	}
}

// RegisterRoutes mounts the stock notification routes on the router.
func (h *StockNotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/stock-notifications", func(r chi.Router) {
		r.Post("/process", h.Process)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/events/status/{status}", h.ListEventsByStatus)
		r.Get("/events/pending/count", h.PendingCount)
	})
}

// processResponse wraps a run result with an overall success flag.
type processResponse struct {
	Success bool            `json:"success"`
	Result  *dedup.RunResult `json:"result"`
}

// Process runs the deduplication batch for the requested day (query param
// "date", default today). Delivery failures inside the run still yield a 200
// with success=false; only a run that cannot start returns an error status.
func (h *StockNotificationHandler) Process(w http.ResponseWriter, r *http.Request) {
	day, err := parseDayParam(r, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual batch run requested",
		"date", day.Format(dateLayout),
	)

	result, err := h.runner.ProcessDay(r.Context(), day)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, processResponse{
		Success: result.Success(),
		Result:  result,
	})
}

// GetEvent returns a single event by ID.
func (h *StockNotificationHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.events.FindByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: event})
}

// ListEventsByStatus returns events in the given status, oldest first.
func (h *StockNotificationHandler) ListEventsByStatus(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "status")
	status, ok := types.ParseEventStatus(raw)
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			"unknown event status: "+raw,
			nil,
		))
		return
	}

	events, err := h.events.FindByStatus(r.Context(), status, 0)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if events == nil {
		events = []*types.StockNotificationEvent{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: events})
}

// PendingCount returns the pending backlog for the requested day (query
// param "date", default today).
func (h *StockNotificationHandler) PendingCount(w http.ResponseWriter, r *http.Request) {
	day, err := parseDayParam(r, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	counts, err := h.events.PendingCountsForDay(r.Context(), day)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: counts})
}

// parseDayParam reads the optional "date" query parameter, falling back to
// def when absent.
func parseDayParam(r *http.Request, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return def, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, types.NewAppError(
			types.ErrCodeValidationInvalidDate,
			"date must be formatted YYYY-MM-DD",
			err,
		)
	}
	return day, nil
}
