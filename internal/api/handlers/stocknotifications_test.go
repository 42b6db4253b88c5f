package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stocknotify/internal/db"
	"stocknotify/internal/dedup"
	"stocknotify/internal/types"
)

// --- Mocks ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ProcessDay(ctx context.Context, day time.Time) (*dedup.RunResult, error) {
	args := m.Called(ctx, day)
	if v := args.Get(0); v != nil {
		return v.(*dedup.RunResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) FindByID(ctx context.Context, id string) (*types.StockNotificationEvent, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*types.StockNotificationEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEvents) FindByStatus(ctx context.Context, status types.EventStatus, limit int) ([]*types.StockNotificationEvent, error) {
	args := m.Called(ctx, status, limit)
	if v := args.Get(0); v != nil {
		return v.([]*types.StockNotificationEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEvents) PendingCountsForDay(ctx context.Context, day time.Time) (*db.PendingCounts, error) {
	args := m.Called(ctx, day)
	if v := args.Get(0); v != nil {
		return v.(*db.PendingCounts), args.Error(1)
	}
	return nil, args.Error(1)
}

func testRouter(runner *mockRunner, events *mockEvents) http.Handler {
	h := NewStockNotificationHandler(runner, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// --- Process ---

func TestProcess_WithExplicitDate(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	expectedDay := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	runner.On("ProcessDay", mock.Anything, expectedDay).
		Return(&dedup.RunResult{Date: "2026-08-27", TotalEvents: 3, TotalSent: 3, TotalProcessed: 3}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/stock-notifications/process?date=2026-08-27", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool             `json:"success"`
		Result  *dedup.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Result.TotalSent)
	runner.AssertExpectations(t)
}

func TestProcess_FailuresInsideRunStillReturn200(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	runner.On("ProcessDay", mock.Anything, mock.Anything).
		Return(&dedup.RunResult{
			Date:           "2026-08-27",
			TotalEvents:    2,
			TotalSent:      1,
			TotalFailed:    1,
			TotalProcessed: 2,
			FailedEventIDs: []string{"evt-2"},
			ErrorMessages:  []string{"upstream rate limit exceeded"},
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/stock-notifications/process?date=2026-08-27", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "evt-2")
}

func TestProcess_InvalidDate(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	req := httptest.NewRequest(http.MethodPost, "/v1/stock-notifications/process?date=27-08-2026", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runner.AssertNotCalled(t, "ProcessDay")
}

func TestProcess_RunCannotStart(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	runner.On("ProcessDay", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "query failed", nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/stock-notifications/process", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- GetEvent ---

func TestGetEvent_Found(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	events.On("FindByID", mock.Anything, "evt-1").
		Return(&types.StockNotificationEvent{ID: "evt-1", RecipientID: "user-1", SKU: "SKU42", Status: types.EventSent}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/stock-notifications/events/evt-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"evt-1"`)
	assert.Contains(t, rec.Body.String(), `"status":"SENT"`)
}

func TestGetEvent_NotFound(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	events.On("FindByID", mock.Anything, "missing").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundEvent, "stock notification event not found", nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/stock-notifications/events/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- ListEventsByStatus ---

func TestListEventsByStatus_InvalidStatus(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	req := httptest.NewRequest(http.MethodGet, "/v1/stock-notifications/events/status/bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	events.AssertNotCalled(t, "FindByStatus")
}

func TestListEventsByStatus_EmptyResultIsArray(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	events.On("FindByStatus", mock.Anything, types.EventFailed, 0).
		Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/stock-notifications/events/status/FAILED", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

// --- PendingCount ---

func TestPendingCount(t *testing.T) {
	runner := new(mockRunner)
	events := new(mockEvents)
	router := testRouter(runner, events)

	expectedDay := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	events.On("PendingCountsForDay", mock.Anything, expectedDay).
		Return(&db.PendingCounts{Total: 9, DistinctPairs: 5}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/stock-notifications/events/pending/count?date=2026-08-27", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":9`)
	assert.Contains(t, rec.Body.String(), `"distinctPairs":5`)
}
