package core

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocknotify/internal/config"
	"stocknotify/internal/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(
		&config.Config{Environment: "local", Service: "stock-notification-service"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	s := testServer(t)

	var seen string
	s.Router().Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("X-Request-ID", "req-fixed-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-fixed-1", seen)
	assert.Equal(t, "req-fixed-1", rec.Header().Get("X-Request-ID"))
}

func TestRecoverer_Returns500JSON(t *testing.T) {
	s := testServer(t)
	s.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeInternalUnexpected))
}

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", types.NewAppError(types.ErrCodeValidationInvalidDate, "bad date", nil), http.StatusBadRequest},
		{"not found", types.NewAppError(types.ErrCodeNotFoundEvent, "missing", nil), http.StatusNotFound},
		{"rate limited", types.NewAppError(types.ErrCodeUpstreamRateLimited, "slow down", nil), http.StatusTooManyRequests},
		{"upstream", types.NewAppError(types.ErrCodeUpstreamCampaignAPI, "remote broke", nil), http.StatusBadGateway},
		{"generic", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			Error(rec, req, tt.err)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestDecodeJSON_Strictness(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"name":"x"}`, true},
		{"unknown field", `{"name":"x","bogus":1}`, false},
		{"empty body", ``, false},
		{"two documents", `{"name":"x"}{"name":"y"}`, false},
		{"syntax error", `{name}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, &dst)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
		})
	}
}
