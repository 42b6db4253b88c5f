package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockNotificationEvent_UserID(t *testing.T) {
	e := NewStockNotificationEvent("user-1", "guest-1", 42, "SKU42")

	require.NotEmpty(t, e.ID)
	assert.Equal(t, "user-1", e.RecipientID)
	assert.Equal(t, "guest-1", e.GuestID)
	assert.Equal(t, int64(42), e.ItemID)
	assert.Equal(t, "SKU42", e.SKU)
	assert.Equal(t, EventPending, e.Status)
	assert.Zero(t, e.RetryCount)
	assert.False(t, e.ReceivedAt.IsZero())
}

func TestNewStockNotificationEvent_GuestFallback(t *testing.T) {
	e := NewStockNotificationEvent("", "guest-7", 7, "SKU7")

	assert.Equal(t, "guest-7", e.RecipientID)
	assert.Equal(t, "guest-7", e.EffectiveRecipientID())
}

func TestNewStockNotificationEvent_BlankUserFallsBackToGuest(t *testing.T) {
	e := NewStockNotificationEvent("   ", " guest-7 ", 7, "SKU7")

	assert.Equal(t, "guest-7", e.RecipientID)
	assert.Equal(t, "guest-7", e.GuestID)
}

func TestMarkSent_SetsTimestampsAndClearsError(t *testing.T) {
	e := NewStockNotificationEvent("u", "", 1, "S")
	failed := e.MarkFailed("boom")
	sent := failed.MarkSent()

	assert.Equal(t, EventSent, sent.Status)
	assert.False(t, sent.SentAt.IsZero())
	assert.False(t, sent.ProcessedAt.IsZero())
	assert.Empty(t, sent.ErrorMessage)

	// original copies are untouched
	assert.Equal(t, EventPending, e.Status)
	assert.Equal(t, EventFailed, failed.Status)
}

func TestMarkFailed_IncrementsRetryCount(t *testing.T) {
	e := NewStockNotificationEvent("u", "", 1, "S")

	f1 := e.MarkFailed("first")
	f2 := f1.MarkFailed("second")

	assert.Equal(t, 1, f1.RetryCount)
	assert.Equal(t, "first", f1.ErrorMessage)
	assert.Equal(t, 2, f2.RetryCount)
	assert.Equal(t, "second", f2.ErrorMessage)
	assert.Zero(t, e.RetryCount)
}

func TestMarkSkipped_RecordsReasonWithoutRetry(t *testing.T) {
	e := NewStockNotificationEvent("u", "", 1, "S")
	s := e.MarkSkipped(SkippedDuplicateReason)

	assert.Equal(t, EventSkipped, s.Status)
	assert.Equal(t, SkippedDuplicateReason, s.ErrorMessage)
	assert.Zero(t, s.RetryCount)
	assert.False(t, s.ProcessedAt.IsZero())
}

func TestEventStatus_IsTerminal(t *testing.T) {
	assert.False(t, EventPending.IsTerminal())
	assert.False(t, EventProcessing.IsTerminal())
	assert.True(t, EventSent.IsTerminal())
	assert.True(t, EventFailed.IsTerminal())
	assert.True(t, EventSkipped.IsTerminal())
}

func TestParseEventStatus(t *testing.T) {
	got, ok := ParseEventStatus("SENT")
	require.True(t, ok)
	assert.Equal(t, EventSent, got)

	_, ok = ParseEventStatus("sent")
	assert.False(t, ok)

	_, ok = ParseEventStatus("BOGUS")
	assert.False(t, ok)
}

func TestStockEventPayload_Validate(t *testing.T) {
	valid := StockEventPayload{UserID: "u", ItemID: 1, SKU: "S"}
	assert.NoError(t, valid.Validate())

	guestOnly := StockEventPayload{GuestID: "g", ItemID: 1, SKU: "S"}
	assert.NoError(t, guestOnly.Validate())

	tests := []struct {
		name    string
		payload StockEventPayload
	}{
		{"no identity", StockEventPayload{ItemID: 1, SKU: "S"}},
		{"blank identity", StockEventPayload{UserID: "   ", GuestID: "\t", ItemID: 1, SKU: "S"}},
		{"no item id", StockEventPayload{UserID: "u", SKU: "S"}},
		{"no sku", StockEventPayload{UserID: "u", ItemID: 1}},
		{"blank sku", StockEventPayload{UserID: "u", ItemID: 1, SKU: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			require.Error(t, err)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, ErrCodeValidationMissingField, appErr.Code)
		})
	}
}

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString("super-secret")
	assert.Equal(t, "***REDACTED***", s.String())
	assert.Equal(t, "super-secret", s.Unmask())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"***REDACTED***"`, string(b))
}
