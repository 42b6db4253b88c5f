package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stocknotify/internal/config"
	"stocknotify/internal/types"
)

// stockEventName is the CleverTap event raised for back-in-stock
// notifications. The live behavior campaign in CleverTap keys on this name.
const stockEventName = "stock_status_changed"

// CleverTapClientConfig holds the configuration for creating a CleverTapClient.
type CleverTapClientConfig struct {
	AccountID string
	Passcode  string
	Region    string // e.g. "in1"; ignored when BaseURL is set
	BaseURL   string // Override for testing; defaults to the regional endpoint
	Logger    *slog.Logger
}

// CleverTapClient implements CampaignTrigger and PushSender by making direct
// HTTP calls to the CleverTap APIs through BaseClient. All requests go
// through the shared resilience infrastructure (circuit breaker, retries,
// error mapping), which also makes testing with httptest straightforward.
type CleverTapClient struct {
	base      *BaseClient
	accountID string
	passcode  string
	baseURL   string
	logger    *slog.Logger
	now       func() time.Time // injectable clock for deterministic payloads
}

// NewCleverTapClient creates a new CleverTapClient from the service
// configuration.
func NewCleverTapClient(httpClient *http.Client, cfg config.CleverTapConfig, logger *slog.Logger) *CleverTapClient {
	return NewCleverTapClientFromConfig(httpClient, CleverTapClientConfig{
		AccountID: cfg.AccountID,
		Passcode:  cfg.Passcode.Unmask(),
		Region:    cfg.Region,
		BaseURL:   cfg.BaseURL,
		Logger:    logger,
	})
}

// NewCleverTapClientFromConfig creates a CleverTapClient with explicit
// client configuration.
func NewCleverTapClientFromConfig(httpClient *http.Client, cfg CleverTapClientConfig) *CleverTapClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		region := cfg.Region
		if region == "" {
			region = "in1"
		}
		baseURL = fmt.Sprintf("https://%s.api.clevertap.com", region)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"clevertap",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"StockNotify/1.0",
	)

	return &CleverTapClient{
		base:      base,
		accountID: cfg.AccountID,
		passcode:  cfg.Passcode,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// NewCleverTapClientWithBase creates a CleverTapClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewCleverTapClientWithBase(base *BaseClient, cfg CleverTapClientConfig) *CleverTapClient {
	c := NewCleverTapClientFromConfig(&http.Client{}, cfg)
	c.base = base
	return c
}

// ---------------------------------------------------------------------------
// CampaignTrigger Implementation
// ---------------------------------------------------------------------------

// uploadEvent is one entry of the Upload Events API request body.
type uploadEvent struct {
	Identity string         `json:"identity"`
	Type     string         `json:"type"`
	EvtName  string         `json:"evtName"`
	EvtData  map[string]any `json:"evtData"`
	TS       int64          `json:"ts"`
}

// uploadRequest is the Upload Events API request body.
type uploadRequest struct {
	D []uploadEvent `json:"d"`
}

// uploadResponse covers the response shapes CleverTap returns for both the
// upload and external-trigger endpoints. Pointer fields distinguish absent
// keys from zero values.
type uploadResponse struct {
	Status      string          `json:"status"`
	Processed   *int            `json:"processed"`
	Unprocessed json.RawMessage `json:"unprocessed"`
	Error       string          `json:"error"`
}

// TriggerStockNotification uploads a stock_status_changed event for the
// event's effective recipient via the Upload Events API.
//
// Response handling:
//   - "processed" > 0 -> success
//   - "processed" == 0 -> error carrying the unprocessed detail
//   - "status" == "success" (no processed field) -> success
//   - "error" field -> error carrying the remote message
//   - anything else -> error carrying the raw body
func (c *CleverTapClient) TriggerStockNotification(ctx context.Context, event *types.StockNotificationEvent) error {
	recipientID := event.EffectiveRecipientID()
	if recipientID == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"no valid recipient for stock notification",
			nil,
		)
	}

	c.logger.InfoContext(ctx, "uploading stock event to clevertap",
		"event_id", event.ID,
		"recipient_id", recipientID,
		"sku", event.SKU,
	)

	evtData := map[string]any{
		"notification_type": "BACK_IN_STOCK",
		"stock_status":      "available",
		"productId":         fmt.Sprintf("%d", event.ItemID),
		"sku":               event.SKU,
	}
	if event.Screen != "" {
		evtData["screen"] = event.Screen
	}
	if event.SourceType != "" {
		evtData["sourceType"] = event.SourceType
	}
	if event.SourceName != "" {
		evtData["sourceName"] = event.SourceName
	}

	payload := uploadRequest{
		D: []uploadEvent{{
			Identity: recipientID,
			Type:     "event",
			EvtName:  stockEventName,
			EvtData:  evtData,
			TS:       c.now().Unix(),
		}},
	}

	respJSON, err := c.post(ctx, "/1/upload", payload)
	if err != nil {
		return err
	}

	if respJSON.Processed != nil {
		if *respJSON.Processed > 0 {
			c.logger.InfoContext(ctx, "stock event uploaded",
				"event_id", event.ID,
				"recipient_id", recipientID,
				"processed", *respJSON.Processed,
			)
			return nil
		}
		return types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			fmt.Sprintf("clevertap processed 0 events, unprocessed: %s", string(respJSON.Unprocessed)),
			nil,
		)
	}

	if respJSON.Status == "success" {
		return nil
	}

	if respJSON.Error != "" {
		return types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			"clevertap api error: "+respJSON.Error,
			nil,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamCampaignAPI,
		"unknown clevertap response",
		nil,
	)
}

// ---------------------------------------------------------------------------
// PushSender Implementation
// ---------------------------------------------------------------------------

// SendPush delivers a push notification through the CleverTap external
// trigger campaign API. Title, body, and deep link map to the wzrk_* keys;
// custom data entries are merged in as additional key-value pairs.
func (c *CleverTapClient) SendPush(ctx context.Context, n *types.Notification) error {
	c.logger.InfoContext(ctx, "sending clevertap push",
		"notification_id", n.ID,
		"recipient", n.Recipient,
	)

	kvs := map[string]any{
		"wzrk_title": n.Title,
		"wzrk_body":  n.Message,
	}
	if n.DeepLink != "" {
		kvs["wzrk_dl"] = n.DeepLink
	}
	for k, v := range n.Data {
		kvs[k] = v
	}

	payload := map[string]any{
		"ExternalTrigger": []map[string]any{{
			"to":  map[string]any{"Identity": []string{n.Recipient}},
			"kvs": kvs,
		}},
	}

	respJSON, err := c.post(ctx, "/1/send/externaltrigger.json", payload)
	if err != nil {
		return err
	}

	if respJSON.Error != "" {
		return types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			"clevertap api error: "+respJSON.Error,
			nil,
		)
	}
	if respJSON.Status == "success" {
		return nil
	}

	return types.NewAppError(
		types.ErrCodeUpstreamCampaignAPI,
		"unknown clevertap response",
		nil,
	)
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// post marshals the payload, executes the request through BaseClient, and
// decodes the JSON response body.
func (c *CleverTapClient) post(ctx context.Context, path string, payload any) (*uploadResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal clevertap payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create clevertap request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CleverTap-Account-Id", c.accountID)
	req.Header.Set("X-CleverTap-Passcode", c.passcode)

	resp, err := c.base.Do(req)
	if err != nil {
		// Already an AppError from BaseClient (circuit breaker, retries
		// exhausted) with the right upstream error code.
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			fmt.Sprintf("clevertap returned status %d and response body was unreadable", resp.StatusCode),
			err,
		)
	}

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			fmt.Sprintf("clevertap error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			nil,
		)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCampaignAPI,
			"unknown clevertap response: "+strings.TrimSpace(string(respBody)),
			err,
		)
	}
	return &parsed, nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var (
	_ CampaignTrigger = (*CleverTapClient)(nil)
	_ PushSender      = (*CleverTapClient)(nil)
)
