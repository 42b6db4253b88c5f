// Package intake implements the SQS long-poll consumer that receives stock
// notification messages and persists them as PENDING events.
//
// Key behaviors:
//   - Long-poll receive loop with configurable wait time, batch size, and
//     visibility timeout.
//   - Invalid messages (no recipient identity, missing item fields) are
//     deleted without a record; they would never become deliverable.
//   - Valid messages are persisted first and deleted from the queue only
//     after a successful save, giving at-least-once intake. A crash between
//     save and delete yields a redelivered duplicate, which the daily
//     deduplication batch resolves.
//   - Errors are isolated per message; one bad message never blocks a batch.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"stocknotify/internal/config"
	"stocknotify/internal/metrics"
	"stocknotify/internal/types"
)

// SQSReceiver is the narrow subset of the SQS API the consumer depends on.
// The concrete *sqs.Client satisfies it; tests provide mocks.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// EventSaver persists newly received events.
type EventSaver interface {
	Save(ctx context.Context, event *types.StockNotificationEvent) error
}

// MetricsRecorder counts intake outcomes.
type MetricsRecorder interface {
	RecordIntake(ctx context.Context, result metrics.Result)
}

// Stats holds the consumer's running counters. Values are cumulative since
// the consumer started.
type Stats struct {
	Received int64 `json:"received"`
	Stored   int64 `json:"stored"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Consumer is the SQS intake loop.
type Consumer struct {
	client   SQSReceiver
	repo     EventSaver
	metrics  MetricsRecorder
	logger   *slog.Logger
	queueURL string

	maxMessages       int32
	waitTime          time.Duration
	visibilityTimeout int32
	pollBackoff       time.Duration

	received atomic.Int64
	stored   atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// ConsumerConfig holds the dependencies for creating a Consumer.
type ConsumerConfig struct {
	Client  SQSReceiver
	Repo    EventSaver
	Metrics MetricsRecorder
	AWS     config.AWSConfig
	Logger  *slog.Logger
}

// NewConsumer creates a new Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NopRecorder{}
	}
	return &Consumer{
		client:            cfg.Client,
		repo:              cfg.Repo,
		metrics:           m,
		logger:            logger,
		queueURL:          cfg.AWS.StockQueueURL,
		maxMessages:       cfg.AWS.MaxMessages,
		waitTime:          cfg.AWS.WaitTime,
		visibilityTimeout: cfg.AWS.VisibilityTimeout,
		pollBackoff:       cfg.AWS.PollBackoff,
	}
}

// Run executes the receive loop until ctx is cancelled. The in-flight batch
// is always finished before returning; cancellation is checked between
// cycles, not mid-batch.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "intake consumer starting",
		"queue_url", c.queueURL,
		"max_messages", c.maxMessages,
		"wait_time", c.waitTime.String(),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "intake consumer stopping", "stats", c.Stats())
			return ctx.Err()
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.queueURL),
			MaxNumberOfMessages:   c.maxMessages,
			WaitTimeSeconds:       int32(c.waitTime.Seconds()),
			VisibilityTimeout:     c.visibilityTimeout,
			MessageAttributeNames: []string{"All"},
			// System attributes (MessageGroupId among them) arrive on
			// Message.Attributes only when requested here.
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameAll,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfoContext(ctx, "intake consumer stopping", "stats", c.Stats())
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "receive failed, backing off",
				"error", err.Error(),
				"backoff", c.pollBackoff.String(),
			)
			c.sleep(ctx, c.pollBackoff)
			continue
		}

		for _, msg := range out.Messages {
			c.received.Add(1)
			c.processMessage(ctx, msg)
		}
	}
}

// processMessage handles a single queue message end to end. Errors never
// propagate; each outcome path updates counters and metrics.
func (c *Consumer) processMessage(ctx context.Context, msg sqstypes.Message) {
	messageID := aws.ToString(msg.MessageId)
	body := aws.ToString(msg.Body)

	var payload types.StockEventPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed message",
			"message_id", messageID,
			"error", err.Error(),
		)
		c.drop(ctx, msg)
		return
	}

	if err := payload.Validate(); err != nil {
		c.logger.WarnContext(ctx, "dropping invalid message",
			"message_id", messageID,
			"reason", err.Error(),
		)
		c.drop(ctx, msg)
		return
	}

	event := types.NewStockNotificationEvent(payload.UserID, payload.GuestID, payload.ItemID, payload.SKU)
	event.Screen = payload.Screen
	event.SourceType = payload.SourceType
	event.SourceName = payload.SourceName
	event.SourceMessageID = messageID
	if gid, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameMessageGroupId)]; ok {
		event.SourceGroupID = gid
	}
	event.RawPayload = rawPayloadMap(body)

	if err := c.repo.Save(ctx, event); err != nil {
		// Leave the message on the queue; it becomes visible again after the
		// visibility timeout and is retried.
		c.failed.Add(1)
		c.metrics.RecordIntake(ctx, metrics.ResultFailed)
		c.logger.ErrorContext(ctx, "failed to persist event, message left for redelivery",
			"message_id", messageID,
			"event_id", event.ID,
			"error", err.Error(),
		)
		return
	}

	c.stored.Add(1)
	c.metrics.RecordIntake(ctx, metrics.ResultStored)
	c.logger.InfoContext(ctx, "stock event stored",
		"event_id", event.ID,
		"recipient_id", event.RecipientID,
		"item_id", event.ItemID,
		"sku", event.SKU,
	)

	c.delete(ctx, msg)
}

// drop deletes a message that can never become a valid event.
func (c *Consumer) drop(ctx context.Context, msg sqstypes.Message) {
	c.dropped.Add(1)
	c.metrics.RecordIntake(ctx, metrics.ResultDropped)
	c.delete(ctx, msg)
}

// delete removes a message from the queue. Delete failures are logged only;
// the message will be redelivered and resolved as a duplicate downstream.
func (c *Consumer) delete(ctx context.Context, msg sqstypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to delete message",
			"message_id", aws.ToString(msg.MessageId),
			"error", err.Error(),
		)
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Stored:   c.stored.Load(),
		Dropped:  c.dropped.Load(),
		Failed:   c.failed.Load(),
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// rawPayloadMap preserves the full message body, including fields the typed
// payload does not model, for audit.
func rawPayloadMap(body string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil
	}
	return m
}
