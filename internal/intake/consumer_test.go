package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stocknotify/internal/config"
	"stocknotify/internal/types"
)

// --- Mocks ---

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sqs.ReceiveMessageOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	return &sqs.DeleteMessageOutput{}, args.Error(1)
}

type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) Save(ctx context.Context, event *types.StockNotificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testConsumer(client *mockSQS, repo *mockSaver) *Consumer {
	return NewConsumer(ConsumerConfig{
		Client: client,
		Repo:   repo,
		AWS: config.AWSConfig{
			StockQueueURL:     "https://sqs.test/queue",
			MaxMessages:       10,
			WaitTime:          20 * time.Second,
			VisibilityTimeout: 30,
			PollBackoff:       time.Millisecond,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func message(id, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-" + id),
	}
}

// --- processMessage ---

func TestProcessMessage_ValidStoresThenDeletes(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	var saved *types.StockNotificationEvent
	repo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*types.StockNotificationEvent)
		}).
		Return(nil)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	body := `{"userId":"user-1","itemId":42,"skuid":"SKU42","screen":"pdp","sourceType":"app","extra":"kept"}`
	c.processMessage(context.Background(), message("m-1", body))

	repo.AssertExpectations(t)
	client.AssertExpectations(t)

	require.NotNil(t, saved)
	assert.Equal(t, "user-1", saved.RecipientID)
	assert.Equal(t, int64(42), saved.ItemID)
	assert.Equal(t, "SKU42", saved.SKU)
	assert.Equal(t, "pdp", saved.Screen)
	assert.Equal(t, types.EventPending, saved.Status)
	assert.Equal(t, "m-1", saved.SourceMessageID)
	assert.Equal(t, "kept", saved.RawPayload["extra"])

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Stored)
	assert.Zero(t, stats.Dropped)
	assert.Zero(t, stats.Failed)
}

func TestProcessMessage_NoIdentityDroppedAndDeleted(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	c.processMessage(context.Background(), message("m-1", `{"itemId":42,"skuid":"SKU42"}`))

	repo.AssertNotCalled(t, "Save")
	client.AssertExpectations(t)
	assert.Equal(t, int64(1), c.Stats().Dropped)
}

func TestProcessMessage_MalformedJSONDropped(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	c.processMessage(context.Background(), message("m-1", `{not json`))

	repo.AssertNotCalled(t, "Save")
	assert.Equal(t, int64(1), c.Stats().Dropped)
}

func TestProcessMessage_SaveFailureLeavesMessage(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	repo.On("Save", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeInternalDB, "insert failed", errors.New("down")))

	c.processMessage(context.Background(), message("m-1", `{"userId":"u","itemId":1,"skuid":"S"}`))

	// No delete: the message must stay visible for redelivery.
	client.AssertNotCalled(t, "DeleteMessage")
	assert.Equal(t, int64(1), c.Stats().Failed)
}

func TestProcessMessage_GuestOnlyIdentity(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	var saved *types.StockNotificationEvent
	repo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*types.StockNotificationEvent)
		}).
		Return(nil)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	c.processMessage(context.Background(), message("m-1", `{"guestId":"guest-9","itemId":1,"skuid":"S"}`))

	require.NotNil(t, saved)
	assert.Equal(t, "guest-9", saved.RecipientID)
	assert.Equal(t, "guest-9", saved.GuestID)
}

// --- Run loop ---

func TestRun_ProcessesBatchThenStopsOnCancel(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	ctx, cancel := context.WithCancel(context.Background())

	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&sqs.ReceiveMessageOutput{
			Messages: []sqstypes.Message{
				message("m-1", `{"userId":"u1","itemId":1,"skuid":"A"}`),
				message("m-2", `{"itemId":2,"skuid":"B"}`), // invalid, dropped
			},
		}, nil).Once()
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Received)
	assert.Equal(t, int64(1), stats.Stored)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestRun_ReceiveErrorBacksOffAndContinues(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	ctx, cancel := context.WithCancel(context.Background())

	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("throttled")).Once()
	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&sqs.ReceiveMessageOutput{}, nil).Once()

	err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	client.AssertExpectations(t)
}

func TestRun_ReceiveUsesConfiguredParameters(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	ctx, cancel := context.WithCancel(context.Background())

	var captured *sqs.ReceiveMessageInput
	client.On("ReceiveMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*sqs.ReceiveMessageInput)
			cancel()
		}).
		Return(&sqs.ReceiveMessageOutput{}, nil).Once()

	_ = c.Run(ctx)

	require.NotNil(t, captured)
	assert.Equal(t, "https://sqs.test/queue", aws.ToString(captured.QueueUrl))
	assert.Equal(t, int32(10), captured.MaxNumberOfMessages)
	assert.Equal(t, int32(20), captured.WaitTimeSeconds)
	assert.Equal(t, int32(30), captured.VisibilityTimeout)
	assert.Contains(t, captured.MessageSystemAttributeNames, sqstypes.MessageSystemAttributeNameAll)
}

func TestProcessMessage_GroupIDFromSystemAttributes(t *testing.T) {
	client := new(mockSQS)
	repo := new(mockSaver)
	c := testConsumer(client, repo)

	var saved *types.StockNotificationEvent
	repo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*types.StockNotificationEvent)
		}).
		Return(nil)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, nil)

	msg := message("m-1", `{"userId":"u","itemId":1,"skuid":"S"}`)
	msg.Attributes = map[string]string{
		string(sqstypes.MessageSystemAttributeNameMessageGroupId): "group-7",
	}
	c.processMessage(context.Background(), msg)

	require.NotNil(t, saved)
	assert.Equal(t, "group-7", saved.SourceGroupID)
}
