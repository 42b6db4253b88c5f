package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCloudWatch struct {
	mock.Mock
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(ctx, params)
	return &cloudwatch.PutMetricDataOutput{}, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_RecordIntake(t *testing.T) {
	cw := new(mockCloudWatch)
	rec := NewRecorder(cw, "StockNotify", testLogger())

	var captured *cloudwatch.PutMetricDataInput
	cw.On("PutMetricData", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*cloudwatch.PutMetricDataInput)
		}).
		Return(nil, nil)

	rec.RecordIntake(context.Background(), ResultStored)

	require.NotNil(t, captured)
	assert.Equal(t, "StockNotify", *captured.Namespace)
	require.Len(t, captured.MetricData, 1)
	datum := captured.MetricData[0]
	assert.Equal(t, "IntakeMessage", *datum.MetricName)
	assert.Equal(t, float64(1), *datum.Value)
	require.Len(t, datum.Dimensions, 2)
	assert.Equal(t, "intake", *datum.Dimensions[0].Value)
	assert.Equal(t, "stored", *datum.Dimensions[1].Value)
}

func TestRecorder_RecordDelivery_PublishErrorSwallowed(t *testing.T) {
	cw := new(mockCloudWatch)
	rec := NewRecorder(cw, "", testLogger())

	cw.On("PutMetricData", mock.Anything, mock.Anything).
		Return(nil, errors.New("throttled"))

	// Must not panic or propagate the error.
	rec.RecordDelivery(context.Background(), ResultFailed)
	cw.AssertExpectations(t)
}

func TestNewRecorder_DefaultNamespace(t *testing.T) {
	cw := new(mockCloudWatch)
	rec := NewRecorder(cw, "", testLogger())
	assert.Equal(t, "StockNotify", rec.namespace)
}
