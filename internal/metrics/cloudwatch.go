// Package metrics emits operational metrics for the intake consumer and the
// deduplication batch to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stocknotify/internal/types"
)

// CloudWatchAPI abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Result is the outcome dimension value of a counted operation.
type Result string

const (
	ResultStored  Result = "stored"
	ResultDropped Result = "dropped"
	ResultFailed  Result = "failed"
	ResultSent    Result = "sent"
	ResultSkipped Result = "skipped"
)

// Recorder publishes intake and delivery counters to CloudWatch.
//
// Metrics emitted:
//   - IntakeMessage: Dims {Stage: "intake", Result} -- per queue message outcome
//   - CampaignDelivery: Dims {Stage: "dedup", Result} -- per batch delivery outcome
//
// Publish failures are logged and swallowed; metrics must never fail the
// operation they observe.
type Recorder struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewRecorder creates a Recorder that publishes to the given CloudWatch
// namespace.
func NewRecorder(client CloudWatchAPI, namespace string, logger *slog.Logger) *Recorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &Recorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordIntake counts one intake queue message outcome.
func (r *Recorder) RecordIntake(ctx context.Context, result Result) {
	r.put(ctx, types.MetricIntakeMessage, "intake", result)
}

// RecordDelivery counts one campaign delivery outcome from the batch run.
func (r *Recorder) RecordDelivery(ctx context.Context, result Result) {
	r.put(ctx, types.MetricCampaignDelivery, "dedup", result)
}

func (r *Recorder) put(ctx context.Context, metricName, stage string, result Result) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimStage),
						Value: aws.String(stage),
					},
					{
						Name:  aws.String(types.DimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish metric",
			"error", err.Error(),
			"metric", metricName,
			"result", string(result),
		)
	}
}

// NopRecorder discards all metrics. Used in local mode and tests.
type NopRecorder struct{}

func (NopRecorder) RecordIntake(ctx context.Context, result Result)   {}
func (NopRecorder) RecordDelivery(ctx context.Context, result Result) {}
