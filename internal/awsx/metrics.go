package awsx

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsEmitter publishes idempotency outcome counters to CloudWatch. It is
// best-effort: a failure to publish a metric never fails the invocation it
// is describing.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricsEmitter returns an emitter bound to a CloudWatch namespace.
func NewMetricsEmitter(client CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{
		CloudWatch: client,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Outcome names emitted by the idempotency handler.
const (
	MetricSuccessfulCompletion = "SuccessfulCompletion"
	MetricAlreadyInProgress    = "AlreadyInProgress"
	MetricValidationFailure    = "ValidationFailure"
	MetricLeaseRecovered       = "LeaseRecovered"
)

// Emit publishes a single count=1 data point for the named outcome,
// dimensioned by function name. Errors are swallowed: metrics emission must
// never affect the outcome of the invocation it is measuring.
func (m *MetricsEmitter) Emit(ctx context.Context, metricName, functionName string) {
	if m == nil || m.CloudWatch == nil {
		return
	}
	one := 1.0
	_, _ = m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &metricName,
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  ptrTime(m.nowFunc()),
				Dimensions: []cwtypes.Dimension{
					{Name: ptrString("FunctionName"), Value: &functionName},
				},
			},
		},
	})
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrString(s string) *string     { return &s }
