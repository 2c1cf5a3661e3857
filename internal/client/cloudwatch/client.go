// Package cloudwatch provides a CloudWatch metric source.
package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

const defaultPeriod = time.Minute

// API is the subset of the CloudWatch client used here.
type API interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Client reads windowed averages from CloudWatch.
type Client struct {
	api    API
	period time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewClient creates a CloudWatch metric source. period is the datapoint
// granularity requested from CloudWatch.
func NewClient(api API, period time.Duration, logger zerolog.Logger) *Client {
	if period < time.Second {
		period = defaultPeriod
	}
	return &Client{
		api:    api,
		period: period,
		now:    time.Now,
		logger: logger.With().Str("component", "cloudwatch-client").Logger(),
	}
}

// Average returns the mean of the per-period averages of metric for
// entityID over the last window. ok is false when CloudWatch returned no
// datapoints.
func (c *Client) Average(ctx context.Context, metric model.TrackedMetric, entityID string, window time.Duration) (float64, bool, error) {
	end := c.now().UTC()
	start := end.Add(-window)

	out, err := c.api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(metric.Namespace),
		MetricName: aws.String(metric.Metric),
		Dimensions: []types.Dimension{
			{Name: aws.String(metric.Dimension), Value: aws.String(entityID)},
		},
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(int32(c.period / time.Second)),
		Statistics: []types.Statistic{types.StatisticAverage},
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s/%s for %s: %w", metric.Namespace, metric.Metric, entityID, err)
	}

	value, ok := meanOfAverages(out.Datapoints)

	c.logger.Debug().
		Str("entity", entityID).
		Str("metric", string(metric.Name)).
		Int("datapoints", len(out.Datapoints)).
		Bool("has_data", ok).
		Float64("average", value).
		Msg("metric averaged")

	return value, ok, nil
}

// meanOfAverages averages the Average statistic of datapoints in time order.
func meanOfAverages(points []types.Datapoint) (float64, bool) {
	sorted := make([]types.Datapoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return aws.ToTime(sorted[i].Timestamp).Before(aws.ToTime(sorted[j].Timestamp))
	})

	var sum float64
	var n int
	for _, p := range sorted {
		if p.Average == nil {
			continue
		}
		sum += *p.Average
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
