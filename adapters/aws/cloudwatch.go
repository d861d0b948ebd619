package aws

import (
	"context"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/types"
)

// cloudwatchMetric maps a canonical metric type to its AWS/EC2 namespace
// metric and unit. Memory needs the CloudWatch agent and cost needs Cost
// Explorer; neither is served here.
var cloudwatchMetric = map[types.MetricType]struct {
	name string
	unit string
}{
	types.MetricCPU:        {"CPUUtilization", "percent"},
	types.MetricNetworkIn:  {"NetworkIn", "bytes"},
	types.MetricNetworkOut: {"NetworkOut", "bytes"},
	types.MetricDiskRead:   {"DiskReadBytes", "bytes"},
	types.MetricDiskWrite:  {"DiskWriteBytes", "bytes"},
}

// GetMetrics pulls average datapoints for the instance from CloudWatch.
func (a *Adapter) GetMetrics(ctx context.Context, nativeID string, metricType types.MetricType, window adapters.MetricWindow) ([]adapters.RawMetric, error) {
	spec, ok := cloudwatchMetric[metricType]
	if !ok {
		return nil, &adapters.UnsupportedError{Provider: "aws", Op: string(metricType) + " metrics"}
	}

	out, err := a.cloudwatchClient().GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String("AWS/EC2"),
		MetricName: awssdk.String(spec.name),
		Dimensions: []cwtypes.Dimension{{
			Name:  awssdk.String("InstanceId"),
			Value: awssdk.String(nativeID),
		}},
		StartTime:  awssdk.Time(window.Start),
		EndTime:    awssdk.Time(window.End),
		Period:     awssdk.Int32(int32(window.Period.Seconds())),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return nil, classify(err)
	}

	points := make([]adapters.RawMetric, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		points = append(points, adapters.RawMetric{
			Timestamp: awssdk.ToTime(dp.Timestamp),
			Value:     awssdk.ToFloat64(dp.Average),
			Unit:      spec.unit,
		})
	}
	// CloudWatch returns datapoints unordered.
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}
