package gcp

import (
	"context"
	"errors"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/types"
)

// metricsAPI is the slice of the Cloud Monitoring client we use.
type metricsAPI interface {
	ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest, opts ...gax.CallOption) *monitoring.TimeSeriesIterator
}

func newMetricsClient(ctx context.Context, saJSON string) (metricsAPI, error) {
	return monitoring.NewMetricClient(ctx, option.WithCredentialsJSON([]byte(saJSON)))
}

// monitoringMetric maps a canonical metric type to its Compute Engine
// metric descriptor. CPU utilization arrives as a 0..1 ratio and is scaled
// to percent. Memory needs the ops agent and cost lives in Billing; neither
// is served here.
var monitoringMetric = map[types.MetricType]struct {
	descriptor string
	unit       string
	scale      float64
}{
	types.MetricCPU:        {"compute.googleapis.com/instance/cpu/utilization", "percent", 100},
	types.MetricNetworkIn:  {"compute.googleapis.com/instance/network/received_bytes_count", "bytes", 1},
	types.MetricNetworkOut: {"compute.googleapis.com/instance/network/sent_bytes_count", "bytes", 1},
	types.MetricDiskRead:   {"compute.googleapis.com/instance/disk/read_bytes_count", "bytes", 1},
	types.MetricDiskWrite:  {"compute.googleapis.com/instance/disk/write_bytes_count", "bytes", 1},
}

// GetMetrics pulls mean-aligned time series for the instance from Cloud
// Monitoring.
func (a *Adapter) GetMetrics(ctx context.Context, nativeID string, metricType types.MetricType, window adapters.MetricWindow) ([]adapters.RawMetric, error) {
	spec, ok := monitoringMetric[metricType]
	if !ok {
		return nil, &adapters.UnsupportedError{Provider: "gcp", Op: string(metricType) + " metrics"}
	}

	_, name, err := splitNativeID(nativeID)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf(`metric.type = %q AND metric.labels.instance_name = %q`,
		spec.descriptor, name)

	it := a.metrics.ListTimeSeries(ctx, &monitoringpb.ListTimeSeriesRequest{
		Name:   "projects/" + a.project,
		Filter: filter,
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(window.Start),
			EndTime:   timestamppb.New(window.End),
		},
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:  durationpb.New(window.Period),
			PerSeriesAligner: monitoringpb.Aggregation_ALIGN_MEAN,
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	})

	var points []adapters.RawMetric
	for {
		series, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		for _, point := range series.GetPoints() {
			end := point.GetInterval().GetEndTime()
			if end == nil {
				continue
			}
			points = append(points, adapters.RawMetric{
				Timestamp: end.AsTime(),
				Value:     point.GetValue().GetDoubleValue() * spec.scale,
				Unit:      spec.unit,
			})
		}
	}
	return points, nil
}
