package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/types"
)

// metricsLister is the slice of armmonitor.MetricsClient we use. Interface
// seam so adapter tests can fake the monitor API.
type metricsLister interface {
	List(ctx context.Context, resourceURI string, options *armmonitor.MetricsClientListOptions) (armmonitor.MetricsClientListResponse, error)
}

func newMetricsClient(cred azcore.TokenCredential) (metricsLister, error) {
	return armmonitor.NewMetricsClient(cred, nil)
}

// monitorMetric maps a canonical metric type to its Azure Monitor metric
// name and unit. Cost comes from Cost Management, not Monitor.
var monitorMetric = map[types.MetricType]struct {
	name string
	unit string
}{
	types.MetricCPU:        {"Percentage CPU", "percent"},
	types.MetricMemory:     {"Available Memory Bytes", "bytes"},
	types.MetricNetworkIn:  {"Network In Total", "bytes"},
	types.MetricNetworkOut: {"Network Out Total", "bytes"},
	types.MetricDiskRead:   {"Disk Read Bytes", "bytes"},
	types.MetricDiskWrite:  {"Disk Write Bytes", "bytes"},
}

// GetMetrics pulls averaged time series for the VM from Azure Monitor.
func (a *Adapter) GetMetrics(ctx context.Context, nativeID string, metricType types.MetricType, window adapters.MetricWindow) ([]adapters.RawMetric, error) {
	spec, ok := monitorMetric[metricType]
	if !ok {
		return nil, &adapters.UnsupportedError{Provider: "azure", Op: string(metricType) + " metrics"}
	}

	timespan := fmt.Sprintf("%s/%s",
		window.Start.UTC().Format("2006-01-02T15:04:05Z"),
		window.End.UTC().Format("2006-01-02T15:04:05Z"))
	interval := fmt.Sprintf("PT%dS", int(window.Period.Seconds()))
	aggregation := "Average"

	resp, err := a.metrics.List(ctx, nativeID, &armmonitor.MetricsClientListOptions{
		Timespan:    &timespan,
		Interval:    &interval,
		Metricnames: &spec.name,
		Aggregation: &aggregation,
	})
	if err != nil {
		return nil, classify(err)
	}

	var points []adapters.RawMetric
	for _, metric := range resp.Value {
		if metric == nil {
			continue
		}
		for _, series := range metric.Timeseries {
			if series == nil {
				continue
			}
			for _, value := range series.Data {
				if value == nil || value.Average == nil || value.TimeStamp == nil {
					continue
				}
				points = append(points, adapters.RawMetric{
					Timestamp: *value.TimeStamp,
					Value:     *value.Average,
					Unit:      spec.unit,
				})
			}
		}
	}
	return points, nil
}
