package types

import "time"

// MetricType enumerates the metric kinds Cirrus collects per instance.
type MetricType string

const (
	MetricCPU        MetricType = "cpu"
	MetricMemory     MetricType = "memory"
	MetricNetworkIn  MetricType = "network_in"
	MetricNetworkOut MetricType = "network_out"
	MetricDiskRead   MetricType = "disk_read"
	MetricDiskWrite  MetricType = "disk_write"
	MetricCost       MetricType = "cost"
)

// AllMetricTypes lists every collectable metric type.
var AllMetricTypes = []MetricType{
	MetricCPU, MetricMemory, MetricNetworkIn, MetricNetworkOut,
	MetricDiskRead, MetricDiskWrite, MetricCost,
}

// Metric is a single collected sample. (InstanceID, Type, Timestamp) is
// unique; re-collection upserts rather than duplicating.
type Metric struct {
	InstanceID    string     `json:"instance_id"`
	Type          MetricType `json:"type"`
	Timestamp     time.Time  `json:"timestamp"`
	Value         float64    `json:"value"`
	Unit          string     `json:"unit,omitempty"`
	PeriodSeconds int        `json:"period_seconds,omitempty"`
}
