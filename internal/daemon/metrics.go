package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds sync-loop metrics using OTEL semantic conventions
type Metrics struct {
	ticks         metric.Int64Counter
	providerSyncs metric.Int64Counter
}

// NewMetrics creates the daemon loop metrics
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("cirrus.daemon")

	ticks, err := meter.Int64Counter(
		"cirrus.daemon.ticks",
		metric.WithDescription("Number of full sync loop passes"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	providerSyncs, err := meter.Int64Counter(
		"cirrus.daemon.provider_syncs",
		metric.WithDescription("Number of scheduled provider syncs by outcome"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ticks:         ticks,
		providerSyncs: providerSyncs,
	}, nil
}

// RecordTick records one full pass over the provider list.
func (m *Metrics) RecordTick(ctx context.Context) {
	m.ticks.Add(ctx, 1)
}

// RecordProviderSync records one scheduled sync with its outcome.
func (m *Metrics) RecordProviderSync(ctx context.Context, providerID string, outcome string) {
	m.providerSyncs.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider.id", providerID),
			attribute.String("outcome", outcome),
		),
	)
}
