package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/telemetry"
	"github.com/veldt-io/cirrus/types"
)

// TestConnection validates the provider's credentials with the adapter's
// lightweight liveness check. No enumeration, no state change.
func (e *Engine) TestConnection(ctx context.Context, providerID string) error {
	provider, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return err
	}

	adapter, err := e.openAdapter(ctx, provider)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return adapter.TestConnection(ctx)
}

// ControlInstance issues a start/stop/resize against the instance's
// provider. Fire-and-confirm: the call returns once the provider accepted
// the request, the transitional status is written to the store, and the
// next sync observes the terminal state.
func (e *Engine) ControlInstance(ctx context.Context, canonicalID string, action ControlAction, newType string) error {
	inst, err := e.store.GetInstance(ctx, canonicalID)
	if err != nil {
		return err
	}
	if inst.Retired() {
		return fmt.Errorf("instance %s is retired", canonicalID)
	}

	provider, err := e.store.GetProvider(ctx, inst.ProviderID)
	if err != nil {
		return err
	}

	adapter, err := e.openAdapter(ctx, provider)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	var transitional types.InstanceStatus
	switch action {
	case ActionStart:
		err = adapter.StartInstance(callCtx, inst.NativeID)
		transitional = types.StatusStarting
	case ActionStop:
		err = adapter.StopInstance(callCtx, inst.NativeID)
		transitional = types.StatusStopping
	case ActionResize:
		if newType == "" {
			return fmt.Errorf("resize requires a target instance type")
		}
		err = adapter.ResizeInstance(callCtx, inst.NativeID, newType)
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
	if err != nil {
		telemetry.RecordAdapterError(ctx, adapter.Name(), adapters.Kind(err))
		return fmt.Errorf("%s %s: %w", action, canonicalID, err)
	}

	e.logger.Info().
		Str("instance_id", canonicalID).
		Str("action", string(action)).
		Msg("control action accepted by provider")

	if transitional != "" {
		return e.store.SetInstanceStatus(ctx, canonicalID, transitional)
	}
	return nil
}

// CollectMetrics pulls every metric type for each live instance of the
// provider over the window and upserts the samples. Per-instance and
// per-capability failures degrade: unsupported metric surfaces are
// skipped, a failing instance is logged and the collection continues.
func (e *Engine) CollectMetrics(ctx context.Context, providerID string, window adapters.MetricWindow) (int, error) {
	provider, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return 0, err
	}

	adapter, err := e.openAdapter(ctx, provider)
	if err != nil {
		return 0, err
	}

	instances, err := e.store.ListInstances(ctx, providerID)
	if err != nil {
		return 0, err
	}

	collected := 0
	for i := range instances {
		inst := &instances[i]
		if inst.Retired() {
			continue
		}

		samples, err := e.collectInstanceMetrics(ctx, adapter, inst, window)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("instance_id", inst.ID).
				Msg("metric collection failed, continuing")
			continue
		}
		if len(samples) == 0 {
			continue
		}
		if err := e.store.AppendMetrics(ctx, samples); err != nil {
			return collected, err
		}
		collected += len(samples)
	}
	return collected, nil
}

func (e *Engine) collectInstanceMetrics(ctx context.Context, adapter adapters.CloudAdapter, inst *types.Instance, window adapters.MetricWindow) ([]types.Metric, error) {
	var samples []types.Metric
	for _, metricType := range types.AllMetricTypes {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		raw, err := adapter.GetMetrics(callCtx, inst.NativeID, metricType, window)
		cancel()
		if err != nil {
			if adapters.IsUnsupported(err) {
				continue
			}
			return nil, fmt.Errorf("%s metrics: %w", metricType, err)
		}
		for _, point := range raw {
			samples = append(samples, types.Metric{
				InstanceID:    inst.ID,
				Type:          metricType,
				Timestamp:     point.Timestamp,
				Value:         point.Value,
				Unit:          point.Unit,
				PeriodSeconds: int(window.Period / time.Second),
			})
		}
	}
	return samples, nil
}
