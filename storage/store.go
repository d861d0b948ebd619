// Package storage is the reconciliation store boundary. The sync engine
// only sees the Store interface; BoltStore is the local bbolt-backed
// implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/veldt-io/cirrus/types"
)

// ErrNotFound is returned when a provider or instance does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleRun is returned when a mutation carries a run-start time older
// than the last committed run for that provider. An old run finishing late
// must never overwrite newer data.
var ErrStaleRun = errors.New("sync run is stale")

// FailedInstance records one instance that a batch operation skipped.
type FailedInstance struct {
	NativeID string `json:"native_id"`
	Reason   string `json:"reason"`
}

// UpsertResult summarizes one UpsertInstances call.
type UpsertResult struct {
	Created int
	Updated int
	Failed  []FailedInstance
}

// Store is the persistence boundary for canonical entities. Mutations that
// belong to a sync run carry the run's start time for stale-run fencing;
// control-plane writes pass the zero time and skip the fence.
type Store interface {
	GetProvider(ctx context.Context, id string) (*types.Provider, error)
	PutProvider(ctx context.Context, p *types.Provider) error
	// DeleteProvider removes the provider and cascade-retires every
	// instance it owns. Instance rows and metric history survive.
	DeleteProvider(ctx context.Context, id string) error
	ListProviders(ctx context.Context) ([]types.Provider, error)

	// ListInstances returns all instances for a provider, retired included.
	ListInstances(ctx context.Context, providerID string) ([]types.Instance, error)
	GetInstance(ctx context.Context, canonicalID string) (*types.Instance, error)

	// UpsertInstances creates or updates the batch. Each instance is applied
	// atomically on its own: a constraint violation is recorded in the
	// result and skipped, never poisoning the rest of the batch.
	UpsertInstances(ctx context.Context, providerID string, batch []types.Instance, runStartedAt time.Time) (*UpsertResult, error)

	// RetireMissing flips every non-retired instance of the provider whose
	// native id is absent from observedNativeIDs to retired. Returns the
	// number of instances retired. Rows are never deleted.
	RetireMissing(ctx context.Context, providerID string, observedNativeIDs []string, runStartedAt time.Time) (int, error)

	// RecordSyncOutcome is the final step of a run. On success or partial
	// it advances LastSyncAt; on failure only the outcome and error message
	// change, so LastSyncAt never postdates the data it describes.
	RecordSyncOutcome(ctx context.Context, providerID string, outcome types.SyncOutcome, errMsg string, runStartedAt time.Time) error

	// SetInstanceStatus writes a fire-and-confirm transitional status
	// (starting/stopping) after a control action was accepted.
	SetInstanceStatus(ctx context.Context, canonicalID string, status types.InstanceStatus) error

	// AppendMetrics upserts samples keyed on (instance, type, timestamp).
	AppendMetrics(ctx context.Context, samples []types.Metric) error
	ListMetrics(ctx context.Context, instanceID string, metricType types.MetricType, start, end time.Time) ([]types.Metric, error)

	Close() error
}
