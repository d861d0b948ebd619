// Package syncer orchestrates sync runs: it drives a provider's adapter,
// diffs the normalized snapshot against the reconciliation store, and
// commits creates, updates, and retirements with per-instance failure
// isolation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/journal"
	"github.com/veldt-io/cirrus/storage"
	"github.com/veldt-io/cirrus/telemetry"
	"github.com/veldt-io/cirrus/types"
)

// CredentialResolver turns a provider id into its opaque credential blob.
// The engine never inspects, logs, or persists the blob.
type CredentialResolver interface {
	Resolve(ctx context.Context, providerID string) (adapters.Credentials, error)
}

// AdapterOpener opens a connected adapter for a provider type. Defaults to
// the package registry; tests inject fakes here.
type AdapterOpener func(ctx context.Context, pt types.ProviderType, creds adapters.Credentials, regions []string) (adapters.CloudAdapter, error)

// Engine runs provider syncs. One Engine serves all providers; the flight
// table serializes nothing across providers and rejects overlap within one.
type Engine struct {
	store    storage.Store
	resolver CredentialResolver
	opener   AdapterOpener
	journal  *journal.Journal
	logger   zerolog.Logger
	opts     Options
	flights  *flightTable
}

// NewEngine creates a sync engine. jrnl may be nil to disable run auditing.
func NewEngine(store storage.Store, resolver CredentialResolver, jrnl *journal.Journal, logger zerolog.Logger, opts Options) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		opener:   adapters.Open,
		journal:  jrnl,
		logger:   logger,
		opts:     opts,
		flights:  newFlightTable(),
	}
}

// WithOpener overrides how adapters are opened. Used by tests.
func (e *Engine) WithOpener(opener AdapterOpener) *Engine {
	e.opener = opener
	return e
}

// Run executes one sync run for the provider. A trigger arriving while a
// run for the same provider is in progress fails with ErrSyncInProgress.
// On Failed the store's instance set is untouched; on Succeeded or
// PartiallyFailed the provider's last-sync metadata is written after all
// instance changes are durable.
func (e *Engine) Run(ctx context.Context, providerID string) (*RunResult, error) {
	if !e.flights.TryAcquire(providerID) {
		return nil, fmt.Errorf("provider %s: %w", providerID, ErrSyncInProgress)
	}
	defer e.flights.Release(providerID)

	result := &RunResult{
		RunID:      uuid.NewString(),
		ProviderID: providerID,
		StartedAt:  time.Now().UTC(),
	}

	logger := e.logger.With().
		Str("run_id", result.RunID).
		Str("provider_id", providerID).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, e.opts.RunDeadline)
	defer cancel()

	e.journalAppend(journal.EntryRunStarted, result, nil)
	logger.Info().Msg("sync run started")

	err := e.run(ctx, logger, result)
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		result.Outcome = types.SyncFailed
		result.Error = err.Error()
		e.journalAppend(journal.EntryRunFinished, result, err)
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("sync run failed")
		telemetry.RecordSyncRun(ctx, providerID, result.Outcome, result.Duration)
		return result, err
	}

	e.journalAppend(journal.EntryRunFinished, result, nil)
	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("observed", result.Observed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("retired", result.Retired).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("sync run finished")
	telemetry.RecordSyncRun(ctx, providerID, result.Outcome, result.Duration)
	telemetry.RecordInstancesSynced(ctx, providerID, result.Observed, result.Retired)
	return result, nil
}

func (e *Engine) run(ctx context.Context, logger zerolog.Logger, result *RunResult) error {
	provider, err := e.store.GetProvider(ctx, result.ProviderID)
	if err != nil {
		return err
	}
	if !provider.Enabled {
		return fmt.Errorf("provider %s: %w", provider.ID, ErrProviderDisabled)
	}

	adapter, err := e.openAdapter(ctx, provider)
	if err != nil {
		return e.failRun(ctx, result, err)
	}

	// Full enumeration completes before any store mutation: a
	// mid-enumeration failure leaves the store byte-for-byte untouched.
	snapshot, err := e.enumerate(ctx, adapter, provider.Regions)
	if err != nil {
		return e.failRun(ctx, result, fmt.Errorf("enumeration failed: %w", err))
	}
	result.Observed = len(snapshot)

	normalized := make([]types.Instance, 0, len(snapshot))
	for _, raw := range snapshot {
		normalized = append(normalized, adapter.Normalize(raw, provider.ID))
	}
	e.journalAppend(journal.EntrySnapshot, result, nil)

	stored, err := e.store.ListInstances(ctx, provider.ID)
	if err != nil {
		return e.failRun(ctx, result, err)
	}

	plan := BuildPlan(stored, normalized)
	result.Unchanged = plan.Unchanged

	if err := e.apply(ctx, provider.ID, plan, result); err != nil {
		// A stale run must not record an outcome either: a newer run
		// already owns the provider's sync metadata.
		if errors.Is(err, storage.ErrStaleRun) {
			return err
		}
		return e.failRun(ctx, result, err)
	}

	if len(result.Failed) > 0 {
		result.Outcome = types.SyncPartiallyFailed
	} else {
		result.Outcome = types.SyncSucceeded
	}

	// Final step: consumers reading last-sync never observe a timestamp
	// newer than the instance data it describes.
	errMsg := ""
	if len(result.Failed) > 0 {
		errMsg = fmt.Sprintf("%d instance(s) failed to apply", len(result.Failed))
	}
	if err := e.store.RecordSyncOutcome(ctx, provider.ID, result.Outcome, errMsg, result.StartedAt); err != nil {
		return err
	}

	logger.Debug().Int("creates", len(plan.Creates)).Int("updates", len(plan.Updates)).
		Int("retires", len(plan.Retires)).Msg("plan applied")
	return nil
}

// failRun records a Failed outcome on the provider's sync metadata. The
// instance set is untouched; only outcome and error text change.
func (e *Engine) failRun(ctx context.Context, result *RunResult, cause error) error {
	if err := e.store.RecordSyncOutcome(ctx, result.ProviderID, types.SyncFailed, cause.Error(), result.StartedAt); err != nil && !errors.Is(err, storage.ErrStaleRun) {
		e.logger.Warn().Err(err).Str("provider_id", result.ProviderID).Msg("failed to record sync outcome")
	}
	return cause
}

func (e *Engine) openAdapter(ctx context.Context, provider *types.Provider) (adapters.CloudAdapter, error) {
	creds, err := e.resolver.Resolve(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials for %s: %w", provider.ID, err)
	}
	adapter, err := e.opener(ctx, provider.Type, creds, provider.Regions)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func (e *Engine) enumerate(ctx context.Context, adapter adapters.CloudAdapter, regions []string) ([]adapters.RawInstance, error) {
	var snapshot []adapters.RawInstance
	err := withRetry(ctx, e.opts.MaxRetries, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
		raw, err := adapter.ListInstances(callCtx, regions)
		if err != nil {
			telemetry.RecordAdapterError(ctx, adapter.Name(), adapters.Kind(err))
			return err
		}
		snapshot = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (e *Engine) apply(ctx context.Context, providerID string, plan *Plan, result *RunResult) error {
	batch := make([]types.Instance, 0, len(plan.Creates)+len(plan.Updates))
	batch = append(batch, plan.Creates...)
	batch = append(batch, plan.Updates...)

	if len(batch) > 0 {
		res, err := e.store.UpsertInstances(ctx, providerID, batch, result.StartedAt)
		if err != nil {
			return err
		}
		result.Created = res.Created
		result.Updated = res.Updated
		result.Failed = res.Failed
	}

	retired, err := e.store.RetireMissing(ctx, providerID, plan.ObservedNativeIDs, result.StartedAt)
	if err != nil {
		return err
	}
	result.Retired = retired

	e.journalAppend(journal.EntryApplied, result, nil)
	return nil
}

func (e *Engine) journalAppend(entryType journal.EntryType, result *RunResult, runErr error) {
	if e.journal == nil {
		return
	}
	var err error
	if runErr != nil {
		err = e.journal.AppendError(entryType, result.RunID, result.ProviderID, result, runErr)
	} else {
		err = e.journal.Append(entryType, result.RunID, result.ProviderID, result)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("run_id", result.RunID).Msg("journal append failed")
	}
}

// Running reports whether a sync run for the provider is in progress.
func (e *Engine) Running(providerID string) bool {
	return e.flights.Busy(providerID)
}
