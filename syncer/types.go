package syncer

import (
	"errors"
	"time"

	"github.com/veldt-io/cirrus/storage"
	"github.com/veldt-io/cirrus/types"
)

// ErrSyncInProgress is returned when a sync trigger arrives while a run
// for the same provider is already running. Rejected, never queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrProviderDisabled is returned when a sync is triggered for a provider
// whose Enabled flag is off.
var ErrProviderDisabled = errors.New("provider is disabled")

// Options tunes engine behavior.
type Options struct {
	// RunDeadline bounds one whole sync run.
	RunDeadline time.Duration
	// CallTimeout bounds each adapter network call.
	CallTimeout time.Duration
	// MaxRetries bounds retry attempts for retryable adapter errors.
	MaxRetries int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		RunDeadline: 10 * time.Minute,
		CallTimeout: 60 * time.Second,
		MaxRetries:  3,
	}
}

// RunResult describes one finished (or rejected) sync run.
type RunResult struct {
	RunID      string                   `json:"run_id"`
	ProviderID string                   `json:"provider_id"`
	Outcome    types.SyncOutcome        `json:"outcome"`
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration"`
	Observed   int                      `json:"observed"`
	Created    int                      `json:"created"`
	Updated    int                      `json:"updated"`
	Unchanged  int                      `json:"unchanged"`
	Retired    int                      `json:"retired"`
	Failed     []storage.FailedInstance `json:"failed,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// ControlAction is an instance control operation requested by the caller.
type ControlAction string

const (
	ActionStart  ControlAction = "start"
	ActionStop   ControlAction = "stop"
	ActionResize ControlAction = "resize"
)
