package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/veldt-io/cirrus/types"
)

// Bucket names in bbolt
var (
	bucketProviders = []byte("providers")
	bucketInstances = []byte("instances")
	bucketMetrics   = []byte("metrics")
	bucketRuns      = []byte("runs")
)

// instanceState is the in-memory index entry for fast per-provider lookups.
type instanceState struct {
	ID         string
	ProviderID string
	NativeID   string
	Status     types.InstanceStatus
}

// BoltStore implements Store on bbolt with a btree index over instances.
type BoltStore struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[*instanceState]
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*BoltStore, error) {
	dbPath := filepath.Join(dir, "cirrus.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketProviders, bucketInstances, bucketMetrics, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db: db,
		index: btree.NewG[*instanceState](32, func(a, b *instanceState) bool {
			return a.ID < b.ID
		}),
	}

	if err := s.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return fmt.Errorf("corrupt instance row %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(&instanceState{
				ID:         inst.ID,
				ProviderID: inst.ProviderID,
				NativeID:   inst.NativeID,
				Status:     inst.Status,
			})
			return nil
		})
	})
}

// Provider operations

func (s *BoltStore) GetProvider(_ context.Context, id string) (*types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p types.Provider
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketProviders).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("provider %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(raw, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) PutProvider(_ context.Context, p *types.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProviders).Put([]byte(p.ID), raw)
	})
}

func (s *BoltStore) DeleteProvider(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	retired := s.ownedBy(id)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		providers := tx.Bucket(bucketProviders)
		if providers.Get([]byte(id)) == nil {
			return fmt.Errorf("provider %s: %w", id, ErrNotFound)
		}
		if err := providers.Delete([]byte(id)); err != nil {
			return err
		}

		// Cascade-retire, never delete: history stays queryable.
		instances := tx.Bucket(bucketInstances)
		for _, state := range retired {
			if state.Status == types.StatusRetired {
				continue
			}
			inst, err := readInstance(instances, state.ID)
			if err != nil {
				return err
			}
			inst.Status = types.StatusRetired
			inst.RetiredAt = now
			if err := writeInstance(instances, inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, state := range retired {
		state.Status = types.StatusRetired
		s.index.ReplaceOrInsert(state)
	}
	return nil
}

func (s *BoltStore) ListProviders(_ context.Context) ([]types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Provider
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProviders).ForEach(func(_, v []byte) error {
			var p types.Provider
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// Instance operations

func (s *BoltStore) ListInstances(_ context.Context, providerID string) ([]types.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, 16)
	for _, state := range s.ownedBy(providerID) {
		ids = append(ids, state.ID)
	}

	out := make([]types.Instance, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		instances := tx.Bucket(bucketInstances)
		for _, id := range ids {
			inst, err := readInstance(instances, id)
			if err != nil {
				return err
			}
			out = append(out, *inst)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) GetInstance(_ context.Context, canonicalID string) (*types.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var inst *types.Instance
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		inst, err = readInstance(tx.Bucket(bucketInstances), canonicalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *BoltStore) UpsertInstances(_ context.Context, providerID string, batch []types.Instance, runStartedAt time.Time) (*UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &UpsertResult{}
	var applied []instanceState

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := checkRunFresh(tx, providerID, runStartedAt); err != nil {
			return err
		}

		instances := tx.Bucket(bucketInstances)
		for i := range batch {
			inst := batch[i]
			if reason := validateInstance(&inst, providerID); reason != "" {
				result.Failed = append(result.Failed, FailedInstance{NativeID: inst.NativeID, Reason: reason})
				continue
			}

			existing, err := readInstance(instances, inst.ID)
			switch {
			case err == nil:
				// Update in place: canonical id and creation lineage survive.
				inst.FirstSeenAt = existing.FirstSeenAt
				inst.RetiredAt = time.Time{}
				result.Updated++
			case IsNotFoundErr(err):
				inst.FirstSeenAt = runStartedAt
				result.Created++
			default:
				return err
			}
			inst.LastSeenAt = runStartedAt

			if err := writeInstance(instances, &inst); err != nil {
				return err
			}
			applied = append(applied, instanceState{
				ID:         inst.ID,
				ProviderID: inst.ProviderID,
				NativeID:   inst.NativeID,
				Status:     inst.Status,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range applied {
		state := applied[i]
		s.index.ReplaceOrInsert(&state)
	}
	return result, nil
}

func (s *BoltStore) RetireMissing(_ context.Context, providerID string, observedNativeIDs []string, runStartedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := make(map[string]struct{}, len(observedNativeIDs))
	for _, id := range observedNativeIDs {
		observed[id] = struct{}{}
	}

	var toRetire []*instanceState
	for _, state := range s.ownedBy(providerID) {
		if state.Status == types.StatusRetired {
			continue
		}
		if _, ok := observed[state.NativeID]; !ok {
			toRetire = append(toRetire, state)
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := checkRunFresh(tx, providerID, runStartedAt); err != nil {
			return err
		}

		instances := tx.Bucket(bucketInstances)
		for _, state := range toRetire {
			inst, err := readInstance(instances, state.ID)
			if err != nil {
				return err
			}
			inst.Status = types.StatusRetired
			inst.RetiredAt = runStartedAt
			if err := writeInstance(instances, inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, state := range toRetire {
		state.Status = types.StatusRetired
		s.index.ReplaceOrInsert(state)
	}
	return len(toRetire), nil
}

func (s *BoltStore) RecordSyncOutcome(_ context.Context, providerID string, outcome types.SyncOutcome, errMsg string, runStartedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := checkRunFresh(tx, providerID, runStartedAt); err != nil {
			return err
		}

		providers := tx.Bucket(bucketProviders)
		raw := providers.Get([]byte(providerID))
		if raw == nil {
			return fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
		}
		var p types.Provider
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}

		p.LastSyncOutcome = outcome
		p.LastSyncError = errMsg
		if outcome != types.SyncFailed {
			// A failed run left the instance set untouched; advancing the
			// timestamp would claim data this run never delivered.
			p.LastSyncAt = runStartedAt
		}

		out, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		if err := providers.Put([]byte(providerID), out); err != nil {
			return err
		}

		if outcome != types.SyncFailed {
			return tx.Bucket(bucketRuns).Put(runKey(providerID), []byte(runStartedAt.UTC().Format(time.RFC3339Nano)))
		}
		return nil
	})
}

func (s *BoltStore) SetInstanceStatus(_ context.Context, canonicalID string, status types.InstanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state *instanceState
	err := s.db.Update(func(tx *bbolt.Tx) error {
		instances := tx.Bucket(bucketInstances)
		inst, err := readInstance(instances, canonicalID)
		if err != nil {
			return err
		}
		inst.Status = status
		state = &instanceState{ID: inst.ID, ProviderID: inst.ProviderID, NativeID: inst.NativeID, Status: status}
		return writeInstance(instances, inst)
	})
	if err != nil {
		return err
	}
	s.index.ReplaceOrInsert(state)
	return nil
}

// Metric operations

func (s *BoltStore) AppendMetrics(_ context.Context, samples []types.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		metrics := tx.Bucket(bucketMetrics)
		for i := range samples {
			m := samples[i]
			raw, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			// Key encodes the uniqueness constraint; Put is the upsert.
			if err := metrics.Put(metricKey(m.InstanceID, m.Type, m.Timestamp), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListMetrics(_ context.Context, instanceID string, metricType types.MetricType, start, end time.Time) ([]types.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Metric
	prefix := metricPrefix(instanceID, metricType)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMetrics).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var m types.Metric
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Timestamp.Before(start) || m.Timestamp.After(end) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// Helpers

func (s *BoltStore) ownedBy(providerID string) []*instanceState {
	prefix := providerID + "/"
	var out []*instanceState
	s.index.AscendGreaterOrEqual(&instanceState{ID: prefix}, func(state *instanceState) bool {
		if state.ProviderID != providerID {
			return false
		}
		out = append(out, state)
		return true
	})
	return out
}

func validateInstance(inst *types.Instance, providerID string) string {
	if inst.NativeID == "" {
		return "empty native id"
	}
	if inst.ProviderID != providerID {
		return fmt.Sprintf("provider mismatch: %s", inst.ProviderID)
	}
	if inst.ID != types.CanonicalInstanceID(providerID, inst.NativeID) {
		return fmt.Sprintf("canonical id %s does not derive from native id", inst.ID)
	}
	if inst.Status == "" {
		return "empty status"
	}
	return ""
}

func checkRunFresh(tx *bbolt.Tx, providerID string, runStartedAt time.Time) error {
	if runStartedAt.IsZero() {
		return nil
	}
	raw := tx.Bucket(bucketRuns).Get(runKey(providerID))
	if raw == nil {
		return nil
	}
	committed, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return fmt.Errorf("corrupt run marker for %s: %w", providerID, err)
	}
	if runStartedAt.Before(committed) {
		return fmt.Errorf("provider %s: run started %s, newer run committed %s: %w",
			providerID, runStartedAt.Format(time.RFC3339), committed.Format(time.RFC3339), ErrStaleRun)
	}
	return nil
}

func readInstance(b *bbolt.Bucket, id string) (*types.Instance, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	var inst types.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func writeInstance(b *bbolt.Bucket, inst *types.Instance) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return b.Put([]byte(inst.ID), raw)
}

func runKey(providerID string) []byte {
	return []byte("runstart/" + providerID)
}

func metricPrefix(instanceID string, metricType types.MetricType) []byte {
	return []byte(instanceID + "|" + string(metricType) + "|")
}

func metricKey(instanceID string, metricType types.MetricType, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%s|%020d", instanceID, metricType, ts.UnixNano()))
}

// IsNotFoundErr reports whether err wraps ErrNotFound.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, ErrNotFound)
}
