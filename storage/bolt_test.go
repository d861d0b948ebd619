package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-io/cirrus/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testInstance(providerID, nativeID string, status types.InstanceStatus) types.Instance {
	return types.Instance{
		ID:           types.CanonicalInstanceID(providerID, nativeID),
		ProviderID:   providerID,
		NativeID:     nativeID,
		Name:         nativeID,
		Status:       status,
		InstanceType: "t3.medium",
		Region:       "us-east-1",
	}
}

func TestProviderCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &types.Provider{
		ID:            "aws-1",
		Name:          "prod account",
		Type:          types.ProviderAWS,
		Regions:       []string{"us-east-1", "eu-west-1"},
		Enabled:       true,
		CredentialRef: "cred-aws-prod",
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.PutProvider(ctx, p))

	got, err := s.GetProvider(ctx, "aws-1")
	require.NoError(t, err)
	assert.Equal(t, p.Type, got.Type)
	assert.Equal(t, p.Regions, got.Regions)

	_, err = s.GetProvider(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListProviders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteProviderCascadeRetires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runStart := time.Now().UTC()

	require.NoError(t, s.PutProvider(ctx, &types.Provider{ID: "aws-1", Type: types.ProviderAWS}))
	_, err := s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
		testInstance("aws-1", "i-002", types.StatusStopped),
	}, runStart)
	require.NoError(t, err)

	require.NoError(t, s.DeleteProvider(ctx, "aws-1"))

	_, err = s.GetProvider(ctx, "aws-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Instance rows survive deletion, flipped to retired.
	instances, err := s.ListInstances(ctx, "aws-1")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, types.StatusRetired, inst.Status)
		assert.False(t, inst.RetiredAt.IsZero())
	}
}

func TestUpsertPreservesLineage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	firstRun := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	res, err := s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
	}, firstRun)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Updated)

	secondRun := firstRun.Add(time.Hour)
	updated := testInstance("aws-1", "i-001", types.StatusStopped)
	res, err = s.UpsertInstances(ctx, "aws-1", []types.Instance{updated}, secondRun)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	got, err := s.GetInstance(ctx, "aws-1/i-001")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, got.Status)
	assert.Equal(t, firstRun, got.FirstSeenAt, "creation lineage must survive updates")
	assert.Equal(t, secondRun, got.LastSeenAt)
}

func TestUpsertConstraintIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runStart := time.Now().UTC()

	bad := testInstance("aws-1", "", types.StatusRunning)
	mismatched := testInstance("gcp-1", "vm-1", types.StatusRunning)

	res, err := s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
		bad,
		mismatched,
		testInstance("aws-1", "i-002", types.StatusRunning),
	}, runStart)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Created, "good instances commit despite bad neighbors")
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "", res.Failed[0].NativeID)
	assert.Equal(t, "vm-1", res.Failed[1].NativeID)

	instances, err := s.ListInstances(ctx, "aws-1")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestRetireMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runStart := time.Now().UTC()

	_, err := s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
		testInstance("aws-1", "i-002", types.StatusStopped),
	}, runStart)
	require.NoError(t, err)

	nextRun := runStart.Add(time.Hour)
	retired, err := s.RetireMissing(ctx, "aws-1", []string{"i-001"}, nextRun)
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	got, err := s.GetInstance(ctx, "aws-1/i-002")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRetired, got.Status)
	assert.Equal(t, nextRun, got.RetiredAt)

	// Already-retired rows are not re-retired.
	retired, err = s.RetireMissing(ctx, "aws-1", []string{"i-001"}, nextRun.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, retired)
}

func TestStaleRunFencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutProvider(ctx, &types.Provider{ID: "aws-1", Type: types.ProviderAWS}))

	newer := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	// Newer run commits first.
	_, err := s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
	}, newer)
	require.NoError(t, err)
	require.NoError(t, s.RecordSyncOutcome(ctx, "aws-1", types.SyncSucceeded, "", newer))

	// The older run finishing late must be rejected at every mutation.
	_, err = s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-old", types.StatusRunning),
	}, older)
	assert.ErrorIs(t, err, ErrStaleRun)

	_, err = s.RetireMissing(ctx, "aws-1", []string{}, older)
	assert.ErrorIs(t, err, ErrStaleRun)

	err = s.RecordSyncOutcome(ctx, "aws-1", types.SyncSucceeded, "", older)
	assert.ErrorIs(t, err, ErrStaleRun)

	// Store still reflects only the newer run.
	instances, err := s.ListInstances(ctx, "aws-1")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "i-001", instances[0].NativeID)
}

func TestRecordSyncOutcomeFailedKeepsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutProvider(ctx, &types.Provider{ID: "aws-1", Type: types.ProviderAWS}))

	goodRun := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSyncOutcome(ctx, "aws-1", types.SyncSucceeded, "", goodRun))

	badRun := goodRun.Add(time.Hour)
	require.NoError(t, s.RecordSyncOutcome(ctx, "aws-1", types.SyncFailed, "credential expired", badRun))

	p, err := s.GetProvider(ctx, "aws-1")
	require.NoError(t, err)
	assert.Equal(t, types.SyncFailed, p.LastSyncOutcome)
	assert.Equal(t, "credential expired", p.LastSyncError)
	assert.Equal(t, goodRun, p.LastSyncAt, "failed run must not advance last-sync-at")
}

func TestMetricsUpsertNotDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sample := types.Metric{
		InstanceID:    "aws-1/i-001",
		Type:          types.MetricCPU,
		Timestamp:     ts,
		Value:         42.5,
		Unit:          "percent",
		PeriodSeconds: 300,
	}

	require.NoError(t, s.AppendMetrics(ctx, []types.Metric{sample}))

	// Re-collection of the same (instance, type, timestamp) upserts.
	sample.Value = 43.0
	require.NoError(t, s.AppendMetrics(ctx, []types.Metric{sample}))

	got, err := s.ListMetrics(ctx, "aws-1/i-001", types.MetricCPU, ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 43.0, got[0].Value)
}

func TestListMetricsWindowAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var samples []types.Metric
	for i := 0; i < 5; i++ {
		samples = append(samples, types.Metric{
			InstanceID: "aws-1/i-001",
			Type:       types.MetricCPU,
			Timestamp:  base.Add(time.Duration(i) * 5 * time.Minute),
			Value:      float64(i),
		})
	}
	// Different type must not leak into the listing.
	samples = append(samples, types.Metric{
		InstanceID: "aws-1/i-001",
		Type:       types.MetricMemory,
		Timestamp:  base,
		Value:      99,
	})
	require.NoError(t, s.AppendMetrics(ctx, samples))

	got, err := s.ListMetrics(ctx, "aws-1/i-001", types.MetricCPU, base.Add(5*time.Minute), base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp), "samples must be time-ordered")
	}
}

func TestIndexRebuild(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.UpsertInstances(ctx, "aws-1", []types.Instance{
		testInstance("aws-1", "i-001", types.StatusRunning),
	}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopen and make sure the index came back from disk.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	instances, err := s.ListInstances(ctx, "aws-1")
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}
