package syncer

import (
	"testing"
	"time"

	"github.com/veldt-io/cirrus/types"
)

func storedInstance(nativeID string, status types.InstanceStatus) types.Instance {
	return types.Instance{
		ID:           types.CanonicalInstanceID("aws-1", nativeID),
		ProviderID:   "aws-1",
		NativeID:     nativeID,
		Name:         "web-" + nativeID,
		Status:       status,
		InstanceType: "t3.micro",
		Region:       "us-east-1",
		FirstSeenAt:  time.Now().Add(-time.Hour),
		LastSeenAt:   time.Now().Add(-time.Minute),
	}
}

func snapshotOf(stored types.Instance) types.Instance {
	// Same sync-relevant attributes, no lineage.
	stored.FirstSeenAt = time.Time{}
	stored.LastSeenAt = time.Time{}
	stored.RetiredAt = time.Time{}
	return stored
}

func TestBuildPlanCreatesUpdatesRetires(t *testing.T) {
	stored := []types.Instance{
		storedInstance("i-001", types.StatusRunning),
		storedInstance("i-002", types.StatusRunning),
	}

	changed := snapshotOf(stored[0])
	changed.Status = types.StatusStopped
	snapshot := []types.Instance{
		changed,
		snapshotOf(storedInstance("i-003", types.StatusRunning)),
	}

	plan := BuildPlan(stored, snapshot)

	if len(plan.Creates) != 1 || plan.Creates[0].NativeID != "i-003" {
		t.Errorf("Creates = %v, want [i-003]", plan.Creates)
	}
	if len(plan.Updates) != 1 || plan.Updates[0].NativeID != "i-001" {
		t.Errorf("Updates = %v, want [i-001]", plan.Updates)
	}
	if len(plan.Retires) != 1 || plan.Retires[0].NativeID != "i-002" {
		t.Errorf("Retires = %v, want [i-002]", plan.Retires)
	}
	if plan.Unchanged != 0 {
		t.Errorf("Unchanged = %d, want 0", plan.Unchanged)
	}
	if len(plan.ObservedNativeIDs) != 2 {
		t.Errorf("ObservedNativeIDs = %v", plan.ObservedNativeIDs)
	}
}

func TestBuildPlanUnchangedSnapshotIsEmpty(t *testing.T) {
	stored := []types.Instance{
		storedInstance("i-001", types.StatusRunning),
		storedInstance("i-002", types.StatusStopped),
	}
	snapshot := []types.Instance{snapshotOf(stored[0]), snapshotOf(stored[1])}

	plan := BuildPlan(stored, snapshot)

	if !plan.Empty() {
		t.Errorf("plan should be empty: creates=%d updates=%d retires=%d",
			len(plan.Creates), len(plan.Updates), len(plan.Retires))
	}
	if plan.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", plan.Unchanged)
	}
}

func TestBuildPlanRetiredRowReobservedBecomesUpdate(t *testing.T) {
	retired := storedInstance("i-001", types.StatusRetired)
	retired.RetiredAt = time.Now().Add(-time.Hour)

	snapshot := snapshotOf(retired)
	snapshot.Status = types.StatusRetired // attributes identical to the stored row

	plan := BuildPlan([]types.Instance{retired}, []types.Instance{snapshot})

	if len(plan.Updates) != 1 {
		t.Fatalf("re-observed retired row must be an update, got updates=%d unchanged=%d",
			len(plan.Updates), plan.Unchanged)
	}
}

func TestBuildPlanRetiredRowsNotReRetired(t *testing.T) {
	retired := storedInstance("i-001", types.StatusRetired)

	plan := BuildPlan([]types.Instance{retired}, nil)

	if len(plan.Retires) != 0 {
		t.Errorf("already-retired rows must not be retired again: %v", plan.Retires)
	}
}

func TestBuildPlanDeduplicatesSnapshot(t *testing.T) {
	inst := snapshotOf(storedInstance("i-001", types.StatusRunning))

	plan := BuildPlan(nil, []types.Instance{inst, inst})

	if len(plan.Creates) != 1 {
		t.Errorf("duplicate native ids must collapse, got %d creates", len(plan.Creates))
	}
	if len(plan.ObservedNativeIDs) != 1 {
		t.Errorf("ObservedNativeIDs = %v", plan.ObservedNativeIDs)
	}
}
