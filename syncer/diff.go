package syncer

import (
	"github.com/veldt-io/cirrus/types"
)

// Plan is the three-way diff between a fresh provider snapshot and the
// store's current instance set for that provider.
type Plan struct {
	Creates []types.Instance
	Updates []types.Instance
	// Retires are stored non-retired instances absent from the snapshot.
	Retires []types.Instance
	// Unchanged counts snapshot instances identical to their stored row.
	Unchanged int
	// ObservedNativeIDs is every native id present in the snapshot,
	// including unchanged ones; retirement is computed against this set.
	ObservedNativeIDs []string
}

// Empty reports whether the plan performs no operations.
func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Retires) == 0
}

// BuildPlan diffs the normalized snapshot against the stored set.
// Native ids present only in the snapshot become creates; ids present in
// both become updates only when sync-relevant attributes changed; stored
// non-retired ids absent from the snapshot become retires.
func BuildPlan(stored, snapshot []types.Instance) *Plan {
	plan := &Plan{ObservedNativeIDs: make([]string, 0, len(snapshot))}

	storedByNative := make(map[string]*types.Instance, len(stored))
	for i := range stored {
		storedByNative[stored[i].NativeID] = &stored[i]
	}

	seen := make(map[string]struct{}, len(snapshot))
	for i := range snapshot {
		inst := snapshot[i]
		if _, dup := seen[inst.NativeID]; dup {
			continue
		}
		seen[inst.NativeID] = struct{}{}
		plan.ObservedNativeIDs = append(plan.ObservedNativeIDs, inst.NativeID)

		existing, ok := storedByNative[inst.NativeID]
		if !ok {
			plan.Creates = append(plan.Creates, inst)
			continue
		}
		// A retired row coming back is always an update, even when the
		// attributes happen to match: the status must leave retired.
		if existing.Retired() || !existing.SyncEquals(&inst) {
			plan.Updates = append(plan.Updates, inst)
			continue
		}
		plan.Unchanged++
	}

	for i := range stored {
		existing := &stored[i]
		if existing.Retired() {
			continue
		}
		if _, ok := seen[existing.NativeID]; !ok {
			plan.Retires = append(plan.Retires, *existing)
		}
	}

	return plan
}
