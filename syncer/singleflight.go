package syncer

import "sync"

// flightTable enforces at most one in-progress sync run per provider.
// Acquire is a single atomic step under the lock, so two triggers racing
// at run start can never both observe idle and proceed.
type flightTable struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newFlightTable() *flightTable {
	return &flightTable{inflight: make(map[string]struct{})}
}

// TryAcquire claims the provider's flight slot. Returns false when a run
// already holds it.
func (f *flightTable) TryAcquire(providerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.inflight[providerID]; busy {
		return false
	}
	f.inflight[providerID] = struct{}{}
	return true
}

// Release frees the provider's flight slot.
func (f *flightTable) Release(providerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, providerID)
}

// Busy reports whether a run currently holds the provider's slot.
func (f *flightTable) Busy(providerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.inflight[providerID]
	return busy
}
