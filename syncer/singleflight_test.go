package syncer

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFlightTableAcquireRelease(t *testing.T) {
	flights := newFlightTable()

	if !flights.TryAcquire("aws-1") {
		t.Fatal("first acquire should succeed")
	}
	if flights.TryAcquire("aws-1") {
		t.Fatal("second acquire on a busy provider should fail")
	}
	if !flights.TryAcquire("gcp-1") {
		t.Fatal("different providers must not block each other")
	}
	if !flights.Busy("aws-1") {
		t.Error("Busy should report the held slot")
	}

	flights.Release("aws-1")
	if flights.Busy("aws-1") {
		t.Error("Busy should clear after release")
	}
	if !flights.TryAcquire("aws-1") {
		t.Error("acquire after release should succeed")
	}
}

func TestFlightTableRaceOnlyOneWinner(t *testing.T) {
	flights := newFlightTable()

	const goroutines = 32
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if flights.TryAcquire("aws-1") {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("exactly one goroutine should win the slot, got %d", winners.Load())
	}
}
