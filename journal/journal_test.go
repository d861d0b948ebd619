package journal

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := j.Append(EntryRunStarted, "run-1", "aws-1", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Append(EntrySnapshot, "run-1", "aws-1", map[string]int{"instances": 3}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.AppendError(EntryRunFinished, "run-1", "aws-1", nil, errors.New("rate limited")); err != nil {
		t.Fatalf("AppendError() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var entries []*Entry
	err = Replay(dir, time.Time{}, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Replay() got %d entries, want 3", len(entries))
	}
	if entries[0].Type != EntryRunStarted || entries[0].RunID != "run-1" {
		t.Errorf("entry[0] = %+v", entries[0])
	}
	if entries[1].Sequence != 2 {
		t.Errorf("entry[1].Sequence = %d, want 2", entries[1].Sequence)
	}
	if entries[2].Error != "rate limited" {
		t.Errorf("entry[2].Error = %q", entries[2].Error)
	}
}

func TestReplayLargeEntry(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// A finished run can carry a failed-instance list well past the
	// scanner's 64KB default line cap.
	type failed struct {
		NativeID string `json:"native_id"`
		Reason   string `json:"reason"`
	}
	var failures []failed
	for i := 0; i < 4000; i++ {
		failures = append(failures, failed{
			NativeID: fmt.Sprintf("i-%08d", i),
			Reason:   "canonical id collision with a previously observed native id",
		})
	}
	if err := j.Append(EntryRunFinished, "run-1", "aws-1", map[string]any{"failed": failures}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var entries []*Entry
	err = Replay(dir, time.Time{}, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Replay() got %d entries, want 1", len(entries))
	}
	if len(entries[0].Data) <= 64*1024 {
		t.Fatalf("entry data is %d bytes, expected to exceed the default scanner cap", len(entries[0].Data))
	}
}

func TestReplaySince(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Append(EntryRunStarted, "run-1", "aws-1", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	count := 0
	err = Replay(dir, time.Now().Add(time.Hour), func(*Entry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Replay(future) visited %d entries, want 0", count)
	}
}
