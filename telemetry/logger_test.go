package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerEmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("service", "cirrus").Logger().Hook(OTELHook{})

	logger.Info().Str("provider_id", "aws-1").Msg("sync run started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "cirrus" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["provider_id"] != "aws-1" {
		t.Errorf("provider_id = %v", entry["provider_id"])
	}
}

func TestOTELHookWithoutSpanIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(OTELHook{})

	// No span in context: the hook must not add trace fields or panic.
	logger.Info().Ctx(context.Background()).Msg("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should be absent without an active span")
	}
}

func TestRecordHelpersAreNilSafe(t *testing.T) {
	// Before InitOTEL the instruments are nil; the helpers must not panic.
	RecordSyncRun(context.Background(), "aws-1", "success", 0)
	RecordInstancesSynced(context.Background(), "aws-1", 3, 1)
	RecordAdapterError(context.Background(), "aws", "throttled")
}
