package model

import (
	"encoding/json"
	"testing"
)

func TestExecutionRecordOmitsDefaultErrorAndTruncated(t *testing.T) {
	record := ExecutionRecord{
		Status:     StatusSuccess,
		ExitCode:   0,
		Stdout:     "hi\n",
		DurationMs: 42,
	}

	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, present := asMap["error"]; present {
		t.Error("expected 'error' key to be omitted when empty")
	}
	if _, present := asMap["truncated"]; present {
		t.Error("expected 'truncated' key to be omitted when false")
	}
	if _, present := asMap["exit_code"]; !present {
		t.Error("expected 'exit_code' key to always be present, even when zero")
	}
}

func TestStatusFailureMatchesWireContract(t *testing.T) {
	if StatusFailure != "failed" {
		t.Errorf("StatusFailure = %q, want %q per the documented status enum", StatusFailure, "failed")
	}
}

func TestExecutionRecordRoundTrip(t *testing.T) {
	original := ExecutionRecord{
		Status:     StatusFailure,
		ExitCode:   7,
		Stdout:     "out",
		Stderr:     "err",
		Truncated:  true,
		DurationMs: 1500,
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ExecutionRecord
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}
