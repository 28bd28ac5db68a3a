package resultstore

import (
	"bytes"
	"testing"

	"github.com/jmorrow/persontrack/internal/tracking"
)

func TestEncodeResults_Deterministic(t *testing.T) {
	results := []tracking.Result{
		{Frame: 0, Persons: []tracking.Person{{Index: 1, BoundingBox: tracking.BoundingBox{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4}}}},
		{Frame: 7, Persons: []tracking.Person{{Index: 1}, {Index: 2}}},
	}

	first, err := encodeResults(results)
	if err != nil {
		t.Fatalf("encodeResults: %v", err)
	}
	second, err := encodeResults(results)
	if err != nil {
		t.Fatalf("encodeResults: %v", err)
	}
	// Redelivered completions rewrite the blob; identical input must produce
	// identical bytes.
	if !bytes.Equal(first, second) {
		t.Error("encoding the same results twice produced different bytes")
	}

	decoded, err := decodeResults(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("decodeResults: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Frame != 0 || decoded[1].Frame != 7 {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
	if len(decoded[1].Persons) != 2 {
		t.Errorf("expected 2 persons in frame 7, got %d", len(decoded[1].Persons))
	}
}

func TestDecodeResults_RejectsPlainJSON(t *testing.T) {
	if _, err := decodeResults(bytes.NewReader([]byte(`[]`))); err == nil {
		t.Error("expected error for uncompressed body")
	}
}
