package ir

import (
	"testing"
	"time"

	"github.com/contexlabs/contex/internal/tokenizer"
)

func newAdapter(t *testing.T) *tokenizer.Adapter {
	t.Helper()
	a, err := tokenizer.New(tokenizer.EncodingO200kBase, 0)
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	t.Cleanup(a.Dispose)
	return a
}

func TestEncode_HashStableForSemanticallyEqualInputs(t *testing.T) {
	a := newAdapter(t)

	d1 := []map[string]interface{}{
		{"id": 1.0, "name": "Alice", "role": "admin"},
		{"name": "Bob", "id": 2.0, "role": "user"},
	}
	d2 := []map[string]interface{}{
		{"name": "Alice", "role": "admin", "id": 1.0},
		{"id": 2.0, "role": "user", "name": "Bob"},
	}

	r1, err := Encode(a, d1, 0)
	if err != nil {
		t.Fatalf("Encode d1: %v", err)
	}
	r2, err := Encode(a, d2, 0)
	if err != nil {
		t.Fatalf("Encode d2: %v", err)
	}

	if r1.Hash != r2.Hash {
		t.Errorf("expected equal hashes for semantically equal inputs, got %s vs %s", r1.Hash, r2.Hash)
	}
	if r1.Hash == "" {
		t.Error("expected a non-empty hash")
	}
}

func TestEncode_DifferentDataProducesDifferentHash(t *testing.T) {
	a := newAdapter(t)

	r1, err := Encode(a, []map[string]interface{}{{"id": 1.0}}, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r2, err := Encode(a, []map[string]interface{}{{"id": 2.0}}, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if r1.Hash == r2.Hash {
		t.Error("expected different hashes for different data")
	}
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	a := newAdapter(t)

	records := []map[string]interface{}{
		{"id": 1.0, "tags": []interface{}{"a", "b"}},
		{"id": 2.0, "tags": []interface{}{}},
	}

	irv, err := Encode(a, records, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(irv.Bytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(irv.Data) {
		t.Fatalf("expected %d decoded records, got %d", len(irv.Data), len(decoded))
	}
}

func TestNewMeta_CapturesSchemasAndRowCount(t *testing.T) {
	a := newAdapter(t)

	records := []map[string]interface{}{
		{"id": 1.0, "name": "Alice"},
		{"id": 2.0, "name": "Bob"},
	}
	irv, err := Encode(a, records, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	m := NewMeta(irv, time.Unix(0, 0).UTC())
	if m.RowCount != 2 {
		t.Errorf("expected rowCount 2, got %d", m.RowCount)
	}
	if m.IRVersion != Version {
		t.Errorf("expected irVersion %q, got %q", Version, m.IRVersion)
	}
	if len(m.Schemas) == 0 {
		t.Error("expected at least one schema in meta")
	}
}

func TestMeta_MarshalUnmarshalRoundTrip(t *testing.T) {
	a := newAdapter(t)
	irv, err := Encode(a, []map[string]interface{}{{"id": 1.0}}, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	m := NewMeta(irv, time.Now().UTC())
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	back, err := UnmarshalMeta(data)
	if err != nil {
		t.Fatalf("UnmarshalMeta: %v", err)
	}
	if back.Hash != m.Hash {
		t.Errorf("expected hash %q, got %q", m.Hash, back.Hash)
	}
	if back.RowCount != m.RowCount {
		t.Errorf("expected rowCount %d, got %d", m.RowCount, back.RowCount)
	}
}

func TestUnmarshalMeta_RejectsUnknownVersion(t *testing.T) {
	bad := []byte(`{"hash":"x","schemas":[],"rowCount":0,"storedAt":"2024-01-01T00:00:00Z","irVersion":"999","canonicalizationVersion":"1"}`)
	if _, err := UnmarshalMeta(bad); err == nil {
		t.Error("expected an error for an unknown IR version")
	}
}
