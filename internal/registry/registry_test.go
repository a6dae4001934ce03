package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/contexlabs/contex/internal/config"
	"github.com/contexlabs/contex/internal/diagnostics"
	"github.com/contexlabs/contex/internal/metrics"
	"github.com/contexlabs/contex/internal/tokenizer"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(tokenizer.EncodingO200kBase, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestNew_ConstructsEngineWithWorkingAdapter(t *testing.T) {
	e := newTestEngine(t)
	if e.Adapter() == nil {
		t.Fatal("expected a non-nil adapter")
	}
	if e.Adapter().Encoding() != tokenizer.EncodingO200kBase {
		t.Errorf("expected o200k_base, got %s", e.Adapter().Encoding())
	}
}

func TestEngine_Canonicalize(t *testing.T) {
	e := newTestEngine(t)
	records := []map[string]interface{}{{"id": 1.0, "name": "Alice"}}

	canon, err := e.Canonicalize(records)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if len(canon) != 1 {
		t.Fatalf("expected 1 canonical record, got %d", len(canon))
	}
}

func TestEngine_EncodeBinaryDecodeBinaryRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	records := []map[string]interface{}{
		{"id": 1.0, "name": "Alice"},
		{"id": 2.0, "name": "Bob"},
	}

	encoded, err := e.EncodeBinary(records)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty binary payload")
	}

	decoded, err := e.DecodeBinary(encoded)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 decoded records, got %d", len(decoded))
	}
}

func TestEngine_EncodeTextDecodeTextRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	records := []map[string]interface{}{{"id": 1.0, "name": "Alice"}}

	doc, err := e.EncodeText(records)
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if doc == "" {
		t.Fatal("expected non-empty text document")
	}

	decoded, _, err := e.DecodeText(doc)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded record, got %d", len(decoded))
	}
}

func TestEngine_EncodeIRRoundTripsThroughDecodeBinary(t *testing.T) {
	e := newTestEngine(t)
	records := []map[string]interface{}{{"id": 1.0, "name": "Alice"}}

	irv, err := e.EncodeIR(records)
	if err != nil {
		t.Fatalf("EncodeIR: %v", err)
	}
	if irv.Hash == "" {
		t.Fatal("expected a non-empty content hash")
	}

	decoded, err := e.DecodeBinary(irv.Bytes)
	if err != nil {
		t.Fatalf("DecodeBinary(irv.Bytes): %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded record, got %d", len(decoded))
	}
}

func TestEngine_EncodeIRIsDeterministicForEquivalentInput(t *testing.T) {
	e := newTestEngine(t)
	a := []map[string]interface{}{{"id": 1.0, "name": "Alice"}}
	b := []map[string]interface{}{{"name": "Alice", "id": 1.0}}

	irA, err := e.EncodeIR(a)
	if err != nil {
		t.Fatalf("EncodeIR(a): %v", err)
	}
	irB, err := e.EncodeIR(b)
	if err != nil {
		t.Fatalf("EncodeIR(b): %v", err)
	}
	if irA.Hash != irB.Hash {
		t.Errorf("expected equal hashes for key-order-reordered equivalent input, got %s vs %s", irA.Hash, irB.Hash)
	}
}

func TestTokenMemory_ConstructsStoreAtRootDir(t *testing.T) {
	tm, err := TokenMemory(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("TokenMemory: %v", err)
	}
	if tm == nil {
		t.Fatal("expected a non-nil TokenMemory")
	}
}

func TestTokenMemory_StoreAndMaterializeThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	tm, err := TokenMemory(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("TokenMemory: %v", err)
	}

	res, err := tm.Store(e.Adapter(), []map[string]interface{}{{"id": 1.0, "name": "Alice"}}, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	mt, reason, err := tm.MaterializeAndCache(e.Adapter(), res.Hash, "gpt-test", nil, 0)
	if err != nil {
		t.Fatalf("MaterializeAndCache: %v", err)
	}
	if reason != diagnostics.ReasonModelNeverMaterialized {
		t.Errorf("expected MODEL_NEVER_MATERIALIZED, got %s", reason)
	}
	if mt.TokenCount == 0 {
		t.Error("expected a non-zero token count")
	}
}

func TestEngine_WithConfigWatcher_OverridesUnificationThreshold(t *testing.T) {
	records := []map[string]interface{}{
		{"a": 1.0},
		{"b": 2.0},
		{"c": 3.0},
	}

	withDefault := newTestEngine(t)
	irDefault, err := withDefault.EncodeIR(records)
	if err != nil {
		t.Fatalf("EncodeIR (default threshold): %v", err)
	}
	if len(irDefault.Schemas) != 1 {
		t.Fatalf("expected Single-Schema Mode (1 schema) at the default threshold, got %d", len(irDefault.Schemas))
	}

	configPath := filepath.Join(t.TempDir(), "contex.yaml")
	if err := os.WriteFile(configPath, []byte("schema:\n  unification_threshold: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	w, err := config.NewWatcher(configPath, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	a, err := tokenizer.New(tokenizer.EncodingO200kBase, 0)
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	t.Cleanup(a.Dispose)
	e := &Engine{adapter: a}
	WithConfigWatcher(w)(e)

	irLow, err := e.EncodeIR(records)
	if err != nil {
		t.Fatalf("EncodeIR (threshold=1): %v", err)
	}
	if len(irLow.Schemas) != len(records) {
		t.Errorf("expected Multi-Schema Mode (%d schemas) with threshold=1, got %d", len(records), len(irLow.Schemas))
	}
}

func TestEngine_WithMetrics_RecordsCanonicalizationAndEncodeLatency(t *testing.T) {
	m := metrics.New()
	a, err := tokenizer.New(tokenizer.EncodingO200kBase, 0)
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	t.Cleanup(a.Dispose)
	e := &Engine{adapter: a}
	WithMetrics(m)(e)

	records := []map[string]interface{}{{"id": 1.0, "name": "Alice"}}

	if _, err := e.Canonicalize(records); err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if _, err := e.EncodeBinary(records); err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if _, err := e.EncodeText(records); err != nil {
		t.Fatalf("EncodeText: %v", err)
	}

	if got := testutil.CollectAndCount(m.CanonicalizationLatency); got != 1 {
		t.Errorf("expected 1 canonicalization observation, got %d", got)
	}
	if got := testutil.CollectAndCount(m.EncodeLatency); got != 2 {
		t.Errorf("expected 2 encode observations (binary + text), got %d", got)
	}
}

func TestNewFromConfig_SourcesTokenizerCacheSizeAndThreshold(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "contex.yaml")
	if err := os.WriteFile(configPath, []byte("tokenizer:\n  cache_size: 64\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	w, err := config.NewWatcher(configPath, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	e, err := NewFromConfig(tokenizer.EncodingO200kBase, w)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	t.Cleanup(e.Close)

	if e.threshold() != w.UnificationThreshold() {
		t.Errorf("expected threshold sourced from the watcher, got %d", e.threshold())
	}
}

func TestTokenizerAdapter_ConstructsStandaloneAdapter(t *testing.T) {
	a, err := TokenizerAdapter(tokenizer.EncodingCl100kBase, 0)
	if err != nil {
		t.Fatalf("TokenizerAdapter: %v", err)
	}
	defer a.Dispose()
	if a.Encoding() != tokenizer.EncodingCl100kBase {
		t.Errorf("expected cl100k_base, got %s", a.Encoding())
	}
}
