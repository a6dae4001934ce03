package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/contexlabs/contex/internal/diagnostics"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
	if m.CacheAccessTotal == nil {
		t.Error("expected CacheAccessTotal to be initialized")
	}
	if m.MaterializationLatency == nil {
		t.Error("expected MaterializationLatency to be initialized")
	}
}

func TestSink_RecordIncrementsCounterByReason(t *testing.T) {
	m := New()
	s := NewSink(m)

	s.Record(diagnostics.AccessResult{Hash: "h1", Reason: diagnostics.ReasonHit})
	s.Record(diagnostics.AccessResult{Hash: "h2", Reason: diagnostics.ReasonEncodingDrift})
	s.Record(diagnostics.AccessResult{Hash: "h3", Reason: diagnostics.ReasonEncodingDrift})

	if got := testutil.ToFloat64(m.CacheAccessTotal.WithLabelValues(string(diagnostics.ReasonHit))); got != 1 {
		t.Errorf("expected 1 HIT, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheAccessTotal.WithLabelValues(string(diagnostics.ReasonEncodingDrift))); got != 2 {
		t.Errorf("expected 2 ENCODING_DRIFT, got %v", got)
	}
}

func TestMetrics_RecordMaterialization(t *testing.T) {
	m := New()
	m.RecordMaterialization("gpt-4o", "o200k_base", 5*time.Millisecond, 128)

	if got := testutil.CollectAndCount(m.MaterializationLatency); got != 1 {
		t.Errorf("expected 1 observation, got %d", got)
	}
	if got := testutil.CollectAndCount(m.MaterializedTokenCount); got != 1 {
		t.Errorf("expected 1 observation, got %d", got)
	}
}

func TestMetrics_RecordIRWriteAndUpdateStoreSize(t *testing.T) {
	m := New()
	m.RecordIRWrite(512)
	m.UpdateIRStoreSize(3)

	if got := testutil.ToFloat64(m.IRBytesWritten); got != 512 {
		t.Errorf("expected 512 bytes written, got %v", got)
	}
	if got := testutil.ToFloat64(m.IRStoreSize); got != 3 {
		t.Errorf("expected store size 3, got %v", got)
	}
}

func TestMetrics_RecordCanonicalizationAndEncode(t *testing.T) {
	m := New()
	m.RecordCanonicalization(2 * time.Millisecond)
	m.RecordEncode("binary", 1 * time.Millisecond)
	m.RecordEncode("text", 3 * time.Millisecond)

	if got := testutil.CollectAndCount(m.CanonicalizationLatency); got != 1 {
		t.Errorf("expected 1 canonicalization observation, got %d", got)
	}
	if got := testutil.CollectAndCount(m.EncodeLatency); got != 2 {
		t.Errorf("expected 2 encode observations, got %d", got)
	}
}

func TestMetrics_RegistryExposesCollectors(t *testing.T) {
	m := New()
	m.RecordCanonicalization(time.Millisecond)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}

	var found bool
	for _, mf := range mfs {
		if strings.Contains(mf.GetName(), "contex_canonicalization_latency_seconds") {
			found = true
		}
	}
	if !found {
		t.Error("expected registry to expose contex_canonicalization_latency_seconds")
	}
}
