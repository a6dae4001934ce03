// Package metrics provides Prometheus instrumentation for Token Memory
// and the codecs: cache hit/miss counters broken out by miss reason,
// token-count histograms, and materialization latency. There is no HTTP
// surface in the core engine, so unlike the teacher there is no request
// middleware here — callers that expose /metrics serve Registry() (e.g.
// through promhttp.HandlerFor) from whatever server they already run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/contexlabs/contex/internal/diagnostics"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	CacheAccessTotal        *prometheus.CounterVec
	MaterializationLatency  *prometheus.HistogramVec
	MaterializedTokenCount  *prometheus.HistogramVec
	IRStoreSize             prometheus.Gauge
	IRBytesWritten          prometheus.Counter
	CanonicalizationLatency prometheus.Histogram
	EncodeLatency           *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered against
// its own registry (never the global default registry, so a process can
// run more than one engine instance without collector-name collisions).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.CacheAccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contex_token_memory_access_total",
			Help: "Total number of Token Memory accesses, labeled by outcome (spec miss-reason taxonomy)",
		},
		[]string{"reason"},
	)

	m.MaterializationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contex_materialization_latency_seconds",
			Help:    "Time to materialize and cache a tokenization for a given model/encoding",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model_id", "encoding"},
	)

	m.MaterializedTokenCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contex_materialized_token_count",
			Help:    "Number of tokens produced by a materialization",
			Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768},
		},
		[]string{"model_id", "encoding"},
	)

	m.IRStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "contex_ir_store_entries",
			Help: "Number of distinct IR entries currently stored",
		},
	)

	m.IRBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contex_ir_bytes_written_total",
			Help: "Total bytes of canonical IR written to the store",
		},
	)

	m.CanonicalizationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contex_canonicalization_latency_seconds",
			Help:    "Time to canonicalize a batch of records",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.EncodeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contex_encode_latency_seconds",
			Help:    "Time to encode a batch of records, labeled by codec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"codec"},
	)

	m.registry.MustRegister(
		m.CacheAccessTotal,
		m.MaterializationLatency,
		m.MaterializedTokenCount,
		m.IRStoreSize,
		m.IRBytesWritten,
		m.CanonicalizationLatency,
		m.EncodeLatency,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Registry exposes the underlying Prometheus registry, e.g. so a caller
// can wire promhttp.HandlerFor into its own server.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sink adapts Metrics to diagnostics.Sink: every AccessResult it receives
// increments the cache-access counter under its reason label. It forwards
// nothing to any other sink; combining it with the caller's own sinks is
// done through diagnostics.NewMultiSink.
type Sink struct {
	metrics *Metrics
}

// NewSink wraps m as a diagnostics.Sink.
func NewSink(m *Metrics) *Sink {
	return &Sink{metrics: m}
}

// Record implements diagnostics.Sink.
func (s *Sink) Record(r diagnostics.AccessResult) {
	s.metrics.CacheAccessTotal.WithLabelValues(string(r.Reason)).Inc()
}

// RecordMaterialization records the latency and token count of a
// materialize-and-cache operation.
func (m *Metrics) RecordMaterialization(modelID, encoding string, duration time.Duration, tokenCount int) {
	m.MaterializationLatency.WithLabelValues(modelID, encoding).Observe(duration.Seconds())
	m.MaterializedTokenCount.WithLabelValues(modelID, encoding).Observe(float64(tokenCount))
}

// RecordIRWrite adds a newly stored IR entry's size to the bytes-written
// counter. The entry-count gauge is set separately by UpdateIRStoreSize.
func (m *Metrics) RecordIRWrite(bytesWritten int) {
	m.IRBytesWritten.Add(float64(bytesWritten))
}

// UpdateIRStoreSize sets the current IR entry count, typically after a
// List() call against the store.
func (m *Metrics) UpdateIRStoreSize(count float64) {
	m.IRStoreSize.Set(count)
}

// RecordCanonicalization records the latency of a canonicalize call.
func (m *Metrics) RecordCanonicalization(duration time.Duration) {
	m.CanonicalizationLatency.Observe(duration.Seconds())
}

// RecordEncode records the latency of an encode call for the named codec
// ("binary" or "text").
func (m *Metrics) RecordEncode(codec string, duration time.Duration) {
	m.EncodeLatency.WithLabelValues(codec).Observe(duration.Seconds())
}
