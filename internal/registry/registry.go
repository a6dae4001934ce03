// Package registry implements the engine's external API (spec §6): the
// facade CLI front-ends, middleware shims, and framework adapters are
// expected to drive the core through, analogous to how the teacher's own
// Registry type fronted storage and compatibility checking behind one
// clean surface.
package registry

import (
	"time"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/config"
	"github.com/contexlabs/contex/internal/diagnostics"
	"github.com/contexlabs/contex/internal/ir"
	"github.com/contexlabs/contex/internal/metrics"
	"github.com/contexlabs/contex/internal/tens"
	"github.com/contexlabs/contex/internal/tenstext"
	"github.com/contexlabs/contex/internal/tokenizer"
	"github.com/contexlabs/contex/internal/tokenmemory"
)

// Engine owns one tokenizer adapter and drives every core operation
// through it: canonicalize, the binary and text codecs, and IR
// construction. Callers that need Token Memory construct one separately
// via TokenMemory, since a store's lifetime is independent of any one
// adapter (spec §5: adapters are not shared across threads, but a
// TokenMemory root may be read by many).
type Engine struct {
	adapter *tokenizer.Adapter
	watcher *config.Watcher
	metrics *metrics.Metrics
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithConfigWatcher sources the Single-Schema-Mode unification threshold
// from w.UnificationThreshold() on every EncodeBinary/EncodeText/EncodeIR
// call, instead of the tens package default. A reload
// of the watched config file is visible starting with the next call.
func WithConfigWatcher(w *config.Watcher) Option {
	return func(e *Engine) {
		e.watcher = w
	}
}

// WithMetrics attaches m so Canonicalize, EncodeBinary, and EncodeText
// report their latency to it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New constructs an Engine for encoding, with an LRU cache of the given
// capacity (0 or negative uses the tokenizer package's default).
func New(encoding tokenizer.Encoding, cacheCapacity int, opts ...Option) (*Engine, error) {
	a, err := tokenizer.New(encoding, cacheCapacity)
	if err != nil {
		return nil, err
	}
	e := &Engine{adapter: a}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewFromConfig constructs an Engine the way a long-running embedding
// process typically would: w.TokenizerCacheSize() sizes the adapter's LRU
// at construction time (the cache, unlike the unification threshold, is
// not something an in-flight adapter can resize), and WithConfigWatcher
// is applied automatically so later encodes see threshold reloads.
func NewFromConfig(encoding tokenizer.Encoding, w *config.Watcher, opts ...Option) (*Engine, error) {
	allOpts := append([]Option{WithConfigWatcher(w)}, opts...)
	return New(encoding, w.TokenizerCacheSize(), allOpts...)
}

// threshold returns the unification threshold to use for the next encode
// call: the config watcher's current value if one was supplied via
// WithConfigWatcher, else 0 (meaning "use tens.SingleSchemaFieldThreshold").
func (e *Engine) threshold() int {
	if e.watcher == nil {
		return 0
	}
	return e.watcher.UnificationThreshold()
}

// Close releases the Engine's tokenizer adapter.
func (e *Engine) Close() {
	e.adapter.Dispose()
}

// Adapter exposes the Engine's underlying tokenizer adapter, e.g. for
// Token Memory materialization calls that need the same adapter instance
// used to build the IR.
func (e *Engine) Adapter() *tokenizer.Adapter {
	return e.adapter
}

// Canonicalize normalizes raw records into canonical form (spec §6).
func (e *Engine) Canonicalize(records interface{}) ([]canonical.Value, error) {
	start := time.Now()
	canon, err := canonical.Canonicalize(records)
	if err == nil && e.metrics != nil {
		e.metrics.RecordCanonicalization(time.Since(start))
	}
	return canon, err
}

// EncodeBinary canonicalizes records and renders them as a framed TENS
// binary payload.
func (e *Engine) EncodeBinary(records interface{}) ([]byte, error) {
	start := time.Now()
	canon, err := canonical.Canonicalize(records)
	if err != nil {
		return nil, err
	}
	out, err := tens.Encode(e.adapter, canon, e.threshold())
	if err == nil && e.metrics != nil {
		e.metrics.RecordEncode("binary", time.Since(start))
	}
	return out, err
}

// DecodeBinary parses a framed TENS binary payload back into canonical
// records. It does not require the Engine's adapter to match the payload's
// encoding, since the binary decoder constructs its own adapter from the
// frame header.
func (e *Engine) DecodeBinary(data []byte) ([]canonical.Value, error) {
	return tens.Decode(data)
}

// EncodeText canonicalizes records and renders them as a TENS-Text
// document.
func (e *Engine) EncodeText(records interface{}) (string, error) {
	start := time.Now()
	canon, err := canonical.Canonicalize(records)
	if err != nil {
		return "", err
	}
	out, err := tenstext.Encode(e.adapter, canon, e.threshold())
	if err == nil && e.metrics != nil {
		e.metrics.RecordEncode("text", time.Since(start))
	}
	return out, err
}

// DecodeText parses a TENS-Text document back into canonical records and
// its document metadata (version, encoding).
func (e *Engine) DecodeText(doc string) ([]canonical.Value, tenstext.Document, error) {
	return tenstext.Decode(doc)
}

// EncodeIR builds the Canonical IR for records: canonicalization, binary
// encoding, and the content hash, in one call (spec §4.7).
func (e *Engine) EncodeIR(records interface{}) (*ir.IR, error) {
	return ir.Encode(e.adapter, records, e.threshold())
}

// TokenMemory constructs a content-addressed store rooted at rootDir
// (spec §6: `TokenMemory(rootDir)`). sink may be nil.
func TokenMemory(rootDir string, sink diagnostics.Sink, opts ...tokenmemory.Option) (*tokenmemory.TokenMemory, error) {
	return tokenmemory.New(rootDir, sink, opts...)
}

// TokenizerAdapter constructs a standalone tokenizer adapter (spec §6:
// `TokenizerAdapter(encoding)`), independent of any Engine.
func TokenizerAdapter(encoding tokenizer.Encoding, cacheCapacity int) (*tokenizer.Adapter, error) {
	return tokenizer.New(encoding, cacheCapacity)
}
