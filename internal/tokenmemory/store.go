// Package tokenmemory implements the content-addressed IR store and
// per-model materialization cache described in spec §4.7: IR bytes are
// content-hashed and stored once; materializations are cached per
// (hash, model, encoding, tokenizer version) and invalidated the moment the
// active tokenizer's fingerprint no longer matches the one they were
// produced under.
package tokenmemory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/contexlabs/contex/internal/diagnostics"
	"github.com/contexlabs/contex/internal/ir"
	"github.com/contexlabs/contex/internal/metrics"
	"github.com/contexlabs/contex/internal/tokenizer"
)

// TokenMemory owns one root directory exclusively (spec §5): callers that
// want concurrent overlap run separate TokenMemory instances against
// separate roots rather than sharing one mutably.
type TokenMemory struct {
	root    string
	sink    diagnostics.Sink
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures optional TokenMemory instrumentation.
type Option func(*TokenMemory)

// WithMetrics attaches m so Store and MaterializeAndCache report IR write
// sizes, store size, and materialization latency to it. Without this
// option, TokenMemory only ever reports through sink (diagnostics.Sink).
func WithMetrics(m *metrics.Metrics) Option {
	return func(tm *TokenMemory) {
		tm.metrics = m
	}
}

// New creates (if needed) the store layout under root and returns a
// TokenMemory bound to it. sink receives every access (may be nil, in
// which case accesses are recorded nowhere but still returned to the
// caller).
func New(root string, sink diagnostics.Sink, opts ...Option) (*TokenMemory, error) {
	if root == "" {
		root = ".contex"
	}
	for _, sub := range []string{"ir", "cache"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, newDiskError(err, "create store directory %s", sub)
		}
	}
	tm := &TokenMemory{root: root, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

func (tm *TokenMemory) record(hash, modelID, encoding string, reason diagnostics.MissReason) {
	if tm.sink == nil {
		return
	}
	tm.sink.Record(diagnostics.AccessResult{
		Hash:      hash,
		ModelID:   modelID,
		Encoding:  encoding,
		Reason:    reason,
		Timestamp: tm.now(),
	})
}

func (tm *TokenMemory) irPath(hash string) string     { return filepath.Join(tm.root, "ir", hash+".bin") }
func (tm *TokenMemory) metaPath(hash string) string   { return filepath.Join(tm.root, "ir", hash+".meta.json") }
func (tm *TokenMemory) cacheDir(hash string) string   { return filepath.Join(tm.root, "cache", hash) }

func entryDirName(modelID string, adapter *tokenizer.Adapter) string {
	return fmt.Sprintf("%s.%s.%s", modelID, adapter.Encoding(), adapter.Version())
}

func (tm *TokenMemory) entryDir(hash, modelID string, adapter *tokenizer.Adapter) string {
	return filepath.Join(tm.cacheDir(hash), entryDirName(modelID, adapter))
}

// StoreResult reports the outcome of Store.
type StoreResult struct {
	Hash       string
	IsNew      bool
	IRByteSize int
}

// Store canonicalizes and encodes records, computes their content hash,
// and writes the IR atomically if no entry exists yet for that hash. An
// existing entry is left untouched and reported as IsNew=false, matching
// the content-addressed guarantee that identical semantic input always
// maps to the same stored bytes. threshold of 0 or less uses
// tens.SingleSchemaFieldThreshold.
func (tm *TokenMemory) Store(adapter *tokenizer.Adapter, records interface{}, threshold int) (*StoreResult, error) {
	irv, err := ir.Encode(adapter, records, threshold)
	if err != nil {
		return nil, err
	}

	if tm.Has(irv.Hash) {
		return &StoreResult{Hash: irv.Hash, IsNew: false, IRByteSize: len(irv.Bytes)}, nil
	}

	if err := writeAtomic(tm.irPath(irv.Hash), irv.Bytes); err != nil {
		return nil, err
	}
	meta := ir.NewMeta(irv, tm.now())
	metaBytes, err := meta.Marshal()
	if err != nil {
		return nil, fmt.Errorf("tokenmemory: marshal IR meta: %w", err)
	}
	if err := writeAtomic(tm.metaPath(irv.Hash), metaBytes); err != nil {
		return nil, err
	}

	if tm.metrics != nil {
		tm.metrics.RecordIRWrite(len(irv.Bytes))
		tm.updateStoreSizeMetric()
	}

	return &StoreResult{Hash: irv.Hash, IsNew: true, IRByteSize: len(irv.Bytes)}, nil
}

// updateStoreSizeMetric recounts the IR directory and reports it to
// tm.metrics. Called after a new IR write, since that's the only event
// that changes the count.
func (tm *TokenMemory) updateStoreSizeMetric() {
	entries, err := os.ReadDir(filepath.Join(tm.root, "ir"))
	if err != nil {
		return
	}
	const suffix = ".meta.json"
	count := 0
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(suffix) && e.Name()[len(e.Name())-len(suffix):] == suffix {
			count++
		}
	}
	tm.metrics.UpdateIRStoreSize(float64(count))
}

// Has reports whether an IR with the given hash is stored.
func (tm *TokenMemory) Has(hash string) bool {
	_, err := os.Stat(tm.irPath(hash))
	return err == nil
}

// GetMeta loads the metadata sidecar for a stored IR.
func (tm *TokenMemory) GetMeta(hash string) (*ir.Meta, error) {
	data, err := os.ReadFile(tm.metaPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newDiskError(err, "no meta stored for hash %s", hash)
		}
		return nil, newDiskError(err, "read meta for hash %s", hash)
	}
	return ir.UnmarshalMeta(data)
}

// List returns metadata for every stored IR, ordered by hash for
// reproducible output.
func (tm *TokenMemory) List() ([]*ir.Meta, error) {
	entries, err := os.ReadDir(filepath.Join(tm.root, "ir"))
	if err != nil {
		return nil, newDiskError(err, "list IR directory")
	}

	var hashes []string
	for _, e := range entries {
		const suffix = ".meta.json"
		if !e.IsDir() && len(e.Name()) > len(suffix) && e.Name()[len(e.Name())-len(suffix):] == suffix {
			hashes = append(hashes, e.Name()[:len(e.Name())-len(suffix)])
		}
	}
	sort.Strings(hashes)

	out := make([]*ir.Meta, 0, len(hashes))
	for _, h := range hashes {
		m, err := tm.GetMeta(h)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// loadIRBytes reads and verifies a stored IR's bytes against its own
// content hash, catching silent disk corruption distinct from a short read
// (spec §4.7's IR_HASH_MISMATCH).
func (tm *TokenMemory) loadIRBytes(hash string) ([]byte, diagnostics.MissReason, error) {
	data, err := os.ReadFile(tm.irPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, diagnostics.ReasonIRNotStored, nil
		}
		return nil, diagnostics.ReasonDiskIOError, newDiskError(err, "read IR bytes for hash %s", hash)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != hash {
		return nil, diagnostics.ReasonIRHashMismatch, nil
	}
	return data, diagnostics.ReasonHit, nil
}

// GetCachedModels returns the model/encoding/tokenizerVersion keys for
// which hash has a materialization cached, sorted for reproducible output.
func (tm *TokenMemory) GetCachedModels(hash string) ([]string, error) {
	entries, err := os.ReadDir(tm.cacheDir(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newDiskError(err, "list cache directory for hash %s", hash)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
