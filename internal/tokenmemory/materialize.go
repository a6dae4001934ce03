package tokenmemory

import (
	"os"
	"path/filepath"

	"github.com/contexlabs/contex/internal/diagnostics"
	"github.com/contexlabs/contex/internal/ir"
	"github.com/contexlabs/contex/internal/tens"
	"github.com/contexlabs/contex/internal/tokenizer"
)

func (tm *TokenMemory) tokensPath(hash, modelID string, adapter *tokenizer.Adapter) string {
	return filepath.Join(tm.entryDir(hash, modelID, adapter), "tokens.bin")
}

func (tm *TokenMemory) materializedMetaPath(hash, modelID string, adapter *tokenizer.Adapter) string {
	return filepath.Join(tm.entryDir(hash, modelID, adapter), "meta.json")
}

// MaterializeAndCache loads the stored IR for hash, renders it into
// adapter's token-ID sequence, and writes the materialization under
// cache/<hash>/<model>.<encoding>.<tokenizerVersion>/. If a materialization
// already exists for this key under a different tokenizer fingerprint, the
// access is recorded as ENCODING_DRIFT and the entry is overwritten with
// the current fingerprint (spec §4.7). threshold of 0 or less uses
// tens.SingleSchemaFieldThreshold.
func (tm *TokenMemory) MaterializeAndCache(adapter *tokenizer.Adapter, hash, modelID string, maxTokens *int, threshold int) (*MaterializedTokens, diagnostics.MissReason, error) {
	start := tm.now()

	irBytes, reason, err := tm.loadIRBytes(hash)
	if reason != diagnostics.ReasonHit {
		tm.record(hash, modelID, string(adapter.Encoding()), reason)
		return nil, reason, err
	}

	records, err := ir.Decode(irBytes)
	if err != nil {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonCorruptedCache)
		return nil, diagnostics.ReasonCorruptedCache, nil
	}

	tokens, _, err := tens.EncodeTokens(adapter, records, threshold)
	if err != nil {
		return nil, "", err
	}
	if maxTokens != nil && len(tokens) > *maxTokens {
		tokens = tokens[:*maxTokens]
	}

	outcome := diagnostics.ReasonModelNeverMaterialized
	if existing, err := tm.readMaterializedMeta(hash, modelID, adapter); err == nil {
		if existing.TokenizerFingerprint != adapter.Fingerprint() {
			outcome = diagnostics.ReasonEncodingDrift
		} else {
			outcome = diagnostics.ReasonHit
		}
	}

	mt := &MaterializedTokens{
		Tokens:               tokens,
		ModelID:              modelID,
		Encoding:             string(adapter.Encoding()),
		TokenCount:           len(tokens),
		IRHash:               hash,
		TokenizerVersion:     adapter.Version(),
		TokenizerFingerprint: adapter.Fingerprint(),
		MaxTokens:            maxTokens,
		StoredAt:             tm.now(),
	}

	if err := tm.writeMaterialized(hash, modelID, adapter, mt); err != nil {
		return nil, "", err
	}

	if tm.metrics != nil {
		tm.metrics.RecordMaterialization(modelID, string(adapter.Encoding()), tm.now().Sub(start), len(tokens))
	}

	tm.record(hash, modelID, string(adapter.Encoding()), outcome)
	return mt, outcome, nil
}

// LoadMaterialized returns the cached materialization for (hash, modelID)
// under adapter iff it exists and every drift check passes: tokenizer
// version, tokenizer fingerprint, and (if requested) maxTokens all match
// what the entry was stored under. Any mismatch is a miss, never stale
// data (spec §8 property 8).
func (tm *TokenMemory) LoadMaterialized(adapter *tokenizer.Adapter, hash, modelID string, maxTokens *int) (*MaterializedTokens, diagnostics.MissReason, error) {
	if !tm.Has(hash) {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonIRNotStored)
		return nil, diagnostics.ReasonIRNotStored, nil
	}

	meta, err := tm.readMaterializedMeta(hash, modelID, adapter)
	if err != nil {
		if os.IsNotExist(err) {
			tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonModelNeverMaterialized)
			return nil, diagnostics.ReasonModelNeverMaterialized, nil
		}
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonCorruptedCache)
		return nil, diagnostics.ReasonCorruptedCache, nil
	}

	if meta.TokenizerVersion != adapter.Version() {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonTokenizerVersionChange)
		return nil, diagnostics.ReasonTokenizerVersionChange, nil
	}
	if meta.TokenizerFingerprint != adapter.Fingerprint() {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonEncodingDrift)
		return nil, diagnostics.ReasonEncodingDrift, nil
	}
	if !maxTokensEqual(meta.MaxTokens, maxTokens) {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonMaxTokensChanged)
		return nil, diagnostics.ReasonMaxTokensChanged, nil
	}

	tokenData, err := os.ReadFile(tm.tokensPath(hash, modelID, adapter))
	if err != nil {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonCorruptedCache)
		return nil, diagnostics.ReasonCorruptedCache, nil
	}
	tokens, err := decodeTokensLE(tokenData)
	if err != nil {
		tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonCorruptedCache)
		return nil, diagnostics.ReasonCorruptedCache, nil
	}

	mt := &MaterializedTokens{
		Tokens:               tokens,
		ModelID:              meta.ModelID,
		Encoding:             meta.Encoding,
		TokenCount:           meta.TokenCount,
		IRHash:               meta.IRHash,
		TokenizerVersion:     meta.TokenizerVersion,
		TokenizerFingerprint: meta.TokenizerFingerprint,
		MaxTokens:            meta.MaxTokens,
		StoredAt:             meta.StoredAt,
	}
	tm.record(hash, modelID, string(adapter.Encoding()), diagnostics.ReasonHit)
	return mt, diagnostics.ReasonHit, nil
}

func (tm *TokenMemory) readMaterializedMeta(hash, modelID string, adapter *tokenizer.Adapter) (*materializedMeta, error) {
	data, err := os.ReadFile(tm.materializedMetaPath(hash, modelID, adapter))
	if err != nil {
		return nil, err
	}
	return unmarshalMaterializedMeta(data)
}

func (tm *TokenMemory) writeMaterialized(hash, modelID string, adapter *tokenizer.Adapter, mt *MaterializedTokens) error {
	meta := &materializedMeta{
		ModelID:              mt.ModelID,
		Encoding:             mt.Encoding,
		TokenCount:           mt.TokenCount,
		IRHash:               mt.IRHash,
		TokenizerVersion:     mt.TokenizerVersion,
		TokenizerFingerprint: mt.TokenizerFingerprint,
		MaxTokens:            mt.MaxTokens,
		StoredAt:             mt.StoredAt,
	}
	metaBytes, err := meta.marshal()
	if err != nil {
		return err
	}

	if err := writeAtomic(tm.tokensPath(hash, modelID, adapter), encodeTokensLE(mt.Tokens)); err != nil {
		return err
	}
	return writeAtomic(tm.materializedMetaPath(hash, modelID, adapter), metaBytes)
}

func maxTokensEqual(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
