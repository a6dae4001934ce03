package tokenmemory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// MaterializedTokens is a model-specific rendering of a stored IR (spec
// §3): the token-ID sequence plus everything needed to detect that it has
// gone stale relative to the tokenizer that produced it.
type MaterializedTokens struct {
	Tokens               []int
	ModelID              string
	Encoding             string
	TokenCount           int
	IRHash               string
	TokenizerVersion     string
	TokenizerFingerprint string
	MaxTokens            *int
	StoredAt             time.Time
}

// materializedMeta is the on-disk shape of a cache entry's meta.json.
type materializedMeta struct {
	ModelID              string    `json:"modelId"`
	Encoding             string    `json:"encoding"`
	TokenCount           int       `json:"tokenCount"`
	IRHash               string    `json:"irHash"`
	TokenizerVersion     string    `json:"tokenizerVersion"`
	TokenizerFingerprint string    `json:"tokenizerFingerprint"`
	MaxTokens            *int      `json:"maxTokens,omitempty"`
	StoredAt             time.Time `json:"storedAt"`
}

func (m *materializedMeta) marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalMaterializedMeta(data []byte) (*materializedMeta, error) {
	var m materializedMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse materialization meta.json: %w", err)
	}
	return &m, nil
}

// encodeTokensLE packs tokens as a uint32-LE sequence (spec §4.7).
func encodeTokensLE(tokens []int) []byte {
	buf := make([]byte, len(tokens)*4)
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(t))
	}
	return buf
}

// decodeTokensLE is the inverse of encodeTokensLE. A length not a multiple
// of 4 indicates a corrupted or truncated tokens.bin.
func decodeTokensLE(data []byte) ([]int, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("tokens.bin length %d is not a multiple of 4", len(data))
	}
	tokens := make([]int, len(data)/4)
	for i := range tokens {
		tokens[i] = int(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return tokens, nil
}
