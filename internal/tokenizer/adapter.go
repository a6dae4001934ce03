package tokenizer

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/contexlabs/contex/internal/cache"
)

// probeString is hashed through the encoding on every adapter construction
// to derive tokenizerFingerprint; it never participates in user data.
const probeString = "the quick brown fox jumps over the lazy dog 0123456789"

const defaultCacheCapacity = 10_000

// Version identifies this package's tokenizer implementation, independent
// of Fingerprint: Fingerprint detects silent vocabulary drift within one
// encoding, Version changes when the adapter's algorithm itself changes
// (e.g. a new merge-table compiler), which Token Memory tracks separately
// as TOKENIZER_VERSION_CHANGE.
const Version = "1"

// Adapter owns one encoding's vocabulary and an LRU cache of its own
// encode results. It is not safe for concurrent mutation beyond the cache's
// internal synchronization; callers construct one, use it, and Dispose it.
type Adapter struct {
	encoding    Encoding
	vocab       *vocab
	cache       *cache.Cache
	fingerprint string
	disposed    bool
}

// New constructs an adapter for encoding with the given LRU cache capacity
// (0 or negative uses the default of 10,000 entries). It fails if the
// encoding is unknown or its vocabulary would collide with the TENS
// control-token range.
func New(encoding Encoding, cacheCapacity int) (*Adapter, error) {
	v, err := newEncodingVocab(encoding)
	if err != nil {
		return nil, err
	}
	if cacheCapacity <= 0 {
		cacheCapacity = defaultCacheCapacity
	}
	a := &Adapter{
		encoding: encoding,
		vocab:    v,
		cache:    cache.New(cacheCapacity, 0),
	}
	a.fingerprint = computeFingerprint(v)
	return a, nil
}

func computeFingerprint(v *vocab) string {
	ids := v.encodeBytes([]byte(probeString))
	h, _ := blake2b.New256(nil)
	for _, id := range ids {
		h.Write([]byte(strconv.Itoa(id)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encoding returns the encoding this adapter was constructed for.
func (a *Adapter) Encoding() Encoding { return a.encoding }

// Fingerprint returns the hash of this encoding's token-id sequence on a
// fixed probe string, recomputed at construction. It changes whenever the
// vocabulary changes, letting Token Memory detect silent drift.
func (a *Adapter) Fingerprint() string { return a.fingerprint }

// Version returns the adapter implementation version (see the Version
// constant).
func (a *Adapter) Version() string { return Version }

// CountTokens returns the number of tokens text encodes to under this
// adapter's encoding, using the LRU cache.
func (a *Adapter) CountTokens(text string) (int, error) {
	ids, err := a.EncodeToIDs(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EncodeToIDs tokenizes text into this encoding's token-id sequence.
// Results are cached per input text.
func (a *Adapter) EncodeToIDs(text string) ([]int, error) {
	if a.disposed {
		return nil, &Error{Reason: "adapter has been disposed"}
	}
	if cached, ok := a.cache.Get(text); ok {
		return cloneIDs(cached.([]int)), nil
	}
	ids := a.vocab.encodeBytes([]byte(text))
	a.cache.Set(text, ids)
	return cloneIDs(ids), nil
}

// Decode renders a token-id sequence back to text. It returns an error if
// the ids do not form valid UTF-8 once expanded, which can happen if ids
// from a different encoding are passed in.
func (a *Adapter) Decode(ids []int) (string, error) {
	if a.disposed {
		return "", &Error{Reason: "adapter has been disposed"}
	}
	b := a.vocab.decodeBytes(ids)
	if !utf8Valid(b) {
		return "", &Error{Reason: fmt.Sprintf("decoded bytes are not valid UTF-8 for encoding %q", a.encoding)}
	}
	return string(b), nil
}

// Stats returns the adapter's encode-cache statistics.
func (a *Adapter) Stats() cache.Stats { return a.cache.Stats() }

// Dispose releases the adapter's cache. Further calls return an error.
func (a *Adapter) Dispose() {
	a.cache.Clear()
	a.disposed = true
}

func cloneIDs(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// VocabSize returns one past the highest token id this encoding can
// produce: the encoding's byte-token base plus 256 byte tokens plus the
// compiled merges.
func (a *Adapter) VocabSize() int { return a.vocab.vocabSize }
