// Package ir implements the Canonical IR: a content-addressed binary
// intermediate representation built from canonicalized records, plus the
// metadata needed to re-materialize it for any tokenizer without
// re-canonicalizing the source records.
package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/schema"
	"github.com/contexlabs/contex/internal/tens"
	"github.com/contexlabs/contex/internal/tokenizer"
)

// Version is the current IR format version, stamped into every stored IR
// so future readers can refuse formats they don't understand.
const Version = "1"

// CanonicalizationVersion is stamped alongside Version; bumping it signals
// that the canonicalization rules producing `data` changed even if the IR
// byte layout (Version) did not.
const CanonicalizationVersion = "1"

// IR is the canonical intermediate representation of a record set (spec
// §3): the TENS binary encoding of the canonicalized records, its content
// hash, the schemas referenced by that encoding, and the canonicalized
// source data itself so a later materialization for a different tokenizer
// never has to re-canonicalize.
type IR struct {
	Bytes                   []byte
	Hash                    string
	Schemas                 []*schema.Schema
	Data                    []canonical.Value
	IRVersion               string
	CanonicalizationVersion string
}

// Encode canonicalizes records, encodes them to TENS binary under adapter,
// and computes the content hash. Repeated calls with semantically equal
// inputs yield equal Hash, since canonicalization and the binary encoder
// are both deterministic functions of their input (spec §8 property 2).
// threshold of 0 or less uses tens.SingleSchemaFieldThreshold.
func Encode(adapter *tokenizer.Adapter, records interface{}, threshold int) (*IR, error) {
	canonRecords, err := canonical.Canonicalize(records)
	if err != nil {
		return nil, err
	}

	threshold = tens.ResolveThreshold(threshold)

	bytes, err := tens.Encode(adapter, canonRecords, threshold)
	if err != nil {
		return nil, err
	}

	reg := schemasOf(canonRecords, threshold)
	sum := sha256.Sum256(bytes)

	return &IR{
		Bytes:                   bytes,
		Hash:                    hex.EncodeToString(sum[:]),
		Schemas:                 reg,
		Data:                    canonRecords,
		IRVersion:               Version,
		CanonicalizationVersion: CanonicalizationVersion,
	}, nil
}

// schemasOf re-derives the schema set EncodeTokens would have registered,
// so IR.Schemas can be reported without reaching into tens' internals.
// threshold must already be resolved (tens.ResolveThreshold).
func schemasOf(records []canonical.Value, threshold int) []*schema.Schema {
	flat := make([]*canonical.Object, 0, len(records))
	for _, r := range records {
		if r.Kind() != canonical.KindObject {
			continue
		}
		flat = append(flat, canonical.FlattenObject(r.Object()))
	}

	allFieldNames := map[string]bool{}
	for _, obj := range flat {
		for _, f := range obj.Fields {
			allFieldNames[f.Key] = true
		}
	}

	reg := schema.NewRegistry()
	if len(allFieldNames) <= threshold {
		objsAsValues := make([]canonical.Value, len(flat))
		for i, obj := range flat {
			objsAsValues[i] = canonical.ObjectValue(obj)
		}
		_, _ = reg.Superset(objsAsValues)
	} else {
		for _, obj := range flat {
			_, _ = reg.Register(canonical.ObjectValue(obj))
		}
	}
	return reg.Schemas()
}

// Decode parses a stored IR's bytes back to canonical records. It is a
// thin wrapper over tens.Decode; kept here so callers never need to import
// internal/tens directly for IR round-tripping.
func Decode(bytes []byte) ([]canonical.Value, error) {
	return tens.Decode(bytes)
}
