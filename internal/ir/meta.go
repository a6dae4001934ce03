package ir

import (
	"encoding/json"
	"time"

	"github.com/contexlabs/contex/internal/schema"
)

// SchemaMeta is the persisted shape of one registered schema.
type SchemaMeta struct {
	ID     int      `json:"id"`
	Fields []string `json:"fields"`
}

// Meta is the persisted sidecar for a stored IR (ir/<hash>.meta.json):
// enough to inspect a store entry without decoding its binary payload, and
// a version field so future readers can refuse a format they don't
// understand (spec §4.7, §6).
type Meta struct {
	Hash                    string       `json:"hash"`
	Schemas                 []SchemaMeta `json:"schemas"`
	RowCount                int          `json:"rowCount"`
	StoredAt                time.Time    `json:"storedAt"`
	IRVersion               string       `json:"irVersion"`
	CanonicalizationVersion string       `json:"canonicalizationVersion"`
}

// NewMeta builds the Meta sidecar for ir, stamped with storedAt.
func NewMeta(irv *IR, storedAt time.Time) *Meta {
	schemas := make([]SchemaMeta, len(irv.Schemas))
	for i, s := range irv.Schemas {
		schemas[i] = schemaMetaOf(s)
	}
	return &Meta{
		Hash:                    irv.Hash,
		Schemas:                 schemas,
		RowCount:                len(irv.Data),
		StoredAt:                storedAt,
		IRVersion:               irv.IRVersion,
		CanonicalizationVersion: irv.CanonicalizationVersion,
	}
}

func schemaMetaOf(s *schema.Schema) SchemaMeta {
	fields := append([]string(nil), s.Fields...)
	return SchemaMeta{ID: s.ID, Fields: fields}
}

// Marshal serializes m to JSON. encoding/json already emits struct fields
// in a fixed declaration order and sorts any map keys alphabetically, which
// is what makes the output a stable, reproducible byte sequence across
// runs (spec §6: "a stable, sorted-key writer").
func (m *Meta) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalMeta parses a meta.json payload, rejecting an unknown IR
// version up front so callers never silently misinterpret a future
// format.
func UnmarshalMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newError("parse meta.json: %v", err)
	}
	if m.IRVersion != Version {
		return nil, newError("unsupported IR version %q (expected %q)", m.IRVersion, Version)
	}
	return &m, nil
}
