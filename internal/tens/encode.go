package tens

import (
	"strconv"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/dictionary"
	"github.com/contexlabs/contex/internal/schema"
	"github.com/contexlabs/contex/internal/tokenizer"
)

// SingleSchemaFieldThreshold is the default unification threshold (spec
// §3): at or below this many distinct field names across a dataset, the
// encoder uses Single-Schema Mode (one superset schema, presence masks for
// missing fields); above it, Multi-Schema Mode (one schema per distinct
// shape). Callers pass 0 to EncodeTokens/Encode to use this default, or a
// positive value (e.g. from config.Watcher.UnificationThreshold()) to
// override it per call.
const SingleSchemaFieldThreshold = 200

// ResolveThreshold returns threshold if positive, else the default
// SingleSchemaFieldThreshold.
func ResolveThreshold(threshold int) int {
	if threshold <= 0 {
		return SingleSchemaFieldThreshold
	}
	return threshold
}

// Mode records which body grammar a stream used, surfaced so callers and
// tests can assert on it.
type Mode int

const (
	ModeSingleSchema Mode = iota
	ModeMultiSchema
)

// EncodeTokens runs the full TENS binary token stream assembly: row
// flattening, schema registration (single- or multi-schema, by the
// unification threshold), value-dictionary selection, then dict-defs,
// schema-defs, and body. It returns the raw control+content token stream;
// Encode wraps it in the binary frame. threshold of 0 or less uses
// SingleSchemaFieldThreshold.
func EncodeTokens(adapter *tokenizer.Adapter, records []canonical.Value, threshold int) ([]int, Mode, error) {
	threshold = ResolveThreshold(threshold)
	flat := make([]*canonical.Object, len(records))
	for i, r := range records {
		if r.Kind() != canonical.KindObject {
			return nil, 0, formatErrorf("record %d is not an object", i)
		}
		flat[i] = canonical.FlattenObject(r.Object())
	}

	reg := schema.NewRegistry()
	allFieldNames := map[string]bool{}
	for _, obj := range flat {
		for _, f := range obj.Fields {
			allFieldNames[f.Key] = true
		}
	}

	mode := ModeMultiSchema
	var singleSchema *schema.Schema
	rowSchemas := make([]*schema.Schema, len(flat))
	if len(allFieldNames) <= threshold {
		mode = ModeSingleSchema
		objsAsValues := make([]canonical.Value, len(flat))
		for i, obj := range flat {
			objsAsValues[i] = canonical.ObjectValue(obj)
		}
		var err error
		singleSchema, err = reg.Superset(objsAsValues)
		if err != nil {
			return nil, 0, err
		}
		for i := range flat {
			rowSchemas[i] = singleSchema
		}
	} else {
		for i, obj := range flat {
			s, err := reg.Register(canonical.ObjectValue(obj))
			if err != nil {
				return nil, 0, err
			}
			rowSchemas[i] = s
		}
	}

	dict, err := buildDictionary(adapter, flat)
	if err != nil {
		return nil, 0, err
	}
	ctx := &encodeCtx{adapter: adapter, dict: dict.IDByValue()}

	var out []int

	for _, entry := range dict.Entries {
		idIDs, err := ctx.tokenizeRaw(strconv.Itoa(entry.ID))
		if err != nil {
			return nil, 0, err
		}
		valIDs, err := ctx.tokenizeRaw(entry.Value)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, DictDef)
		out = append(out, idIDs...)
		out = append(out, Separator)
		out = append(out, valIDs...)
		out = append(out, Separator)
	}

	for _, s := range reg.Schemas() {
		out = append(out, SchemaDef)
		for _, field := range s.Fields {
			fieldIDs, err := ctx.tokenizeRaw(field)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, fieldIDs...)
			out = append(out, Separator)
		}
	}

	if mode == ModeSingleSchema {
		out = append(out, RowBreak)
		for i, obj := range flat {
			rowIDs, err := ctx.encodeRow(singleSchema, obj)
			if err != nil {
				return nil, 0, err
			}
			if i > 0 {
				out = append(out, RowBreak)
			}
			out = append(out, rowIDs...)
		}
	} else {
		for i, obj := range flat {
			s := rowSchemas[i]
			idIDs, err := ctx.tokenizeRaw(strconv.Itoa(s.ID))
			if err != nil {
				return nil, 0, err
			}
			out = append(out, SchemaRef)
			out = append(out, idIDs...)
			out = append(out, Separator)
			out = append(out, ObjStart)
			valuesIDs, err := ctx.encodeAllValues(s, obj)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, valuesIDs...)
			out = append(out, ObjEnd)
		}
	}

	return out, mode, nil
}

func buildDictionary(adapter *tokenizer.Adapter, rows []*canonical.Object) (*dictionary.Dictionary, error) {
	b := dictionary.NewBuilder()
	for _, obj := range rows {
		if err := observeStrings(adapter, b, canonical.ObjectValue(obj)); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func observeStrings(adapter *tokenizer.Adapter, b *dictionary.Builder, v canonical.Value) error {
	switch v.Kind() {
	case canonical.KindString:
		ids, err := adapter.EncodeToIDs(v.Str())
		if err != nil {
			return err
		}
		b.Observe(v.Str(), ids)
	case canonical.KindArray:
		for _, elem := range v.Array() {
			if err := observeStrings(adapter, b, elem); err != nil {
				return err
			}
		}
	case canonical.KindObject:
		obj := v.Object()
		if obj == nil {
			return nil
		}
		for _, f := range obj.Fields {
			if err := observeStrings(adapter, b, f.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeRow emits one Single-Schema-Mode row: a presence mask plus only
// the present fields' values if any schema field is absent from obj,
// otherwise every field's value in schema order.
func (c *encodeCtx) encodeRow(s *schema.Schema, obj *canonical.Object) ([]int, error) {
	anyMissing := false
	present := make([]bool, s.FieldCount())
	for i, field := range s.Fields {
		if _, ok := obj.Get(field); ok {
			present[i] = true
		} else {
			anyMissing = true
		}
	}
	if !anyMissing {
		return c.encodeAllValues(s, obj)
	}

	out := []int{PresenceMask}
	chunks := (s.FieldCount() + 15) / 16
	for chunkIdx := 0; chunkIdx < chunks; chunkIdx++ {
		var payload int
		for b := 0; b < 16; b++ {
			idx := chunkIdx*16 + b
			if idx < len(present) && present[idx] {
				payload |= 1 << uint(b)
			}
		}
		out = append(out, MaskChunkBase+payload)
	}
	for i, field := range s.Fields {
		if !present[i] {
			continue
		}
		val, _ := obj.Get(field)
		ids, err := c.encodeValue(val)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (c *encodeCtx) encodeAllValues(s *schema.Schema, obj *canonical.Object) ([]int, error) {
	var out []int
	for _, field := range s.Fields {
		val, ok := obj.Get(field)
		if !ok {
			val = canonical.Null()
		}
		ids, err := c.encodeValue(val)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}
