package tens

import (
	"log/slog"
	"strconv"

	"github.com/contexlabs/contex/internal/tokenizer"

	"github.com/contexlabs/contex/internal/canonical"
)

func parseDictID(s string) (int, error) {
	return strconv.Atoi(s)
}

// Encode produces the complete framed TENS binary payload for records
// under adapter's encoding. threshold of 0 or less uses
// SingleSchemaFieldThreshold.
func Encode(adapter *tokenizer.Adapter, records []canonical.Value, threshold int) ([]byte, error) {
	tokens, _, err := EncodeTokens(adapter, records, threshold)
	if err != nil {
		return nil, err
	}
	return frame(string(adapter.Encoding()), tokens)
}

// Decode parses a framed TENS binary payload back into canonical records.
// It constructs its own tokenizer adapter for the encoding named in the
// frame header, so the caller need not already have one of the right kind
// on hand.
func Decode(data []byte) ([]canonical.Value, error) {
	encodingName, tokens, err := unframe(data)
	if err != nil {
		return nil, err
	}
	adapter, err := tokenizer.New(tokenizer.Encoding(encodingName), 0)
	if err != nil {
		return nil, formatErrorf("unsupported encoding %q in TENS payload: %v", encodingName, err)
	}
	defer adapter.Dispose()

	return DecodeTokens(adapter, tokens)
}

// DecodeTokens runs the tolerant TENS state-machine decoder described in
// §4.5.6: dict-defs until the first SCHEMA_DEF, schema-defs until ROW_BREAK
// or SCHEMA_REF, then rows. Unknown control tokens are skipped (and
// reported to slog); out-of-range dictionary references decode to null.
func DecodeTokens(adapter *tokenizer.Adapter, tokens []int) ([]canonical.Value, error) {
	ctx := &decodeCtx{
		adapter: adapter,
		dict:    map[int]string{},
		onSkip: func(tokenID int) {
			slog.Debug("tens: skipping unrecognized control token", "token", tokenID, "marker", markerName(tokenID))
		},
	}

	pos := 0

	for pos < len(tokens) && tokens[pos] == DictDef {
		pos++
		idIDs, next, err := ctx.collectUntilSeparator(tokens, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		idText, err := adapter.Decode(idIDs)
		if err != nil {
			return nil, err
		}
		id, err := parseDictID(idText)
		if err != nil {
			return nil, err
		}
		valIDs, next2, err := ctx.collectUntilSeparator(tokens, pos)
		if err != nil {
			return nil, err
		}
		pos = next2
		val, err := adapter.Decode(valIDs)
		if err != nil {
			return nil, err
		}
		ctx.dict[id] = val
	}

	var schemas [][]string
	for pos < len(tokens) && tokens[pos] == SchemaDef {
		pos++
		var fields []string
		for pos < len(tokens) && tokens[pos] != SchemaDef && tokens[pos] != RowBreak && tokens[pos] != SchemaRef {
			nameIDs, next, err := ctx.collectUntilSeparator(tokens, pos)
			if err != nil {
				return nil, err
			}
			pos = next
			name, err := adapter.Decode(nameIDs)
			if err != nil {
				return nil, err
			}
			fields = append(fields, name)
		}
		schemas = append(schemas, fields)
	}

	var records []canonical.Value

	switch {
	case pos < len(tokens) && tokens[pos] == RowBreak:
		if len(schemas) == 0 {
			return nil, formatErrorf("single-schema body with no schema definition")
		}
		fields := schemas[0]
		pos++ // consume the mandatory leading ROW_BREAK

		if len(fields) == 0 {
			// A zero-field row contributes no content tokens, so rows are
			// indistinguishable from ROW_BREAK separators alone: every
			// remaining ROW_BREAK here (consumed ones aside) marks one more
			// empty-object row.
			for pos < len(tokens) && tokens[pos] == RowBreak {
				pos++
				records = append(records, canonical.ObjectValue(&canonical.Object{}))
			}
			break
		}

		for pos < len(tokens) {
			var obj *canonical.Object
			var err error
			obj, pos, err = ctx.decodeRow(tokens, pos, fields)
			if err != nil {
				return nil, err
			}
			records = append(records, canonical.ObjectValue(obj))
			if pos < len(tokens) && tokens[pos] == RowBreak {
				pos++
				continue
			}
			break
		}
	default:
		for pos < len(tokens) && tokens[pos] == SchemaRef {
			pos++
			idIDs, next, err := ctx.collectUntilSeparator(tokens, pos)
			if err != nil {
				return nil, err
			}
			pos = next
			idText, err := adapter.Decode(idIDs)
			if err != nil {
				return nil, err
			}
			schemaID, err := parseDictID(idText)
			if err != nil {
				return nil, err
			}
			if schemaID < 0 || schemaID >= len(schemas) {
				return nil, formatErrorf("row references unknown schema id %d", schemaID)
			}
			if pos >= len(tokens) || tokens[pos] != ObjStart {
				return nil, formatErrorf("expected OBJ_START after SCHEMA_REF")
			}
			pos++
			var obj *canonical.Object
			obj, pos, err = ctx.decodeAllValues(tokens, pos, schemas[schemaID])
			if err != nil {
				return nil, err
			}
			if pos >= len(tokens) || tokens[pos] != ObjEnd {
				return nil, formatErrorf("expected OBJ_END closing multi-schema row")
			}
			pos++
			records = append(records, canonical.ObjectValue(obj))
		}
	}

	// Trailing data past a well-formed body is tolerated silently (per
	// §4.5.6): whatever remains at pos is simply not examined further.
	return records, nil
}

func (c *decodeCtx) decodeRow(tokens []int, pos int, fields []string) (*canonical.Object, int, error) {
	if pos < len(tokens) && tokens[pos] == PresenceMask {
		return c.decodeMaskedRow(tokens, pos, fields)
	}
	return c.decodeAllValues(tokens, pos, fields)
}

func (c *decodeCtx) decodeAllValues(tokens []int, pos int, fields []string) (*canonical.Object, int, error) {
	out := make([]canonical.Field, 0, len(fields))
	for _, name := range fields {
		var (
			val canonical.Value
			err error
		)
		val, pos, err = c.decodeValue(tokens, pos)
		if err != nil {
			return nil, pos, err
		}
		out = append(out, canonical.Field{Key: name, Value: val})
	}
	return &canonical.Object{Fields: out}, pos, nil
}

func (c *decodeCtx) decodeMaskedRow(tokens []int, pos int, fields []string) (*canonical.Object, int, error) {
	pos++ // consume PRESENCE_MASK
	chunks := (len(fields) + 15) / 16
	present := make([]bool, len(fields))
	for i := 0; i < chunks; i++ {
		if pos >= len(tokens) {
			return nil, pos, formatErrorf("truncated presence mask")
		}
		chunkTok := tokens[pos]
		if chunkTok < MaskChunkBase || chunkTok >= ArrayLenBase {
			return nil, pos, formatErrorf("invalid mask chunk token %d", chunkTok)
		}
		payload := chunkTok - MaskChunkBase
		pos++
		for b := 0; b < 16; b++ {
			idx := i*16 + b
			if idx < len(present) && payload&(1<<uint(b)) != 0 {
				present[idx] = true
			}
		}
	}

	// Masked-out fields were absent from the original row object (it came
	// from a narrower shape than the Single-Schema-Mode superset), not
	// present-with-null — so they are omitted here too, matching
	// canonicalize(D)'s own omission rule rather than reintroducing them.
	var out []canonical.Field
	for i, name := range fields {
		if !present[i] {
			continue
		}
		var (
			val canonical.Value
			err error
		)
		val, pos, err = c.decodeValue(tokens, pos)
		if err != nil {
			return nil, pos, err
		}
		out = append(out, canonical.Field{Key: name, Value: val})
	}
	return &canonical.Object{Fields: out}, pos, nil
}
