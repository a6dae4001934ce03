package tens

import (
	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/tokenizer"
)

// encodeCtx carries the per-encode dependencies value encoding needs: the
// tokenizer adapter (for turning strings/numbers into token ids) and the
// value dictionary (for replacing eligible strings with a DICT_REF).
type encodeCtx struct {
	adapter *tokenizer.Adapter
	dict    map[string]int // string -> dictionary id, nil/absent if not selected
}

func (c *encodeCtx) tokenizeRaw(s string) ([]int, error) {
	return c.adapter.EncodeToIDs(s)
}

// encodeValue emits v's self-describing token form. Every scalar case ends
// with exactly one trailing Separator, which is how the decoder knows where
// one value's tokens end regardless of its variable length; an array is
// instead FIXED_ARRAY plus its length token followed by its elements, with
// no trailing Separator of its own, and its length tells the decoder where
// it ends. NUM_VAL and
// STR_VAL are additive markers not named explicitly in the control-token
// list; without them the decoder would have no way to tell a dictionary
// reference from a plain bare value, or a number from a string, since
// schema identity carries no type information.
func (c *encodeCtx) encodeValue(v canonical.Value) ([]int, error) {
	switch v.Kind() {
	case canonical.KindNull, canonical.KindNonFiniteNumber:
		// Per the data model's binary carve-out, non-finite numbers collapse
		// to null in this codec (the text codec keeps them distinct).
		return []int{NullVal, Separator}, nil
	case canonical.KindBool:
		if v.Bool() {
			return []int{BoolTrue, Separator}, nil
		}
		return []int{BoolFalse, Separator}, nil
	case canonical.KindNumber:
		ids, err := c.tokenizeRaw(canonical.FormatNumber(v.Number()))
		if err != nil {
			return nil, err
		}
		out := append([]int{NumVal}, ids...)
		return append(out, Separator), nil
	case canonical.KindString:
		if id, ok := c.dict[v.Str()]; ok {
			return []int{DictRefBase + id, Separator}, nil
		}
		ids, err := c.tokenizeRaw(v.Str())
		if err != nil {
			return nil, err
		}
		out := append([]int{StrVal}, ids...)
		return append(out, Separator), nil
	case canonical.KindArray:
		arr := v.Array()
		out := []int{FixedArray, ArrayLenBase + len(arr)}
		for _, elem := range arr {
			elemIDs, err := c.encodeArrayElement(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, elemIDs...)
		}
		return out, nil
	case canonical.KindObject:
		return c.encodeObjectElement(v)
	default:
		return nil, formatErrorf("cannot encode value of kind %d", v.Kind())
	}
}

// encodeArrayElement dispatches objects to the OBJ_START/OBJ_END form and
// everything else to encodeValue. Only array elements can be objects at
// this point: row-level object nesting was already flattened to
// dot-notation keys at the canonicalization boundary.
func (c *encodeCtx) encodeArrayElement(v canonical.Value) ([]int, error) {
	if v.Kind() == canonical.KindObject {
		return c.encodeObjectElement(v)
	}
	return c.encodeValue(v)
}

func (c *encodeCtx) encodeObjectElement(v canonical.Value) ([]int, error) {
	flat := canonical.FlattenObject(v.Object())
	out := []int{ObjStart}
	for _, f := range flat.Fields {
		nameIDs, err := c.tokenizeRaw(f.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, nameIDs...)
		out = append(out, Separator)
		valIDs, err := c.encodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, valIDs...)
	}
	out = append(out, ObjEnd, Separator)
	return out, nil
}

// decodeCtx mirrors encodeCtx for decoding: it needs the adapter to turn
// token-id runs back into text, and the dictionary to resolve DICT_REF ids.
type decodeCtx struct {
	adapter *tokenizer.Adapter
	dict    map[int]string
	onSkip  func(tokenID int) // called for each unknown control token skipped
}

// collectUntilSeparator gathers content tokens until it finds a Separator,
// tolerating and skipping any unrecognized control tokens found in
// between (per the decoder's tolerance rules).
func (c *decodeCtx) collectUntilSeparator(tokens []int, pos int) ([]int, int, error) {
	var ids []int
	for {
		if pos >= len(tokens) {
			return nil, pos, formatErrorf("truncated value: no terminating SEPARATOR")
		}
		t := tokens[pos]
		if t == Separator {
			return ids, pos + 1, nil
		}
		if IsControl(t) {
			if c.onSkip != nil {
				c.onSkip(t)
			}
			pos++
			continue
		}
		ids = append(ids, t)
		pos++
	}
}

func (c *decodeCtx) decodeValue(tokens []int, pos int) (canonical.Value, int, error) {
	for {
		if pos >= len(tokens) {
			return canonical.Value{}, pos, formatErrorf("truncated stream: expected a value")
		}
		t := tokens[pos]
		switch t {
		case NullVal:
			return canonical.Null(), skipSeparator(tokens, pos+1), nil
		case BoolTrue:
			return canonical.Bool(true), skipSeparator(tokens, pos+1), nil
		case BoolFalse:
			return canonical.Bool(false), skipSeparator(tokens, pos+1), nil
		case NumVal:
			ids, next, err := c.collectUntilSeparator(tokens, pos+1)
			if err != nil {
				return canonical.Value{}, next, err
			}
			text, err := c.adapter.Decode(ids)
			if err != nil {
				return canonical.Value{}, next, err
			}
			n, err := canonical.ParseNumber(text)
			if err != nil {
				return canonical.Value{}, next, formatErrorf("invalid numeric literal %q: %v", text, err)
			}
			return canonical.Number(n), next, nil
		case StrVal:
			ids, next, err := c.collectUntilSeparator(tokens, pos+1)
			if err != nil {
				return canonical.Value{}, next, err
			}
			text, err := c.adapter.Decode(ids)
			if err != nil {
				return canonical.Value{}, next, err
			}
			return canonical.String(text), next, nil
		case FixedArray:
			return c.decodeArray(tokens, pos)
		case ObjStart:
			return c.decodeObject(tokens, pos)
		default:
			switch {
			case t >= DictRefBase:
				id := t - DictRefBase
				if s, ok := c.dict[id]; ok {
					return canonical.String(s), pos + 1, nil
				}
				// Out-of-range dictionary reference: substitute null, never crash.
				return canonical.Null(), pos + 1, nil
			case IsControl(t):
				if c.onSkip != nil {
					c.onSkip(t)
				}
				pos++
				continue
			default:
				return canonical.Value{}, pos, formatErrorf("expected a value marker, found bare token %d", t)
			}
		}
	}
}

func (c *decodeCtx) decodeArray(tokens []int, pos int) (canonical.Value, int, error) {
	pos++ // consume FixedArray
	if pos >= len(tokens) {
		return canonical.Value{}, pos, formatErrorf("truncated array: missing length token")
	}
	lenTok := tokens[pos]
	if lenTok < ArrayLenBase || lenTok >= DictRefBase {
		return canonical.Value{}, pos, formatErrorf("invalid array length token %d", lenTok)
	}
	n := lenTok - ArrayLenBase
	pos++

	elems := make([]canonical.Value, 0, n)
	for i := 0; i < n; i++ {
		var (
			elem canonical.Value
			err  error
		)
		elem, pos, err = c.decodeArrayElement(tokens, pos)
		if err != nil {
			return canonical.Value{}, pos, err
		}
		elems = append(elems, elem)
	}
	return canonical.Array(elems), pos, nil
}

func (c *decodeCtx) decodeArrayElement(tokens []int, pos int) (canonical.Value, int, error) {
	if pos < len(tokens) && tokens[pos] == ObjStart {
		return c.decodeObject(tokens, pos)
	}
	return c.decodeValue(tokens, pos)
}

func (c *decodeCtx) decodeObject(tokens []int, pos int) (canonical.Value, int, error) {
	pos++ // consume ObjStart
	var fields []canonical.Field
	for {
		if pos >= len(tokens) {
			return canonical.Value{}, pos, formatErrorf("truncated object: missing OBJ_END")
		}
		if tokens[pos] == ObjEnd {
			pos = skipSeparator(tokens, pos+1)
			nested := canonical.UnflattenObject(&canonical.Object{Fields: fields})
			return canonical.ObjectValue(nested), pos, nil
		}
		nameIDs, next, err := c.collectUntilSeparator(tokens, pos)
		if err != nil {
			return canonical.Value{}, next, err
		}
		name, err := c.adapter.Decode(nameIDs)
		if err != nil {
			return canonical.Value{}, next, err
		}
		var val canonical.Value
		val, next, err = c.decodeValue(tokens, next)
		if err != nil {
			return canonical.Value{}, next, err
		}
		fields = append(fields, canonical.Field{Key: name, Value: val})
		pos = next
	}
}

func skipSeparator(tokens []int, pos int) int {
	if pos < len(tokens) && tokens[pos] == Separator {
		return pos + 1
	}
	return pos
}
