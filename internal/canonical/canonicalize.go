package canonical

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Undefined is a sentinel value a caller may place in a map value or array
// element to represent "undefined" (as distinct from JSON null). Per the
// data model, undefined object entries are omitted and undefined array
// elements become null, preserving position.
var Undefined = &undefinedSentinel{}

type undefinedSentinel struct{}

// forbiddenKeys are rejected at input validation because they can be used
// for prototype pollution in the languages this format interoperates with.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Canonicalize normalizes a slice of records (each expected to canonicalize
// to an object) into canonical form. The top-level input must be a slice;
// anything else is an InputError.
func Canonicalize(records interface{}) ([]Value, error) {
	rv := reflect.ValueOf(records)
	if records == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, newInputError("top-level value must be an array, got %T", records)
	}

	visiting := map[uintptr]bool{}
	out := make([]Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		v, ok, err := canonicalizeValue(elem, visiting)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A top-level undefined record has no positional meaning; treat
			// it as an empty object rather than silently dropping it, since
			// records form a positional dataset once schemas are assigned.
			v = ObjectValue(&Object{})
		}
		if v.Kind() != KindObject {
			return nil, newInputError("record %d must canonicalize to an object, got kind %d", i, v.Kind())
		}
		out = append(out, v)
	}
	return out, nil
}

// canonicalizeValue returns (value, present, error). present is false only
// when v represents Undefined, signalling the caller should omit this
// position (object field) or substitute null (array element).
func canonicalizeValue(v interface{}, visiting map[uintptr]bool) (Value, bool, error) {
	switch val := v.(type) {
	case nil:
		return Null(), true, nil
	case *undefinedSentinel:
		return Value{}, false, nil
	case bool:
		return Bool(val), true, nil
	case string:
		return String(normalizeString(val)), true, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Value{}, false, newInputError("invalid number literal %q", string(val))
		}
		return numberValue(f), true, nil
	case float64:
		return numberValue(val), true, nil
	case float32:
		return numberValue(float64(val)), true, nil
	case int:
		return Number(float64(val)), true, nil
	case int8:
		return Number(float64(val)), true, nil
	case int16:
		return Number(float64(val)), true, nil
	case int32:
		return Number(float64(val)), true, nil
	case int64:
		return Number(float64(val)), true, nil
	case uint:
		return Number(float64(val)), true, nil
	case uint8:
		return Number(float64(val)), true, nil
	case uint16:
		return Number(float64(val)), true, nil
	case uint32:
		return Number(float64(val)), true, nil
	case uint64:
		return Number(float64(val)), true, nil
	case time.Time:
		return String(val.UTC().Format("2006-01-02T15:04:05.000Z")), true, nil
	case map[string]interface{}:
		return canonicalizeMap(val, visiting)
	case []interface{}:
		return canonicalizeSlice(val, visiting)
	default:
		return canonicalizeReflect(v, visiting)
	}
}

// canonicalizeReflect handles concretely-typed maps and slices built by Go
// callers (e.g. map[string]int, []string) by walking them generically, and
// rejects everything else (funcs, chans, structs, pointers to opaque host
// types) as outside the supported domain.
func canonicalizeReflect(v interface{}, visiting map[uintptr]bool) (Value, bool, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, false, newInputError("unsupported map key type %s", rv.Type().Key())
		}
		ptr := rv.Pointer()
		if ptr != 0 {
			if visiting[ptr] {
				return Value{}, false, newInputError("circular reference detected")
			}
			visiting[ptr] = true
			defer delete(visiting, ptr)
		}
		fields := make([]Field, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			cv, ok, err := canonicalizeValue(iter.Value().Interface(), visiting)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				continue
			}
			fields = append(fields, Field{Key: normalizeKey(key), Value: cv})
		}
		return finishObject(fields)
	case reflect.Slice, reflect.Array:
		ptr := uintptr(0)
		if rv.Kind() == reflect.Slice {
			ptr = rv.Pointer()
		}
		if ptr != 0 {
			if visiting[ptr] {
				return Value{}, false, newInputError("circular reference detected")
			}
			visiting[ptr] = true
			defer delete(visiting, ptr)
		}
		out := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			cv, ok, err := canonicalizeValue(rv.Index(i).Interface(), visiting)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				cv = Null()
			}
			out[i] = cv
		}
		return Array(out), true, nil
	default:
		return Value{}, false, newInputError("unsupported value of type %T", v)
	}
}

func canonicalizeMap(m map[string]interface{}, visiting map[uintptr]bool) (Value, bool, error) {
	rv := reflect.ValueOf(m)
	ptr := rv.Pointer()
	if ptr != 0 {
		if visiting[ptr] {
			return Value{}, false, newInputError("circular reference detected")
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)
	}

	fields := make([]Field, 0, len(m))
	for k, rawVal := range m {
		if forbiddenKeys[k] {
			return Value{}, false, newInputError("forbidden key %q", k)
		}
		cv, ok, err := canonicalizeValue(rawVal, visiting)
		if err != nil {
			return Value{}, false, err
		}
		if !ok {
			continue
		}
		fields = append(fields, Field{Key: normalizeKey(k), Value: cv})
	}
	return finishObject(fields)
}

func finishObject(fields []Field) (Value, bool, error) {
	// Later duplicate keys (possible after NFKC normalization merges two
	// distinct input keys) win, matching standard object assignment order.
	byKey := make(map[string]Value, len(fields))
	order := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, exists := byKey[f.Key]; !exists {
			order = append(order, f.Key)
		}
		byKey[f.Key] = f.Value
	}
	sort.Strings(order)
	out := make([]Field, len(order))
	for i, k := range order {
		out[i] = Field{Key: k, Value: byKey[k]}
	}
	return ObjectValue(&Object{Fields: out}), true, nil
}

func canonicalizeSlice(s []interface{}, visiting map[uintptr]bool) (Value, bool, error) {
	rv := reflect.ValueOf(s)
	ptr := rv.Pointer()
	if ptr != 0 {
		if visiting[ptr] {
			return Value{}, false, newInputError("circular reference detected")
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)
	}

	out := make([]Value, len(s))
	for i, elem := range s {
		cv, ok, err := canonicalizeValue(elem, visiting)
		if err != nil {
			return Value{}, false, err
		}
		if !ok {
			cv = Null() // undefined array elements become null, preserving position
		}
		out[i] = cv
	}
	return Array(out), true, nil
}

func numberValue(f float64) Value {
	if math.IsNaN(f) {
		return NonFinite(NaN)
	}
	if math.IsInf(f, 1) {
		return NonFinite(PosInfinity)
	}
	if math.IsInf(f, -1) {
		return NonFinite(NegInfinity)
	}
	if f == 0 {
		return Number(0) // map -0 to 0
	}
	return Number(f)
}

// normalizeKey NFKC-normalizes an object key.
func normalizeKey(k string) string {
	return norm.NFKC.String(k)
}

// normalizeString NFKC-normalizes a string value and strips trailing
// whitespace from each line.
func normalizeString(s string) string {
	s = norm.NFKC.String(s)
	if !strings.ContainsAny(s, "\n") {
		return strings.TrimRight(s, " \t\r\v\f")
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\v\f")
	}
	return strings.Join(lines, "\n")
}

// FormatNumber renders a finite float64 in the canonical decimal form used
// by both codecs: integral values with no fractional part render without a
// decimal point; everything else uses the shortest round-tripping form.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseNumber parses a canonical decimal form back to a float64.
func ParseNumber(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// ValidUTF8 reports whether s is valid UTF-8, used by callers validating
// tokenizer round-trips.
func ValidUTF8(s string) bool { return utf8.ValidString(s) }
