package tenstext

import (
	"strings"

	"github.com/contexlabs/contex/internal/canonical"
)

// FieldType is one of the three primitive types a TENS-Text schema line
// can declare for a field.
type FieldType string

const (
	TypeStr  FieldType = "str"
	TypeNum  FieldType = "num"
	TypeBool FieldType = "bool"
)

// FieldDef is one field of an @schema directive: name, inferred type, and
// whether the field is ever an array or ever null/missing across the
// dataset.
type FieldDef struct {
	Name     string
	Type     FieldType
	IsArray  bool
	Optional bool
}

// String renders a field-def token: "name:type", with "[]" appended iff
// IsArray and "?" appended iff Optional.
func (f FieldDef) String() string {
	s := f.Name + ":" + string(f.Type)
	if f.IsArray {
		s += "[]"
	}
	if f.Optional {
		s += "?"
	}
	return s
}

// parseFieldDef parses one "name:type[]?" token.
func parseFieldDef(tok string) (FieldDef, error) {
	var fd FieldDef
	if strings.HasSuffix(tok, "?") {
		fd.Optional = true
		tok = tok[:len(tok)-1]
	}
	if strings.HasSuffix(tok, "[]") {
		fd.IsArray = true
		tok = tok[:len(tok)-2]
	}
	parts := strings.SplitN(tok, ":", 2)
	if len(parts) != 2 {
		return fd, formatErrorf("malformed field-def %q: missing \":\"", tok)
	}
	fd.Name = parts[0]
	switch FieldType(parts[1]) {
	case TypeStr, TypeNum, TypeBool:
		fd.Type = FieldType(parts[1])
	default:
		return fd, formatErrorf("malformed field-def %q: unknown type %q", tok, parts[1])
	}
	return fd, nil
}

// inferFieldDefs computes one FieldDef per field in fields (schema field
// order preserved) by scanning every row's value for that field.
func inferFieldDefs(fields []string, rows []*canonical.Object) []FieldDef {
	defs := make([]FieldDef, len(fields))
	for i, name := range fields {
		defs[i] = inferOneFieldDef(name, rows)
	}
	return defs
}

func inferOneFieldDef(name string, rows []*canonical.Object) FieldDef {
	var sawString, sawNonBool, sawAny, sawArray, optional bool

	var observe func(v canonical.Value)
	observe = func(v canonical.Value) {
		sawAny = true
		switch v.Kind() {
		case canonical.KindString, canonical.KindNonFiniteNumber:
			// Non-finite numbers render as the quoted sentinels "NaN" /
			// "Infinity" / "-Infinity" in this codec, so they force the
			// field to the str type just like a real string would.
			sawString = true
		case canonical.KindBool:
			// contributes nothing further; bool is the default
		default:
			sawNonBool = true
		}
	}

	for _, row := range rows {
		val, ok := row.Get(name)
		if !ok {
			optional = true
			continue
		}
		if val.IsNull() {
			optional = true
			continue
		}
		if val.Kind() == canonical.KindArray {
			sawArray = true
			for _, elem := range val.Array() {
				observe(elem)
			}
			continue
		}
		observe(val)
	}

	typ := TypeNum
	switch {
	case sawString:
		typ = TypeStr
	case sawAny && !sawNonBool:
		typ = TypeBool
	}

	return FieldDef{Name: name, Type: typ, IsArray: sawArray, Optional: optional}
}
