// Package schema implements shape deduplication for canonical records: the
// Schema Registry module. A schema is the identity of an object shape,
// defined purely by its sorted set of field names — field types never
// participate in schema identity, so differing null patterns across rows
// never split a schema.
package schema

import "strings"

// fieldSeparator joins sorted field names into a signature string.
// Canonicalization does not strip the control character 0x01 from keys, so
// field names that themselves contain it can make two different field sets
// share a signature.
const fieldSeparator = "\x01"

// Schema is the tuple (id, ordered field-name list).
type Schema struct {
	ID     int
	Fields []string
}

// Signature returns the identity string for a sorted field-name set.
func Signature(sortedFields []string) string {
	return strings.Join(sortedFields, fieldSeparator)
}

// FieldCount returns the number of fields in the schema.
func (s *Schema) FieldCount() int { return len(s.Fields) }

// IndexOf returns the position of field in the schema's field list, or -1.
func (s *Schema) IndexOf(field string) int {
	for i, f := range s.Fields {
		if f == field {
			return i
		}
	}
	return -1
}
