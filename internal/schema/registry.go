package schema

import (
	"sort"

	"github.com/contexlabs/contex/internal/canonical"
)

// Registry deduplicates object shapes within the scope of a single encode
// operation. It is not safe for concurrent mutation and must not be reused
// across encode calls, matching the lifecycle rule that schemas live only
// for the duration of one encode.
type Registry struct {
	bySignature map[string]*Schema
	schemas     []*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{bySignature: make(map[string]*Schema)}
}

// Register returns the schema for obj's field-name set, creating one if no
// equivalent schema has been registered yet. obj must be a canonical object
// value (already flattened, if flattening is in effect).
func (r *Registry) Register(obj canonical.Value) (*Schema, error) {
	if obj.Kind() != canonical.KindObject {
		return nil, newSchemaError("Register requires an object value, got kind %d", obj.Kind())
	}
	fields := obj.FieldNames()
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	sig := Signature(sorted)
	if existing, ok := r.bySignature[sig]; ok {
		return existing, nil
	}
	s := &Schema{ID: len(r.schemas), Fields: sorted}
	r.schemas = append(r.schemas, s)
	r.bySignature[sig] = s
	return s, nil
}

// Superset registers a single schema containing the union of all field
// names across objs, used by Single-Schema Mode.
func (r *Registry) Superset(objs []canonical.Value) (*Schema, error) {
	union := map[string]bool{}
	for _, obj := range objs {
		if obj.Kind() != canonical.KindObject {
			return nil, newSchemaError("Superset requires object values, got kind %d", obj.Kind())
		}
		for _, name := range obj.FieldNames() {
			union[name] = true
		}
	}
	sorted := make([]string, 0, len(union))
	for name := range union {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	sig := Signature(sorted)
	if existing, ok := r.bySignature[sig]; ok {
		return existing, nil
	}
	s := &Schema{ID: len(r.schemas), Fields: sorted}
	r.schemas = append(r.schemas, s)
	r.bySignature[sig] = s
	return s, nil
}

// Schemas returns all registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return r.schemas
}

// Count returns the number of distinct schemas registered.
func (r *Registry) Count() int { return len(r.schemas) }

// DistinctFieldCount returns the number of distinct field names observed
// across all registered schemas, used to decide Single-Schema vs
// Multi-Schema Mode.
func (r *Registry) DistinctFieldCount() int {
	seen := map[string]bool{}
	for _, s := range r.schemas {
		for _, f := range s.Fields {
			seen[f] = true
		}
	}
	return len(seen)
}
