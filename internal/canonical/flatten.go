package canonical

import (
	"sort"
	"strings"
)

// FlattenObject flattens nested object fields into dot-joined keys so a row
// becomes a flat list positional to its schema. Arrays are left opaque (not
// flattened), matching the nested-objects-inside-rows rule: only object
// nesting inside a row is flattened, never array contents.
func FlattenObject(o *Object) *Object {
	if o == nil {
		return &Object{}
	}
	var fields []Field
	var walk func(prefix string, obj *Object)
	walk = func(prefix string, obj *Object) {
		for _, f := range obj.Fields {
			key := f.Key
			if prefix != "" {
				key = prefix + "." + key
			}
			if f.Value.Kind() == KindObject {
				walk(key, f.Value.Object())
			} else {
				fields = append(fields, Field{Key: key, Value: f.Value})
			}
		}
	}
	walk("", o)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return &Object{Fields: fields}
}

// UnflattenObject reverses FlattenObject: it splits dot-joined keys back
// into nested objects, re-sorting keys at every level so the result is a
// canonical object tree. It is used when decoding an array element that
// was dot-flattened on the wire, so that decode(encode(D)) reproduces the
// nested shape canonicalize(D) itself preserves inside arrays.
func UnflattenObject(flat *Object) *Object {
	if flat == nil {
		return &Object{}
	}

	type node struct {
		value    *Value
		children map[string]*node
		order    []string
	}
	root := &node{children: map[string]*node{}}

	for _, field := range flat.Fields {
		parts := strings.Split(field.Key, ".")
		cur := root
		for i, part := range parts {
			child, ok := cur.children[part]
			if !ok {
				child = &node{children: map[string]*node{}}
				cur.children[part] = child
				cur.order = append(cur.order, part)
			}
			if i == len(parts)-1 {
				v := field.Value
				child.value = &v
			}
			cur = child
		}
	}

	var build func(n *node) Value
	build = func(n *node) Value {
		if n.value != nil && len(n.children) == 0 {
			return *n.value
		}
		keys := append([]string(nil), n.order...)
		sort.Strings(keys)
		var fields []Field
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: build(n.children[k])})
		}
		return ObjectValue(&Object{Fields: fields})
	}

	result := build(root)
	if result.Kind() != KindObject {
		return &Object{}
	}
	return result.Object()
}
