package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexlabs/contex/internal/canonical"
)

func obj(fields ...canonical.Field) canonical.Value {
	return canonical.ObjectValue(&canonical.Object{Fields: fields})
}

func f(key string, v canonical.Value) canonical.Field {
	return canonical.Field{Key: key, Value: v}
}

func TestRegistry_RegisterDedupesBySortedKeySet(t *testing.T) {
	r := NewRegistry()

	a := obj(f("id", canonical.Number(1)), f("name", canonical.String("Alice")))
	b := obj(f("name", canonical.String("Bob")), f("id", canonical.Number(2)))

	sa, err := r.Register(a)
	require.NoError(t, err)
	sb, err := r.Register(b)
	require.NoError(t, err)

	assert.Equal(t, sa.ID, sb.ID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_DifferentShapesGetDifferentSchemas(t *testing.T) {
	r := NewRegistry()

	a := obj(f("id", canonical.Number(1)))
	b := obj(f("id", canonical.Number(1)), f("extra", canonical.Bool(true)))

	sa, err := r.Register(a)
	require.NoError(t, err)
	sb, err := r.Register(b)
	require.NoError(t, err)

	assert.NotEqual(t, sa.ID, sb.ID)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_NullPatternsDoNotSplitSchema(t *testing.T) {
	r := NewRegistry()

	a := obj(f("a", canonical.String("x")), f("b", canonical.Null()))
	b := obj(f("a", canonical.Null()), f("b", canonical.String("y")))

	sa, err := r.Register(a)
	require.NoError(t, err)
	sb, err := r.Register(b)
	require.NoError(t, err)

	assert.Equal(t, sa.ID, sb.ID)
}

func TestRegistry_Superset(t *testing.T) {
	r := NewRegistry()

	objs := []canonical.Value{
		obj(f("a", canonical.String("x"))),
		obj(f("b", canonical.String("y"))),
		obj(f("c", canonical.String("z"))),
	}

	s, err := r.Superset(objs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.Fields)
	assert.Equal(t, 3, r.DistinctFieldCount())
}

func TestRegistry_RegisterRejectsNonObject(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(canonical.String("not an object"))
	require.Error(t, err)
}
