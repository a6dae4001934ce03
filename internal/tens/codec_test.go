package tens

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/tokenizer"
)

func newAdapter(t *testing.T) *tokenizer.Adapter {
	t.Helper()
	a, err := tokenizer.New(tokenizer.EncodingCl100kBase, 0)
	require.NoError(t, err)
	t.Cleanup(a.Dispose)
	return a
}

func obj(fields ...canonical.Field) canonical.Value {
	return canonical.ObjectValue(&canonical.Object{Fields: fields})
}

func f(key string, v canonical.Value) canonical.Field { return canonical.Field{Key: key, Value: v} }

func TestRoundTrip_UniformRows(t *testing.T) {
	a := newAdapter(t)
	records := []canonical.Value{
		obj(f("id", canonical.Number(1)), f("name", canonical.String("Alice"))),
		obj(f("id", canonical.Number(2)), f("name", canonical.String("Bob"))),
	}

	data, mode, err := encodeForTest(a, records)
	require.NoError(t, err)
	assert.Equal(t, ModeSingleSchema, mode)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, canonical.Equal(records[0], out[0]))
	assert.True(t, canonical.Equal(records[1], out[1]))
}

func TestRoundTrip_MissingFieldsUsePresenceMask(t *testing.T) {
	a := newAdapter(t)
	records := []canonical.Value{
		obj(f("a", canonical.String("x")), f("b", canonical.String("y"))),
		obj(f("a", canonical.String("x"))),
	}

	data, _, err := encodeForTest(a, records)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, canonical.Equal(records[0], out[0]))
	assert.True(t, canonical.Equal(records[1], out[1]))

	// The second row must not materialize "b" as an explicit null: it was
	// absent, not null.
	_, hasB := out[1].Object().Get("b")
	assert.False(t, hasB)
}

func TestRoundTrip_ExplicitNullDiffersFromAbsent(t *testing.T) {
	a := newAdapter(t)
	records := []canonical.Value{
		obj(f("a", canonical.String("x")), f("b", canonical.Null())),
		obj(f("a", canonical.String("x"))),
	}

	data, _, err := encodeForTest(a, records)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)

	bVal, hasB := out[0].Object().Get("b")
	require.True(t, hasB)
	assert.True(t, bVal.IsNull())

	_, hasB2 := out[1].Object().Get("b")
	assert.False(t, hasB2)
}

func TestRoundTrip_ArraysAndNestedObjects(t *testing.T) {
	a := newAdapter(t)
	records := []canonical.Value{
		obj(
			f("tags", canonical.Array([]canonical.Value{canonical.String("x"), canonical.String("y")})),
			f("items", canonical.Array([]canonical.Value{
				canonical.ObjectValue(&canonical.Object{Fields: []canonical.Field{
					f("id", canonical.Number(1)),
					f("meta", canonical.ObjectValue(&canonical.Object{Fields: []canonical.Field{
						f("k", canonical.String("v")),
					}})),
				}}),
			})),
		),
	}

	data, _, err := encodeForTest(a, records)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, canonical.Equal(records[0], out[0]))

	items, _ := out[0].Object().Get("items")
	elem := items.Array()[0]
	meta, hasMeta := elem.Object().Get("meta")
	require.True(t, hasMeta, "nested object inside an array element round-trips as nested, not flattened")
	k, hasK := meta.Object().Get("k")
	require.True(t, hasK)
	assert.Equal(t, "v", k.Str())
}

func TestRoundTrip_RepeatedStringUsesDictionary(t *testing.T) {
	a := newAdapter(t)
	var records []canonical.Value
	for i := 0; i < 20; i++ {
		records = append(records, obj(f("status", canonical.String("pending-review-long-enough-to-pay-off"))))
	}

	data, _, err := encodeForTest(a, records)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 20)
	for i := range records {
		assert.True(t, canonical.Equal(records[i], out[i]))
	}
}

func TestRoundTrip_NonFiniteNumberCollapsesToNull(t *testing.T) {
	a := newAdapter(t)
	records := []canonical.Value{obj(f("v", canonical.NonFinite(canonical.NaN)))}

	data, _, err := encodeForTest(a, records)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)

	v, ok := out[0].Object().Get("v")
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestRoundTrip_MultiSchemaModeAboveThreshold(t *testing.T) {
	a := newAdapter(t)
	var records []canonical.Value
	for i := 0; i < SingleSchemaFieldThreshold+5; i++ {
		records = append(records, obj(f(fmt.Sprintf("f%03d", i), canonical.Number(float64(i)))))
	}

	data, mode, err := encodeForTest(a, records)
	require.NoError(t, err)
	assert.Equal(t, ModeMultiSchema, mode)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, len(records))
	for i := range records {
		assert.True(t, canonical.Equal(records[i], out[i]))
	}
}

func TestRoundTrip_EmptyDataset(t *testing.T) {
	a := newAdapter(t)
	data, mode, err := encodeForTest(a, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeSingleSchema, mode)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("NOPE12345678"))
	require.Error(t, err)
}

func TestDecode_RejectsTruncatedPayload(t *testing.T) {
	a := newAdapter(t)
	data, _, err := encodeForTest(a, []canonical.Value{obj(f("a", canonical.Number(1)))})
	require.NoError(t, err)

	_, err = Decode(data[:len(data)-4])
	require.Error(t, err)
}

// encodeForTest wraps Encode so tests can also observe which schema mode
// was chosen.
func encodeForTest(a *tokenizer.Adapter, records []canonical.Value) ([]byte, Mode, error) {
	tokens, mode, err := EncodeTokens(a, records, 0)
	if err != nil {
		return nil, 0, err
	}
	data, err := frame(string(a.Encoding()), tokens)
	return data, mode, err
}
