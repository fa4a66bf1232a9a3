package base

import (
	"encoding/json"
	"testing"

	"github.com/stevemurr/arowana/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw   string
		kind  Kind
		value any
	}{
		{`{"a": 1}`, Object, map[string]any{"a": float64(1)}},
		{` [1, "b"] `, Array, []any{float64(1), "b"}},
		{`"s"`, String, "s"},
		{`12`, Integer, int64(12)},
		{`-1.5e3`, Float, float64(-1500)},
		{`1.0`, Float, float64(1)},
		{`false`, Bool, false},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			d, err := Parse([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, d.Kind())
			assert.Equal(t, tc.value, d.Value())
		})
	}

	for _, raw := range []string{`null`, `{"a":`, ``, `nope`} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidDocument, raw)
	}
}

func TestParseCompacts(t *testing.T) {
	d, err := Parse([]byte("{\n  \"a\": [1, 2],\n  \"b\": \"x y\"\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2],"b":"x y"}`, d.String())
}

func TestDocumentIsImmutable(t *testing.T) {
	d := MustDocument(map[string]any{"a": 1})
	b := d.Bytes()
	b[0] = '['
	assert.Equal(t, `{"a":1}`, d.String())
}

func TestDocumentJSON(t *testing.T) {
	rec := Record{Key: "k", Data: MustDocument([]any{"x"})}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k","data":["x"]}`, string(b))

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec.Key, back.Key)
	assert.Equal(t, Array, back.Data.Kind())

	_, err = json.Marshal(Document{})
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`{"key":"k","data":null}`), &back))
}

func TestNewDocument(t *testing.T) {
	d, err := NewDocument(MustDocument("x"))
	require.NoError(t, err)
	assert.Equal(t, String, d.Kind())

	_, err = NewDocument(nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = NewDocument(make(chan int))
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Panics(t, func() { MustDocument(nil) })
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		key  string
		body string
	}{
		{"string key", map[string]any{"key": "abc", "v": 1}, "abc", `{"v":1}`},
		{"number key", map[string]any{"key": 7, "v": 1}, "7", `{"v":1}`},
		{"null key", map[string]any{"key": nil, "v": 1}, "", `{"v":1}`},
		{"no key", map[string]any{"v": 1}, "", `{"v":1}`},
		{"nested key untouched", map[string]any{"v": map[string]any{"key": "x"}}, "", `{"v":{"key":"x"}}`},
		{"array", []any{map[string]any{"key": "x"}}, "", `[{"key":"x"}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, key, err := MustDocument(tc.in).splitKey()
			require.NoError(t, err)
			assert.Equal(t, tc.key, key)
			assert.JSONEq(t, tc.body, body.String())
		})
	}

	_, _, err := MustDocument(map[string]any{"key": []any{1}}).splitKey()
	assert.ErrorIs(t, err, ErrInvalidDocument)

	for _, raw := range []string{
		`{"key":"a","key":"b","x":1}`,
		`{"key":"a","x":1,"k\u0065y":"b"}`,
	} {
		d, err := Parse([]byte(raw))
		require.NoError(t, err)
		_, _, err = d.splitKey()
		assert.ErrorIs(t, err, ErrInvalidDocument, raw)
	}
}

func TestValueOfCorruptDocument(t *testing.T) {
	d := Document{kind: Object, raw: []byte(`{"a":`)}
	var out map[string]any
	assert.ErrorIs(t, d.Decode(&out), ErrInvalidDocument)
	assert.Panics(t, func() { d.Value() })
}

func TestChangePatch(t *testing.T) {
	tests := []struct {
		name   string
		change Change
		want   store.Patch
	}{
		{"plain value", Field("a", map[string]any{"b": 1}), store.Patch{Op: store.PatchSet, Field: "a", Value: []byte(`{"b":1}`)}},
		{"set", Field("a", Set("x")), store.Patch{Op: store.PatchSet, Field: "a", Value: []byte(`"x"`)}},
		{"set null", Field("a", nil), store.Patch{Op: store.PatchSet, Field: "a", Value: []byte(`null`)}},
		{"trim", Field("a", Trim()), store.Patch{Op: store.PatchRemove, Field: "a"}},
		{"increment", Field("a", Increment()), store.Patch{Op: store.PatchIncrement, Field: "a", Amount: int64(1)}},
		{"increment uint8", Field("a", IncrementBy(uint8(4))), store.Patch{Op: store.PatchIncrement, Field: "a", Amount: int64(4)}},
		{"increment float32", Field("a", IncrementBy(float32(0.5))), store.Patch{Op: store.PatchIncrement, Field: "a", Amount: float64(0.5)}},
		{"append", Field("a", Append([]int{1})), store.Patch{Op: store.PatchAppend, Field: "a", Value: []byte(`[1]`)}},
		{"document value", Field("a", MustDocument(true)), store.Patch{Op: store.PatchSet, Field: "a", Value: []byte(`true`)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.change.patch()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Field("a", Append(make(chan int))).patch()
	assert.ErrorIs(t, err, ErrInvalidMutation)
	_, err = Field("key", 1).patch()
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "trim", Trim().String())
	assert.Equal(t, "increment(1)", Increment().String())
	assert.Equal(t, "append(x)", Append("x").String())
	assert.Equal(t, "invalid", Op{}.String())
	assert.Equal(t, OpSet, Field("a", 1).Op.Kind())
}
