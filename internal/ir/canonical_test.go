package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": "x",
		"c": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+E000
	// in UTF-16 even though its UTF-8 bytes sort after.
	got, err := MarshalCanonical(map[string]any{
		"\U0001F600": 1,
		"\uE000":     2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uE000\":2}", string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<a>&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashKept(t *testing.T) {
	got, err := MarshalCanonical(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got), "literal backslash text must stay escaped")
}

func TestMarshalCanonical_NFC(t *testing.T) {
	got, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Arrays(t *testing.T) {
	got, err := MarshalCanonical([]any{"a", int64(2), []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, `["a",2,["x","y"]]`, string(got))
}

func TestMarshalCanonical_Forbidden(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"null", nil},
		{"float", 1.5},
		{"nested float", map[string]any{"x": []any{float32(1)}}},
		{"unsupported", struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	obj := map[string]any{"z": 1, "y": 2, "x": map[string]any{"b": 1, "a": 2}}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	for range 20 {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
