package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"uint64 beyond int64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool true", IRBool(true), "true"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"pubkey", SystemProgram, `"11111111111111111111111111111111"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"title":       IRString("Inception"),
		"description": IRString("dreams"),
		"rating":      IRInt(5),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"description":"dreams","rating":5,"title":"Inception"}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) and sorts before U+E000
	// in UTF-16, the opposite of UTF-8 byte order.
	obj := map[string]any{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<b>Tom & Jerry</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>Tom & Jerry</b>"`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"price": 21.53})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	require.Error(t, err)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e followed by a combining acute (NFD) must canonicalize to the NFC form.
	nfd := IRString("e\u0301")
	nfc := IRString("\u00e9")

	a, err := MarshalCanonical(nfd)
	require.NoError(t, err)
	b, err := MarshalCanonical(nfc)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))

	assert.False(t, IsNFC(string(nfd)))
	assert.True(t, IsNFC(string(nfc)))
}

func TestMarshalCanonicalLineSeparatorsNotEscaped(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	// The text `\u2028` (backslash followed by u2028) must stay escaped.
	result, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalMixedGoTypes(t *testing.T) {
	obj := map[string]any{
		"owner":  SystemProgram,
		"amount": uint64(1000),
		"args":   IRObject{"rating": IRInt(4)},
		"flags":  []any{true, "x"},
	}
	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t,
		`{"amount":1000,"args":{"rating":4},"flags":[true,"x"],"owner":"11111111111111111111111111111111"}`,
		string(result))
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := IRObject{"b": IRInt(1), "a": IRArray{IRString("x")}, "c": IRBool(false)}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
