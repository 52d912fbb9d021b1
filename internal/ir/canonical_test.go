package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"number", Number("1.5"), "1.5"},
		{"null", Null{}, "null"},
		{"bool true", Bool(true), "true"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
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
	obj := Object{
		"z": Object{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 even though its UTF-8 bytes sort after.
	obj := Object{
		"": Int(1),
		"𐀀":      Int(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"𐀀":2,"`+""+`":1}`, string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"control char", "\x01", `"\u0001"`},
		{"line separator kept", "a b", "\"a b\""},
		{"nfc normalized", "é", "\"é\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(String(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(Array{nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestCanonicalJSON_Struct(t *testing.T) {
	type sample struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
	}

	result, err := CanonicalJSON(sample{Zeta: 1, Alpha: "<x>"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<x>","zeta":1}`, string(result))
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
		ok       bool
	}{
		{"nil", nil, Null{}, true},
		{"int32", int32(7), Int(7), true},
		{"uint8", uint8(3), Int(3), true},
		{"whole float", 2.0, Int(2), true},
		{"fraction", 0.25, Number("0.25"), true},
		{"typed slice", []string{"a"}, Array{String("a")}, true},
		{"typed map", map[string]int{"a": 1}, Object{"a": Int(1)}, true},
		{"struct", struct{}{}, nil, false},
		{"channel", make(chan int), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := FromAny(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestParseValue_Numbers(t *testing.T) {
	v, err := ParseValue([]byte(`{"a":1,"b":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, Object{"a": Int(1), "b": Number("1.5")}, v)
}
