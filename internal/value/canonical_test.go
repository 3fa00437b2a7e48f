package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null{}, `null`},
		{"nil", nil, `null`},
		{"string", String("hello"), `"hello"`},
		{"int", Int(-42), `-42`},
		{"float", Float(1.5), `1.5`},
		{"integral float", Float(2), `2.0`},
		{"large float", Float(1e21), `1e+21`},
		{"bool", Bool(true), `true`},
		{"array", Array{Int(1), String("a")}, `[1,"a"]`},
		{"object", Object{"b": Int(2), "a": Int(1)}, `{"a":1,"b":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{"y": Int(1), "x": Int(2)},
		"a": Array{Object{"d": Bool(true), "c": Bool(false)}},
	}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"c":false,"d":true}],"z":{"x":2,"y":1}}`, string(got))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(String("<a href=\"x\">&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(got))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("line\nbreak\ttab\\slash\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"line\nbreak\ttab\\slash\u0001"`, string(got))
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e + combining acute (NFD) must serialize as the precomposed form.
	decomposed := String("e\u0301")
	precomposed := String("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))

	keys, err := MarshalCanonical(Object{"e\u0301": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":1}", string(keys))
}

func TestMarshalCanonicalRejectsNonFiniteFloats(t *testing.T) {
	_, err := MarshalCanonical(Float(math.NaN()))
	assert.Error(t, err)

	_, err = MarshalCanonical(Object{"x": Float(math.Inf(1))})
	assert.ErrorContains(t, err, `value for key "x"`)
}

func TestMarshalCanonicalIsValidJSONAndRoundTrips(t *testing.T) {
	obj := Object{
		"title":  String("Dune"),
		"year":   Int(1965),
		"rating": Float(4),
		"tags":   Array{String("sf"), Null{}},
		"meta":   Object{"read": Bool(true)},
	}
	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	require.True(t, json.Valid(data))

	back, err := UnmarshalJSON(data)
	require.NoError(t, err)
	assert.True(t, Equal(obj, back))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	obj := Object{"b": Array{Int(1), Float(0.25)}, "a": String("x")}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDigest(t *testing.T) {
	a, err := Digest(DomainProperties, Object{"x": Int(1)})
	require.NoError(t, err)
	b, err := Digest(DomainProperties, Object{"x": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other, err := Digest(DomainChanges, Object{"x": Int(1)})
	require.NoError(t, err)
	assert.NotEqual(t, a, other, "domain separation must change the digest")
}
