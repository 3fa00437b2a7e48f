package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the property value types.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	value() // Sealed
}

// Null represents an absent value. A nil Value is treated as Null.
type Null struct{}

func (Null) value() {}

// String is a string value.
type String string

func (String) value() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) value() {}

// Float is a 64-bit floating point value. NaN and infinities are rejected
// at serialization boundaries.
type Float float64

func (Float) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object maps field names to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Kind identifies the type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindArray
	KindObject
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindArray:  "list",
	KindObject: "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name as written in schema files.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name && k != KindNull {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", name)
}

// KindOf returns the kind of v. A nil Value is KindNull.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Bool:
		return KindBool
	case Array:
		return KindArray
	case Object:
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	return KindOf(v) == KindNull
}

// Equal reports whether a and b are structurally equal.
// nil and Null are equal; Int and Float never compare equal.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		return ok && av.Equal(bv)
	case Object:
		bv, ok := b.(Object)
		return ok && av.Equal(bv)
	}
	return false
}

// Equal reports whether two arrays have equal elements in the same order.
func (arr Array) Equal(other Array) bool {
	if len(arr) != len(other) {
		return false
	}
	for i := range arr {
		if !Equal(arr[i], other[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two objects hold equal values for the same keys.
// A key holding Null equals a missing key.
func (obj Object) Equal(other Object) bool {
	for k, v := range obj {
		if !Equal(v, other[k]) {
			return false
		}
	}
	for k, v := range other {
		if _, ok := obj[k]; !ok && !IsNull(v) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's default string ordering compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Get returns the value stored under key, treating Null as absent.
func (obj Object) Get(key string) (Value, bool) {
	v, ok := obj[key]
	if !ok || IsNull(v) {
		return nil, false
	}
	return v, true
}

// GetString returns the string stored under key.
func (obj Object) GetString(key string) (string, error) {
	v, ok := obj.Get(key)
	if !ok {
		return "", fmt.Errorf("field %q: missing", key)
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %s", key, KindOf(v))
	}
	return string(s), nil
}

// GetInt returns the integer stored under key.
func (obj Object) GetInt(key string) (int64, error) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, fmt.Errorf("field %q: missing", key)
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("field %q: expected int, got %s", key, KindOf(v))
	}
	return int64(n), nil
}

// GetFloat returns the number stored under key. Int values are widened.
func (obj Object) GetFloat(key string) (float64, error) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, fmt.Errorf("field %q: missing", key)
	}
	switch n := v.(type) {
	case Float:
		return float64(n), nil
	case Int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("field %q: expected float, got %s", key, KindOf(v))
}

// GetBool returns the boolean stored under key.
func (obj Object) GetBool(key string) (bool, error) {
	v, ok := obj.Get(key)
	if !ok {
		return false, fmt.Errorf("field %q: missing", key)
	}
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("field %q: expected bool, got %s", key, KindOf(v))
	}
	return bool(b), nil
}

// MarshalJSON implements json.Marshaler with canonical key order.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
// Numbers without a fraction or exponent decode as Int, others as Float.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalJSON(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*obj = o
	return nil
}

// UnmarshalJSON decodes any JSON document into a Value.
func UnmarshalJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a plain Go value, as produced by encoding/json or
// yaml.v3 decoding, into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid number %s: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromAny converts a plain map into an Object.
func ObjectFromAny(m map[string]any) (Object, error) {
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// ToAny converts a Value into plain Go values (nil, string, int64, float64,
// bool, []any, map[string]any) suitable for yaml.v3 or encoding/json.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
