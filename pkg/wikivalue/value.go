// Package wikivalue implements the tagged recursive value used for job
// parameters and last-attempt results: a JSON-compatible sum of null,
// bool, number, string, sequence and map, with explicit getters that
// return a caller-supplied default instead of panicking on a type or
// shape mismatch.
package wikivalue

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies which alternative of the sum a Value currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMap
)

// Value is a recursive, JSON-compatible tagged union. The zero Value is
// Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Number(n float64) Value      { return Value{kind: KindNumber, n: n} }
func Int64(n int64) Value         { return Value{kind: KindNumber, n: float64(n)} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Sequence(vs []Value) Value   { return Value{kind: KindSequence, seq: vs} }

// Map returns a map-kind Value. The supplied map is copied so callers
// can keep mutating their own map afterward.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// NewMap returns an empty, mutable map-kind Value builder.
func NewMap() *MapBuilder {
	return &MapBuilder{m: map[string]Value{}}
}

// MapBuilder accumulates key/value pairs before producing an immutable
// Value via Build. It exists so handler code can assemble
// last-attempt-result payloads without repeatedly copying a map.
type MapBuilder struct {
	m map[string]Value
}

func (b *MapBuilder) Set(key string, v Value) *MapBuilder {
	b.m[key] = v
	return b
}

func (b *MapBuilder) Build() Value {
	return Map(b.m)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// GetBool returns the bool value, or def if v is not a bool.
func (v Value) GetBool(def bool) bool {
	if v.kind != KindBool {
		return def
	}
	return v.b
}

// GetFloat64 returns the number value, or def if v is not a number.
func (v Value) GetFloat64(def float64) float64 {
	if v.kind != KindNumber {
		return def
	}
	return v.n
}

// GetInt64 returns the number value truncated to int64, or def if v is
// not a number.
func (v Value) GetInt64(def int64) int64 {
	if v.kind != KindNumber {
		return def
	}
	return int64(v.n)
}

// GetString returns the string value, or def if v is not a string.
func (v Value) GetString(def string) string {
	if v.kind != KindString {
		return def
	}
	return v.s
}

// GetSequence returns the sequence elements, or nil if v is not a
// sequence.
func (v Value) GetSequence() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Field looks up a key in a map-kind Value, returning (value, true) if
// present. On any other kind, or a missing key, it returns (Null, false).
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	f, ok := v.m[key]
	return f, ok
}

// FieldOr looks up a key and returns def when absent or v is not a map.
func (v Value) FieldOr(key string, def Value) Value {
	if f, ok := v.Field(key); ok {
		return f
	}
	return def
}

// Keys returns the sorted keys of a map-kind Value, or nil otherwise.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindSequence:
		return json.Marshal(v.seq)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("wikivalue: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case string:
		return String(x)
	case []interface{}:
		seq := make([]Value, len(x))
		for i, e := range x {
			seq[i] = fromInterface(e)
		}
		return Sequence(seq)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = fromInterface(e)
		}
		return Map(m)
	default:
		return Null()
	}
}

// ParseString parses a JSON-encoded Value, treating an empty string as
// Null — the convention used for job rows that were never given a
// parameters or last_attempt_result payload.
func ParseString(s string) (Value, error) {
	if s == "" {
		return Null(), nil
	}
	var v Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Null(), err
	}
	return v, nil
}

// String serializes v to its JSON encoding, returning "" for Null so
// round-tripping through ParseString is lossless for never-set fields.
func (v Value) String() string {
	if v.kind == KindNull {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
