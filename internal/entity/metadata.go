// ABOUTME: Transient metadata bag with a closed value variant
// ABOUTME: Values are string, number, bool, or null; JSON-safe by construction

package entity

import (
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the closed set of metadata value types.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a single metadata value. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String wraps a string as a Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports which variant the value holds.
func (v Value) Kind() ValueKind { return v.kind }

// StringValue returns the string payload, or "" for other kinds.
func (v Value) StringValue() string { return v.str }

// NumberValue returns the numeric payload, or 0 for other kinds.
func (v Value) NumberValue() float64 { return v.num }

// BoolValue returns the bool payload, or false for other kinds.
func (v Value) BoolValue() bool { return v.b }

// MarshalJSON encodes the value as its underlying JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar into the matching variant.
// Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	default:
		return fmt.Errorf("metadata value must be a scalar, got %T", raw)
	}
	return nil
}

// Metadata is the open-ended annotation bag carried by every entity.
// It is transient: the store never persists or queries it.
type Metadata map[string]Value
