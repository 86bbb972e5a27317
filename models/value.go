package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies which member of a Value is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single event property: null, boolean, number, string, or a nested
// array/object of values. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Properties is the open attribute bag carried by every event.
type Properties map[string]Value

func NullValue() Value                     { return Value{} }
func BoolValue(b bool) Value               { return Value{kind: KindBool, b: b} }
func NumberValue(n float64) Value          { return Value{kind: KindNumber, n: n} }
func StringValue(s string) Value           { return Value{kind: KindString, s: s} }
func ArrayValue(items ...Value) Value      { return Value{kind: KindArray, arr: items} }
func ObjectValue(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) Float() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Interface converts the value back to the plain encoding/json representation.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// ValueOf converts a decoded JSON value (as produced by encoding/json into any).
func ValueOf(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", t, err)
		}
		return NumberValue(n), nil
	case string:
		return StringValue(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ArrayValue(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return ObjectValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported property value of type %T", raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON encodes a nil bag as {} so stored rows always hold an object.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(p))
}
