// Package store implements the per-sample typed key-value Store described in
// spec §3/§9: a small, explicit open union (Value) in place of the dynamic
// typing the original system relies on, plus typed accessors so callers
// never need an unchecked type assertion.
package store

import "fmt"

// Kind identifies which alternative of Value is populated.
type Kind int

const (
	// KindNull marks an absent/null value.
	KindNull Kind = iota
	// KindBool marks a boolean value.
	KindBool
	// KindInt marks an integer value.
	KindInt
	// KindFloat marks a floating point value.
	KindFloat
	// KindString marks a string value.
	KindString
	// KindList marks an ordered list of values.
	KindList
	// KindMap marks a string-keyed map of values.
	KindMap
	// KindBytes marks a raw byte slice.
	KindBytes
)

// Value is a closed, explicit open union over the value kinds the Store
// accepts. Exactly one field is meaningful; Kind says which.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	String string
	List   []Value
	Map    map[string]Value
	Bytes  []byte
}

// Null is the canonical null Value.
var Null = Value{Kind: KindNull}

// Of constructs a Value from a Go primitive, or panics for unsupported
// types. Callers building literals in tests typically prefer this helper
// over constructing Value directly.
func Of(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case int:
		return Value{Kind: KindInt, Int: int64(t)}
	case int64:
		return Value{Kind: KindInt, Int: t}
	case float64:
		return Value{Kind: KindFloat, Float: t}
	case string:
		return Value{Kind: KindString, String: t}
	case []byte:
		return Value{Kind: KindBytes, Bytes: t}
	case []Value:
		return Value{Kind: KindList, List: t}
	case map[string]Value:
		return Value{Kind: KindMap, Map: t}
	default:
		panic(fmt.Sprintf("store: unsupported value type %T", v))
	}
}

// AsBool returns the boolean payload and whether Kind was KindBool.
func (v Value) AsBool() (bool, bool) { return v.Bool, v.Kind == KindBool }

// AsInt returns the integer payload and whether Kind was KindInt.
func (v Value) AsInt() (int64, bool) { return v.Int, v.Kind == KindInt }

// AsFloat returns the float payload, accepting KindInt as a widening
// conversion so numeric accessors do not force callers to track which
// numeric kind a value happens to carry.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

// AsString returns the string payload and whether Kind was KindString.
func (v Value) AsString() (string, bool) { return v.String, v.Kind == KindString }

// AsBytes returns the byte payload and whether Kind was KindBytes.
func (v Value) AsBytes() ([]byte, bool) { return v.Bytes, v.Kind == KindBytes }

// AsList returns the list payload and whether Kind was KindList.
func (v Value) AsList() ([]Value, bool) { return v.List, v.Kind == KindList }

// AsMap returns the map payload and whether Kind was KindMap.
func (v Value) AsMap() (map[string]Value, bool) { return v.Map, v.Kind == KindMap }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Kind == KindNull }
