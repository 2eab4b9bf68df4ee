// Package value implements a small tagged union for the dynamic
// "metadata" maps that flow through task records and cache entries. It
// replaces a duck-typed dictionary with a closed set of JSON-serializable
// kinds, bounded by a schema check at decode time.
package value

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

// Value is a tagged union over the scalar and container kinds a task or
// cache-entry metadata field may hold.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	list []Value
	m    map[string]Value
}

func Null() Value              { return Value{kind: KindNull} }
func String(s string) Value    { return Value{kind: KindString, str: s} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func List(vs []Value) Value    { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool)       { return v.str, v.kind == KindString }
func (v Value) AsInt() (int64, bool)           { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)       { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)           { return v.b, v.kind == KindBool }
func (v Value) AsList() ([]Value, bool)        { return v.list, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// jsonValue is the wire representation: a discriminant tag plus a single
// raw payload field, so arbitrary nesting round-trips without reflection
// tricks on interface{}.
type jsonValue struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return json.Marshal(jsonValue{Kind: "null"})
	case KindString:
		data, _ := json.Marshal(v.str)
		return json.Marshal(jsonValue{Kind: "string", Data: data})
	case KindInt:
		data, _ := json.Marshal(v.i)
		return json.Marshal(jsonValue{Kind: "int", Data: data})
	case KindFloat:
		data, _ := json.Marshal(v.f)
		return json.Marshal(jsonValue{Kind: "float", Data: data})
	case KindBool:
		data, _ := json.Marshal(v.b)
		return json.Marshal(jsonValue{Kind: "bool", Data: data})
	case KindList:
		data, err := json.Marshal(v.list)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonValue{Kind: "list", Data: data})
	case KindMap:
		data, err := json.Marshal(v.m)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonValue{Kind: "map", Data: data})
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(raw []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(raw, &jv); err != nil {
		return err
	}

	switch jv.Kind {
	case "null", "":
		*v = Null()
	case "string":
		var s string
		if err := json.Unmarshal(jv.Data, &s); err != nil {
			return fmt.Errorf("value: decoding string: %w", err)
		}
		*v = String(s)
	case "int":
		var i int64
		if err := json.Unmarshal(jv.Data, &i); err != nil {
			return fmt.Errorf("value: decoding int: %w", err)
		}
		*v = Int(i)
	case "float":
		var f float64
		if err := json.Unmarshal(jv.Data, &f); err != nil {
			return fmt.Errorf("value: decoding float: %w", err)
		}
		*v = Float(f)
	case "bool":
		var b bool
		if err := json.Unmarshal(jv.Data, &b); err != nil {
			return fmt.Errorf("value: decoding bool: %w", err)
		}
		*v = Bool(b)
	case "list":
		var list []Value
		if err := json.Unmarshal(jv.Data, &list); err != nil {
			return fmt.Errorf("value: decoding list: %w", err)
		}
		*v = List(list)
	case "map":
		var m map[string]Value
		if err := json.Unmarshal(jv.Data, &m); err != nil {
			return fmt.Errorf("value: decoding map: %w", err)
		}
		*v = Map(m)
	default:
		return fmt.Errorf("value: unknown kind %q", jv.Kind)
	}
	return nil
}
