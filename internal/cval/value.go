package cval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Value is an immutable-by-convention tree of mappings (string keys),
// sequences, and scalars. The zero Value is null.
//
// Numbers keep their literal decimal form so that re-serializing a
// decoded document reproduces the same bytes.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	seq  []Value
	m    map[string]Value
}

func Null() Value           { return Value{kind: KindNull} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric Value from a decimal literal. The literal is
// carried verbatim into serialized output.
func Number(literal string) Value {
	return Value{kind: KindNumber, num: json.Number(literal)}
}

func Int(n int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(n, 10))}
}

func Float(f float64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Seq builds a sequence Value. Element order is preserved; it is
// semantically significant (block lists, ordered collections).
func Seq(elems ...Value) Value {
	return Value{kind: KindSequence, seq: elems}
}

// Map builds a mapping Value from the given entries. Key order is
// irrelevant; mappings compare and serialize by sorted key.
func Map(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: KindMapping, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() bool { return v.b }

// NumberLiteral returns the decimal literal for a number Value.
func (v Value) NumberLiteral() string { return v.num.String() }

func (v Value) Float() (float64, error) { return v.num.Float64() }

func (v Value) Str() string { return v.str }

// Sequence returns the underlying elements. Callers must not mutate.
func (v Value) Sequence() []Value { return v.seq }

// Len reports the number of elements (sequence) or entries (mapping).
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.m)
	default:
		return 0
	}
}

// Get looks up a mapping entry.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Keys returns the mapping's keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. Mappings and sequences are copied
// recursively so the result can be mutated via With/Without safely.
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i, e := range v.seq {
			seq[i] = e.Clone()
		}
		return Value{kind: KindSequence, seq: seq}
	case KindMapping:
		m := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			m[k] = e.Clone()
		}
		return Value{kind: KindMapping, m: m}
	default:
		return v
	}
}

// With returns a copy of a mapping Value with key set to val.
func (v Value) With(key string, val Value) Value {
	m := make(map[string]Value, len(v.m)+1)
	for k, e := range v.m {
		m[k] = e
	}
	m[key] = val
	return Value{kind: KindMapping, m: m}
}

// Without returns a copy of a mapping Value with key removed.
func (v Value) Without(key string) Value {
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		if k != key {
			m[k] = e
		}
	}
	return Value{kind: KindMapping, m: m}
}

// Equal reports deep equality. Mapping entries compare regardless of
// iteration order; sequences compare element-wise in order; numbers
// compare by numeric value, not literal form.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return numberEqual(a.num, b.num)
	case KindString:
		return a.str == b.str
	case KindSequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func numberEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	if aerr != nil || berr != nil {
		return a.String() == b.String()
	}
	return af == bf
}

// FromJSON decodes a JSON document into a Value. Numbers keep their
// literal form.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	// reject trailing garbage after the first document
	if dec.More() {
		return Value{}, fmt.Errorf("trailing data after JSON value")
	}
	return fromDecoded(raw)
}

// FromAny converts decoded-JSON-shaped Go data (nil, bool, string,
// json.Number, numeric types, []any, map[string]any, plus []Value /
// map[string]Value / Value passthrough) into a Value.
func FromAny(x any) (Value, error) {
	return fromDecoded(x)
}

func fromDecoded(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("non-finite number %v", t)
		}
		return Float(t), nil
	case []Value:
		return Seq(t...), nil
	case []any:
		seq := make([]Value, len(t))
		for i, e := range t {
			ev, err := fromDecoded(e)
			if err != nil {
				return Value{}, err
			}
			seq[i] = ev
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := fromDecoded(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Value{kind: KindMapping, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// MarshalJSON serializes with Go's default encoder semantics. Mapping
// keys come out sorted because the underlying type is a Go map.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

// UnmarshalJSON decodes JSON into the Value, preserving number
// literals.
func (v *Value) UnmarshalJSON(data []byte) error {
	got, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = got
	return nil
}

func (v Value) toAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.toAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.toAny()
		}
		return out
	default:
		return nil
	}
}
