package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wippyai/portflow/errors"
)

// Kind is the tag of a Value node.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindSeq
	KindMap
)

var kindNames = [...]string{"nil", "bool", "int", "uint", "float", "string", "bytes", "seq", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a generic tagged value tree. The zero Value is nil.
//
// Integers are kept as Int whenever they fit in int64; Uint only holds
// values above math.MaxInt64.
type Value struct {
	m     map[string]Value
	s     string
	bytes []byte
	seq   []Value
	i     int64
	u     uint64
	f     float64
	kind  Kind
	b     bool
}

func Nil() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Seq(items ...Value) Value { return Value{kind: KindSeq, seq: items} }

// Uint returns an unsigned integer Value, normalized to Int when it fits.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

// Bytes returns a byte string Value. The slice is not copied.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, bytes: b}
}

// Map returns a map Value. A nil map yields an empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) Bool() bool { return v.b }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string { return v.s }
func (v Value) Bytes() []byte { return v.bytes }
func (v Value) Items() []Value { return v.seq }

// Int returns the value as int64. ok is false when the value is not an
// integer or does not fit.
func (v Value) Int() (int64, bool) {
	if v.kind == KindInt {
		return v.i, true
	}
	return 0, false
}

// Uint returns the value as uint64. ok is false for negative or
// non-integer values.
func (v Value) Uint() (uint64, bool) {
	switch v.kind {
	case KindInt:
		if v.i < 0 {
			return 0, false
		}
		return uint64(v.i), true
	case KindUint:
		return v.u, true
	}
	return 0, false
}

// Len returns the number of items of a Seq or entries of a Map.
func (v Value) Len() int {
	switch v.kind {
	case KindSeq:
		return len(v.seq)
	case KindMap:
		return len(v.m)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.bytes)
	}
	return 0
}

// Get returns a map entry.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Keys returns the sorted keys of a Map.
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

// Interface converts the tree into plain Go values: nil, bool, int64,
// uint64, float64, string, []byte, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bytes
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// Equal reports deep equality. Integers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindUint:
		return v.u == o.u
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.kind {
	case KindNil:
		b.WriteString("nil")
	case KindBool, KindInt, KindUint, KindFloat:
		fmt.Fprint(b, v.Interface())
	case KindString:
		fmt.Fprintf(b, "%q", v.s)
	case KindBytes:
		fmt.Fprintf(b, "h'%x'", v.bytes)
	case KindSeq:
		b.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				b.WriteString(", ")
			}
			e.write(b)
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%q: ", k)
			v.m[k].write(b)
		}
		b.WriteByte('}')
	}
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(v.Interface())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. Bytes are written as base64
// strings, as encoding/json does for []byte.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSONValue(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ToValue converts any value expressible in the common value model into a
// Value tree. Types outside the fast path go through B.
func ToValue(v any) (Value, error) {
	if val, err := fromAny(v); err == nil {
		return val, nil
	}

	data, err := EncodeBinary(v)
	if err != nil {
		return Value{}, err
	}
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return Value{}, errors.CodecDecode(FormatValue.String(), typeName(v), err)
	}
	val, err := fromAny(raw)
	if err != nil {
		return Value{}, errors.CodecEncode(FormatValue.String(), typeName(v), err)
	}
	return val, nil
}

// FromValue decodes a Value tree into target, which must be a non-nil
// pointer.
func FromValue(val Value, target any) error {
	switch t := target.(type) {
	case *Value:
		*t = val
		return nil
	case *any:
		*t = val.Interface()
		return nil
	}

	data, err := encMode.Marshal(val.Interface())
	if err != nil {
		return errors.CodecEncode(FormatValue.String(), typeName(target), err)
	}
	if err := unmarshalBinary(data, target); err != nil {
		return errors.CodecDecode(FormatValue.String(), typeName(target), err)
	}
	return nil
}

var errNotPlain = fmt.Errorf("not a plain value")

// fromAny converts plain Go values. It returns errNotPlain for anything
// that needs reflection-based encoding.
func fromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return x, nil
	case *Value:
		if x == nil {
			return Nil(), nil
		}
		return *x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Uint(uint64(x)), nil
	case uint8:
		return Uint(uint64(x)), nil
	case uint16:
		return Uint(uint64(x)), nil
	case uint32:
		return Uint(uint64(x)), nil
	case uint64:
		return Uint(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case json.Number:
		return fromNumber(x)
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			item, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Seq(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			item, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = item
		}
		return Map(m), nil
	case map[any]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			key, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("map key %v (%T) is not a string", k, k)
			}
			item, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[key] = item
		}
		return Map(m), nil
	}
	return Value{}, errNotPlain
}

func fromNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	if u, ok := parseUint(string(n)); ok {
		return Uint(u), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, err
	}
	return Float(f), nil
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var u uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')
		if u > (math.MaxUint64-d)/10 {
			return 0, false
		}
		u = u*10 + d
	}
	return u, true
}
