package boundary

import (
	"fmt"
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/packet"
)

func packetValue(p packet.Packet) (codec.Value, error) {
	if v, ok := p.Value(); ok {
		return v, nil
	}
	var v codec.Value
	err := p.Decode(&v)
	return v, err
}

func isOptional(t wit.Type) bool {
	if td, ok := t.(*wit.TypeDef); ok {
		_, isOption := td.Kind.(*wit.Option)
		return isOption
	}
	return false
}

// fits reports why v cannot be read as t, or "" when it can.
func fits(v codec.Value, t wit.Type) string {
	switch t := t.(type) {
	case wit.Bool:
		return expectKind(v, "bool", codec.KindBool)
	case wit.U8:
		return fitsUnsigned(v, "u8", math.MaxUint8)
	case wit.U16:
		return fitsUnsigned(v, "u16", math.MaxUint16)
	case wit.U32:
		return fitsUnsigned(v, "u32", math.MaxUint32)
	case wit.U64:
		return fitsUnsigned(v, "u64", math.MaxUint64)
	case wit.S8:
		return fitsSigned(v, "s8", math.MinInt8, math.MaxInt8)
	case wit.S16:
		return fitsSigned(v, "s16", math.MinInt16, math.MaxInt16)
	case wit.S32:
		return fitsSigned(v, "s32", math.MinInt32, math.MaxInt32)
	case wit.S64:
		return fitsSigned(v, "s64", math.MinInt64, math.MaxInt64)
	case wit.F32, wit.F64:
		return expectKind(v, "float", codec.KindFloat, codec.KindInt, codec.KindUint)
	case wit.Char:
		if v.Kind() != codec.KindString || utf8.RuneCountInString(v.Str()) != 1 {
			return fmt.Sprintf("expected char, got %s", describe(v))
		}
		return ""
	case wit.String:
		return expectKind(v, "string", codec.KindString)
	case *wit.TypeDef:
		return fitsTypeDef(v, t)
	case nil:
		return ""
	}
	return fmt.Sprintf("unsupported WIT type %T", t)
}

func fitsTypeDef(v codec.Value, td *wit.TypeDef) string {
	switch k := td.Kind.(type) {
	case *wit.List:
		if _, isByte := k.Type.(wit.U8); isByte && v.Kind() == codec.KindBytes {
			return ""
		}
		if v.Kind() != codec.KindSeq {
			return fmt.Sprintf("expected list, got %s", describe(v))
		}
		for i, item := range v.Items() {
			if d := fits(item, k.Type); d != "" {
				return fmt.Sprintf("[%d]: %s", i, d)
			}
		}
		return ""
	case *wit.Option:
		if v.IsNil() {
			return ""
		}
		return fits(v, k.Type)
	case *wit.Tuple:
		if v.Kind() != codec.KindSeq || v.Len() != len(k.Types) {
			return fmt.Sprintf("expected tuple of %d, got %s", len(k.Types), describe(v))
		}
		for i, item := range v.Items() {
			if d := fits(item, k.Types[i]); d != "" {
				return fmt.Sprintf("[%d]: %s", i, d)
			}
		}
		return ""
	case *wit.Record:
		if v.Kind() != codec.KindMap {
			return fmt.Sprintf("expected record, got %s", describe(v))
		}
		for _, f := range k.Fields {
			fv, ok := v.Get(f.Name)
			if !ok {
				if isOptional(f.Type) {
					continue
				}
				return fmt.Sprintf("missing field %q", f.Name)
			}
			if d := fits(fv, f.Type); d != "" {
				return fmt.Sprintf("%s: %s", f.Name, d)
			}
		}
		return ""
	case *wit.Result:
		return fitsCase(v, "result", func(name string) (wit.Type, bool) {
			switch name {
			case "ok":
				return k.OK, true
			case "err":
				return k.Err, true
			}
			return nil, false
		})
	case *wit.Variant:
		return fitsCase(v, "variant", func(name string) (wit.Type, bool) {
			for _, c := range k.Cases {
				if c.Name == name {
					return c.Type, true
				}
			}
			return nil, false
		})
	case *wit.Enum:
		if v.Kind() == codec.KindString {
			for _, c := range k.Cases {
				if c.Name == v.Str() {
					return ""
				}
			}
		}
		return fmt.Sprintf("expected enum case, got %s", describe(v))
	case *wit.Flags:
		if v.Kind() != codec.KindSeq {
			return fmt.Sprintf("expected flags, got %s", describe(v))
		}
		known := make(map[string]bool, len(k.Flags))
		for _, f := range k.Flags {
			known[f.Name] = true
		}
		for _, item := range v.Items() {
			if item.Kind() != codec.KindString || !known[item.Str()] {
				return fmt.Sprintf("unknown flag %s", describe(item))
			}
		}
		return ""
	case wit.Type:
		return fits(v, k)
	}
	return fmt.Sprintf("unsupported WIT type %T", td.Kind)
}

// fitsCase checks an externally tagged case: a bare case name, or a map
// with a single case key holding the payload.
func fitsCase(v codec.Value, what string, lookup func(string) (wit.Type, bool)) string {
	switch v.Kind() {
	case codec.KindString:
		if t, ok := lookup(v.Str()); ok && t == nil {
			return ""
		}
	case codec.KindMap:
		if v.Len() == 1 {
			name := v.Keys()[0]
			if t, ok := lookup(name); ok {
				payload, _ := v.Get(name)
				if d := fits(payload, t); d != "" {
					return fmt.Sprintf("%s: %s", name, d)
				}
				return ""
			}
		}
	}
	return fmt.Sprintf("expected %s case, got %s", what, describe(v))
}

func expectKind(v codec.Value, name string, kinds ...codec.Kind) string {
	for _, k := range kinds {
		if v.Kind() == k {
			return ""
		}
	}
	return fmt.Sprintf("expected %s, got %s", name, describe(v))
}

func fitsUnsigned(v codec.Value, name string, limit uint64) string {
	if u, ok := v.Uint(); ok && u <= limit {
		return ""
	}
	return fmt.Sprintf("expected %s, got %s", name, describe(v))
}

func fitsSigned(v codec.Value, name string, lo, hi int64) string {
	if i, ok := v.Int(); ok && i >= lo && i <= hi {
		return ""
	}
	return fmt.Sprintf("expected %s, got %s", name, describe(v))
}

func describe(v codec.Value) string {
	switch v.Kind() {
	case codec.KindSeq, codec.KindMap, codec.KindBytes:
		return v.Kind().String()
	}
	return fmt.Sprintf("%s %s", v.Kind(), v)
}
