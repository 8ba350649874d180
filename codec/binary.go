package codec

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/portflow/errors"
)

// encMode writes Core Deterministic CBOR: sorted map keys, smallest
// integer encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Untyped maps decode as map[string]any.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawBinary is an already encoded B value.
type RawBinary = cbor.RawMessage

// EncodeBinary encodes v as B.
func EncodeBinary(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.CodecEncode(FormatBinary.String(), typeName(v), err)
	}
	return data, nil
}

// DecodeBinary decodes B data into v, which must be a non-nil pointer.
func DecodeBinary(data []byte, v any) error {
	if val, ok := v.(*Value); ok {
		return decodeBinaryValue(data, val)
	}
	if err := unmarshalBinary(data, v); err != nil {
		return errors.CodecDecode(FormatBinary.String(), typeName(v), err)
	}
	return nil
}

// unmarshalBinary decodes data into v. Text strings bound for byte slices
// are read as base64, which is how J carries bytes; such payloads keep the
// text form after J is normalized to B.
func unmarshalBinary(data []byte, v any) error {
	err := decMode.Unmarshal(data, v)
	if err == nil || !textIntoBytes(err) {
		return err
	}
	var raw any
	if decMode.Unmarshal(data, &raw) != nil {
		return err
	}
	text, jerr := json.Marshal(raw)
	if jerr != nil {
		return err
	}
	if jerr := json.Unmarshal(text, v); jerr != nil {
		return err
	}
	return nil
}

func textIntoBytes(err error) bool {
	var te *cbor.UnmarshalTypeError
	return stderrors.As(err, &te) &&
		te.CBORType == "UTF-8 text string" &&
		strings.Contains(te.GoType, "[]uint8")
}

// ValidBinary reports whether data is exactly one well-formed B item.
func ValidBinary(data []byte) error {
	if err := decMode.Wellformed(data); err != nil {
		return errors.CodecDecode(FormatBinary.String(), "", err)
	}
	return nil
}

// DiagnoseBinary renders B data in CBOR diagnostic notation.
func DiagnoseBinary(data []byte) string {
	s, err := cbor.Diagnose(data)
	if err != nil {
		return fmt.Sprintf("<%d bytes: %v>", len(data), err)
	}
	return s
}

func decodeBinaryValue(data []byte, val *Value) error {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return errors.CodecDecode(FormatBinary.String(), "codec.Value", err)
	}
	v, err := fromAny(raw)
	if err != nil {
		return errors.CodecDecode(FormatBinary.String(), "codec.Value", err)
	}
	*val = v
	return nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
