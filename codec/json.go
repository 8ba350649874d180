package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/wippyai/portflow/errors"
)

// EncodeJSON encodes v as JSON text.
func EncodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.CodecEncode(FormatJSON.String(), typeName(v), err)
	}
	return string(data), nil
}

// DecodeJSON decodes JSON text into v, which must be a non-nil pointer.
func DecodeJSON(text string, v any) error {
	if val, ok := v.(*Value); ok {
		parsed, err := ParseJSONValue(text)
		if err != nil {
			return err
		}
		*val = parsed
		return nil
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errors.CodecDecode(FormatJSON.String(), typeName(v), err)
	}
	return nil
}

// ParseJSONValue parses JSON text into a Value. Integral numbers become
// Int or Uint, everything else Float.
func ParseJSONValue(text string) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, errors.CodecDecode(FormatJSON.String(), "codec.Value", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New(errors.PhaseDecode, errors.KindCodecDecode).
			Format(FormatJSON.String()).
			Detail("trailing data after JSON value").
			Build()
	}

	v, err := fromAny(raw)
	if err != nil {
		return Value{}, errors.CodecDecode(FormatJSON.String(), "codec.Value", err)
	}
	return v, nil
}

// JSONToBinary re-encodes JSON text as B by way of a Value tree.
func JSONToBinary(text string) ([]byte, error) {
	v, err := ParseJSONValue(text)
	if err != nil {
		return nil, err
	}
	return EncodeBinary(v)
}
