package packet

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
)

// v1 document tags. A packet document is a single-key object whose key
// selects the category and whose value selects the variant.
const (
	tagSuccess = "0"
	tagFailure = "1"
	tagSignal  = "3"

	tagBinary = "0"
	tagValue  = "1"
	tagJSON   = "2"

	tagInvalid   = "0"
	tagException = "1"
	tagError     = "2"

	tagStatus = "Status"
)

// byteArray is B payload bytes inside a document. JSON renders it as an
// array of numbers; CBOR as a byte string.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(c)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (p Packet) document() any {
	switch p.category {
	case CategorySuccess:
		switch p.format {
		case codec.FormatBinary:
			return map[string]any{tagSuccess: map[string]any{tagBinary: byteArray(p.data)}}
		case codec.FormatJSON:
			return map[string]any{tagSuccess: map[string]any{tagJSON: p.text}}
		default:
			return map[string]any{tagSuccess: map[string]any{tagValue: p.value}}
		}
	case CategoryFailure:
		switch p.failure {
		case FailureInvalid:
			return map[string]any{tagFailure: tagInvalid}
		case FailureException:
			return map[string]any{tagFailure: map[string]any{tagException: p.text}}
		default:
			return map[string]any{tagFailure: map[string]any{tagError: p.text}}
		}
	default:
		if p.signal == SignalStatus {
			return map[string]any{tagSignal: map[string]any{tagStatus: p.value}}
		}
		return map[string]any{tagSignal: p.signal.String()}
	}
}

func fromDocument(doc any) (Packet, error) {
	key, inner, err := variant(doc)
	if err != nil {
		return Packet{}, err
	}

	switch key {
	case tagSuccess:
		enc, payload, err := variant(inner)
		if err != nil {
			return Packet{}, err
		}
		switch enc {
		case tagBinary:
			data, err := bytesFrom(payload)
			if err != nil {
				return Packet{}, err
			}
			return FromBytes(data), nil
		case tagValue:
			val, err := codec.ToValue(payload)
			if err != nil {
				return Packet{}, err
			}
			return FromValue(val), nil
		case tagJSON:
			text, ok := payload.(string)
			if !ok {
				return Packet{}, docError("JSON payload must be a string, got %T", payload)
			}
			return FromJSONText(text), nil
		}
		return Packet{}, docError("unknown success encoding %q", enc)

	case tagFailure:
		kind, payload, err := variant(inner)
		if err != nil {
			return Packet{}, err
		}
		if kind == tagInvalid {
			return Invalid(), nil
		}
		msg, ok := payload.(string)
		if !ok {
			return Packet{}, docError("failure message must be a string, got %T", payload)
		}
		switch kind {
		case tagException:
			return Exception(msg), nil
		case tagError:
			return Error(msg), nil
		}
		return Packet{}, docError("unknown failure %q", kind)

	case tagSignal:
		kind, payload, err := variant(inner)
		if err != nil {
			return Packet{}, err
		}
		switch kind {
		case "Done":
			return Done(), nil
		case "OpenBracket":
			return OpenBracket(), nil
		case "CloseBracket":
			return CloseBracket(), nil
		case tagStatus:
			val, err := codec.ToValue(payload)
			if err != nil {
				return Packet{}, err
			}
			return Packet{version: Current, category: CategorySignal, signal: SignalStatus, value: val}, nil
		}
		return Packet{}, docError("unknown signal %q", kind)
	}
	return Packet{}, docError("unknown packet category %q", key)
}

// variant splits an externally tagged enum: a bare string is a unit
// variant, a single-key map is a variant with payload.
func variant(x any) (string, any, error) {
	switch v := x.(type) {
	case string:
		return v, nil, nil
	case map[string]any:
		if len(v) != 1 {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return "", nil, docError("expected exactly one variant key, got %v", keys)
		}
		for k, inner := range v {
			return k, inner, nil
		}
	case map[any]any:
		if len(v) == 1 {
			for k, inner := range v {
				if ks, ok := k.(string); ok {
					return ks, inner, nil
				}
			}
		}
	}
	return "", nil, docError("expected a variant, got %T", x)
}

func bytesFrom(x any) ([]byte, error) {
	switch v := x.(type) {
	case []byte:
		return v, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, docError("binary payload is not base64: %v", err)
		}
		return data, nil
	case []any:
		out := make([]byte, len(v))
		for i, e := range v {
			n, err := byteFrom(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return []byte{}, nil
	}
	return nil, docError("binary payload must be bytes, got %T", x)
}

func byteFrom(x any) (byte, error) {
	var n int64
	switch v := x.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, docError("byte %q is not an integer", v)
		}
		n = i
	case uint64:
		if v > 255 {
			return 0, docError("byte %d out of range", v)
		}
		n = int64(v)
	case int64:
		n = v
	case float64:
		n = int64(v)
		if float64(n) != v {
			return 0, docError("byte %v is not an integer", v)
		}
	default:
		return 0, docError("byte must be a number, got %T", x)
	}
	if n < 0 || n > 255 {
		return 0, docError("byte %d out of range", n)
	}
	return byte(n), nil
}

func docError(format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseDecode, errors.KindCodecDecode).
		Format("packet").
		Detail(format, args...).
		Build()
}

// MarshalJSON writes the current-version document form.
func (p Packet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.document())
}

// UnmarshalJSON reads the current-version document form.
func (p *Packet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errors.CodecDecode("packet", "packet.Packet", err)
	}
	parsed, err := fromDocument(doc)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Marshal encodes p for the bridge: a B map keyed by the version tag whose
// value is that version's document. R payloads are normalized to B.
func Marshal(p Packet) ([]byte, error) {
	if p.category == CategorySuccess && p.format == codec.FormatValue {
		if err := p.ToBinary(); err != nil {
			return nil, err
		}
	}

	var doc any
	switch p.version {
	case V0:
		d, err := v0Document(p)
		if err != nil {
			return nil, err
		}
		doc = d
	case V1:
		doc = p.document()
	default:
		return nil, errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("unknown packet version %d", p.version))
	}
	return codec.EncodeBinary(map[string]any{strconv.Itoa(int(p.version)): doc})
}

// Unmarshal decodes the bridge form written by Marshal. The result keeps
// the version it was written with.
func Unmarshal(data []byte) (Packet, error) {
	var raw any
	if err := codec.DecodeBinary(data, &raw); err != nil {
		return Packet{}, err
	}
	tag, doc, err := variant(raw)
	if err != nil {
		return Packet{}, err
	}
	switch tag {
	case "0":
		return fromV0Document(doc)
	case "1":
		return fromDocument(doc)
	}
	return Packet{}, docError("unknown packet version %q", tag)
}

// FromFrameBytes decodes bridge bytes, turning a decode failure into a
// Failure::Error packet.
func FromFrameBytes(data []byte) Packet {
	p, err := Unmarshal(data)
	if err != nil {
		return Error(fmt.Sprintf("could not decode packet: %v", err))
	}
	return p
}

// MarshalCBOR implements cbor.Marshaler using the bridge form.
func (p Packet) MarshalCBOR() ([]byte, error) {
	return Marshal(p)
}

// UnmarshalCBOR implements cbor.Unmarshaler using the bridge form.
func (p *Packet) UnmarshalCBOR(data []byte) error {
	parsed, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
