package packet

import (
	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
)

// Legacy layout: one flat enum with numeric string tags. Unit variants are
// bare strings, the others single-key maps.
const (
	v0Invalid      = "0"
	v0Exception    = "1"
	v0Error        = "2"
	v0MessagePack  = "3"
	v0Success      = "4"
	v0JSON         = "5"
	v0Done         = "6"
	v0OpenBracket  = "7"
	v0CloseBracket = "8"
)

func v0Document(p Packet) (any, error) {
	switch p.category {
	case CategorySuccess:
		switch p.format {
		case codec.FormatBinary:
			return map[string]any{v0MessagePack: byteArray(p.data)}, nil
		case codec.FormatJSON:
			return map[string]any{v0JSON: p.text}, nil
		default:
			return map[string]any{v0Success: p.value}, nil
		}
	case CategoryFailure:
		switch p.failure {
		case FailureInvalid:
			return v0Invalid, nil
		case FailureException:
			return map[string]any{v0Exception: p.text}, nil
		default:
			return map[string]any{v0Error: p.text}, nil
		}
	default:
		switch p.signal {
		case SignalDone:
			return v0Done, nil
		case SignalOpenBracket:
			return v0OpenBracket, nil
		case SignalCloseBracket:
			return v0CloseBracket, nil
		}
	}
	return nil, errors.Unsupported(errors.PhaseEncode, p.signal.String()+" signal has no v0 representation")
}

func fromV0Document(doc any) (Packet, error) {
	tag, payload, err := variant(doc)
	if err != nil {
		return Packet{}, err
	}

	var p Packet
	switch tag {
	case v0Invalid:
		p = Invalid()
	case v0Exception, v0Error:
		msg, ok := payload.(string)
		if !ok {
			return Packet{}, docError("failure message must be a string, got %T", payload)
		}
		if tag == v0Exception {
			p = Exception(msg)
		} else {
			p = Error(msg)
		}
	case v0MessagePack:
		data, err := bytesFrom(payload)
		if err != nil {
			return Packet{}, err
		}
		p = FromBytes(data)
	case v0Success:
		val, err := codec.ToValue(payload)
		if err != nil {
			return Packet{}, err
		}
		p = FromValue(val)
	case v0JSON:
		text, ok := payload.(string)
		if !ok {
			return Packet{}, docError("JSON payload must be a string, got %T", payload)
		}
		p = FromJSONText(text)
	case v0Done:
		p = Done()
	case v0OpenBracket:
		p = OpenBracket()
	case v0CloseBracket:
		p = CloseBracket()
	default:
		return Packet{}, docError("unknown v0 payload tag %q", tag)
	}
	p.version = V0
	return p, nil
}
