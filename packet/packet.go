package packet

import (
	"fmt"
	"sync/atomic"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
)

// Version is the envelope layout a packet was created with or decoded from.
type Version uint8

const (
	V0 Version = 0
	V1 Version = 1

	// Current is the version new packets are created with.
	Current = V1
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// Category partitions packet variants.
type Category uint8

const (
	CategorySuccess Category = iota
	CategoryFailure
	CategorySignal
)

func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryFailure:
		return "failure"
	case CategorySignal:
		return "signal"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// FailureKind distinguishes failure variants.
type FailureKind uint8

const (
	FailureInvalid   FailureKind = iota // no payload
	FailureException                    // per-port short-circuit
	FailureError                        // component-wide short-circuit
)

func (k FailureKind) String() string {
	switch k {
	case FailureInvalid:
		return "Invalid"
	case FailureException:
		return "Exception"
	case FailureError:
		return "Error"
	}
	return fmt.Sprintf("failure(%d)", uint8(k))
}

// SignalKind distinguishes signal variants.
type SignalKind uint8

const (
	SignalDone SignalKind = iota
	SignalOpenBracket
	SignalCloseBracket
	SignalStatus
)

func (k SignalKind) String() string {
	switch k {
	case SignalDone:
		return "Done"
	case SignalOpenBracket:
		return "OpenBracket"
	case SignalCloseBracket:
		return "CloseBracket"
	case SignalStatus:
		return "Status"
	}
	return fmt.Sprintf("signal(%d)", uint8(k))
}

// Packet is the message envelope carried on a port. It is a value type;
// copies share byte and tree storage, which is never mutated in place.
type Packet struct {
	value    codec.Value // R payload or Status value
	text     string      // J payload or failure message
	data     []byte      // B payload
	version  Version
	category Category
	format   codec.Format
	failure  FailureKind
	signal   SignalKind
}

var preferred atomic.Uint32

func init() {
	preferred.Store(uint32(codec.FormatValue))
}

// SetPreferredFormat selects the encoding Success uses.
func SetPreferredFormat(f codec.Format) {
	preferred.Store(uint32(f))
}

// PreferredFormat returns the encoding Success uses.
func PreferredFormat() codec.Format {
	return codec.Format(preferred.Load())
}

// Success wraps v with the preferred encoding. A value that cannot be
// encoded yields a Failure::Error packet describing why.
func Success(v any) Packet {
	var (
		p   Packet
		err error
	)
	switch PreferredFormat() {
	case codec.FormatBinary:
		return Binary(v)
	case codec.FormatJSON:
		p, err = JSON(v)
	default:
		var val codec.Value
		val, err = codec.ToValue(v)
		p = FromValue(val)
	}
	if err != nil {
		return Error(err.Error())
	}
	return p
}

// Binary wraps v encoded as B. Encoding failures yield Failure::Error.
func Binary(v any) Packet {
	data, err := codec.EncodeBinary(v)
	if err != nil {
		return Error(err.Error())
	}
	return FromBytes(data)
}

// JSON wraps v encoded as J.
func JSON(v any) (Packet, error) {
	text, err := codec.EncodeJSON(v)
	if err != nil {
		return Packet{}, err
	}
	return FromJSONText(text), nil
}

// FromBytes wraps already encoded B data.
func FromBytes(data []byte) Packet {
	return Packet{version: Current, category: CategorySuccess, format: codec.FormatBinary, data: data}
}

// FromJSONText wraps already encoded J text.
func FromJSONText(text string) Packet {
	return Packet{version: Current, category: CategorySuccess, format: codec.FormatJSON, text: text}
}

// FromValue wraps an R tree.
func FromValue(v codec.Value) Packet {
	return Packet{version: Current, category: CategorySuccess, format: codec.FormatValue, value: v}
}

// Invalid returns a Failure::Invalid packet.
func Invalid() Packet {
	return Packet{version: Current, category: CategoryFailure, failure: FailureInvalid}
}

// Exception returns a recoverable Failure carrying msg.
func Exception(msg string) Packet {
	return Packet{version: Current, category: CategoryFailure, failure: FailureException, text: msg}
}

// Error returns a terminal Failure carrying msg.
func Error(msg string) Packet {
	return Packet{version: Current, category: CategoryFailure, failure: FailureError, text: msg}
}

// Done returns the signal that closes a port.
func Done() Packet {
	return Packet{version: Current, category: CategorySignal, signal: SignalDone}
}

// OpenBracket returns the signal that opens a substream.
func OpenBracket() Packet {
	return Packet{version: Current, category: CategorySignal, signal: SignalOpenBracket}
}

// CloseBracket returns the signal that closes a substream.
func CloseBracket() Packet {
	return Packet{version: Current, category: CategorySignal, signal: SignalCloseBracket}
}

// Status builds a terminal status signal. A value that cannot be encoded
// yields a Failure::Error packet.
func Status(v any) Packet {
	val, err := codec.ToValue(v)
	if err != nil {
		return Error(err.Error())
	}
	return Packet{version: Current, category: CategorySignal, signal: SignalStatus, value: val}
}

func (p Packet) Version() Version { return p.version }
func (p Packet) Category() Category { return p.category }
func (p Packet) IsOK() bool { return p.category == CategorySuccess }
func (p Packet) IsErr() bool { return p.category == CategoryFailure }
func (p Packet) IsSignal() bool { return p.category == CategorySignal }
func (p Packet) IsDone() bool { return p.IsSignalKind(SignalDone) }
func (p Packet) IsSignalKind(k SignalKind) bool { return p.category == CategorySignal && p.signal == k }

// IsTerminal reports whether nothing more is expected after p: a Done
// signal or a component-wide Error.
func (p Packet) IsTerminal() bool {
	return p.IsDone() || (p.category == CategoryFailure && p.failure == FailureError)
}

// Format returns the success encoding. ok is false for non-success packets.
func (p Packet) Format() (codec.Format, bool) {
	return p.format, p.category == CategorySuccess
}

// FailureKind returns the failure variant. ok is false for non-failures.
func (p Packet) FailureKind() (FailureKind, bool) {
	return p.failure, p.category == CategoryFailure
}

// SignalKind returns the signal variant. ok is false for non-signals.
func (p Packet) SignalKind() (SignalKind, bool) {
	return p.signal, p.category == CategorySignal
}

// Message returns the message of an Exception or Error.
func (p Packet) Message() string {
	if p.category == CategoryFailure {
		return p.text
	}
	return ""
}

// StatusValue returns the value of a Status signal.
func (p Packet) StatusValue() (codec.Value, bool) {
	if p.IsSignalKind(SignalStatus) {
		return p.value, true
	}
	return codec.Value{}, false
}

// Bytes returns the raw B payload without conversion.
func (p Packet) Bytes() ([]byte, bool) {
	if p.category == CategorySuccess && p.format == codec.FormatBinary {
		return p.data, true
	}
	return nil, false
}

// Text returns the raw J payload without conversion.
func (p Packet) Text() (string, bool) {
	if p.category == CategorySuccess && p.format == codec.FormatJSON {
		return p.text, true
	}
	return "", false
}

// Value returns the R payload without conversion.
func (p Packet) Value() (codec.Value, bool) {
	if p.category == CategorySuccess && p.format == codec.FormatValue {
		return p.value, true
	}
	return codec.Value{}, false
}

// ToBinary normalizes a Success(R|J) packet to Success(B) in place.
// Failures and signals are left unchanged. On error p is not modified.
func (p *Packet) ToBinary() error {
	if p.category != CategorySuccess {
		return nil
	}
	switch p.format {
	case codec.FormatValue:
		data, err := codec.EncodeBinary(p.value)
		if err != nil {
			return err
		}
		*p = Packet{version: p.version, category: CategorySuccess, format: codec.FormatBinary, data: data}
	case codec.FormatJSON:
		data, err := codec.JSONToBinary(p.text)
		if err != nil {
			return err
		}
		*p = Packet{version: p.version, category: CategorySuccess, format: codec.FormatBinary, data: data}
	}
	return nil
}

// BinaryPayload returns the payload as B bytes, re-encoding R and J.
// Failures and signals are runtime-only and are refused.
func (p Packet) BinaryPayload() ([]byte, error) {
	switch p.category {
	case CategoryFailure:
		return nil, errors.New(errors.PhaseEncode, errors.KindCodecEncode).
			Format(codec.FormatBinary.String()).
			Detail("refusing to serialize %s failure, it must be handled by the runtime", p.failure).
			Build()
	case CategorySignal:
		return nil, errors.New(errors.PhaseEncode, errors.KindCodecEncode).
			Format(codec.FormatBinary.String()).
			Detail("refusing to serialize %s signal, it must be handled by the runtime", p.signal).
			Build()
	}
	q := p
	if err := q.ToBinary(); err != nil {
		return nil, err
	}
	return q.data, nil
}

// Decode deserializes the payload into target, a non-nil pointer.
func (p Packet) Decode(target any) error {
	switch p.category {
	case CategorySuccess:
		switch p.format {
		case codec.FormatBinary:
			return codec.DecodeBinary(p.data, target)
		case codec.FormatJSON:
			return codec.DecodeJSON(p.text, target)
		default:
			return codec.FromValue(p.value, target)
		}
	case CategoryFailure:
		switch p.failure {
		case FailureInvalid:
			return errors.Invalid()
		case FailureException:
			return errors.Exception(p.text)
		default:
			return errors.ComponentError(p.text)
		}
	}
	return errors.Signal(p.signal.String())
}

// Deserialize decodes a packet's payload as T.
func Deserialize[T any](p Packet) (T, error) {
	var out T
	err := p.Decode(&out)
	return out, err
}

// Convert returns p expressed in the given envelope version. Converting to
// V1 always succeeds; V0 has no Status signal.
func (p Packet) Convert(to Version) (Packet, error) {
	switch to {
	case V1:
		p.version = V1
		return p, nil
	case V0:
		if p.IsSignalKind(SignalStatus) {
			return Packet{}, errors.Unsupported(errors.PhasePacket, "Status signal has no v0 representation")
		}
		p.version = V0
		return p, nil
	}
	return Packet{}, errors.Unsupported(errors.PhasePacket, fmt.Sprintf("unknown packet version %d", to))
}

// Equal reports whether two packets carry the same variant and payload.
// The version tag is ignored; payloads are compared in their own encoding.
func (p Packet) Equal(o Packet) bool {
	if p.category != o.category {
		return false
	}
	switch p.category {
	case CategorySuccess:
		if p.format != o.format {
			return false
		}
		switch p.format {
		case codec.FormatBinary:
			return string(p.data) == string(o.data)
		case codec.FormatJSON:
			return p.text == o.text
		default:
			return p.value.Equal(o.value)
		}
	case CategoryFailure:
		return p.failure == o.failure && p.text == o.text
	default:
		return p.signal == o.signal && p.value.Equal(o.value)
	}
}

func (p Packet) String() string {
	switch p.category {
	case CategorySuccess:
		switch p.format {
		case codec.FormatBinary:
			return "Success(B " + codec.DiagnoseBinary(p.data) + ")"
		case codec.FormatJSON:
			return "Success(J " + p.text + ")"
		default:
			return "Success(R " + p.value.String() + ")"
		}
	case CategoryFailure:
		if p.failure == FailureInvalid {
			return "Invalid"
		}
		return fmt.Sprintf("%s(%q)", p.failure, p.text)
	default:
		if p.signal == SignalStatus {
			return "Status(" + p.value.String() + ")"
		}
		return p.signal.String()
	}
}
