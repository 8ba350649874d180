package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // value to B/J/R
	PhaseDecode    Phase = "decode"    // B/J/R to value
	PhasePacket    Phase = "packet"    // envelope access and conversion
	PhaseParse     Phase = "parse"     // port map constructors, signatures
	PhasePort      Phase = "port"      // channel and stream I/O
	PhaseComponent Phase = "component" // component boundary
	PhaseBridge    Phase = "bridge"    // host-call ABI
	PhaseHost      Phase = "host"      // wasm host side
	PhaseLoad      Phase = "load"      // module loading
)

// Kind categorizes the error
type Kind string

const (
	KindCodecEncode       Kind = "codec_encode"
	KindCodecDecode       Kind = "codec_decode"
	KindInvalid           Kind = "invalid"
	KindException         Kind = "exception"
	KindError             Kind = "error"
	KindSignal            Kind = "signal"
	KindParse             Kind = "parse"
	KindChannelClosed     Kind = "channel_closed"
	KindHostError         Kind = "host_error"
	KindAsyncAbort        Kind = "async_abort"
	KindDispatcherMissing Kind = "dispatcher_missing"
	KindMissingInput      Kind = "missing_input"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindTypeMismatch      Kind = "type_mismatch"
	KindEndOfOutput       Kind = "end_of_output"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the SDK
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Port    string
	GoType  string
	WitType string
	Format  string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Port != "" {
		b.WriteString(" on port ")
		b.WriteString(e.Port)
	}

	var types []string
	if e.GoType != "" {
		types = append(types, "Go type "+e.GoType)
	}
	if e.WitType != "" {
		types = append(types, "WIT type "+e.WitType)
	}
	if e.Format != "" {
		types = append(types, "format "+e.Format)
	}
	if len(types) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(types, ", "))
	}

	if e.Detail != "" {
		if len(types) > 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase on the target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Port sets the port the error relates to
func (b *Builder) Port(name string) *Builder {
	b.err.Port = name
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Format sets the codec format name
func (b *Builder) Format(f string) *Builder {
	b.err.Format = f
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether any *Error in err's chain has the given kind.
func HasKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Convenience constructors for common error patterns

// CodecEncode creates a serialization error
func CodecEncode(format, goType string, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindCodecEncode,
		Format: format,
		GoType: goType,
		Cause:  cause,
	}
}

// CodecDecode creates a deserialization error
func CodecDecode(format, goType string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindCodecDecode,
		Format: format,
		GoType: goType,
		Cause:  cause,
	}
}

// Invalid creates the error produced when deserializing an Invalid payload
func Invalid() *Error {
	return &Error{
		Phase:  PhasePacket,
		Kind:   KindInvalid,
		Detail: "payload was invalid",
	}
}

// Exception creates the error produced when deserializing an Exception payload
func Exception(msg string) *Error {
	return &Error{
		Phase:  PhasePacket,
		Kind:   KindException,
		Detail: msg,
	}
}

// ComponentError creates the error produced when deserializing an Error payload
func ComponentError(msg string) *Error {
	return &Error{
		Phase:  PhasePacket,
		Kind:   KindError,
		Detail: msg,
	}
}

// Signal creates the error produced when deserializing a Signal
func Signal(name string) *Error {
	return &Error{
		Phase:  PhasePacket,
		Kind:   KindSignal,
		Detail: fmt.Sprintf("%s is an internal signal and cannot be deserialized", name),
	}
}

// ParseFailed creates a parsing error naming the offending input
func ParseFailed(what, input string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindParse,
		Detail: fmt.Sprintf("invalid %s: %q", what, input),
		Value:  input,
		Cause:  cause,
	}
}

// ChannelClosed creates a send-on-closed-channel error
func ChannelClosed(port string) *Error {
	return &Error{
		Phase:  PhasePort,
		Kind:   KindChannelClosed,
		Port:   port,
		Detail: "channel closed",
	}
}

// HostError creates an error carrying the host's error message verbatim
func HostError(msg string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindHostError,
		Detail: msg,
	}
}

// AsyncAbort creates an async runtime failure
func AsyncAbort(detail string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindAsyncAbort,
		Detail: detail,
	}
}

// DispatcherMissing is returned when an inbound call arrives before registration
func DispatcherMissing() *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindDispatcherMissing,
		Detail: "dispatcher not set",
	}
}

// MissingInput creates a missing port error
func MissingInput(port string) *Error {
	return &Error{
		Phase:  PhaseComponent,
		Kind:   KindMissingInput,
		Port:   port,
		Detail: fmt.Sprintf("missing input for port %q", port),
	}
}

// WitTypeMismatch reports a value on port that does not fit its declared
// WIT type.
func WitTypeMismatch(phase Phase, port, witType, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Port:    port,
		WitType: witType,
		Detail:  detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// EndOfOutput is returned by output iterators once a port is exhausted
func EndOfOutput(port string) *Error {
	return &Error{
		Phase:  PhasePort,
		Kind:   KindEndOfOutput,
		Port:   port,
		Detail: "no more packets",
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
