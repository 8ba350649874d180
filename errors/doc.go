// Package errors provides the structured error type shared by every
// portflow package.
//
// An Error records the Phase it came from (codec, port, bridge, host...)
// and its Kind. Kinds are stable strings; the guest bridge and the packet
// envelope carry them across the wasm boundary, so a host can tell an
// exception from a closed channel without parsing messages.
//
//	err := errors.New(errors.PhaseDecode, errors.KindCodecDecode).
//		Port("total").
//		GoType("uint32").
//		Format("B").
//		Cause(cause).
//		Build()
//
//	if errors.HasKind(err, errors.KindChannelClosed) {
//		// the receiver went away
//	}
//
// Match on kind alone with errors.Is and a target whose Phase is empty.
package errors
