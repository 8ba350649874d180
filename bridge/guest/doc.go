// Package guest is the component side of the host-call bridge.
//
// A guest built for wasip1 links the "wapc" host module and exports
// __guest_call and __async_host_call_response:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o component.wasm
//
// The guest registers a [Dispatcher], usually a [ComponentDispatcher] over
// a boundary.Registry, and the host drives it:
//
//  1. __guest_call hands over an operation and an encoded
//     bridge.IncomingPayload; the dispatcher runs the component, which
//     sends its outputs back with [Runtime.PortSend] and friends.
//  2. Async host calls return a [Future]. The host later delivers each
//     completion through __async_host_call_response, which resolves the
//     future and runs its continuations.
//
// Native builds have no host module; tests install an in-memory one with
// [SetImports] or [NewRuntime].
package guest
