// Package boundary is the contract between the runtime and a component.
//
// A component receives its inputs as one [packet.Map] batch and streams its
// results through [Outputs]. Ports are declared by a [Signature] written in
// WIT function syntax:
//
//	greet: func(name: string, times: u32) -> (out: string, log: list<string>)
//
// [Invoke] checks the inputs against the signature, runs the component and
// returns a [port.Stream] with one port per declared output plus the
// reserved ports:
//
//	<error>   one Failure::Error when the component fails before emitting
//	<status>  one Signal::Status from a [StatusReporter]
//
// After the component returns, Done is synthesized for every port that
// emitted packets without closing. A [Registry] dispatches by operation
// name.
package boundary
