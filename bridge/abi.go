// Package bridge defines the host-call ABI shared by the host runtime and
// guest components: import and export names, status codes, output
// operations and the byte layouts that cross the sandbox edge.
//
// Every guest-to-host call names a binding, a namespace, an operation and
// a message. Binding "0" carries port output: the namespace is the port
// name, the operation is one of [OpOutput], [OpOutputDone] or [OpDone] and
// the message is a frame (see [EncodeFrame]). Binding "1" is a link call
// to another component.
package bridge

// HostModule is the import module name guests link against.
const HostModule = "wapc"

// Host functions imported by the guest.
const (
	FuncHostCall        = "__host_call"
	FuncAsyncHostCall   = "__async_host_call"
	FuncHostResponseLen = "__host_response_len"
	FuncHostResponse    = "__host_response"
	FuncHostErrorLen    = "__host_error_len"
	FuncHostError       = "__host_error"
	FuncConsoleLog      = "__console_log"
	FuncGuestRequest    = "__guest_request"
	FuncGuestResponse   = "__guest_response"
	FuncGuestError      = "__guest_error"
)

// Functions exported by the guest.
const (
	ExportGuestCall          = "__guest_call"
	ExportAsyncHostCallReply = "__async_host_call_response"
)

// Status codes. Synchronous host calls and asynchronous dispatches use
// different success values:
//
//	__host_call                 HostCallOK or HostCallFailed, which sets the error buffer
//	__async_host_call           AsyncDispatchOK or AsyncDispatchFailed, an immediate failure
//	__async_host_call_response  CompletionOK or CompletionFailed
//	__guest_call                GuestCallOK or GuestCallFailed
const (
	HostCallOK          int32 = 1
	HostCallFailed      int32 = 0
	AsyncDispatchOK     int32 = 0
	AsyncDispatchFailed int32 = 1
	CompletionOK        int32 = 0
	CompletionFailed    int32 = 1
	GuestCallOK         int32 = 1
	GuestCallFailed     int32 = 0
)

// Bindings.
const (
	BindingPort = "0"
	BindingLink = "1"
)

// Output operations on the port binding.
const (
	OpOutput     = "Output"
	OpOutputDone = "OutputDone"
	OpDone       = "Done"
)

// IsOutputOp reports whether op is a port binding operation.
func IsOutputOp(op string) bool {
	return op == OpOutput || op == OpOutputDone || op == OpDone
}
