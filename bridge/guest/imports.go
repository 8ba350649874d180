package guest

// Imports are the host functions a guest links against. Under wasip1 they
// are the "wapc" module imports; native builds install an implementation
// with SetImports, usually an in-memory host for tests.
type Imports interface {
	HostCall(id uint32, binding, namespace, operation string, payload []byte) int32
	AsyncHostCall(id uint32, binding, namespace, operation string, payload []byte) int32
	HostResponseLen(id uint32) uint32
	HostResponse(id uint32, buf []byte)
	HostErrorLen(id uint32) uint32
	HostError(id uint32, buf []byte)
	ConsoleLog(msg string)
}

// GuestIO is the inbound half of the ABI: fetching the request of the
// current guest call and publishing its result.
type GuestIO interface {
	GuestRequest(op, payload []byte)
	GuestResponse(data []byte)
	GuestError(msg string)
}

var defaultRuntime = NewRuntime(nil)

// Default returns the process-wide runtime used by the package functions.
func Default() *Runtime {
	return defaultRuntime
}

// SetImports installs the host functions of the default runtime.
func SetImports(imp Imports) {
	defaultRuntime.SetImports(imp)
}
