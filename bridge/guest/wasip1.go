//go:build wasip1

package guest

import "unsafe"

//go:wasmimport wapc __host_call
func wapcHostCall(id uint32, bindPtr unsafe.Pointer, bindLen uint32, nsPtr unsafe.Pointer, nsLen uint32, opPtr unsafe.Pointer, opLen uint32, msgPtr unsafe.Pointer, msgLen uint32) int32

//go:wasmimport wapc __async_host_call
func wapcAsyncHostCall(id uint32, bindPtr unsafe.Pointer, bindLen uint32, nsPtr unsafe.Pointer, nsLen uint32, opPtr unsafe.Pointer, opLen uint32, msgPtr unsafe.Pointer, msgLen uint32) int32

//go:wasmimport wapc __host_response_len
func wapcHostResponseLen(id uint32) uint32

//go:wasmimport wapc __host_response
func wapcHostResponse(id uint32, ptr unsafe.Pointer)

//go:wasmimport wapc __host_error_len
func wapcHostErrorLen(id uint32) uint32

//go:wasmimport wapc __host_error
func wapcHostError(id uint32, ptr unsafe.Pointer)

//go:wasmimport wapc __console_log
func wapcConsoleLog(ptr unsafe.Pointer, n uint32)

//go:wasmimport wapc __guest_request
func wapcGuestRequest(opPtr unsafe.Pointer, payloadPtr unsafe.Pointer)

//go:wasmimport wapc __guest_response
func wapcGuestResponse(ptr unsafe.Pointer, n uint32)

//go:wasmimport wapc __guest_error
func wapcGuestError(ptr unsafe.Pointer, n uint32)

func strPtr(s string) (unsafe.Pointer, uint32) {
	return unsafe.Pointer(unsafe.StringData(s)), uint32(len(s))
}

func bytesPtr(b []byte) (unsafe.Pointer, uint32) {
	return unsafe.Pointer(unsafe.SliceData(b)), uint32(len(b))
}

// wasmImports calls the real "wapc" host module.
type wasmImports struct{}

func (wasmImports) HostCall(id uint32, binding, namespace, operation string, payload []byte) int32 {
	bp, bl := strPtr(binding)
	np, nl := strPtr(namespace)
	op, ol := strPtr(operation)
	mp, ml := bytesPtr(payload)
	return wapcHostCall(id, bp, bl, np, nl, op, ol, mp, ml)
}

func (wasmImports) AsyncHostCall(id uint32, binding, namespace, operation string, payload []byte) int32 {
	bp, bl := strPtr(binding)
	np, nl := strPtr(namespace)
	op, ol := strPtr(operation)
	mp, ml := bytesPtr(payload)
	return wapcAsyncHostCall(id, bp, bl, np, nl, op, ol, mp, ml)
}

func (wasmImports) HostResponseLen(id uint32) uint32 { return wapcHostResponseLen(id) }
func (wasmImports) HostResponse(id uint32, buf []byte) {
	wapcHostResponse(id, unsafe.Pointer(unsafe.SliceData(buf)))
}
func (wasmImports) HostErrorLen(id uint32) uint32 { return wapcHostErrorLen(id) }
func (wasmImports) HostError(id uint32, buf []byte) {
	wapcHostError(id, unsafe.Pointer(unsafe.SliceData(buf)))
}

func (wasmImports) ConsoleLog(msg string) {
	p, n := strPtr(msg)
	wapcConsoleLog(p, n)
}

func (wasmImports) GuestRequest(op, payload []byte) {
	wapcGuestRequest(unsafe.Pointer(unsafe.SliceData(op)), unsafe.Pointer(unsafe.SliceData(payload)))
}

func (wasmImports) GuestResponse(data []byte) {
	p, n := bytesPtr(data)
	wapcGuestResponse(p, n)
}

func (wasmImports) GuestError(msg string) {
	p, n := strPtr(msg)
	wapcGuestError(p, n)
}

func init() {
	defaultRuntime.SetImports(wasmImports{})
}

//go:wasmexport __guest_call
func guestCall(opLen, payloadLen uint32) int32 {
	return defaultRuntime.Serve(wasmImports{}, opLen, payloadLen)
}

//go:wasmexport __async_host_call_response
func asyncHostCallResponse(id uint32, code int32) {
	defaultRuntime.Complete(id, code)
	defaultRuntime.ExhaustTasks()
}
