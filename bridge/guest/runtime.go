package guest

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
)

// Dispatcher handles inbound guest calls.
type Dispatcher interface {
	Dispatch(rt *Runtime, op string, in *bridge.IncomingPayload) ([]byte, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(rt *Runtime, op string, in *bridge.IncomingPayload) ([]byte, error)

func (f DispatcherFunc) Dispatch(rt *Runtime, op string, in *bridge.IncomingPayload) ([]byte, error) {
	return f(rt, op, in)
}

// Runtime is the guest side of the bridge. It allocates call IDs, tracks
// in-flight async calls and runs their continuations. The guest is
// cooperative: continuations run only inside ExhaustTasks, and the host
// never cancels a call.
type Runtime struct {
	imports    Imports
	dispatcher Dispatcher
	notifiers  map[uint32]*Future
	queue      []func()
	mu         sync.Mutex
	nextID     uint32
}

func NewRuntime(imp Imports) *Runtime {
	return &Runtime{imports: imp, notifiers: make(map[uint32]*Future)}
}

func (rt *Runtime) SetImports(imp Imports) {
	rt.mu.Lock()
	rt.imports = imp
	rt.mu.Unlock()
}

// allocID returns the next call ID. IDs wrap at 2^32.
func (rt *Runtime) allocID() (uint32, Imports) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextID
	rt.nextID++
	return id, rt.imports
}

// HostCall performs a synchronous host call and returns the response.
// A failed call returns a host_error carrying the host's message.
func (rt *Runtime) HostCall(binding, namespace, operation string, payload []byte) ([]byte, error) {
	id, imp := rt.allocID()
	if imp == nil {
		return nil, errors.HostError("no host imports installed")
	}
	if code := imp.HostCall(id, binding, namespace, operation, payload); code != bridge.HostCallOK {
		return nil, errors.HostError(string(hostError(imp, id)))
	}
	return hostResponse(imp, id), nil
}

// AsyncHostCall dispatches an asynchronous host call. The returned future
// resolves when the host completes id, or immediately when the dispatch
// itself was refused.
func (rt *Runtime) AsyncHostCall(binding, namespace, operation string, payload []byte) *Future {
	id, imp := rt.allocID()
	f := &Future{rt: rt, id: id}
	if imp == nil {
		rt.mu.Lock()
		f.resolveLocked(nil, errors.HostError("no host imports installed"))
		rt.mu.Unlock()
		return f
	}

	rt.mu.Lock()
	rt.notifiers[id] = f
	rt.mu.Unlock()

	if code := imp.AsyncHostCall(id, binding, namespace, operation, payload); code != bridge.AsyncDispatchOK {
		msg := hostError(imp, id)
		rt.mu.Lock()
		delete(rt.notifiers, id)
		f.resolveLocked(nil, errors.HostError(string(msg)))
		rt.mu.Unlock()
	}
	return f
}

// Complete resolves the async call id with the host's status. Unknown IDs
// are ignored.
func (rt *Runtime) Complete(id uint32, code int32) {
	rt.mu.Lock()
	f, ok := rt.notifiers[id]
	delete(rt.notifiers, id)
	imp := rt.imports
	rt.mu.Unlock()
	if !ok {
		Logger().Warn("completion for unknown call", zap.Uint32("id", id), zap.Int32("code", code))
		return
	}

	var data []byte
	var err error
	if code == bridge.CompletionOK {
		data = hostResponse(imp, id)
	} else {
		err = errors.AsyncAbort(string(hostError(imp, id)))
	}
	rt.mu.Lock()
	f.resolveLocked(data, err)
	rt.mu.Unlock()
}

func (rt *Runtime) enqueueLocked(fn func()) {
	rt.queue = append(rt.queue, fn)
}

// ExhaustTasks runs queued continuations until the queue is empty. It
// reports whether the guest is quiescent, that is no async call is still
// waiting for the host.
func (rt *Runtime) ExhaustTasks() bool {
	for {
		rt.mu.Lock()
		if len(rt.queue) == 0 {
			idle := len(rt.notifiers) == 0
			rt.mu.Unlock()
			return idle
		}
		fn := rt.queue[0]
		rt.queue = rt.queue[1:]
		rt.mu.Unlock()
		fn()
	}
}

// Pending returns the number of async calls awaiting completion.
func (rt *Runtime) Pending() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.notifiers)
}

// RegisterDispatcher installs d, replacing any previous dispatcher.
func (rt *Runtime) RegisterDispatcher(d Dispatcher) {
	rt.mu.Lock()
	rt.dispatcher = d
	rt.mu.Unlock()
}

// GetDispatcher returns the installed dispatcher.
func (rt *Runtime) GetDispatcher() (Dispatcher, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.dispatcher == nil {
		return nil, errors.DispatcherMissing()
	}
	return rt.dispatcher, nil
}

// HandleCall decodes an inbound payload and dispatches it. Continuations
// queued by the dispatcher run before it returns.
func (rt *Runtime) HandleCall(op string, payload []byte) ([]byte, error) {
	d, err := rt.GetDispatcher()
	if err != nil {
		return nil, err
	}
	in, err := bridge.DecodeIncomingPayload(payload)
	if err != nil {
		return nil, err
	}
	Logger().Debug("guest call", zap.String("op", op), zap.Uint32("id", in.ID))
	out, err := d.Dispatch(rt, op, in)
	rt.ExhaustTasks()
	return out, err
}

// ConsoleLog prints msg on the host.
func (rt *Runtime) ConsoleLog(msg string) {
	rt.mu.Lock()
	imp := rt.imports
	rt.mu.Unlock()
	if imp != nil {
		imp.ConsoleLog(msg)
	}
}

func hostResponse(imp Imports, id uint32) []byte {
	buf := make([]byte, imp.HostResponseLen(id))
	if len(buf) > 0 {
		imp.HostResponse(id, buf)
	}
	return buf
}

func hostError(imp Imports, id uint32) []byte {
	buf := make([]byte, imp.HostErrorLen(id))
	if len(buf) > 0 {
		imp.HostError(id, buf)
	}
	return buf
}

// Package functions operating on the default runtime.

func HostCall(binding, namespace, operation string, payload []byte) ([]byte, error) {
	return defaultRuntime.HostCall(binding, namespace, operation, payload)
}

func AsyncHostCall(binding, namespace, operation string, payload []byte) *Future {
	return defaultRuntime.AsyncHostCall(binding, namespace, operation, payload)
}

func ExhaustTasks() bool {
	return defaultRuntime.ExhaustTasks()
}

func RegisterDispatcher(d Dispatcher) {
	defaultRuntime.RegisterDispatcher(d)
}

func GetDispatcher() (Dispatcher, error) {
	return defaultRuntime.GetDispatcher()
}

func ConsoleLog(msg string) {
	defaultRuntime.ConsoleLog(msg)
}

// Serve runs one inbound guest call: it fetches the operation and payload
// through io, dispatches them and publishes the response or error. It
// returns the __guest_call status.
func (rt *Runtime) Serve(io GuestIO, opLen, payloadLen uint32) int32 {
	op := make([]byte, opLen)
	payload := make([]byte, payloadLen)
	io.GuestRequest(op, payload)

	out, err := rt.HandleCall(string(op), payload)
	if err != nil {
		io.GuestError(err.Error())
		return bridge.GuestCallFailed
	}
	io.GuestResponse(out)
	return bridge.GuestCallOK
}
