package guest

import "github.com/wippyai/portflow/errors"

// Future is the pending result of an asynchronous host call. It resolves
// once; continuations registered with Then run from ExhaustTasks.
type Future struct {
	rt    *Runtime
	err   error
	thens []func([]byte, error)
	data  []byte
	id    uint32
	done  bool
}

// ID returns the call ID the host completes.
func (f *Future) ID() uint32 {
	return f.id
}

// Ready reports whether the call has completed.
func (f *Future) Ready() bool {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	return f.done
}

// Result returns the response bytes. It fails with async_abort when called
// before the future is ready.
func (f *Future) Result() ([]byte, error) {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if !f.done {
		return nil, errors.AsyncAbort("result read before completion")
	}
	return f.data, f.err
}

// Then schedules fn to run with the result. If the future is already
// resolved fn is queued immediately.
func (f *Future) Then(fn func(data []byte, err error)) {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.done {
		f.rt.enqueueLocked(func() { fn(f.data, f.err) })
		return
	}
	f.thens = append(f.thens, fn)
}

// resolveLocked stores the result and queues the continuations.
func (f *Future) resolveLocked(data []byte, err error) {
	if f.done {
		return
	}
	f.done, f.data, f.err = true, data, err
	for _, fn := range f.thens {
		f.rt.enqueueLocked(func() { fn(data, err) })
	}
	f.thens = nil
}
