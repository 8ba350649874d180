// Package host runs guest components on wazero and serves the bridge ABI.
//
// A [Host] owns a wazero runtime with WASI preview1 and the "wapc" host
// module. Guests are compiled once per distinct binary by [Host.Load],
// instantiated with [Host.Instantiate] and driven with [Instance.Invoke]:
//
//	h, err := host.New(ctx, host.DefaultConfig())
//	mod, err := h.LoadFile(ctx, "component.wasm")
//	inst, err := h.Instantiate(ctx, mod)
//	s, err := inst.Invoke(ctx, "greet", inputs)
//	wrappers, err := s.Collect(ctx)
//
// Port output frames sent on binding "0" become wrappers on the stream.
// Other bindings are served by a [Handler]; [LinkHandler] answers link
// calls from a native boundary.Registry.
package host
