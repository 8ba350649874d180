// Package portflow runs dataflow components that talk in packets over
// named ports, either natively in Go or as WebAssembly guests behind a
// waPC-style host-call bridge.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	portflow/
//	├── errors/          Structured error types (phase, kind, details)
//	├── codec/           Payload codecs: CBOR (B), JSON text (J) and raw values (R)
//	├── packet/          Packet envelope, Wrapper and the named port Map
//	├── port/            Port channels, senders and merged output streams
//	├── boundary/        WIT signatures, input checks and the component registry
//	├── bridge/          Host-call ABI constants, frames and link payloads
//	│   └── guest/       Guest runtime: futures, port senders, dispatcher
//	├── host/            wazero host: loads guests and serves their host calls
//	└── cmd/flowrun/     CLI for invoking a guest operation
//
// # Quick Start
//
// Register a native component and invoke it:
//
//	reg := boundary.NewRegistry()
//	err := reg.RegisterFunc("greet: func(name: string) -> (out: string)",
//		func(ctx context.Context, in *packet.Map, out *boundary.Outputs) error {
//			name, err := boundary.Input[string](in, "name")
//			if err != nil {
//				return err
//			}
//			return out.Done("out", "hello "+name)
//		})
//
//	inputs, _ := packet.MapFrom(map[string]any{"name": "ada"})
//	s, err := reg.Dispatch(ctx, "greet", inputs)
//	defer s.Close()
//	all, err := s.Collect(ctx)
//
// Run the same operation from a wasm guest:
//
//	h, err := host.New(ctx, host.DefaultConfig())
//	defer h.Close(ctx)
//	mod, err := h.LoadFile(ctx, "greeter.wasm")
//	inst, err := h.Instantiate(ctx, mod)
//	s, err := inst.Invoke(ctx, "greet", inputs)
//
// # Packets
//
// Every value crossing a port is a [packet.Packet]: a success payload in one
// of the codecs, an error or exception message, or a signal such as Done.
// A port is closed by Done; nothing may follow it on that port.
//
// # Error Handling
//
// Errors carry a phase and a kind, so callers branch with errors.HasKind:
//
//	if errors.HasKind(err, errors.KindNotFound) {
//		// unknown operation or binding
//	}
package portflow
