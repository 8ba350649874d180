package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
)

// instantiateBridge registers the host module guests import the bridge
// ABI from. Every function finds the running invocation through its
// context.
func (h *Host) instantiateBridge(ctx context.Context) error {
	i32 := api.ValueTypeI32
	call := []api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32, i32}
	ptrLen := []api.ValueType{i32, i32}
	status := []api.ValueType{i32}

	builder := h.runtime.NewHostModuleBuilder(h.cfg.HostModule)
	export := func(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, params, results).
			WithName(name).
			Export(name)
	}

	export(bridge.FuncHostCall, h.hostCall, call, status)
	export(bridge.FuncAsyncHostCall, h.asyncHostCall, call, status)
	export(bridge.FuncHostResponseLen, bufferLen(responseBuffer), status, status)
	export(bridge.FuncHostResponse, bufferCopy(responseBuffer), ptrLen, nil)
	export(bridge.FuncHostErrorLen, bufferLen(errorBuffer), status, status)
	export(bridge.FuncHostError, bufferCopy(errorBuffer), ptrLen, nil)
	export(bridge.FuncConsoleLog, consoleLog, ptrLen, nil)
	export(bridge.FuncGuestRequest, guestRequest, ptrLen, nil)
	export(bridge.FuncGuestResponse, guestResponse, ptrLen, nil)
	export(bridge.FuncGuestError, guestError, ptrLen, nil)

	_, err := builder.Instantiate(ctx)
	return err
}

// callArgs is a decoded __host_call or __async_host_call.
type callArgs struct {
	binding   string
	namespace string
	operation string
	payload   []byte
	id        uint32
}

func readCall(mod api.Module, stack []uint64) (callArgs, error) {
	args := callArgs{id: api.DecodeU32(stack[0])}
	fields := make([][]byte, 4)
	for i := range fields {
		b, err := read(mod, api.DecodeU32(stack[1+2*i]), api.DecodeU32(stack[2+2*i]))
		if err != nil {
			return args, err
		}
		fields[i] = b
	}
	args.binding = string(fields[0])
	args.namespace = string(fields[1])
	args.operation = string(fields[2])
	args.payload = fields[3]
	return args, nil
}

// read copies guest memory; the view wazero returns is only valid until
// the memory grows.
func read(mod api.Module, ptr, n uint32) ([]byte, error) {
	b, ok := mod.Memory().Read(ptr, n)
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Detail("guest memory range [%d, %d) out of bounds", ptr, uint64(ptr)+uint64(n)).
			Build()
	}
	return append([]byte(nil), b...), nil
}

func write(mod api.Module, ptr uint32, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	return mod.Memory().Write(ptr, data)
}

func (h *Host) hostCall(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	args, err := readCall(mod, stack)
	if inv == nil {
		Logger().Warn("host call outside an invocation", zap.Uint32("id", args.id))
		stack[0] = api.EncodeI32(bridge.HostCallFailed)
		return
	}
	if err == nil {
		var data []byte
		data, err = inv.call(ctx, args)
		if err == nil {
			inv.responses[args.id] = data
			stack[0] = api.EncodeI32(bridge.HostCallOK)
			return
		}
	}
	inv.log.Debug("host call failed",
		zap.Uint32("call", args.id),
		zap.String("binding", args.binding),
		zap.String("namespace", args.namespace),
		zap.String("operation", args.operation),
		zap.Error(err))
	inv.errs[args.id] = []byte(err.Error())
	stack[0] = api.EncodeI32(bridge.HostCallFailed)
}

func (h *Host) asyncHostCall(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	args, err := readCall(mod, stack)
	if inv == nil {
		Logger().Warn("async host call outside an invocation", zap.Uint32("id", args.id))
		stack[0] = api.EncodeI32(bridge.AsyncDispatchFailed)
		return
	}
	if err == nil {
		err = inv.dispatch(ctx, args)
	}
	if err != nil {
		inv.errs[args.id] = []byte(err.Error())
		stack[0] = api.EncodeI32(bridge.AsyncDispatchFailed)
		return
	}
	stack[0] = api.EncodeI32(bridge.AsyncDispatchOK)
}

type buffer int

const (
	responseBuffer buffer = iota
	errorBuffer
)

func (inv *invocation) buffer(kind buffer, id uint32) []byte {
	if kind == errorBuffer {
		return inv.errs[id]
	}
	return inv.responses[id]
}

func bufferLen(kind buffer) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		var n int
		if inv := invocationFrom(ctx); inv != nil {
			n = len(inv.buffer(kind, api.DecodeU32(stack[0])))
		}
		stack[0] = api.EncodeU32(uint32(n))
	}
}

func bufferCopy(kind buffer) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		inv := invocationFrom(ctx)
		if inv == nil {
			return
		}
		id, ptr := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
		if !write(mod, ptr, inv.buffer(kind, id)) {
			inv.log.Warn("host buffer write out of bounds", zap.Uint32("call", id), zap.Uint32("ptr", ptr))
		}
	}
}

func consoleLog(ctx context.Context, mod api.Module, stack []uint64) {
	msg, err := read(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if err != nil {
		Logger().Warn("console log", zap.Error(err))
		return
	}
	log := Logger()
	if inv := invocationFrom(ctx); inv != nil {
		log = inv.log
	}
	log.Debug("guest", zap.ByteString("msg", msg))
}

func guestRequest(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	if inv == nil {
		return
	}
	if !write(mod, api.DecodeU32(stack[0]), []byte(inv.op)) || !write(mod, api.DecodeU32(stack[1]), inv.request) {
		inv.log.Warn("guest request write out of bounds")
	}
}

func guestResponse(ctx context.Context, mod api.Module, stack []uint64) {
	if inv := invocationFrom(ctx); inv != nil {
		data, err := read(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
		if err != nil {
			inv.log.Warn("guest response", zap.Error(err))
			return
		}
		inv.reply = data
	}
}

func guestError(ctx context.Context, mod api.Module, stack []uint64) {
	if inv := invocationFrom(ctx); inv != nil {
		msg, err := read(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
		if err != nil {
			inv.log.Warn("guest error", zap.Error(err))
			return
		}
		inv.guestErr = string(msg)
	}
}
