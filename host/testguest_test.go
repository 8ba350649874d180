package host

import (
	"testing"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/internal/wasmtest"
	"github.com/wippyai/portflow/packet"
)

var (
	i32x1 = []wasmtest.ValType{wasmtest.I32}
	i32x2 = []wasmtest.ValType{wasmtest.I32, wasmtest.I32}
	i32x9 = []wasmtest.ValType{
		wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32,
		wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32,
	}
)

// Scratch areas, above the placed data segments.
const (
	scratchOp      = 16384
	scratchPayload = 24576
	scratchReply   = 32768
)

// testGuest assembles a guest that imports the whole bridge ABI.
type testGuest struct {
	m   *wasmtest.Module
	fns map[string]uint32
}

func newTestGuest() *testGuest {
	g := &testGuest{m: wasmtest.New(), fns: make(map[string]uint32)}
	imp := func(name string, params, results []wasmtest.ValType) {
		g.fns[name] = g.m.Import(bridge.HostModule, name, params, results)
	}
	imp(bridge.FuncHostCall, i32x9, i32x1)
	imp(bridge.FuncAsyncHostCall, i32x9, i32x1)
	imp(bridge.FuncHostResponseLen, i32x1, i32x1)
	imp(bridge.FuncHostResponse, i32x2, nil)
	imp(bridge.FuncHostErrorLen, i32x1, i32x1)
	imp(bridge.FuncHostError, i32x2, nil)
	imp(bridge.FuncConsoleLog, i32x2, nil)
	imp(bridge.FuncGuestRequest, i32x2, nil)
	imp(bridge.FuncGuestResponse, i32x2, nil)
	imp(bridge.FuncGuestError, i32x2, nil)
	g.m.Memory(1)
	return g
}

func (g *testGuest) str(s string) (int32, int32) {
	return g.m.PlaceString(s)
}

// call emits a host call with constant arguments and drops its status.
func (g *testGuest) call(c *wasmtest.Code, fn string, id int32, binding, namespace, operation string, msg []byte) {
	bp, bl := g.str(binding)
	np, nl := g.str(namespace)
	op, ol := g.str(operation)
	mp, ml := g.m.Place(msg)
	c.I32s(id, bp, bl, np, nl, op, ol, mp, ml).Call(g.fns[fn]).Drop()
}

func (g *testGuest) hostCall(c *wasmtest.Code, id int32, binding, namespace, operation string, msg []byte) {
	g.call(c, bridge.FuncHostCall, id, binding, namespace, operation, msg)
}

func (g *testGuest) asyncHostCall(c *wasmtest.Code, id int32, binding, namespace, operation string, msg []byte) {
	g.call(c, bridge.FuncAsyncHostCall, id, binding, namespace, operation, msg)
}

func (g *testGuest) consoleLog(c *wasmtest.Code, msg string) {
	p, n := g.str(msg)
	c.I32s(p, n).Call(g.fns[bridge.FuncConsoleLog])
}

// guestCall exports body as __guest_call returning status.
func (g *testGuest) guestCall(body *wasmtest.Code, status int32) {
	fn := g.m.Func(i32x2, i32x1, body.I32(status).Bytes())
	g.m.Export(bridge.ExportGuestCall, fn)
}

// asyncReply exports body as __async_host_call_response.
func (g *testGuest) asyncReply(body *wasmtest.Code) {
	fn := g.m.Func(i32x2, nil, body.Bytes())
	g.m.Export(bridge.ExportAsyncHostCallReply, fn)
}

func (g *testGuest) bytes() []byte {
	return g.m.Bytes()
}

func frame(t *testing.T, id uint32, p *packet.Packet) []byte {
	t.Helper()
	f, err := bridge.EncodeFrame(id, p)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func binary(v any) *packet.Packet {
	p := packet.Binary(v)
	return &p
}
