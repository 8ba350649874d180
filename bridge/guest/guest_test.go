package guest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

type hostCall struct {
	binding, namespace, operation string
	payload                       []byte
	async                         bool
}

// loopback is an in-memory host. Sync calls are answered by handle;
// async calls stay pending until complete is called.
type loopback struct {
	handle    func(c hostCall) ([]byte, error)
	calls     []hostCall
	ids       []uint32
	responses map[uint32][]byte
	errs      map[uint32][]byte
	logs      []string
	refuse    bool

	request []byte
	op      string
	reply   []byte
	failure string
}

func newLoopback() *loopback {
	return &loopback{responses: map[uint32][]byte{}, errs: map[uint32][]byte{}}
}

func (l *loopback) HostCall(id uint32, binding, namespace, operation string, payload []byte) int32 {
	c := hostCall{binding: binding, namespace: namespace, operation: operation, payload: payload}
	l.calls = append(l.calls, c)
	l.ids = append(l.ids, id)
	var out []byte
	var err error
	if l.handle != nil {
		out, err = l.handle(c)
	}
	if err != nil {
		l.errs[id] = []byte(err.Error())
		return 0
	}
	l.responses[id] = out
	return bridge.HostCallOK
}

func (l *loopback) AsyncHostCall(id uint32, binding, namespace, operation string, payload []byte) int32 {
	l.calls = append(l.calls, hostCall{binding: binding, namespace: namespace, operation: operation, payload: payload, async: true})
	l.ids = append(l.ids, id)
	if l.refuse {
		l.errs[id] = []byte("refused")
		return 1
	}
	return bridge.AsyncDispatchOK
}

func (l *loopback) HostResponseLen(id uint32) uint32 { return uint32(len(l.responses[id])) }
func (l *loopback) HostResponse(id uint32, buf []byte) {
	copy(buf, l.responses[id])
}
func (l *loopback) HostErrorLen(id uint32) uint32 { return uint32(len(l.errs[id])) }
func (l *loopback) HostError(id uint32, buf []byte) {
	copy(buf, l.errs[id])
}
func (l *loopback) ConsoleLog(msg string) { l.logs = append(l.logs, msg) }

func (l *loopback) GuestRequest(op, payload []byte) {
	copy(op, l.op)
	copy(payload, l.request)
}
func (l *loopback) GuestResponse(data []byte) { l.reply = data }
func (l *loopback) GuestError(msg string)     { l.failure = msg }

func TestHostCall(t *testing.T) {
	lb := newLoopback()
	lb.handle = func(c hostCall) ([]byte, error) {
		if c.operation == "fail" {
			return nil, fmt.Errorf("no such thing")
		}
		return []byte(strings.ToUpper(string(c.payload))), nil
	}
	rt := NewRuntime(lb)

	out, err := rt.HostCall("x", "ns", "echo", []byte("hi"))
	if err != nil || string(out) != "HI" {
		t.Fatalf("got %q, %v", out, err)
	}
	_, err = rt.HostCall("x", "ns", "fail", nil)
	if !errors.HasKind(err, errors.KindHostError) || !strings.Contains(err.Error(), "no such thing") {
		t.Errorf("err = %v", err)
	}
	if lb.ids[0] == lb.ids[1] {
		t.Error("call IDs must differ")
	}
}

func TestCallIDsWrap(t *testing.T) {
	lb := newLoopback()
	rt := NewRuntime(lb)
	rt.nextID = ^uint32(0)
	_, _ = rt.HostCall("x", "", "a", nil)
	_, _ = rt.HostCall("x", "", "b", nil)
	if lb.ids[0] != ^uint32(0) || lb.ids[1] != 0 {
		t.Errorf("ids = %v", lb.ids)
	}
}

func TestAsyncHostCall(t *testing.T) {
	lb := newLoopback()
	rt := NewRuntime(lb)

	f := rt.AsyncHostCall("x", "ns", "slow", nil)
	var got []string
	f.Then(func(data []byte, err error) { got = append(got, string(data)) })

	if f.Ready() || rt.Pending() != 1 {
		t.Fatal("future should be pending")
	}
	if _, err := f.Result(); !errors.HasKind(err, errors.KindAsyncAbort) {
		t.Errorf("early Result err = %v", err)
	}
	if rt.ExhaustTasks() {
		t.Error("runtime is not quiescent with a call in flight")
	}

	lb.responses[f.ID()] = []byte("done")
	rt.Complete(f.ID(), bridge.CompletionOK)
	if len(got) != 0 {
		t.Error("continuations run only from ExhaustTasks")
	}
	if !rt.ExhaustTasks() {
		t.Error("runtime should be quiescent")
	}
	if fmt.Sprint(got) != "[done]" {
		t.Errorf("got %v", got)
	}

	late := ""
	f.Then(func(data []byte, err error) { late = string(data) })
	rt.ExhaustTasks()
	if late != "done" {
		t.Errorf("Then after resolution: %q", late)
	}
}

func TestAsyncCompletionFailure(t *testing.T) {
	lb := newLoopback()
	rt := NewRuntime(lb)
	f := rt.AsyncHostCall("x", "ns", "op", nil)
	lb.errs[f.ID()] = []byte("backend down")
	rt.Complete(f.ID(), bridge.CompletionFailed)
	_, err := f.Result()
	if !errors.HasKind(err, errors.KindAsyncAbort) || !strings.Contains(err.Error(), "backend down") {
		t.Errorf("err = %v", err)
	}
}

func TestAsyncDispatchRefused(t *testing.T) {
	lb := newLoopback()
	lb.refuse = true
	rt := NewRuntime(lb)
	f := rt.AsyncHostCall("x", "ns", "op", nil)
	if !f.Ready() || rt.Pending() != 0 {
		t.Fatal("refused dispatch resolves immediately")
	}
	if _, err := f.Result(); !errors.HasKind(err, errors.KindHostError) || !strings.Contains(err.Error(), "refused") {
		t.Errorf("err = %v", err)
	}
}

func TestCompleteUnknownID(t *testing.T) {
	rt := NewRuntime(newLoopback())
	rt.Complete(99, bridge.CompletionOK)
	if rt.Pending() != 0 {
		t.Error("unknown completion must be ignored")
	}
}

func TestDispatcherSlot(t *testing.T) {
	rt := NewRuntime(newLoopback())
	if _, err := rt.GetDispatcher(); !errors.HasKind(err, errors.KindDispatcherMissing) || !strings.Contains(err.Error(), "dispatcher not set") {
		t.Errorf("err = %v", err)
	}
	payload, _ := (&bridge.IncomingPayload{ID: 1}).Encode()
	if _, err := rt.HandleCall("op", payload); !errors.HasKind(err, errors.KindDispatcherMissing) {
		t.Errorf("HandleCall err = %v", err)
	}

	first := DispatcherFunc(func(*Runtime, string, *bridge.IncomingPayload) ([]byte, error) { return []byte("1"), nil })
	second := DispatcherFunc(func(*Runtime, string, *bridge.IncomingPayload) ([]byte, error) { return []byte("2"), nil })
	rt.RegisterDispatcher(first)
	rt.RegisterDispatcher(second)
	out, err := rt.HandleCall("op", payload)
	if err != nil || string(out) != "2" {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestPortHelpers(t *testing.T) {
	lb := newLoopback()
	rt := NewRuntime(lb)

	if err := rt.PortSend("out", 7, packet.Binary(0x82)); err != nil {
		t.Fatal(err)
	}
	if err := rt.PortSendClose("out", 7, packet.Success("last")); err != nil {
		t.Fatal(err)
	}
	if err := rt.PortClose("log", 7); err != nil {
		t.Fatal(err)
	}

	wantOps := []string{bridge.OpOutput, bridge.OpOutputDone, bridge.OpDone}
	for i, c := range lb.calls {
		if c.binding != bridge.BindingPort || c.operation != wantOps[i] {
			t.Errorf("call %d = %+v", i, c)
		}
		id, p, err := bridge.DecodeFrame(c.payload)
		if err != nil || id != 7 {
			t.Fatalf("frame %d: id=%d err=%v", i, id, err)
		}
		if (p == nil) != (c.operation == bridge.OpDone) {
			t.Errorf("frame %d packet = %v", i, p)
		}
		if p != nil {
			if f, _ := p.Format(); f.String() != "binary" {
				t.Errorf("frame %d not normalized: %v", i, p)
			}
		}
	}
	if lb.calls[2].namespace != "log" {
		t.Errorf("namespace = %s", lb.calls[2].namespace)
	}
}

func TestPortSendFailure(t *testing.T) {
	lb := newLoopback()
	lb.handle = func(hostCall) ([]byte, error) { return nil, fmt.Errorf("port out is closed") }
	rt := NewRuntime(lb)
	err := rt.Sender("out", 1).Send("x")
	if !errors.HasKind(err, errors.KindHostError) || !strings.Contains(err.Error(), "port out is closed") {
		t.Errorf("err = %v", err)
	}
}

func TestLinkCall(t *testing.T) {
	lb := newLoopback()
	rt := NewRuntime(lb)

	inputs := packet.NewMap()
	_ = inputs.Insert("text", packet.Binary("hi"))
	var got []packet.Wrapper
	var gotErr error
	if err := rt.Link("app/upper").Call("app/lower", inputs, func(w []packet.Wrapper, err error) {
		got, gotErr = w, err
	}); err != nil {
		t.Fatal(err)
	}

	c := lb.calls[0]
	if !c.async || c.binding != bridge.BindingLink || c.namespace != "app/upper" || c.operation != "app/lower" {
		t.Fatalf("call = %+v", c)
	}
	req, err := bridge.DecodeLinkRequest(c.payload)
	if err != nil || !req.Has("text") {
		t.Fatalf("request = %v, %v", req, err)
	}

	resp, _ := bridge.EncodeLinkResponse([]packet.Wrapper{packet.NewWrapper("out", packet.Binary("HI"))})
	id := lb.ids[0]
	lb.responses[id] = resp
	rt.Complete(id, bridge.CompletionOK)
	rt.ExhaustTasks()
	if gotErr != nil || len(got) != 1 || got[0].Port != "out" {
		t.Errorf("got %v, %v", got, gotErr)
	}
}

func TestConsoleLog(t *testing.T) {
	lb := newLoopback()
	NewRuntime(lb).ConsoleLog("hello")
	if fmt.Sprint(lb.logs) != "[hello]" {
		t.Errorf("logs = %v", lb.logs)
	}
}

func TestComponentDispatcher(t *testing.T) {
	reg := boundary.NewRegistry()
	err := reg.RegisterFunc("split: func(text: string) -> (word: string)", func(ctx context.Context, in *packet.Map, out *boundary.Outputs) error {
		text, err := boundary.Input[string](in, "text")
		if err != nil {
			return err
		}
		for _, w := range strings.Fields(text) {
			if err := out.Send("word", w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	lb := newLoopback()
	rt := NewRuntime(lb)
	rt.RegisterDispatcher(NewComponentDispatcher(reg))

	inputs, _ := packet.MapFrom(map[string]any{"text": "a b"})
	in, _ := bridge.NewIncomingPayload(11, inputs)
	payload, _ := in.Encode()
	lb.op, lb.request = "split", payload

	if code := rt.Serve(lb, uint32(len("split")), uint32(len(payload))); code != bridge.GuestCallOK {
		t.Fatalf("code = %d, failure = %s", code, lb.failure)
	}

	var words []string
	var ops []string
	for _, c := range lb.calls {
		ops = append(ops, c.operation)
		_, p, err := bridge.DecodeFrame(c.payload)
		if err != nil {
			t.Fatal(err)
		}
		if p != nil {
			w, _ := packet.Deserialize[string](*p)
			words = append(words, w)
		}
	}
	if fmt.Sprint(words) != "[a b]" {
		t.Errorf("words = %v", words)
	}
	if fmt.Sprint(ops) != "[Output Output Done]" {
		t.Errorf("ops = %v", ops)
	}
}

func TestComponentDispatcherFailures(t *testing.T) {
	reg := boundary.NewRegistry()
	_ = reg.RegisterFunc("need: func(p: string) -> (out: string)", func(ctx context.Context, in *packet.Map, out *boundary.Outputs) error {
		return nil
	})
	lb := newLoopback()
	rt := NewRuntime(lb)
	rt.RegisterDispatcher(NewComponentDispatcher(reg))

	empty, _ := (&bridge.IncomingPayload{ID: 1, Fields: map[string][]byte{}}).Encode()

	lb.op, lb.request = "need", empty
	if code := rt.Serve(lb, 4, uint32(len(empty))); code != bridge.GuestCallFailed {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(lb.failure, `missing input for port "p"`) {
		t.Errorf("failure = %q", lb.failure)
	}

	lb.op = "nope"
	if code := rt.Serve(lb, 4, uint32(len(empty))); code != bridge.GuestCallFailed || !strings.Contains(lb.failure, "need") {
		t.Errorf("unknown op: code=%d failure=%q", code, lb.failure)
	}
}

func TestDefaultRuntime(t *testing.T) {
	lb := newLoopback()
	SetImports(lb)
	t.Cleanup(func() { SetImports(nil) })

	if err := NewPortSender("out", 3).Done(1); err != nil {
		t.Fatal(err)
	}
	ConsoleLog("x")
	if len(lb.calls) != 1 || len(lb.logs) != 1 {
		t.Errorf("calls=%d logs=%d", len(lb.calls), len(lb.logs))
	}
	if Default().Pending() != 0 {
		t.Error("no async calls expected")
	}
}
