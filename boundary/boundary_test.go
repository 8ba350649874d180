package boundary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSignature(t *testing.T, decl string) *Signature {
	t.Helper()
	sig, err := ParseSignature(decl)
	if err != nil {
		t.Fatalf("ParseSignature(%q): %v", decl, err)
	}
	return sig
}

func mustMap(t *testing.T, values map[string]any) *packet.Map {
	t.Helper()
	m, err := packet.MapFrom(values)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func collect(t *testing.T, s *port.Stream) []string {
	t.Helper()
	all, err := s.Collect(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(all))
	for i, w := range all {
		out[i] = w.String()
	}
	return out
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name    string
		decl    string
		op      string
		inputs  []string
		outputs []string
	}{
		{"named results", "greet: func(name: string, n: u32) -> (out: string, log: list<string>)", "greet", []string{"name", "n"}, []string{"out", "log"}},
		{"unnamed result", "export add: func(a: s32, b: s32) -> s32;", "add", []string{"a", "b"}, []string{DefaultOutput}},
		{"no results", "sink: func(data: list<u8>)", "sink", []string{"data"}, nil},
		{"no params", "tick: func() -> (n: u64)", "tick", nil, []string{"n"}},
		{"nested generics", "pairs: func(p: list<tuple<string, u32>>, o: option<f64>) -> ()", "pairs", []string{"p", "o"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := mustSignature(t, tt.decl)
			if sig.Name != tt.op {
				t.Errorf("Name = %s, want %s", sig.Name, tt.op)
			}
			var inputs []string
			for _, p := range sig.Inputs {
				inputs = append(inputs, p.Name)
			}
			if fmt.Sprint(inputs) != fmt.Sprint(tt.inputs) {
				t.Errorf("inputs = %v, want %v", inputs, tt.inputs)
			}
			if fmt.Sprint(sig.OutputNames()) != fmt.Sprint(tt.outputs) {
				t.Errorf("outputs = %v, want %v", sig.OutputNames(), tt.outputs)
			}
		})
	}
}

func TestParseSignatureTypes(t *testing.T) {
	sig := mustSignature(t, "f: func(a: list<tuple<string, u32>>, b: option<bool>, c: result<string, string>)")

	a, _ := sig.Input("a")
	td, ok := a.Type.(*wit.TypeDef)
	if !ok {
		t.Fatalf("a: %T", a.Type)
	}
	list, ok := td.Kind.(*wit.List)
	if !ok {
		t.Fatalf("a kind: %T", td.Kind)
	}
	if tuple, ok := list.Type.(*wit.TypeDef).Kind.(*wit.Tuple); !ok || len(tuple.Types) != 2 {
		t.Errorf("a element: %#v", list.Type)
	}

	b, _ := sig.Input("b")
	if !isOptional(b.Type) {
		t.Error("b should be optional")
	}
	c, _ := sig.Input("c")
	if _, ok := c.Type.(*wit.TypeDef).Kind.(*wit.Result); !ok {
		t.Errorf("c: %#v", c.Type)
	}
}

func TestParseSignatureErrors(t *testing.T) {
	tests := []struct {
		name string
		decl string
	}{
		{"no function", "this is not wit"},
		{"missing port name", "f: func(string)"},
		{"duplicate port", "f: func(a: u32, a: u32)"},
		{"reserved port", "f: func() -> (<error>: string)"},
		{"bad constructor", "f: func(a: map<string, u32>)"},
		{"bad arity", "f: func(a: list<u8, u8>)"},
		{"two functions", "f: func(); g: func();"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSignature(tt.decl); err == nil {
				t.Errorf("ParseSignature(%q) succeeded", tt.decl)
			}
		})
	}
}

func TestParseSignatures(t *testing.T) {
	sigs, err := ParseSignatures(`
		export upper: func(text: string) -> (out: string);
		export count: func(items: list<string>) -> u32;
	`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 2 || sigs["upper"] == nil || sigs["count"] == nil {
		t.Fatalf("got %v", sigs)
	}
	if got := sigs["upper"].String(); got != "upper: func(text: string) -> (out: string)" {
		t.Errorf("String = %s", got)
	}
}

func TestSplitParams(t *testing.T) {
	got := splitParams("a: list<tuple<u8, u8>>, b: result<string, string>, c: u32")
	if len(got) != 3 || got[0] != "a: list<tuple<u8, u8>>" {
		t.Errorf("got %q", got)
	}
}

func TestCheckInputs(t *testing.T) {
	sig := mustSignature(t, "f: func(name: string, n: u8, tags: list<string>, opt: option<s32>)")

	tests := []struct {
		name   string
		inputs map[string]any
		kind   errors.Kind
		port   string
	}{
		{"ok", map[string]any{"name": "x", "n": 7, "tags": []string{"a"}}, "", ""},
		{"optional present", map[string]any{"name": "x", "n": 7, "tags": []string{}, "opt": -3}, "", ""},
		{"missing", map[string]any{"n": 7, "tags": []string{}}, errors.KindMissingInput, "name"},
		{"wrong scalar", map[string]any{"name": 1, "n": 7, "tags": []string{}}, errors.KindTypeMismatch, "name"},
		{"out of range", map[string]any{"name": "x", "n": 300, "tags": []string{}}, errors.KindTypeMismatch, "n"},
		{"negative unsigned", map[string]any{"name": "x", "n": -1, "tags": []string{}}, errors.KindTypeMismatch, "n"},
		{"bad element", map[string]any{"name": "x", "n": 1, "tags": []any{"a", 2}}, errors.KindTypeMismatch, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sig.CheckInputs(mustMap(t, tt.inputs))
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.HasKind(err, tt.kind) {
				t.Fatalf("err = %v, want %s", err, tt.kind)
			}
			if e := err.(*errors.Error); e.Port != tt.port {
				t.Errorf("port = %q, want %q", e.Port, tt.port)
			}
		})
	}
}

func TestCheckInputsNamesWITType(t *testing.T) {
	sig := mustSignature(t, "f: func(name: string)")
	err := sig.CheckInputs(mustMap(t, map[string]any{"name": 7}))
	if err == nil {
		t.Fatal("expected type mismatch")
	}
	msg := err.Error()
	if !strings.Contains(msg, "WIT type string") || strings.Contains(msg, "Go type") {
		t.Errorf("err = %q", msg)
	}
	if e := err.(*errors.Error); e.WitType != "string" || e.GoType != "" {
		t.Errorf("WitType = %q, GoType = %q", e.WitType, e.GoType)
	}
}

func TestCheckInputsSkipsFailures(t *testing.T) {
	sig := mustSignature(t, "f: func(n: u32)")
	m := packet.NewMap()
	_ = m.Insert("n", packet.Exception("upstream failed"))
	if err := sig.CheckInputs(m); err != nil {
		t.Errorf("exception input should pass: %v", err)
	}
}

func TestFits(t *testing.T) {
	record := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "id", Type: wit.U32{}},
		{Name: "note", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}},
	}}}
	enum := &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "red"}, {Name: "green"}}}}
	variant := &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{{Name: "none"}, {Name: "some", Type: wit.U32{}}}}}
	flags := &wit.TypeDef{Kind: &wit.Flags{Flags: []wit.Flag{{Name: "read"}, {Name: "write"}}}}
	bytes := &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}

	tests := []struct {
		name string
		v    codec.Value
		t    wit.Type
		ok   bool
	}{
		{"bool", codec.Bool(true), wit.Bool{}, true},
		{"int as float", codec.Int(3), wit.F64{}, true},
		{"char", codec.String("é"), wit.Char{}, true},
		{"char too long", codec.String("ab"), wit.Char{}, false},
		{"s8 range", codec.Int(-129), wit.S8{}, false},
		{"u64 max", codec.Uint(1 << 63), wit.U64{}, true},
		{"bytes as list<u8>", codec.Bytes([]byte{1}), bytes, true},
		{"record", codec.Map(map[string]codec.Value{"id": codec.Int(1)}), record, true},
		{"record missing field", codec.Map(map[string]codec.Value{"note": codec.String("x")}), record, false},
		{"enum", codec.String("red"), enum, true},
		{"enum unknown", codec.String("blue"), enum, false},
		{"variant bare", codec.String("none"), variant, true},
		{"variant payload", codec.Map(map[string]codec.Value{"some": codec.Int(2)}), variant, true},
		{"variant bad payload", codec.Map(map[string]codec.Value{"some": codec.String("x")}), variant, false},
		{"flags", codec.Seq(codec.String("read")), flags, true},
		{"flags unknown", codec.Seq(codec.String("exec")), flags, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fits(tt.v, tt.t)
			if (d == "") != tt.ok {
				t.Errorf("fits(%v) = %q, want ok=%v", tt.v, d, tt.ok)
			}
		})
	}
}

func TestInvokeStreamsOutputs(t *testing.T) {
	sig := mustSignature(t, "repeat: func(word: string, times: u32) -> (out: string, count: u32)")
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		word, err := Input[string](inputs, "word")
		if err != nil {
			return err
		}
		times, err := Input[int](inputs, "times")
		if err != nil {
			return err
		}
		for i := 0; i < times; i++ {
			if err := out.Send("out", word); err != nil {
				return err
			}
		}
		return out.Done("count", times)
	})

	s, err := Invoke(testContext(t), c, sig, mustMap(t, map[string]any{"word": "hi", "times": 2}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := testContext(t)
	words, err := port.OutputOf[string](ctx, s, "out")
	if err != nil {
		t.Fatal(err)
	}
	got, err := words.All()
	if err != nil || fmt.Sprint(got) != "[hi hi]" {
		t.Errorf("out = %v, %v", got, err)
	}
	if s.Ended("out") != port.EndDone {
		t.Error("Done should be synthesized for out")
	}
	count, err := port.OutputOf[int](ctx, s, "count")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := count.DeserializeNext(); err != nil || n != 2 {
		t.Errorf("count = %d, %v", n, err)
	}
	if rest := collect(t, s); len(rest) != 0 {
		t.Errorf("unexpected wrappers %v", rest)
	}
}

func TestInvokeMissingInput(t *testing.T) {
	sig := mustSignature(t, "f: func(p: string) -> (out: string)")
	called := false
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		called = true
		return nil
	})

	s, err := Invoke(testContext(t), c, sig, packet.NewMap())
	if err != nil {
		t.Fatal(err)
	}
	all, err := s.Collect(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("component must not run without its inputs")
	}
	if len(all) != 1 || all[0].Port != packet.PortError {
		t.Fatalf("got %v", all)
	}
	if kind, _ := all[0].Packet.FailureKind(); kind != packet.FailureError {
		t.Errorf("packet = %v", all[0].Packet)
	}
	if !strings.Contains(all[0].Packet.Message(), `missing input for port "p"`) {
		t.Errorf("message = %q", all[0].Packet.Message())
	}
}

func TestInputMissing(t *testing.T) {
	_, err := Input[string](packet.NewMap(), "p")
	if !errors.HasKind(err, errors.KindMissingInput) || err.(*errors.Error).Port != "p" {
		t.Errorf("err = %v", err)
	}
}

func TestInvokeErrorAfterEmission(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (a: u32, b: u32, c: u32)")
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		_ = out.Send("a", 1)
		_ = out.Done("b", 2)
		return fmt.Errorf("disk full")
	})

	s, err := Invoke(testContext(t), c, sig, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	var a, b, c2, reserved []string
	for _, line := range got {
		switch {
		case strings.HasPrefix(line, "a:"):
			a = append(a, line)
		case strings.HasPrefix(line, "b:"):
			b = append(b, line)
		case strings.HasPrefix(line, "c:"):
			c2 = append(c2, line)
		default:
			reserved = append(reserved, line)
		}
	}
	want := `[a: Success(R 1) a: Error("disk full") a: Done]`
	if fmt.Sprint(a) != want {
		t.Errorf("a = %v, want %s", a, want)
	}
	if len(b) != 2 {
		t.Errorf("b should only carry its own packets: %v", b)
	}
	if len(c2) != 0 || len(reserved) != 0 {
		t.Errorf("unexpected wrappers c=%v reserved=%v", c2, reserved)
	}
}

func TestInvokeErrorAfterAllPortsDone(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (out: string)")
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		if err := out.Done("out", "x"); err != nil {
			return err
		}
		return fmt.Errorf("late failure")
	})

	s, err := Invoke(testContext(t), c, sig, nil)
	if err != nil {
		t.Fatal(err)
	}
	// No order across ports; compare sorted.
	got := collect(t, s)
	sort.Strings(got)
	want := []string{`<error>: Error("late failure")`, "out: Done", `out: Success(R "x")`}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInvokeErrorTargetsPort(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (a: u32, b: u32)")
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		_ = out.Send("a", 1)
		_ = out.Send("b", 2)
		return errors.New(errors.PhaseComponent, errors.KindError).Port("b").Detail("bad b").Build()
	})

	s, _ := Invoke(testContext(t), c, sig, nil)
	var errPorts []string
	for _, line := range collect(t, s) {
		if strings.Contains(line, "Error(") {
			errPorts = append(errPorts, line[:1])
		}
	}
	if fmt.Sprint(errPorts) != "[b]" {
		t.Errorf("error emitted on %v", errPorts)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (out: string)")
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		panic("boom")
	})

	s, _ := Invoke(testContext(t), c, sig, nil)
	got := collect(t, s)
	if len(got) != 1 || !strings.HasPrefix(got[0], packet.PortError) || !strings.Contains(got[0], "panic: boom") {
		t.Errorf("got %v", got)
	}
}

func TestInvokeUndeclaredPort(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (out: string)")
	var sendErr error
	c := ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		sendErr = out.Send("other", "x")
		return nil
	})

	s, _ := Invoke(testContext(t), c, sig, nil)
	if got := collect(t, s); len(got) != 0 {
		t.Errorf("got %v", got)
	}
	if !errors.HasKind(sendErr, errors.KindNotFound) {
		t.Errorf("err = %v", sendErr)
	}
}

type reporter struct {
	ComponentFunc
}

func (reporter) Status() (any, bool) { return map[string]any{"rows": 3}, true }

func TestInvokeStatus(t *testing.T) {
	sig := mustSignature(t, "f: func() -> (out: u32)")
	c := reporter{ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *Outputs) error {
		return out.Done("out", 1)
	})}

	s, _ := Invoke(testContext(t), c, sig, nil)
	all, err := s.Collect(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	var status []packet.Wrapper
	for _, w := range all {
		if w.Port == packet.PortStatus {
			status = append(status, w)
		}
	}
	if len(status) != 1 || !status[0].Packet.IsSignalKind(packet.SignalStatus) {
		t.Fatalf("status wrappers = %v", status)
	}
	v, _ := status[0].Packet.StatusValue()
	if rows, _ := v.Get("rows"); rows.String() != "3" {
		t.Errorf("status = %v", v)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterWIT(`
		export upper: func(text: string) -> (out: string);
		export lower: func(text: string) -> (out: string);
	`, map[string]Component{
		"upper": ComponentFunc(func(ctx context.Context, in *packet.Map, out *Outputs) error {
			s, err := Input[string](in, "text")
			if err != nil {
				return err
			}
			return out.Done("out", strings.ToUpper(s))
		}),
		"lower": ComponentFunc(func(ctx context.Context, in *packet.Map, out *Outputs) error {
			s, err := Input[string](in, "text")
			if err != nil {
				return err
			}
			return out.Done("out", strings.ToLower(s))
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(r.Ops()) != "[lower upper]" {
		t.Errorf("Ops = %v", r.Ops())
	}

	s, err := r.Dispatch(testContext(t), "upper", mustMap(t, map[string]any{"text": "abc"}))
	if err != nil {
		t.Fatal(err)
	}
	out, err := port.OutputOf[string](testContext(t), s, "out")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := out.DeserializeNext(); v != "ABC" {
		t.Errorf("upper = %q", v)
	}

	_, err = r.Dispatch(testContext(t), "reverse", packet.NewMap())
	if !errors.HasKind(err, errors.KindNotFound) || !strings.Contains(err.Error(), "lower, upper") {
		t.Errorf("err = %v", err)
	}

	if err := r.RegisterFunc("upper: func()", nil); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestRegisterWITMissingImplementation(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterWIT("export f: func();", map[string]Component{})
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("err = %v", err)
	}
}
