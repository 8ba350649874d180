package bridge

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

func TestFrameLayout(t *testing.T) {
	p := packet.Binary(0x82)
	frame, err := EncodeFrame(7, &p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame[:4], []byte{0, 0, 0, 7}) {
		t.Fatalf("header = % x", frame[:4])
	}
	body, err := packet.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame[4:], body) {
		t.Errorf("body = % x, want % x", frame[4:], body)
	}

	id, got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 || got == nil || !got.Equal(p) {
		t.Errorf("decoded %d %v", id, got)
	}
}

func TestFrameNormalizesSuccess(t *testing.T) {
	tests := []struct {
		name string
		p    packet.Packet
	}{
		{"value", packet.FromValue(mustValue(t, []int{1, 2}))},
		{"json", packet.FromJSONText(`[1,2]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(1, &tt.p)
			if err != nil {
				t.Fatal(err)
			}
			_, got, err := DecodeFrame(frame)
			if err != nil {
				t.Fatal(err)
			}
			if f, _ := got.Format(); f != codec.FormatBinary {
				t.Errorf("format = %v", f)
			}
			v, err := packet.Deserialize[[]int](*got)
			if err != nil || fmt.Sprint(v) != "[1 2]" {
				t.Errorf("got %v, %v", v, err)
			}
		})
	}
}

func TestFrameCarriesFailures(t *testing.T) {
	p := packet.Exception("bad row")
	frame, err := EncodeFrame(3, &p)
	if err != nil {
		t.Fatal(err)
	}
	_, got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message() != "bad row" {
		t.Errorf("got %v", got)
	}
}

func TestDoneFrame(t *testing.T) {
	frame, err := EncodeFrame(0xdeadbeef, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("frame = % x", frame)
	}
	id, p, err := DecodeFrame(frame)
	if err != nil || id != 0xdeadbeef || p != nil {
		t.Errorf("decoded %x %v %v", id, p, err)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, _, err := DecodeFrame([]byte{0, 1}); !errors.HasKind(err, errors.KindCodecDecode) {
		t.Errorf("short frame: %v", err)
	}
	if _, _, err := DecodeFrame([]byte{0, 0, 0, 1, 0xff}); err == nil {
		t.Error("garbage body should fail")
	}
}

func TestIncomingPayload(t *testing.T) {
	inputs, err := packet.ParseMapKV([]string{`name="ada"`, "n=3"})
	if err != nil {
		t.Fatal(err)
	}
	in, err := NewIncomingPayload(42, inputs)
	if err != nil {
		t.Fatal(err)
	}
	data, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	// CBOR array(2), uint 42, map(2)
	if !bytes.HasPrefix(data, []byte{0x82, 0x18, 42, 0xa2}) {
		t.Errorf("encoding = % x", data)
	}

	out, err := DecodeIncomingPayload(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != 42 || fmt.Sprint(out.Ports()) != "[n name]" {
		t.Errorf("decoded id=%d ports=%v", out.ID, out.Ports())
	}
	if _, err := out.Get("missing"); !errors.HasKind(err, errors.KindMissingInput) {
		t.Errorf("err = %v", err)
	}

	m, err := out.Map()
	if err != nil {
		t.Fatal(err)
	}
	name, err := packet.Consume[string](m, "name")
	if err != nil || name != "ada" {
		t.Errorf("name = %q, %v", name, err)
	}
	n, err := packet.Consume[int](m, "n")
	if err != nil || n != 3 {
		t.Errorf("n = %d, %v", n, err)
	}
}

func TestIncomingPayloadRefusesSignals(t *testing.T) {
	m := packet.NewMap()
	_ = m.Insert("ok", packet.Binary(1))
	_ = m.Insert("stop", packet.Done())
	_, err := NewIncomingPayload(1, m)
	if !errors.HasKind(err, errors.KindCodecEncode) || err.(*errors.Error).Port != "stop" {
		t.Errorf("err = %v", err)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	m := packet.NewMap()
	_ = m.Insert("left", packet.Binary("x"))
	_ = m.Insert("right", packet.Exception("upstream"))

	data, err := EncodeLinkRequest(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeLinkRequest(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 {
		t.Fatalf("len = %d", got.Len())
	}
	if p, _ := got.Get("right"); p.Message() != "upstream" {
		t.Errorf("right = %v", p)
	}

	wrappers := []packet.Wrapper{
		packet.NewWrapper("out", packet.Binary("y")),
		packet.NewWrapper("out", packet.Done()),
		packet.ErrorWrapper("late"),
	}
	data, err = EncodeLinkResponse(wrappers)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeLinkResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 3 || back[2].Port != packet.PortError || !back[1].Packet.IsDone() {
		t.Errorf("got %v", back)
	}
}

func TestIsOutputOp(t *testing.T) {
	for _, op := range []string{OpOutput, OpOutputDone, OpDone} {
		if !IsOutputOp(op) {
			t.Errorf("%s should be an output op", op)
		}
	}
	if IsOutputOp("Call") {
		t.Error("Call is not an output op")
	}
}

func mustValue(t *testing.T, v any) codec.Value {
	t.Helper()
	val, err := codec.ToValue(v)
	if err != nil {
		t.Fatal(err)
	}
	return val
}
