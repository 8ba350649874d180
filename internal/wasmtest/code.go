package wasmtest

import "bytes"

const (
	opUnreachable = 0x00
	opEnd         = 0x0b
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opI32Const    = 0x41
)

// Code builds a function body.
type Code struct {
	buf bytes.Buffer
}

func NewCode() *Code { return &Code{} }

func (c *Code) I32(v int32) *Code {
	c.buf.WriteByte(opI32Const)
	writeS32(&c.buf, v)
	return c
}

// I32s pushes each value in order.
func (c *Code) I32s(vs ...int32) *Code {
	for _, v := range vs {
		c.I32(v)
	}
	return c
}

func (c *Code) Call(fn uint32) *Code {
	c.buf.WriteByte(opCall)
	writeU32(&c.buf, fn)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.buf.WriteByte(opLocalGet)
	writeU32(&c.buf, idx)
	return c
}

// Unreachable traps.
func (c *Code) Unreachable() *Code {
	c.buf.WriteByte(opUnreachable)
	return c
}

func (c *Code) Drop() *Code {
	c.buf.WriteByte(opDrop)
	return c
}

// Bytes returns the body terminated by end.
func (c *Code) Bytes() []byte {
	out := append([]byte(nil), c.buf.Bytes()...)
	return append(out, opEnd)
}
