// Package wasmtest assembles small core wasm modules for host tests. The
// guests it builds are straight-line: they push constants, call imports
// and return.
package wasmtest

import (
	"bytes"
	"fmt"
)

type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11
)

const (
	externFunc   = 0x00
	externMemory = 0x02
)

// DataBase is where Place starts laying out segments.
const DataBase = 1024

type funcType struct {
	params, results []ValType
}

type importEntry struct {
	module, name string
	typeIdx      uint32
}

type funcEntry struct {
	body    []byte
	typeIdx uint32
}

type exportEntry struct {
	name string
	kind byte
	idx  uint32
}

type dataEntry struct {
	init   []byte
	offset uint32
}

// Module is a module under construction. Imports must be declared before
// any function body.
type Module struct {
	types    []funcType
	imports  []importEntry
	funcs    []funcEntry
	exports  []exportEntry
	data     []dataEntry
	memPages uint32
	next     uint32
}

func New() *Module {
	return &Module{next: DataBase}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, t := range m.types {
		if bytes.Equal(valBytes(t.params), valBytes(params)) && bytes.Equal(valBytes(t.results), valBytes(results)) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Import declares an imported function and returns its function index.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmtest: import %s.%s after function bodies", module, name))
	}
	m.imports = append(m.imports, importEntry{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func adds a function and returns its index. body must not include the
// trailing end opcode; Code.Bytes adds it.
func (m *Module) Func(params, results []ValType, body []byte) uint32 {
	m.funcs = append(m.funcs, funcEntry{typeIdx: m.typeIndex(params, results), body: body})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Export exports function fn under name.
func (m *Module) Export(name string, fn uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: externFunc, idx: fn})
}

// Memory declares a memory of the given size, exported as "memory".
func (m *Module) Memory(pages uint32) {
	m.memPages = pages
}

// Data adds an active data segment at offset.
func (m *Module) Data(offset uint32, init []byte) {
	m.data = append(m.data, dataEntry{offset: offset, init: init})
}

// Place lays b out after previously placed segments and returns its
// pointer and length as i32 immediates.
func (m *Module) Place(b []byte) (ptr, n int32) {
	ptr = int32(m.next)
	m.Data(m.next, b)
	m.next += uint32(len(b))
	m.next = (m.next + 7) &^ 7
	return ptr, int32(len(b))
}

// PlaceString is Place for text.
func (m *Module) PlaceString(s string) (ptr, n int32) {
	return m.Place([]byte(s))
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var w bytes.Buffer
	w.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	w.Write([]byte{0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			writeVec(&sec, valBytes(t.params))
			writeVec(&sec, valBytes(t.results))
		}
		writeSection(&w, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(externFunc)
			writeU32(&sec, imp.typeIdx)
		}
		writeSection(&w, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			writeU32(&sec, f.typeIdx)
		}
		writeSection(&w, sectionFunction, sec.Bytes())
	}

	if m.memPages > 0 {
		var sec bytes.Buffer
		writeU32(&sec, 1)
		sec.WriteByte(0x00) // min only
		writeU32(&sec, m.memPages)
		writeSection(&w, sectionMemory, sec.Bytes())
	}

	exports := m.exports
	if m.memPages > 0 {
		exports = append(exports[:len(exports):len(exports)], exportEntry{name: "memory", kind: externMemory})
	}
	if len(exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(exports)))
		for _, e := range exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.idx)
		}
		writeSection(&w, sectionExport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body bytes.Buffer
			writeU32(&body, 0) // no locals
			body.Write(f.body)
			writeVec(&sec, body.Bytes())
		}
		writeSection(&w, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.data)))
		for _, d := range m.data {
			writeU32(&sec, 0) // active, memory 0
			sec.WriteByte(opI32Const)
			writeS32(&sec, int32(d.offset))
			sec.WriteByte(opEnd)
			writeVec(&sec, d.init)
		}
		writeSection(&w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeVec(w, data)
}

func valBytes(types []ValType) []byte {
	out := make([]byte, len(types))
	for i, t := range types {
		out[i] = byte(t)
	}
	return out
}
