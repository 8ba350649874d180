package packet

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/wippyai/portflow/errors"
)

// Reserved port names. User ports may not start with '<'.
const (
	PortStatus = "<status>"
	PortError  = "<error>"
	PortSystem = "<system>"
)

// IsReserved reports whether name is one of the runtime's reserved ports.
func IsReserved(name string) bool {
	return name == PortStatus || name == PortError || name == PortSystem
}

// ValidatePortName checks a user port name.
func ValidatePortName(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhasePacket, "port name must not be empty")
	}
	if strings.HasPrefix(name, "<") {
		return errors.New(errors.PhasePacket, errors.KindInvalidInput).
			Port(name).
			Detail("port names starting with '<' are reserved").
			Build()
	}
	return nil
}

// Pair is a port name with an unencoded value.
type Pair struct {
	Port  string
	Value any
}

// Map holds one packet per port. It is used for component inputs and for
// host-call batches. The zero value is an empty map ready to use. A Map is
// not safe for concurrent use.
type Map struct {
	entries map[string]Packet
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{entries: make(map[string]Packet)}
}

// MapFromPairs wraps each value with Success.
func MapFromPairs(pairs ...Pair) (*Map, error) {
	m := NewMap()
	for _, pr := range pairs {
		if err := m.Insert(pr.Port, Success(pr.Value)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MapFrom wraps each value with Success.
func MapFrom(values map[string]any) (*Map, error) {
	m := NewMap()
	for port, v := range values {
		if err := m.Insert(port, Success(v)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ParseMapJSON reads the port map JSON form: an object of port name to
// packet document. Blank text yields an empty map.
func ParseMapJSON(text string) (*Map, error) {
	m := NewMap()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if err := m.UnmarshalJSON([]byte(text)); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseMapKV reads "name=value" items. The split happens at the first '='
// and the value is kept as JSON text.
func ParseMapKV(items []string) (*Map, error) {
	m := NewMap()
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, errors.ParseFailed("port=value pair", item, nil)
		}
		if err := m.Insert(name, FromJSONText(value)); err != nil {
			return nil, errors.ParseFailed("port=value pair", item, err)
		}
	}
	return m, nil
}

// Insert stores p under a user port name, replacing any previous entry.
func (m *Map) Insert(port string, p Packet) error {
	if err := ValidatePortName(port); err != nil {
		return err
	}
	m.set(port, p)
	return nil
}

func (m *Map) set(port string, p Packet) {
	if m.entries == nil {
		m.entries = make(map[string]Packet)
	}
	m.entries[port] = p
}

// Get returns the packet for port without removing it.
func (m *Map) Get(port string) (Packet, bool) {
	p, ok := m.entries[port]
	return p, ok
}

// Remove deletes and returns the entry for port.
func (m *Map) Remove(port string) (Packet, bool) {
	p, ok := m.entries[port]
	if ok {
		delete(m.entries, port)
	}
	return p, ok
}

// ConsumeRaw removes the packet for port.
func (m *Map) ConsumeRaw(port string) (Packet, error) {
	p, ok := m.Remove(port)
	if !ok {
		return Packet{}, errors.MissingInput(port)
	}
	return p, nil
}

// Consume removes the packet for port and decodes it as T.
func Consume[T any](m *Map, port string) (T, error) {
	var out T
	p, err := m.ConsumeRaw(port)
	if err != nil {
		return out, err
	}
	if err := p.Decode(&out); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Port == "" {
			e.Port = port
		}
		return out, err
	}
	return out, nil
}

// Has reports whether port has an entry.
func (m *Map) Has(port string) bool {
	_, ok := m.entries[port]
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Names returns the port names in sorted order.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.entries))
	for k := range m.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Range calls fn for each entry in port name order until fn returns false.
func (m *Map) Range(fn func(port string, p Packet) bool) {
	for _, name := range m.Names() {
		if !fn(name, m.entries[name]) {
			return
		}
	}
}

// HasError reports whether any entry is a Failure.
func (m *Map) HasError() bool {
	for _, p := range m.entries {
		if p.IsErr() {
			return true
		}
	}
	return false
}

// TakeError returns the first Failure in port name order.
func (m *Map) TakeError() (string, Packet, bool) {
	for _, name := range m.Names() {
		if p := m.entries[name]; p.IsErr() {
			return name, p, true
		}
	}
	return "", Packet{}, false
}

// ToByteMap renders every entry as B bytes. Failure and Signal entries
// are refused with an error naming the port; m is never modified.
func (m *Map) ToByteMap() (map[string][]byte, error) {
	out := make(map[string][]byte, len(m.entries))
	for _, name := range m.Names() {
		data, err := m.entries[name].BinaryPayload()
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Port = name
			}
			return nil, err
		}
		out[name] = data
	}
	return out, nil
}

// MapFromBytes wraps each B payload as Success(B).
func MapFromBytes(fields map[string][]byte) (*Map, error) {
	m := NewMap()
	for name, data := range fields {
		if err := m.Insert(name, FromBytes(data)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Merge copies other's entries into m. Duplicate ports take other's value.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for k, v := range other.entries {
		m.set(k, v)
	}
}

// TransposeOutput renames the "output" port to "input" so one
// component's result can feed the next.
func (m *Map) TransposeOutput() {
	if p, ok := m.Remove("output"); ok {
		m.set("input", p)
	}
}

// Clone returns a shallow copy.
func (m *Map) Clone() *Map {
	c := &Map{entries: make(map[string]Packet, len(m.entries))}
	for k, v := range m.entries {
		c.entries[k] = v
	}
	return c
}

// MarshalJSON writes an object of port name to packet document.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.entries[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of port name to packet document.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.ParseFailed("port map JSON", string(data), err)
	}
	entries := make(map[string]Packet, len(raw))
	for name, doc := range raw {
		if err := ValidatePortName(name); err != nil {
			return err
		}
		var p Packet
		if err := p.UnmarshalJSON(doc); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Port = name
			}
			return err
		}
		entries[name] = p
	}
	m.entries = entries
	return nil
}
