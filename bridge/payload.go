package bridge

import (
	"sort"

	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// IncomingPayload is the host-to-guest input of one invocation: the call
// ID the guest threads through its output frames and one B payload per
// input port.
type IncomingPayload struct {
	Fields map[string][]byte
	ID     uint32
}

// incomingWire is the B layout: a two element array [id, {port: bytes}].
type incomingWire struct {
	_      struct{} `cbor:",toarray"`
	ID     uint32
	Fields map[string][]byte
}

// NewIncomingPayload renders inputs as B payloads. Failure and Signal
// entries are refused.
func NewIncomingPayload(id uint32, inputs *packet.Map) (*IncomingPayload, error) {
	fields := map[string][]byte{}
	if inputs != nil {
		var err error
		if fields, err = inputs.ToByteMap(); err != nil {
			return nil, err
		}
	}
	return &IncomingPayload{ID: id, Fields: fields}, nil
}

// DecodeIncomingPayload parses the B form written by Encode.
func DecodeIncomingPayload(data []byte) (*IncomingPayload, error) {
	var w incomingWire
	if err := codec.DecodeBinary(data, &w); err != nil {
		return nil, err
	}
	if w.Fields == nil {
		w.Fields = map[string][]byte{}
	}
	return &IncomingPayload{ID: w.ID, Fields: w.Fields}, nil
}

func (p *IncomingPayload) Encode() ([]byte, error) {
	return codec.EncodeBinary(incomingWire{ID: p.ID, Fields: p.Fields})
}

// Get returns the B payload for port.
func (p *IncomingPayload) Get(port string) ([]byte, error) {
	data, ok := p.Fields[port]
	if !ok {
		return nil, errors.MissingInput(port)
	}
	return data, nil
}

// Ports lists the input ports in sorted order.
func (p *IncomingPayload) Ports() []string {
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map wraps every field as Success(B).
func (p *IncomingPayload) Map() (*packet.Map, error) {
	return packet.MapFromBytes(p.Fields)
}
