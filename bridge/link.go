package bridge

import (
	"github.com/wippyai/portflow/codec"
	"github.com/wippyai/portflow/packet"
)

// A link call runs another component on behalf of a guest. The guest sends
// a binding "1" host call with its own origin as namespace, the target
// component as operation and an encoded port map as message. The host
// answers with the complete list of output wrappers.

// EncodeLinkRequest encodes the inputs of a link call. Unlike an
// IncomingPayload, whole packets travel, so failures can be forwarded.
func EncodeLinkRequest(inputs *packet.Map) ([]byte, error) {
	entries := map[string]packet.Packet{}
	if inputs != nil {
		inputs.Range(func(port string, p packet.Packet) bool {
			entries[port] = p
			return true
		})
	}
	return codec.EncodeBinary(entries)
}

func DecodeLinkRequest(data []byte) (*packet.Map, error) {
	var entries map[string]packet.Packet
	if err := codec.DecodeBinary(data, &entries); err != nil {
		return nil, err
	}
	m := packet.NewMap()
	for port, p := range entries {
		if err := m.Insert(port, p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EncodeLinkResponse encodes the output of a link call.
func EncodeLinkResponse(wrappers []packet.Wrapper) ([]byte, error) {
	if wrappers == nil {
		wrappers = []packet.Wrapper{}
	}
	return codec.EncodeBinary(wrappers)
}

func DecodeLinkResponse(data []byte) ([]packet.Wrapper, error) {
	var wrappers []packet.Wrapper
	if err := codec.DecodeBinary(data, &wrappers); err != nil {
		return nil, err
	}
	return wrappers, nil
}
