package port

import (
	"context"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// PortOutput iterates over the packets one port produced.
type PortOutput[T any] struct {
	name    string
	packets []packet.Packet
}

// OutputOf drains port from s and returns a typed iterator over its
// packets.
func OutputOf[T any](ctx context.Context, s *Stream, port string) (*PortOutput[T], error) {
	packets, err := s.DrainPort(ctx, port)
	if err != nil {
		return nil, err
	}
	return &PortOutput[T]{name: port, packets: packets}, nil
}

func (o *PortOutput[T]) Name() string {
	return o.name
}

// Len returns how many packets are left.
func (o *PortOutput[T]) Len() int {
	return len(o.packets)
}

// Next returns the next raw packet.
func (o *PortOutput[T]) Next() (packet.Packet, bool) {
	if len(o.packets) == 0 {
		return packet.Packet{}, false
	}
	p := o.packets[0]
	o.packets = o.packets[1:]
	return p, true
}

// DeserializeNext decodes the next packet. It fails with end_of_output
// once the port is exhausted.
func (o *PortOutput[T]) DeserializeNext() (T, error) {
	var out T
	p, ok := o.Next()
	if !ok {
		return out, errors.EndOfOutput(o.name)
	}
	if err := p.Decode(&out); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Port == "" {
			e.Port = o.name
		}
		return out, err
	}
	return out, nil
}

// All decodes every remaining packet, stopping at the first failure.
func (o *PortOutput[T]) All() ([]T, error) {
	out := make([]T, 0, len(o.packets))
	for o.Len() > 0 {
		v, err := o.DeserializeNext()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
