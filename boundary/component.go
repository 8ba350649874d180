package boundary

import (
	"context"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

// Component is a unit of work invoked with one batch of inputs. It writes
// its results to out and should emit Done on every port it used.
type Component interface {
	Execute(ctx context.Context, inputs *packet.Map, out *Outputs) error
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, inputs *packet.Map, out *Outputs) error

func (f ComponentFunc) Execute(ctx context.Context, inputs *packet.Map, out *Outputs) error {
	return f(ctx, inputs, out)
}

// StatusReporter is implemented by components that report a terminal
// status once Execute has returned. ok false means no status.
type StatusReporter interface {
	Status() (v any, ok bool)
}

// Input removes the packet for port from inputs and decodes it as T.
func Input[T any](inputs *packet.Map, port string) (T, error) {
	return packet.Consume[T](inputs, port)
}

// Outputs is the set of output ports opened for one invocation.
type Outputs struct {
	senders map[string]*port.Sender
	order   []string
}

func newOutputs(names []string) *Outputs {
	o := &Outputs{senders: make(map[string]*port.Sender, len(names)), order: names}
	for _, name := range names {
		o.senders[name] = port.NewSender(port.NewChannel(name))
	}
	return o
}

// Port returns the sender for a declared output port.
func (o *Outputs) Port(name string) (*port.Sender, error) {
	s, ok := o.senders[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseComponent, "output port", name)
	}
	return s, nil
}

// Send emits v on a declared port.
func (o *Outputs) Send(name string, v any) error {
	s, err := o.Port(name)
	if err != nil {
		return err
	}
	return s.Send(v)
}

// Done emits v on a declared port and closes it.
func (o *Outputs) Done(name string, v any) error {
	s, err := o.Port(name)
	if err != nil {
		return err
	}
	return s.Done(v)
}

// Names lists the declared output ports.
func (o *Outputs) Names() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

func (o *Outputs) channels() []*port.Channel {
	out := make([]*port.Channel, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.senders[name].Channel())
	}
	return out
}

// started reports whether any port has accepted a packet.
func (o *Outputs) started() bool {
	for _, s := range o.senders {
		if s.Channel().Sent() > 0 {
			return true
		}
	}
	return false
}
