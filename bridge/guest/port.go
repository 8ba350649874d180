package guest

import (
	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/packet"
)

// PortSend sends p on port for the invocation id.
func (rt *Runtime) PortSend(port string, id uint32, p packet.Packet) error {
	return rt.portCall(port, bridge.OpOutput, id, &p)
}

// PortSendClose sends p on port and closes it.
func (rt *Runtime) PortSendClose(port string, id uint32, p packet.Packet) error {
	return rt.portCall(port, bridge.OpOutputDone, id, &p)
}

// PortClose closes port without a payload.
func (rt *Runtime) PortClose(port string, id uint32) error {
	return rt.portCall(port, bridge.OpDone, id, nil)
}

func (rt *Runtime) portCall(port, op string, id uint32, p *packet.Packet) error {
	frame, err := bridge.EncodeFrame(id, p)
	if err != nil {
		return err
	}
	_, err = rt.HostCall(bridge.BindingPort, port, op, frame)
	return err
}

// PortSender writes one output port of one invocation.
type PortSender struct {
	rt   *Runtime
	port string
	id   uint32
}

// NewPortSender binds port of invocation id on the default runtime.
func NewPortSender(port string, id uint32) *PortSender {
	return defaultRuntime.Sender(port, id)
}

// Sender binds port of invocation id.
func (rt *Runtime) Sender(port string, id uint32) *PortSender {
	return &PortSender{rt: rt, port: port, id: id}
}

func (s *PortSender) Port() string {
	return s.port
}

// Send emits v with the preferred success encoding.
func (s *PortSender) Send(v any) error {
	return s.rt.PortSend(s.port, s.id, packet.Success(v))
}

// Done emits v and closes the port.
func (s *PortSender) Done(v any) error {
	return s.rt.PortSendClose(s.port, s.id, packet.Success(v))
}

func (s *PortSender) SendException(msg string) error {
	return s.rt.PortSend(s.port, s.id, packet.Exception(msg))
}

// Close closes the port.
func (s *PortSender) Close() error {
	return s.rt.PortClose(s.port, s.id)
}
