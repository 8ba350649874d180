package port

import "github.com/wippyai/portflow/packet"

// Sender is the producer-facing API of one output port.
type Sender struct {
	ch *Channel
}

func NewSender(ch *Channel) *Sender {
	return &Sender{ch: ch}
}

func (s *Sender) Port() string {
	return s.ch.Name()
}

func (s *Sender) Channel() *Channel {
	return s.ch
}

// Send emits v wrapped with the preferred success encoding.
func (s *Sender) Send(v any) error {
	return s.ch.Send(packet.Success(v))
}

// Push emits a packet as is.
func (s *Sender) Push(p packet.Packet) error {
	return s.ch.Send(p)
}

// Done emits v and closes the port.
func (s *Sender) Done(v any) error {
	if err := s.Send(v); err != nil {
		return err
	}
	return s.Close()
}

func (s *Sender) SendException(msg string) error {
	return s.ch.Send(packet.Exception(msg))
}

// DoneException emits an exception and closes the port.
func (s *Sender) DoneException(msg string) error {
	if err := s.SendException(msg); err != nil {
		return err
	}
	return s.Close()
}

// Close emits Done.
func (s *Sender) Close() error {
	return s.ch.Send(packet.Done())
}

// IsClosed reports whether the port has been closed.
func (s *Sender) IsClosed() bool {
	return s.ch.IsClosed()
}
