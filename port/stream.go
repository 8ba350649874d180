package port

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// EndReason tells how a port stopped producing.
type EndReason uint8

const (
	EndOpen    EndReason = iota // still producing
	EndDone                     // Done observed
	EndDropped                  // producer closed without Done
)

func (r EndReason) String() string {
	switch r {
	case EndDone:
		return "done"
	case EndDropped:
		return "dropped"
	}
	return "open"
}

// Violation is a packet that arrived on a port after its Done.
type Violation struct {
	Port   string
	Packet packet.Packet
}

type event struct {
	w      packet.Wrapper
	closed bool // producer of w.Port finished
}

// Stream is the merged output of several port channels. Per-port order is
// the producer's order; ports interleave freely. A Stream has one consumer.
type Stream struct {
	q          *queue[event]
	g          *errgroup.Group
	gctx       context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	sealCh     chan struct{}
	ended      map[string]EndReason
	live       map[string]int
	receivers  []*Receiver
	pending    []packet.Wrapper
	violations []Violation
	mu         sync.Mutex
	sealed     bool
}

// Merge opens every channel and fuses them into one Stream. The stream ends
// once all channels are closed and drained. Packets are forwarded unchanged.
func Merge(channels ...*Channel) (*Stream, error) {
	receivers := make([]*Receiver, 0, len(channels))
	for _, ch := range channels {
		r, err := ch.Open()
		if err != nil {
			for _, opened := range receivers {
				opened.Close()
			}
			return nil, err
		}
		receivers = append(receivers, r)
	}
	return MergeReceivers(receivers...), nil
}

// MergeReceivers fuses already opened channels.
func MergeReceivers(receivers ...*Receiver) *Stream {
	s := NewOpenStream()
	for _, r := range receivers {
		s.attach(r)
	}
	s.Seal()
	return s
}

// NewOpenStream returns a Stream that accepts channels through Attach
// until Seal is called. It does not end before it is sealed.
func NewOpenStream() *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s := &Stream{
		q:      newQueue[event](),
		g:      g,
		gctx:   gctx,
		cancel: cancel,
		done:   make(chan struct{}),
		sealCh: make(chan struct{}),
		ended:  make(map[string]EndReason),
		live:   make(map[string]int),
	}

	// Holds the group open until Seal.
	g.Go(func() error {
		select {
		case <-s.sealCh:
		case <-gctx.Done():
		}
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			Logger().Warn("stream forwarder stopped", zap.Error(err))
		}
		s.q.close()
		close(s.done)
	}()
	return s
}

// Attach opens ch and merges it into s. It fails once s is sealed.
func (s *Stream) Attach(ch *Channel) error {
	s.mu.Lock()
	sealed := s.sealed
	s.mu.Unlock()
	if sealed {
		return errors.New(errors.PhasePort, errors.KindInvalidInput).
			Port(ch.Name()).
			Detail("stream is sealed").
			Build()
	}
	r, err := ch.Open()
	if err != nil {
		return err
	}
	if !s.attach(r) {
		r.Close()
		return errors.New(errors.PhasePort, errors.KindInvalidInput).
			Port(ch.Name()).
			Detail("stream is sealed").
			Build()
	}
	return nil
}

func (s *Stream) attach(r *Receiver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}
	s.live[r.Name()]++
	s.receivers = append(s.receivers, r)
	s.g.Go(func() error {
		return s.forward(s.gctx, r)
	})
	return true
}

// Seal stops accepting channels. The stream ends once every attached
// channel has closed.
func (s *Stream) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.sealed = true
		close(s.sealCh)
	}
}

func (s *Stream) forward(ctx context.Context, r *Receiver) error {
	sawDone := false
	for {
		w, ok, err := r.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if !sawDone {
				Logger().Debug("port closed without Done", zap.String("port", r.Name()))
			}
			s.q.push(event{w: packet.Wrapper{Port: r.Name()}, closed: true})
			return nil
		}
		if w.Packet.IsDone() {
			sawDone = true
		}
		if !s.q.push(event{w: w}) {
			return nil
		}
	}
}

// observe updates per-port state for an incoming event. It reports whether
// the event carries a wrapper for the consumer.
func (s *Stream) observe(ev event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	port := ev.w.Port
	if ev.closed {
		s.live[port]--
		if s.live[port] <= 0 && s.ended[port] != EndDone {
			s.ended[port] = EndDropped
		}
		return false
	}

	if s.ended[port] == EndDone {
		s.violations = append(s.violations, Violation{Port: port, Packet: ev.w.Packet})
		Logger().Warn("packet after Done", zap.String("port", port), zap.Stringer("packet", ev.w.Packet))
	} else if ev.w.Packet.IsDone() {
		s.ended[port] = EndDone
	}
	return true
}

// recvEvent pops the next event, updating port state. Producer-closed
// markers are returned with visible false.
func (s *Stream) recvEvent(ctx context.Context) (ev event, visible, ok bool, err error) {
	ev, ok, err = s.q.pop(ctx)
	if err != nil || !ok {
		return ev, false, false, err
	}
	return ev, s.observe(ev), true, nil
}

func (s *Stream) recv(ctx context.Context) (packet.Wrapper, bool, error) {
	for {
		ev, visible, ok, err := s.recvEvent(ctx)
		if err != nil || !ok {
			return packet.Wrapper{}, false, err
		}
		if visible {
			return ev.w, true, nil
		}
	}
}

// Next returns the next wrapper in arrival order. ok is false when every
// input has closed.
func (s *Stream) Next(ctx context.Context) (packet.Wrapper, bool, error) {
	if len(s.pending) > 0 {
		w := s.pending[0]
		s.pending = s.pending[1:]
		return w, true, nil
	}
	return s.recv(ctx)
}

// Collect reads the stream to its end.
func (s *Stream) Collect(ctx context.Context) ([]packet.Wrapper, error) {
	var out []packet.Wrapper
	for {
		w, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, w)
	}
}

// DrainPort returns the packets of one port up to its end, excluding the
// Done signal. Wrappers of other ports are kept for Next.
func (s *Stream) DrainPort(ctx context.Context, port string) ([]packet.Packet, error) {
	var out []packet.Packet

	kept := s.pending[:0:0]
	finished := false
	for _, w := range s.pending {
		if finished || w.Port != port {
			kept = append(kept, w)
			continue
		}
		if w.Packet.IsDone() {
			finished = true
			continue
		}
		out = append(out, w.Packet)
	}
	s.pending = kept
	if finished || s.Ended(port) != EndOpen {
		return out, nil
	}

	for {
		ev, visible, ok, err := s.recvEvent(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		w := ev.w
		if !visible {
			if w.Port == port && s.Ended(port) != EndOpen {
				return out, nil
			}
			continue
		}
		if w.Port != port {
			s.pending = append(s.pending, w)
			continue
		}
		if w.Packet.IsDone() {
			return out, nil
		}
		out = append(out, w.Packet)
	}
}

// Buffered returns how many wrappers DrainPort set aside for Next.
func (s *Stream) Buffered() int {
	return len(s.pending)
}

// Ended reports how a port finished, as observed so far by the consumer.
func (s *Stream) Ended(port string) EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended[port]
}

// Violations lists packets observed on a port after its Done.
func (s *Stream) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}

// Flag records a protocol violation detected by a producer-side router.
func (s *Stream) Flag(port string, p packet.Packet) {
	s.mu.Lock()
	s.violations = append(s.violations, Violation{Port: port, Packet: p})
	s.mu.Unlock()
	Logger().Warn("protocol violation", zap.String("port", port), zap.Stringer("packet", p))
}

// Wait blocks until every input has closed or the stream is closed.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close abandons the stream. Producers observe channel_closed on their
// next send.
func (s *Stream) Close() {
	s.mu.Lock()
	receivers := s.receivers
	s.mu.Unlock()
	for _, r := range receivers {
		r.Close()
	}
	s.Seal()
	s.cancel()
	s.q.drop()
}
