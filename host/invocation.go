package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

type invocationKey struct{}

func invocationFrom(ctx context.Context) *invocation {
	inv, _ := ctx.Value(invocationKey{}).(*invocation)
	return inv
}

type completion struct {
	err  error
	data []byte
	id   uint32
}

// invocation is the state of one guest call. Host functions run on the
// invoking goroutine, so only completions cross goroutines.
type invocation struct {
	host        *Host
	stream      *port.Stream
	log         *zap.Logger
	channels    map[string]*port.Channel
	ended       map[string]bool
	responses   map[uint32][]byte
	errs        map[uint32][]byte
	completions chan completion
	abandon     chan struct{}
	ready       []completion
	op          string
	guestErr    string
	order       []string
	request     []byte
	reply       []byte
	outstanding int
	id          uint32
}

func newInvocation(h *Host, id uint32, op string, request []byte, log *zap.Logger) *invocation {
	return &invocation{
		host:        h,
		stream:      port.NewOpenStream(),
		log:         log,
		channels:    make(map[string]*port.Channel),
		ended:       make(map[string]bool),
		responses:   make(map[uint32][]byte),
		errs:        make(map[uint32][]byte),
		completions: make(chan completion, 16),
		abandon:     make(chan struct{}),
		op:          op,
		request:     request,
		id:          id,
	}
}

// call serves a synchronous host call.
func (inv *invocation) call(ctx context.Context, args callArgs) ([]byte, error) {
	if args.binding == bridge.BindingPort {
		return nil, inv.route(args.namespace, args.operation, args.payload)
	}
	hd, ok := inv.host.handler(args.binding)
	if !ok {
		return nil, errors.NotFound(errors.PhaseHost, "binding", args.binding)
	}
	return hd.HandleCall(ctx, args.namespace, args.operation, args.payload)
}

// dispatch starts an async host call. Port output completes at once; other
// bindings run their handler on a goroutine.
func (inv *invocation) dispatch(ctx context.Context, args callArgs) error {
	if args.binding == bridge.BindingPort {
		err := inv.route(args.namespace, args.operation, args.payload)
		inv.outstanding++
		inv.ready = append(inv.ready, completion{id: args.id, err: err})
		return nil
	}
	hd, ok := inv.host.handler(args.binding)
	if !ok {
		return errors.NotFound(errors.PhaseHost, "binding", args.binding)
	}
	inv.outstanding++
	go func() {
		data, err := hd.HandleCall(ctx, args.namespace, args.operation, args.payload)
		select {
		case inv.completions <- completion{id: args.id, data: data, err: err}:
		case <-inv.abandon:
		}
	}()
	return nil
}

// settle delivers completions until no async call is outstanding.
func (inv *invocation) settle(ctx context.Context, reply func(ctx context.Context, id uint32, code int32) error) error {
	for inv.outstanding > 0 {
		var c completion
		if len(inv.ready) > 0 {
			c = inv.ready[0]
			inv.ready = inv.ready[1:]
		} else {
			select {
			case c = <-inv.completions:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		inv.outstanding--

		code := bridge.CompletionOK
		if c.err != nil {
			inv.errs[c.id] = []byte(c.err.Error())
			code = bridge.CompletionFailed
		} else {
			inv.responses[c.id] = c.data
		}
		if err := reply(ctx, c.id, code); err != nil {
			return err
		}
	}
	return nil
}

// route delivers a port output frame.
func (inv *invocation) route(name, op string, frame []byte) error {
	if !bridge.IsOutputOp(op) {
		return errors.Unsupported(errors.PhaseBridge, "output operation "+op)
	}
	id, p, err := bridge.DecodeFrame(frame)
	if err != nil {
		return err
	}
	if id != inv.id {
		return errors.New(errors.PhaseBridge, errors.KindInvalidInput).
			Port(name).
			Detail("frame for invocation %d, running %d", id, inv.id).
			Build()
	}
	if op != bridge.OpDone {
		if p == nil {
			return errors.New(errors.PhaseBridge, errors.KindCodecDecode).
				Port(name).
				Detail("%s frame without a packet", op).
				Build()
		}
		if err := inv.send(name, *p); err != nil {
			return err
		}
	}
	if op != bridge.OpOutput {
		return inv.send(name, packet.Done())
	}
	return nil
}

func (inv *invocation) channel(name string) (*port.Channel, error) {
	if ch, ok := inv.channels[name]; ok {
		return ch, nil
	}
	ch := port.NewChannel(name)
	if err := inv.stream.Attach(ch); err != nil {
		return nil, err
	}
	inv.channels[name] = ch
	inv.order = append(inv.order, name)
	return ch, nil
}

func (inv *invocation) send(name string, p packet.Packet) error {
	if inv.ended[name] {
		inv.stream.Flag(name, p)
		return errors.New(errors.PhaseBridge, errors.KindChannelClosed).
			Port(name).
			Detail("port already received Done").
			Build()
	}
	ch, err := inv.channel(name)
	if err != nil {
		return err
	}
	if err := ch.Send(p); err != nil {
		return err
	}
	if p.IsDone() {
		inv.ended[name] = true
	}
	return nil
}

// fail reports a failed guest call on the <error> port.
func (inv *invocation) fail(msg string) {
	inv.log.Debug("guest call failed", zap.String("error", msg))
	ch, err := inv.channel(packet.PortError)
	if err != nil {
		return
	}
	if err := ch.Send(packet.Error(msg)); err != nil {
		inv.log.Debug("error port closed", zap.Error(err))
	}
	ch.Close()
}

// finish closes every port channel and seals the stream. Ports left open
// by the guest get a synthesized Done.
func (inv *invocation) finish() {
	for _, name := range inv.order {
		ch := inv.channels[name]
		if !ch.IsClosed() && !inv.ended[name] && name != packet.PortError {
			inv.log.Debug("synthesizing Done", zap.String("port", name))
			_ = ch.Send(packet.Done())
		}
		ch.Close()
	}
	close(inv.abandon)
	inv.stream.Seal()
}
