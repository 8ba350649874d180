package boundary

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

// Invoke runs c on its own goroutine and returns the merged stream of its
// outputs plus the reserved <error> and <status> ports.
//
// Inputs are checked against sig before c runs. A failure before anything
// was emitted becomes a single Failure::Error on <error>. A failure after
// emission started is sent in-band as Failure::Error on the affected open
// ports, or on <error> when every port is already done. On exit every port that sent packets but no Done gets one.
func Invoke(ctx context.Context, c Component, sig *Signature, inputs *packet.Map) (*port.Stream, error) {
	if sig == nil {
		return nil, errors.InvalidInput(errors.PhaseComponent, "signature is required")
	}
	if inputs == nil {
		inputs = packet.NewMap()
	}

	out := newOutputs(sig.OutputNames())
	errCh := port.NewChannel(packet.PortError)
	statusCh := port.NewChannel(packet.PortStatus)

	s, err := port.Merge(append(out.channels(), errCh, statusCh)...)
	if err != nil {
		return nil, err
	}

	inv := &invocation{
		component: c,
		sig:       sig,
		inputs:    inputs,
		out:       out,
		errCh:     errCh,
		statusCh:  statusCh,
		log:       Logger().With(zap.String("op", sig.Name)),
	}
	go inv.run(ctx)
	return s, nil
}

type invocation struct {
	component Component
	sig       *Signature
	inputs    *packet.Map
	out       *Outputs
	errCh     *port.Channel
	statusCh  *port.Channel
	log       *zap.Logger
}

func (inv *invocation) run(ctx context.Context) {
	inv.log.Debug("invoke", zap.Strings("inputs", inv.inputs.Names()))

	err := inv.sig.CheckInputs(inv.inputs)
	if err == nil {
		err = inv.execute(ctx)
	}
	if err != nil {
		inv.fail(err)
	}
	inv.closePorts()

	if sr, ok := inv.component.(StatusReporter); ok {
		if v, ok := sr.Status(); ok {
			if err := inv.statusCh.Send(packet.Status(v)); err != nil {
				inv.log.Debug("status dropped", zap.Error(err))
			}
		}
	}
	inv.errCh.Close()
	inv.statusCh.Close()
}

func (inv *invocation) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.log.Error("component panicked", zap.Any("panic", r))
			err = errors.New(errors.PhaseComponent, errors.KindError).
				Detail("panic: %v", r).
				Build()
		}
	}()
	return inv.component.Execute(ctx, inv.inputs, inv.out)
}

func (inv *invocation) fail(err error) {
	msg := err.Error()
	targets := inv.openPorts()
	if !inv.out.started() || len(targets) == 0 {
		inv.log.Debug("component failed", zap.Bool("emitted", inv.out.started()), zap.Error(err))
		if sendErr := inv.errCh.Send(packet.Error(msg)); sendErr != nil {
			inv.log.Warn("error report dropped", zap.Error(sendErr))
		}
		return
	}

	inv.log.Debug("component failed while streaming", zap.Error(err))
	var e *errors.Error
	if stderrors.As(err, &e) && e.Port != "" {
		for _, s := range targets {
			if s.Port() == e.Port {
				targets = []*port.Sender{s}
				break
			}
		}
	}
	for _, s := range targets {
		_ = s.Push(packet.Error(msg))
	}
}

// openPorts returns the senders that emitted something and are not done.
func (inv *invocation) openPorts() []*port.Sender {
	var open []*port.Sender
	for _, name := range inv.out.order {
		s := inv.out.senders[name]
		if s.Channel().Sent() > 0 && !s.IsClosed() {
			open = append(open, s)
		}
	}
	return open
}

func (inv *invocation) closePorts() {
	for _, s := range inv.openPorts() {
		inv.log.Debug("synthesizing Done", zap.String("port", s.Port()))
		_ = s.Close()
	}
	for _, name := range inv.out.order {
		inv.out.senders[name].Channel().Close()
	}
}
