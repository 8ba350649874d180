package guest

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// ComponentDispatcher serves guest calls from a boundary.Registry. Each
// component output is forwarded to the host as it is produced; Done
// becomes a port close. A pre-emission failure on <error> fails the guest
// call itself.
type ComponentDispatcher struct {
	registry *boundary.Registry
}

func NewComponentDispatcher(r *boundary.Registry) *ComponentDispatcher {
	return &ComponentDispatcher{registry: r}
}

func (d *ComponentDispatcher) Dispatch(rt *Runtime, op string, in *bridge.IncomingPayload) ([]byte, error) {
	inputs, err := in.Map()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	s, err := d.registry.Dispatch(ctx, op, inputs)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var failure error
	for {
		w, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch {
		case w.Port == packet.PortError:
			failure = errors.ComponentError(w.Packet.Message())
		case w.Packet.IsDone():
			err = rt.PortClose(w.Port, in.ID)
		default:
			err = rt.PortSend(w.Port, in.ID, w.Packet)
		}
		if err != nil {
			Logger().Warn("forwarding output failed", zap.String("op", op), zap.String("port", w.Port), zap.Error(err))
			return nil, err
		}
	}
	return nil, failure
}
