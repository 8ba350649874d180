package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

// Instance is an instantiated guest. Invocations run one at a time; wasm
// instances are not reentrant.
type Instance struct {
	host       *Host
	mod        api.Module
	guestCall  api.Function
	asyncReply api.Function
	digest     string
	mu         sync.Mutex
	nextID     atomic.Uint32
	closed     atomic.Bool
}

// Invoke calls op on the guest with inputs. Outputs arrive on the returned
// stream as the guest produces them; the stream ends once the guest call
// and every async host call it made have completed. A failing guest call
// is reported as an <error> wrapper.
func (i *Instance) Invoke(ctx context.Context, op string, inputs *packet.Map) (*port.Stream, error) {
	if i.closed.Load() {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Detail("instance is closed").
			Build()
	}
	if inputs == nil {
		inputs = packet.NewMap()
	}

	id := i.nextID.Add(1)
	in, err := bridge.NewIncomingPayload(id, inputs)
	if err != nil {
		return nil, err
	}
	request, err := in.Encode()
	if err != nil {
		return nil, err
	}

	log := Logger().With(
		zap.String("invocation", uuid.NewString()),
		zap.Uint32("id", id),
		zap.String("op", op),
		zap.String("module", i.digest[:12]))
	inv := newInvocation(i.host, id, op, request, log)

	go i.run(ctx, inv)
	return inv.stream, nil
}

func (i *Instance) run(ctx context.Context, inv *invocation) {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer inv.finish()

	if i.closed.Load() {
		inv.fail("instance is closed")
		return
	}

	ctx = context.WithValue(ctx, invocationKey{}, inv)
	inv.log.Debug("guest call", zap.Int("inputs", len(inv.request)))

	res, err := i.guestCall.Call(ctx, uint64(len(inv.op)), uint64(len(inv.request)))
	if err != nil {
		inv.fail(fmt.Sprintf("guest call trapped: %v", err))
		return
	}
	if status := api.DecodeI32(res[0]); status != bridge.GuestCallOK {
		msg := inv.guestErr
		if msg == "" {
			msg = fmt.Sprintf("guest call %q failed with status %d", inv.op, status)
		}
		inv.fail(msg)
		return
	}

	if err := inv.settle(ctx, i.complete); err != nil {
		inv.fail(err.Error())
		return
	}
	inv.log.Debug("guest call complete", zap.Int("ports", len(inv.order)))
}

// complete delivers one async completion to the guest.
func (i *Instance) complete(ctx context.Context, id uint32, code int32) error {
	if i.asyncReply == nil {
		return errors.Unsupported(errors.PhaseHost, "async host calls: guest does not export "+bridge.ExportAsyncHostCallReply)
	}
	if _, err := i.asyncReply.Call(ctx, api.EncodeU32(id), api.EncodeI32(code)); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindAsyncAbort, err, fmt.Sprintf("completion of call %d trapped", id))
	}
	return nil
}

// Component exposes guest operation op as a boundary component. Guest
// outputs are forwarded to the declared ports of the invocation; a failed
// guest call fails the component.
func (i *Instance) Component(op string) boundary.Component {
	return boundary.ComponentFunc(func(ctx context.Context, inputs *packet.Map, out *boundary.Outputs) error {
		s, err := i.Invoke(ctx, op, inputs)
		if err != nil {
			return err
		}
		defer s.Close()

		for {
			w, ok, err := s.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if w.Port == packet.PortError {
				return errors.ComponentError(w.Packet.Message())
			}
			sender, err := out.Port(w.Port)
			if err != nil {
				return err
			}
			if w.Packet.IsDone() {
				err = sender.Close()
			} else {
				err = sender.Push(w.Packet)
			}
			if err != nil {
				return err
			}
		}
	})
}

// Close waits for the running invocation and releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	i.closed.Store(true)
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mod.Close(ctx)
}
