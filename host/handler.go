package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/bridge"
)

// Handler serves guest host calls on one binding. A returned error is
// delivered to the guest as its host error message.
type Handler interface {
	HandleCall(ctx context.Context, namespace, operation string, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, namespace, operation string, payload []byte) ([]byte, error)

func (f HandlerFunc) HandleCall(ctx context.Context, namespace, operation string, payload []byte) ([]byte, error) {
	return f(ctx, namespace, operation, payload)
}

// LinkHandler serves link calls by running the target operation of reg.
// The response lists every wrapper the operation produced.
func LinkHandler(reg *boundary.Registry) Handler {
	return HandlerFunc(func(ctx context.Context, origin, target string, payload []byte) ([]byte, error) {
		inputs, err := bridge.DecodeLinkRequest(payload)
		if err != nil {
			return nil, err
		}
		s, err := reg.Dispatch(ctx, target, inputs)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		wrappers, err := s.Collect(ctx)
		if err != nil {
			return nil, err
		}
		Logger().Debug("link call",
			zap.String("origin", origin),
			zap.String("target", target),
			zap.Int("outputs", len(wrappers)))
		return bridge.EncodeLinkResponse(wrappers)
	})
}
