package guest

import (
	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/packet"
)

// Link calls other components through the host. Origin identifies the
// calling component to the host.
type Link struct {
	rt     *Runtime
	Origin string
}

// NewLink creates a link on the default runtime.
func NewLink(origin string) *Link {
	return defaultRuntime.Link(origin)
}

func (rt *Runtime) Link(origin string) *Link {
	return &Link{rt: rt, Origin: origin}
}

// Call invokes target with inputs. fn receives every output wrapper once
// the host completes the call.
func (l *Link) Call(target string, inputs *packet.Map, fn func([]packet.Wrapper, error)) error {
	req, err := bridge.EncodeLinkRequest(inputs)
	if err != nil {
		return err
	}
	l.rt.AsyncHostCall(bridge.BindingLink, l.Origin, target, req).Then(func(data []byte, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(bridge.DecodeLinkResponse(data))
	})
	return nil
}
