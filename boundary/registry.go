package boundary

import (
	"context"
	"strings"
	"sync"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

type entry struct {
	sig       *Signature
	component Component
}

// Registry maps operation names to components.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds sig.Name to c. Registering a name twice fails.
func (r *Registry) Register(sig *Signature, c Component) error {
	if sig == nil || c == nil {
		return errors.InvalidInput(errors.PhaseComponent, "signature and component are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[sig.Name]; dup {
		return errors.New(errors.PhaseComponent, errors.KindInvalidInput).
			Detail("operation %q already registered", sig.Name).
			Build()
	}
	r.entries[sig.Name] = entry{sig: sig, component: c}
	return nil
}

// RegisterFunc parses a single WIT function declaration and binds it to fn.
func (r *Registry) RegisterFunc(decl string, fn ComponentFunc) error {
	sig, err := ParseSignature(decl)
	if err != nil {
		return err
	}
	return r.Register(sig, fn)
}

// RegisterWIT binds every function of witText to the component of the
// same name. Every declared function needs an implementation.
func (r *Registry) RegisterWIT(witText string, impls map[string]Component) error {
	sigs, err := ParseSignatures(witText)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(sigs) {
		c, ok := impls[name]
		if !ok {
			return errors.NotFound(errors.PhaseComponent, "implementation", name)
		}
		if err := r.Register(sigs[name], c); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the signature and component registered for op.
func (r *Registry) Lookup(op string) (*Signature, Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[op]
	return e.sig, e.component, ok
}

// Ops lists the registered operations in sorted order.
func (r *Registry) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.entries)
}

// Dispatch invokes the component registered for op.
func (r *Registry) Dispatch(ctx context.Context, op string, inputs *packet.Map) (*port.Stream, error) {
	sig, c, ok := r.Lookup(op)
	if !ok {
		return nil, errors.New(errors.PhaseComponent, errors.KindNotFound).
			Value(op).
			Detail("operation %q not found, valid operations: %s", op, strings.Join(r.Ops(), ", ")).
			Build()
	}
	return Invoke(ctx, c, sig, inputs)
}
