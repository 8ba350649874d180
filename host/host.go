package host

import (
	"context"
	"encoding/hex"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
)

// Host runs guest components on wazero. It owns the runtime, the bridge
// host module and a compile cache shared by every loaded module.
type Host struct {
	runtime  wazero.Runtime
	handlers map[string]Handler
	modules  map[[32]byte]*Module
	cfg      Config
	mu       sync.RWMutex
}

// New creates a host with its wazero runtime. WASI preview1 is
// instantiated when enabled, then the bridge host module.
func New(ctx context.Context, cfg Config) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	h := &Host{
		runtime:  r,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		modules:  make(map[[32]byte]*Module),
	}
	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			r.Close(ctx)
			return nil, errors.Instantiation(err)
		}
	}
	if err := h.instantiateBridge(ctx); err != nil {
		r.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	Logger().Debug("host created",
		zap.String("module", cfg.HostModule),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Bool("wasi", cfg.WASI))
	return h, nil
}

// Handle installs h for guest host calls on binding. The port binding is
// served by the host itself.
func (h *Host) Handle(binding string, hd Handler) error {
	if binding == bridge.BindingPort {
		return errors.InvalidInput(errors.PhaseHost, "binding \"0\" is reserved for port output")
	}
	if hd == nil {
		return errors.InvalidInput(errors.PhaseHost, "nil handler")
	}
	h.mu.Lock()
	h.handlers[binding] = hd
	h.mu.Unlock()
	return nil
}

func (h *Host) handler(binding string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hd, ok := h.handlers[binding]
	return hd, ok
}

// Module is a compiled guest.
type Module struct {
	compiled wazero.CompiledModule
	digest   [32]byte
}

// Digest returns the hex BLAKE3 digest of the module bytes.
func (m *Module) Digest() string {
	return hex.EncodeToString(m.digest[:])
}

// Load compiles wasm, reusing the compiled module when the same bytes were
// loaded before. The module must export __guest_call.
func (h *Host) Load(ctx context.Context, wasm []byte) (*Module, error) {
	digest := blake3.Sum256(wasm)

	h.mu.RLock()
	m, ok := h.modules[digest]
	h.mu.RUnlock()
	if ok {
		return m, nil
	}

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	if _, ok := compiled.ExportedFunctions()[bridge.ExportGuestCall]; !ok {
		compiled.Close(ctx)
		return nil, errors.Load("module does not export "+bridge.ExportGuestCall, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.modules[digest]; ok {
		compiled.Close(ctx)
		return m, nil
	}
	m = &Module{compiled: compiled, digest: digest}
	h.modules[digest] = m
	Logger().Debug("module compiled", zap.String("digest", m.Digest()))
	return m, nil
}

// LoadFile reads and loads a module from disk.
func (h *Host) LoadFile(ctx context.Context, path string) (*Module, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return h.Load(ctx, wasm)
}

// Instantiate creates an instance of m. Reactor guests have their
// _initialize export run first.
func (h *Host) Instantiate(ctx context.Context, m *Module) (*Instance, error) {
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize").
		WithStderr(os.Stderr)
	mod, err := h.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	if mod.Memory() == nil {
		mod.Close(ctx)
		return nil, errors.New(errors.PhaseHost, errors.KindInstantiation).
			Detail("module has no memory").
			Build()
	}
	return &Instance{
		host:       h,
		mod:        mod,
		guestCall:  mod.ExportedFunction(bridge.ExportGuestCall),
		asyncReply: mod.ExportedFunction(bridge.ExportAsyncHostCallReply),
		digest:     m.Digest(),
	}, nil
}

// Close releases the runtime and every module and instance created from
// it.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}
