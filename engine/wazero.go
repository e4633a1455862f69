package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/wren-runtime/errors"
)

// WazeroEngine compiles and instantiates Wren guests with wazero.
type WazeroEngine struct {
	runtime    wazero.Runtime
	cfg        Config
	hostInitMu sync.Mutex
	hostDone   bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone aborts running guest code when the call's context is done.
	// The VM is unusable afterwards.
	CloseOnContextDone bool

	// Stdout and Stderr receive the guest's WASI output. Wren's System.print goes
	// through the write import instead; these only see libc diagnostics.
	// Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	e := &WazeroEngine{}
	if cfg != nil {
		e.cfg = *cfg
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if err := e.initHostModules(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

// initHostModules instantiates WASI and the wren_host import module once per runtime.
func (e *WazeroEngine) initHostModules(ctx context.Context) error {
	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostDone {
		return nil
	}

	if e.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return errors.Registration(errors.PhaseHost, wasi_snapshot_preview1.ModuleName, "*", err)
		}
	}

	if _, err := buildHostModule(e.runtime).Instantiate(ctx); err != nil {
		return errors.Registration(errors.PhaseHost, HostModule, "*", err)
	}

	e.hostDone = true
	return nil
}

// LoadGuest compiles a Wren guest and checks it exports the host ABI.
func (e *WazeroEngine) LoadGuest(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty guest module")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	if err := checkExports(compiled.ExportedFunctions()); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	if err := checkImports(compiled.ImportedFunctions()); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	return &WazeroModule{engine: e, compiled: compiled}, nil
}

func checkExports(defs map[string]api.FunctionDefinition) error {
	var missing []string
	for _, name := range requiredExports {
		if _, ok := defs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &errors.MissingExportsError{Exports: missing}
	}
	return nil
}

func checkImports(defs []api.FunctionDefinition) error {
	known := hostImportNames()
	var unknown []string
	for _, def := range defs {
		mod, name, _ := def.Import()
		if mod != HostModule {
			continue
		}
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.New(errors.PhaseLoad, errors.KindMissingImport).
			Symbol(HostModule).
			Detail("guest imports unknown functions %v", unknown).
			Build()
	}
	return nil
}

// Close releases the runtime and every guest instance created from it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled Wren guest. It is a Backend: every NewGuest
// call creates an independent instance.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// NewGuest instantiates the guest and binds its exports.
func (m *WazeroModule) NewGuest(ctx context.Context, cb Callbacks) (Guest, error) {
	if cb == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "nil callbacks")
	}

	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions("_initialize").
		WithSysWalltime().
		WithSysNanotime()
	if m.engine.cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(m.engine.cfg.Stdout)
	}
	if m.engine.cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(m.engine.cfg.Stderr)
	}

	g := &WazeroGuest{cb: cb, fns: make(map[string]api.Function, len(requiredExports))}

	// Host imports can fire from the start function.
	instance, err := m.engine.runtime.InstantiateModule(withGuest(ctx, g), m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if err := g.bind(ctx, instance); err != nil {
		_ = instance.Close(ctx)
		return nil, err
	}

	debugf("guest instantiated: memory=%d bytes", g.mem.Size())
	return g, nil
}

// Close releases the compiled module.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

func (g *WazeroGuest) bind(ctx context.Context, instance api.Module) error {
	g.mod = instance
	g.mem = wrapMemory(instance.Memory())
	if g.mem == nil {
		return errors.New(errors.PhaseLoad, errors.KindMissingExport).
			Symbol("memory").
			Detail("guest does not export its memory").
			Build()
	}

	var missing []string
	for _, name := range requiredExports {
		fn := instance.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		g.fns[name] = fn
	}
	if len(missing) > 0 {
		return &errors.MissingExportsError{Exports: missing}
	}

	g.heap = newHeap(exportLibc{
		mallocFn:  g.fns[ExportMalloc],
		reallocFn: g.fns[ExportRealloc],
		freeFn:    g.fns[ExportFree],
	})

	// Length out-parameter for wrenGetSlotBytes; kept out of the accounting.
	scratch, err := g.heap.c.malloc(withGuest(ctx, g), 4)
	if err != nil {
		return errors.Trap(ExportMalloc, err)
	}
	if scratch == 0 {
		return fmt.Errorf("allocate scratch: %w", errors.AllocationFailed(errors.PhaseRuntime, 4))
	}
	g.scratch = scratch
	return nil
}
