package wren

import (
	"context"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/resource"
)

// Runtime creates VMs on a guest backend and routes their callbacks.
// It is safe for concurrent use; the VMs it creates are not.
type Runtime struct {
	backend  engine.Backend
	contexts *resource.Table
}

// NewRuntime creates a runtime over backend, usually an
// *engine.WazeroModule.
func NewRuntime(backend engine.Backend) *Runtime {
	return &Runtime{
		backend:  backend,
		contexts: resource.NewTable(),
	}
}

// NewVM creates a VM in a fresh guest instance.
func (r *Runtime) NewVM(ctx context.Context, opts ...Option) (*Wrapper, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lib, err := cfg.Library.snapshot()
	if err != nil {
		return nil, err
	}

	c := &cell{}
	c.refs.Store(1)

	hc := &hostContext{
		printer: cfg.Printer,
		loader:  cfg.Loader,
		lib:     lib,
		errs:    &errorQueue{},
		objects: resource.NewTable(),
		log:     cfg.Logger,
		cell:    weak.Make(c),
	}
	hc.objects.Subscribe(objectLogger(cfg.Logger))
	key := r.contexts.Insert(tagEntry, hc)
	if key == 0 {
		return nil, errors.Closed("runtime")
	}
	hc.key = uint32(key)

	guest, err := r.backend.NewGuest(ctx, r)
	if err != nil {
		r.contexts.Remove(key)
		return nil, err
	}

	ref, err := guest.NewVM(ctx, engine.VMSettings{
		UserData:          hc.key,
		InitialHeapSize:   cfg.InitialHeapSize,
		MinHeapSize:       cfg.MinHeapSize,
		HeapGrowthPercent: cfg.HeapGrowthPercent,
		RelativeImport:    cfg.EnableRelativeImport,
	})
	if err != nil {
		r.contexts.Remove(key)
		_ = guest.Close(ctx)
		return nil, err
	}

	c.core = &vmCore{
		rt:      r,
		guest:   guest,
		host:    hc,
		handles: resource.NewTable(),
		calls:   make(map[string]*CallHandle),
		log:     cfg.Logger,
		key:     key,
		ref:     ref,
	}

	cfg.Logger.Debug("VM created",
		zap.Uint32("context", hc.key),
		zap.Int("classes", len(lib.classes)),
		zap.Int("methods", len(lib.methods)),
		zap.Stringer("config", &cfg))

	return &Wrapper{cell: c}, nil
}

// LiveVMs returns the number of VMs created and not yet closed.
func (r *Runtime) LiveVMs() int {
	return r.contexts.Len()
}
