package wren

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/resource"
)

// vmCore exclusively owns one WrenVM and the guest instance it runs in.
type vmCore struct {
	rt      *Runtime
	guest   engine.Guest
	host    *hostContext
	handles *resource.Table
	calls   map[string]*CallHandle
	log     *zap.Logger
	key     resource.Handle
	ref     engine.VMRef
	freed   bool
}

// VM gives access to a VM's slots for the duration of one host call or
// callback. It must not be retained past the function it was passed to.
type VM struct {
	core *vmCore
	ctx  context.Context
}

// Context returns the context of the guest call the VM is borrowed for.
func (vm *VM) Context() context.Context {
	return vm.ctx
}

// Logger returns the VM's logger.
func (vm *VM) Logger() *zap.Logger {
	return vm.core.log
}

// trap re-raises fatal callback failures and passes other guest errors through.
func (c *vmCore) trap(err error) error {
	var fatal *FatalError
	if stderrors.As(err, &fatal) {
		panic(fatal)
	}
	return err
}

// must panics on a guest failure. Slot operations have no error path: a
// trapped guest is unusable.
func (vm *VM) must(err error) {
	if err != nil {
		panic(vm.core.trap(err))
	}
}

// EnsureSlots grows the slot array to at least n slots.
func (vm *VM) EnsureSlots(n int) {
	if n < 0 {
		panic(errors.InvalidInput(errors.PhaseMarshal, "negative slot count"))
	}
	vm.must(vm.core.guest.EnsureSlots(vm.ctx, vm.core.ref, n))
}

// GetSlotCount returns the number of slots available.
func (vm *VM) GetSlotCount() int {
	n, err := vm.core.guest.GetSlotCount(vm.ctx, vm.core.ref)
	vm.must(err)
	return n
}

// AbortFiber aborts the running fiber with the value in slot as its error.
func (vm *VM) AbortFiber(slot int) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.AbortFiber(vm.ctx, vm.core.ref, slot))
}

// CollectGarbage runs a full collection.
func (vm *VM) CollectGarbage() {
	vm.must(vm.core.guest.CollectGarbage(vm.ctx, vm.core.ref))
}

// MemoryStats reports the memory Wren currently holds.
func (vm *VM) MemoryStats() wrenruntime.AllocStats {
	return vm.core.guest.Stats()
}

// abort fails the running fiber with msg.
func (vm *VM) abort(msg string) {
	g, ref := vm.core.guest, vm.core.ref
	if err := g.EnsureSlots(vm.ctx, ref, 1); err != nil {
		vm.core.log.Error("abort fiber", zap.Error(err))
		return
	}
	if err := g.SetSlotString(vm.ctx, ref, 0, msg); err != nil {
		vm.core.log.Error("abort fiber", zap.Error(err))
		return
	}
	if err := g.AbortFiber(vm.ctx, ref, 0); err != nil {
		vm.core.log.Error("abort fiber", zap.Error(err))
	}
}

func (c *vmCore) interpret(ctx context.Context, module, source string) error {
	c.host.errs.reset()
	res, err := c.guest.Interpret(ctx, c.ref, module, source)
	if err != nil {
		return c.trap(err)
	}
	switch res {
	case engine.ResultSuccess:
		return nil
	case engine.ResultCompileError:
		return c.host.errs.compileError(module)
	case engine.ResultRuntimeError:
		return c.host.errs.runtimeError()
	default:
		return errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Symbol(engine.ExportInterpret).
			Detail("unknown result %d", res).
			Build()
	}
}

func (c *vmCore) call(ctx context.Context, h *CallHandle) error {
	if h == nil || h.released || h.core != c {
		return errors.InvalidInput(errors.PhaseRuntime, "call handle is released or belongs to another VM")
	}
	c.host.errs.reset()
	res, err := c.guest.Call(ctx, c.ref, h.ref)
	if err != nil {
		return c.trap(err)
	}
	switch res {
	case engine.ResultSuccess:
		return nil
	case engine.ResultRuntimeError:
		return c.host.errs.runtimeError()
	case engine.ResultCompileError:
		panic(errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Symbol(engine.ExportCall).
			Detail("call of %s reported a compile error", h.signature).
			Build())
	default:
		return errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Symbol(engine.ExportCall).
			Detail("unknown result %d", res).
			Build()
	}
}

// cachedCallHandle returns the call handle for sig, making it on first use.
func (c *vmCore) cachedCallHandle(ctx context.Context, sig string) (*CallHandle, error) {
	if h, ok := c.calls[sig]; ok {
		return h, nil
	}
	h, err := c.makeCallHandle(ctx, sig)
	if err != nil {
		return nil, err
	}
	h.internal = true
	c.calls[sig] = h
	return h, nil
}

// teardown releases the VM. It runs once, under an exclusive borrow.
func (c *vmCore) teardown(ctx context.Context) error {
	var errs []error

	for _, id := range c.handles.Handles() {
		v, ok := c.handles.Get(id)
		if !ok {
			continue
		}
		h := v.(*Handle)
		if !h.internal {
			c.log.Warn("releasing handle still held at VM close", zap.Uint32("handle", uint32(h.ref)))
		}
		if err := h.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.calls = nil

	if err := c.guest.FreeVM(ctx, c.ref); err != nil {
		errs = append(errs, err)
	}
	c.freed = true

	c.rt.contexts.Remove(c.key)

	if err := c.guest.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	c.log.Debug("VM closed", zap.Uint32("context", uint32(c.key)))
	return stderrors.Join(errs...)
}
