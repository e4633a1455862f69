package wren

import (
	"context"
	"sync/atomic"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// Wrapper is a shared owner of one VM. Clones sequence calls into the same
// VM; none of them may be used concurrently. The VM is released when the
// last owner is closed.
type Wrapper struct {
	cell   *cell
	closed atomic.Bool
}

// Clone returns a new owner of the same VM.
func (w *Wrapper) Clone() *Wrapper {
	if w.closed.Load() {
		panic(errors.Closed("VM wrapper"))
	}
	w.cell.refs.Add(1)
	return &Wrapper{cell: w.cell}
}

// Close drops this owner. Closing the last owner releases handles still
// held, frees the VM (finalizing its foreign objects) and the guest instance.
// Closing the last owner while the VM is borrowed, from inside a foreign
// method for example, fails with a borrow error and leaves the wrapper open.
func (w *Wrapper) Close(ctx context.Context) error {
	if w.closed.Load() {
		return nil
	}
	if w.cell.refs.Load() == 1 {
		release, err := w.cell.tryBorrowExclusive()
		if err != nil {
			return err
		}
		defer release()
	}
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	if w.cell.refs.Add(-1) > 0 {
		return nil
	}
	core := w.cell.core
	if core == nil {
		return nil
	}
	w.cell.core = nil
	return core.teardown(ctx)
}

// with borrows the VM for one operation.
func (w *Wrapper) with(ctx context.Context, fn func(vm *VM) error) error {
	if w.closed.Load() {
		return errors.Closed("VM")
	}
	defer w.cell.borrowShared()()
	core := w.cell.core
	if core == nil {
		return errors.Closed("VM")
	}
	return fn(&VM{core: core, ctx: ctx})
}

// Execute runs fn with the VM borrowed, typically to move values through
// slots around a Call.
func (w *Wrapper) Execute(ctx context.Context, fn func(vm *VM) error) error {
	return w.with(ctx, fn)
}

// Interpret runs source as module. Failures are *errors.CompileError or
// *errors.RuntimeError.
func (w *Wrapper) Interpret(ctx context.Context, module, source string) error {
	return w.with(ctx, func(vm *VM) error {
		return vm.core.interpret(ctx, module, source)
	})
}

// Call invokes sig on the receiver in slot 0, with arguments in the
// following slots. The call handle is made on first use and cached.
func (w *Wrapper) Call(ctx context.Context, sig FunctionSignature) error {
	return w.with(ctx, func(vm *VM) error {
		h, err := vm.core.cachedCallHandle(ctx, sig.String())
		if err != nil {
			return err
		}
		return vm.core.call(ctx, h)
	})
}

// CallHandle invokes a call handle made by MakeCallHandle.
func (w *Wrapper) CallHandle(ctx context.Context, h *CallHandle) error {
	return w.with(ctx, func(vm *VM) error {
		return vm.core.call(ctx, h)
	})
}

// MakeCallHandle resolves sig for repeated calls.
func (w *Wrapper) MakeCallHandle(ctx context.Context, sig FunctionSignature) (*CallHandle, error) {
	var h *CallHandle
	err := w.with(ctx, func(vm *VM) error {
		var err error
		h, err = vm.core.makeCallHandle(ctx, sig.String())
		return err
	})
	return h, err
}

// GetSlotHandle creates a handle to the value in slot.
func (w *Wrapper) GetSlotHandle(ctx context.Context, slot int) (*Handle, error) {
	var h *Handle
	err := w.with(ctx, func(vm *VM) error {
		h = vm.GetSlotHandle(slot)
		return nil
	})
	return h, err
}

// SetSlotHandle stores the value h refers to in slot.
func (w *Wrapper) SetSlotHandle(ctx context.Context, slot int, h *Handle) error {
	return w.with(ctx, func(vm *VM) error {
		vm.SetSlotHandle(slot, h)
		return nil
	})
}

// CollectGarbage runs a full collection.
func (w *Wrapper) CollectGarbage(ctx context.Context) error {
	return w.with(ctx, func(vm *VM) error {
		vm.CollectGarbage()
		return nil
	})
}

// MemoryStats reports the memory Wren currently holds.
func (w *Wrapper) MemoryStats() (wrenruntime.AllocStats, error) {
	var stats wrenruntime.AllocStats
	err := w.with(context.Background(), func(vm *VM) error {
		stats = vm.MemoryStats()
		return nil
	})
	return stats, err
}
