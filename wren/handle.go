package wren

import (
	"context"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/resource"
)

// Handle keeps a VM value alive until released. Handles still held when the
// VM closes are released then.
type Handle struct {
	core     *vmCore
	id       resource.Handle
	ref      engine.HandleRef
	internal bool
	released bool
}

// Release drops the VM's reference. Only the first call has an effect.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true
	h.core.handles.Remove(h.id)
	if h.core.freed {
		return nil
	}
	return h.core.trap(h.core.guest.ReleaseHandle(ctx, h.core.ref, h.ref))
}

// Released reports whether the handle no longer refers to a value.
func (h *Handle) Released() bool {
	return h.released
}

// CallHandle is a handle to a resolved method signature.
type CallHandle struct {
	signature string
	Handle
}

// Signature returns the canonical signature the handle calls.
func (h *CallHandle) Signature() string {
	return h.signature
}

func (c *vmCore) track(h *Handle) {
	h.id = c.handles.Insert(tagEntry, h)
}

func (c *vmCore) makeCallHandle(ctx context.Context, sig string) (*CallHandle, error) {
	ref, err := c.guest.MakeCallHandle(ctx, c.ref, sig)
	if err != nil {
		return nil, c.trap(err)
	}
	h := &CallHandle{signature: sig, Handle: Handle{core: c, ref: ref}}
	c.track(&h.Handle)
	return h, nil
}

// GetSlotHandle creates a handle to the value in slot.
func (vm *VM) GetSlotHandle(slot int) *Handle {
	vm.checkSlot(slot)
	ref, err := vm.core.guest.GetSlotHandle(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	h := &Handle{core: vm.core, ref: ref}
	vm.core.track(h)
	return h
}

// SetSlotHandle stores the value h refers to in slot.
func (vm *VM) SetSlotHandle(slot int, h *Handle) {
	vm.checkSlot(slot)
	if h == nil || h.released || h.core != vm.core {
		panic(errors.InvalidInput(errors.PhaseMarshal, "handle is released or belongs to another VM"))
	}
	vm.must(vm.core.guest.SetSlotHandle(vm.ctx, vm.core.ref, slot, h.ref))
}

// MakeCallHandle resolves sig for repeated calls.
func (vm *VM) MakeCallHandle(sig FunctionSignature) *CallHandle {
	h, err := vm.core.makeCallHandle(vm.ctx, sig.String())
	vm.must(err)
	return h
}
