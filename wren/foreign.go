package wren

import (
	"reflect"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/resource"
)

// GetSlotForeign returns the native value of the foreign object in slot if
// it was created as a *T. Any other value, including foreign objects of
// other types, yields false.
func GetSlotForeign[T any](vm *VM, slot int) (*T, bool) {
	obj, ok := vm.foreignObject(slot, tagFor[T]())
	if !ok {
		return nil, false
	}
	p, ok := obj.value.(*T)
	return p, ok
}

// foreignObject reads the envelope in slot and resolves it if its tag is tag.
func (vm *VM) foreignObject(slot int, tag resource.Tag) (*foreignObject, bool) {
	if vm.GetSlotType(slot) != SlotForeign {
		return nil, false
	}
	ptr, err := vm.core.guest.GetSlotForeign(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	if ptr == 0 {
		return nil, false
	}
	env, err := vm.core.guest.ReadEnvelope(ptr)
	if err != nil {
		return nil, false
	}
	if env.Context != vm.core.host.key || resource.Tag(env.Tag) != tag {
		return nil, false
	}
	v, ok := vm.core.host.objects.GetTyped(resource.Handle(env.Object), tag)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*foreignObject)
	return obj, ok
}

// SetSlotNewForeign stores obj in slot as an instance of the foreign class
// module.class, as if a script had constructed it. The class must be
// registered for T and declared by the script. Slot 0 is overwritten with
// the class object.
func SetSlotNewForeign[T any](vm *VM, module, class string, obj T, slot int) (*T, error) {
	goType := reflect.TypeFor[T]().String()
	fail := func(sentinel *errors.Error) (*T, error) {
		return nil, errors.ForeignSend(sentinel, module, class, goType)
	}

	if vm.GetSlotCount() < slot+1 {
		vm.EnsureSlots(slot + 1)
	}
	vm.checkSlot(slot)

	bc := vm.core.host.lib.lookupClass(module, class)
	if bc == nil {
		return fail(errors.ErrNoForeignClass)
	}
	if bc.tag != tagFor[T]() {
		return fail(errors.ErrClassMismatch)
	}
	if !vm.HasModule(module) || !vm.HasVariable(module, class) {
		return fail(errors.ErrNoWrenClass)
	}
	vm.GetVariable(module, class, 0)
	if vm.GetSlotType(0) != SlotUnknown {
		return fail(errors.ErrNoWrenClass)
	}

	p := new(T)
	*p = obj
	if err := vm.newForeign(slot, bc, p); err != nil {
		return nil, errors.ForeignSend(errors.ErrNoMemory, module, class, goType)
	}
	return p, nil
}

// newForeign creates a foreign instance of the class in slot 0 into slot and
// binds value to it.
func (vm *VM) newForeign(slot int, bc *boundClass, value any) error {
	g, hc := vm.core.guest, vm.core.host
	ptr, err := g.SetSlotNewForeign(vm.ctx, vm.core.ref, slot, 0, engine.EnvelopeSize)
	if err != nil {
		return vm.core.trap(err)
	}
	if ptr == 0 {
		return errors.ErrNoMemory
	}
	env := engine.Envelope{Context: hc.key, Tag: uint32(bc.tag)}
	if err := g.WriteEnvelope(ptr, env); err != nil {
		return err
	}
	return vm.bindForeign(ptr, env, bc, value)
}

// bindForeign stores value in the object table and records it in the
// envelope at ptr.
func (vm *VM) bindForeign(ptr uint32, env engine.Envelope, bc *boundClass, value any) error {
	hc := vm.core.host
	h := hc.objects.Insert(bc.tag, &foreignObject{value: value, class: bc, log: vm.core.log})
	if h == 0 {
		return errors.ErrNoMemory
	}
	env.Object = uint32(h)
	if err := vm.core.guest.WriteEnvelope(ptr, env); err != nil {
		hc.objects.Remove(h)
		return err
	}
	return nil
}
