package wren

import (
	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
)

// SlotType classifies the value in a slot.
type SlotType int32

const (
	SlotBool    = SlotType(engine.TypeBool)
	SlotNum     = SlotType(engine.TypeNum)
	SlotForeign = SlotType(engine.TypeForeign)
	SlotList    = SlotType(engine.TypeList)
	SlotMap     = SlotType(engine.TypeMap)
	SlotNull    = SlotType(engine.TypeNull)
	SlotString  = SlotType(engine.TypeString)
	SlotUnknown = SlotType(engine.TypeUnknown)
)

func (t SlotType) String() string {
	switch t {
	case SlotBool:
		return "bool"
	case SlotNum:
		return "num"
	case SlotForeign:
		return "foreign"
	case SlotList:
		return "list"
	case SlotMap:
		return "map"
	case SlotNull:
		return "null"
	case SlotString:
		return "string"
	default:
		return "unknown"
	}
}

// checkSlot panics unless slot is below the current slot count.
func (vm *VM) checkSlot(slot int) {
	n := vm.GetSlotCount()
	if slot < 0 || slot >= n {
		panic(errors.OutOfBounds(errors.PhaseMarshal, []string{"slot"}, slot, n))
	}
}

// GetSlotType classifies the value in slot.
func (vm *VM) GetSlotType(slot int) SlotType {
	vm.checkSlot(slot)
	t, err := vm.core.guest.GetSlotType(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	if t < engine.TypeBool || t > engine.TypeUnknown {
		return SlotUnknown
	}
	return SlotType(t)
}

// GetSlotBool reads a bool. ok is false if the slot holds another type.
func (vm *VM) GetSlotBool(slot int) (v bool, ok bool) {
	if vm.GetSlotType(slot) != SlotBool {
		return false, false
	}
	v, err := vm.core.guest.GetSlotBool(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	return v, true
}

// GetSlotDouble reads a number. ok is false if the slot holds another type.
func (vm *VM) GetSlotDouble(slot int) (v float64, ok bool) {
	if vm.GetSlotType(slot) != SlotNum {
		return 0, false
	}
	v, err := vm.core.guest.GetSlotDouble(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	return v, true
}

// GetSlotBytes reads a string's raw bytes. ok is false if the slot holds
// another type.
func (vm *VM) GetSlotBytes(slot int) (v []byte, ok bool) {
	if vm.GetSlotType(slot) != SlotString {
		return nil, false
	}
	v, err := vm.core.guest.GetSlotBytes(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	return v, true
}

// GetSlotString reads a string. ok is false if the slot holds another type.
func (vm *VM) GetSlotString(slot int) (v string, ok bool) {
	if vm.GetSlotType(slot) != SlotString {
		return "", false
	}
	v, err := vm.core.guest.GetSlotString(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	return v, true
}

func (vm *VM) SetSlotBool(slot int, v bool) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotBool(vm.ctx, vm.core.ref, slot, v))
}

func (vm *VM) SetSlotDouble(slot int, v float64) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotDouble(vm.ctx, vm.core.ref, slot, v))
}

func (vm *VM) SetSlotNull(slot int) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotNull(vm.ctx, vm.core.ref, slot))
}

// SetSlotBytes stores v as a Wren string. It may contain any bytes.
func (vm *VM) SetSlotBytes(slot int, v []byte) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotBytes(vm.ctx, vm.core.ref, slot, v))
}

func (vm *VM) SetSlotString(slot int, v string) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotString(vm.ctx, vm.core.ref, slot, v))
}

// SetSlotNewList stores a new empty list in slot.
func (vm *VM) SetSlotNewList(slot int) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.SetSlotNewList(vm.ctx, vm.core.ref, slot))
}

// GetListCount returns the number of elements of the list in slot.
// ok is false if the slot does not hold a list.
func (vm *VM) GetListCount(slot int) (n int, ok bool) {
	if vm.GetSlotType(slot) != SlotList {
		return 0, false
	}
	n, err := vm.core.guest.GetListCount(vm.ctx, vm.core.ref, slot)
	vm.must(err)
	return n, true
}

// GetListElement copies the element at index into elementSlot. Negative
// indexes count from the end.
func (vm *VM) GetListElement(listSlot, index, elementSlot int) {
	vm.checkSlot(elementSlot)
	n := vm.listCount(listSlot)
	i := index
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		panic(errors.OutOfBounds(errors.PhaseMarshal, []string{"list"}, index, n))
	}
	vm.must(vm.core.guest.GetListElement(vm.ctx, vm.core.ref, listSlot, index, elementSlot))
}

// InsertInList inserts the value in elementSlot before index. Negative
// indexes count from the end, so -1 appends.
func (vm *VM) InsertInList(listSlot, index, elementSlot int) {
	vm.checkSlot(elementSlot)
	n := vm.listCount(listSlot)
	i := index
	if i < 0 {
		i += n + 1
	}
	if i < 0 || i > n {
		panic(errors.OutOfBounds(errors.PhaseMarshal, []string{"list"}, index, n))
	}
	vm.must(vm.core.guest.InsertInList(vm.ctx, vm.core.ref, listSlot, index, elementSlot))
}

func (vm *VM) listCount(slot int) int {
	n, ok := vm.GetListCount(slot)
	if !ok {
		panic(errors.TypeMismatch(errors.PhaseMarshal, []string{"slot"}, "list", vm.GetSlotType(slot).String()))
	}
	return n
}

// GetVariable loads a top-level variable into slot. The module and variable
// must exist; check with HasModule and HasVariable first.
func (vm *VM) GetVariable(module, name string, slot int) {
	vm.checkSlot(slot)
	vm.must(vm.core.guest.GetVariable(vm.ctx, vm.core.ref, module, name, slot))
}

// HasVariable reports whether module defines a top-level variable name.
// The module must exist.
func (vm *VM) HasVariable(module, name string) bool {
	ok, err := vm.core.guest.HasVariable(vm.ctx, vm.core.ref, module, name)
	vm.must(err)
	return ok
}

// HasModule reports whether module has been imported or interpreted.
func (vm *VM) HasModule(module string) bool {
	ok, err := vm.core.guest.HasModule(vm.ctx, vm.core.ref, module)
	vm.must(err)
	return ok
}
