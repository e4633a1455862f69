package engine

import (
	"context"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// VMRef is a guest pointer to a WrenVM.
type VMRef uint32

// HandleRef is a guest pointer to a WrenHandle.
type HandleRef uint32

// VMSettings configures wrenhost_new_vm.
type VMSettings struct {
	UserData          uint32
	InitialHeapSize   uint32
	MinHeapSize       uint32
	HeapGrowthPercent int32
	RelativeImport    bool
}

// Guest is one instance of the Wren guest. Methods mirror the Wren C API;
// a returned error means the guest trapped and the instance is unusable.
//
// Slot arguments are not validated here. Callers check them against
// GetSlotCount first.
type Guest interface {
	NewVM(ctx context.Context, s VMSettings) (VMRef, error)
	FreeVM(ctx context.Context, vm VMRef) error
	UserData(ctx context.Context, vm VMRef) (uint32, error)
	CollectGarbage(ctx context.Context, vm VMRef) error

	Interpret(ctx context.Context, vm VMRef, module, source string) (InterpretResult, error)
	MakeCallHandle(ctx context.Context, vm VMRef, signature string) (HandleRef, error)
	Call(ctx context.Context, vm VMRef, method HandleRef) (InterpretResult, error)
	ReleaseHandle(ctx context.Context, vm VMRef, h HandleRef) error

	GetSlotCount(ctx context.Context, vm VMRef) (int, error)
	EnsureSlots(ctx context.Context, vm VMRef, n int) error
	GetSlotType(ctx context.Context, vm VMRef, slot int) (WrenType, error)

	GetSlotBool(ctx context.Context, vm VMRef, slot int) (bool, error)
	GetSlotBytes(ctx context.Context, vm VMRef, slot int) ([]byte, error)
	GetSlotDouble(ctx context.Context, vm VMRef, slot int) (float64, error)
	GetSlotForeign(ctx context.Context, vm VMRef, slot int) (uint32, error)
	GetSlotString(ctx context.Context, vm VMRef, slot int) (string, error)
	GetSlotHandle(ctx context.Context, vm VMRef, slot int) (HandleRef, error)

	SetSlotBool(ctx context.Context, vm VMRef, slot int, v bool) error
	SetSlotBytes(ctx context.Context, vm VMRef, slot int, v []byte) error
	SetSlotDouble(ctx context.Context, vm VMRef, slot int, v float64) error
	SetSlotNewForeign(ctx context.Context, vm VMRef, slot, classSlot int, size uint32) (uint32, error)
	SetSlotNewList(ctx context.Context, vm VMRef, slot int) error
	SetSlotNull(ctx context.Context, vm VMRef, slot int) error
	SetSlotString(ctx context.Context, vm VMRef, slot int, v string) error
	SetSlotHandle(ctx context.Context, vm VMRef, slot int, h HandleRef) error

	GetListCount(ctx context.Context, vm VMRef, slot int) (int, error)
	GetListElement(ctx context.Context, vm VMRef, listSlot, index, elementSlot int) error
	InsertInList(ctx context.Context, vm VMRef, listSlot, index, elementSlot int) error

	GetVariable(ctx context.Context, vm VMRef, module, name string, slot int) error
	HasVariable(ctx context.Context, vm VMRef, module, name string) (bool, error)
	HasModule(ctx context.Context, vm VMRef, module string) (bool, error)
	AbortFiber(ctx context.Context, vm VMRef, slot int) error

	// ReadEnvelope reads the host record at a foreign object's data pointer.
	ReadEnvelope(ptr uint32) (Envelope, error)
	// WriteEnvelope stores the host record at a foreign object's data pointer.
	WriteEnvelope(ptr uint32, env Envelope) error

	// Stats reports accounting for memory requested through the reallocate import.
	Stats() wrenruntime.AllocStats

	// Close releases the instance.
	Close(ctx context.Context) error
}

// Callbacks receives the calls the Wren VM makes into the host. Every method
// runs on the goroutine that made the outer guest call, nested inside it.
// Implementations must not let panics escape.
type Callbacks interface {
	Error(ctx context.Context, g Guest, vm VMRef, typ ErrorType, module string, line int, message string)
	Write(ctx context.Context, g Guest, vm VMRef, text string)

	// BindForeignMethod returns a method id in [1, MaxForeignMethods], or 0 if unbound.
	BindForeignMethod(ctx context.Context, g Guest, vm VMRef, module, class string, isStatic bool, signature string) uint32
	// BindForeignClass returns a class id in [1, MaxForeignClasses], or 0 if unbound.
	BindForeignClass(ctx context.Context, g Guest, vm VMRef, module, class string) uint32

	LoadModule(ctx context.Context, g Guest, vm VMRef, name string) (string, bool)
	ResolveModule(ctx context.Context, g Guest, vm VMRef, importer, name string) string

	CallForeign(ctx context.Context, g Guest, vm VMRef, method uint32)
	Allocate(ctx context.Context, g Guest, vm VMRef, class uint32)
	Finalize(ctx context.Context, g Guest, data uint32, class uint32)
}

// Backend creates guest instances wired to a set of callbacks.
type Backend interface {
	NewGuest(ctx context.Context, cb Callbacks) (Guest, error)
}
