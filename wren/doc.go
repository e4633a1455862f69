// Package wren is a safe layer over a Wren VM running in a guest instance.
//
// A Runtime creates VMs on an engine.Backend. Each VM gets its own guest
// instance and a host context holding the printer, the module loader, a
// snapshot of the foreign class library and the queue the VM reports errors
// on. Every callback the VM makes resolves that context through the VM's
// user data; nothing is routed through globals.
//
// # Ownership
//
//	Wrapper ──strong──▶ cell ──▶ vmCore ──▶ WrenVM + guest instance
//	                      ▲                    │
//	                      └──weak── hostContext ◀── user data key
//
// Wrappers share one cell through Clone and Close. Every operation borrows
// the cell; borrows taken by callbacks nest inside the borrow of the call
// that triggered them. Closing the last wrapper needs the cell unborrowed
// and panics otherwise.
//
// # Slots
//
// Slot indexes are checked against the current slot count and violations
// panic. Typed getters return ok=false when the slot holds another type.
//
// # Foreign Classes
//
// A foreign instance's guest data is an envelope naming the host context,
// the Go type tag and an entry in the context's object table. Reading a
// foreign slot as *T checks the tag first:
//
//	counter, ok := wren.GetSlotForeign[Counter](vm, 0)
//
// Foreign methods and constructors run behind a recover boundary. A panic
// or a returned error is written to slot 0 and aborts the fiber, which the
// caller sees as an *errors.RuntimeError.
//
// # Errors
//
// Interpret returns *errors.CompileError or *errors.RuntimeError. Call and
// CallHandle return *errors.RuntimeError. SetSlotNewForeign returns errors
// matching errors.ErrNoForeignClass, ErrNoWrenClass, ErrClassMismatch or
// ErrNoMemory under errors.Is.
package wren
