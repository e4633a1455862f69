// Package engine runs the Wren guest on wazero.
//
// The guest is a WebAssembly reactor module built from the Wren sources and
// the shim in guest/wren_host.c. This package compiles it, provides its
// wren_host imports and exposes its exports as the Guest interface.
//
// # Architecture
//
//	WazeroEngine  - Owns the wazero runtime, WASI and the wren_host module
//	WazeroModule  - A compiled guest; creates one instance per NewGuest call
//	WazeroGuest   - A running instance, mirroring the Wren C API
//
// # Guest ABI
//
// The guest exports the Wren C API under its C names (wrenInterpret,
// wrenGetSlotDouble, ...), plus:
//
//	wrenhost_abi_version_1                     marker, no behavior
//	wrenhost_new_vm(user, init, min, growth, rel) -> vm
//	malloc, realloc, free                      libc allocator
//
// Every pointer and slot index is an i32; doubles are f64.
//
// The shim installs one WrenConfiguration whose callbacks all call the
// wren_host module:
//
//	reallocate(ptr, size, user) -> ptr         all Wren memory
//	error(vm, type, module, line, message)
//	write(vm, text)
//	bind_method(vm, module, class, static, sig) -> id
//	bind_class(vm, module, class) -> id
//	call_foreign(vm, id)                       from method trampoline id
//	allocate(vm, id)                           from class trampoline id
//	finalize(data, id)                         from class trampoline id
//	load_module(vm, name) -> source
//	resolve_module(vm, importer, name) -> name
//
// Ids index fixed trampoline pools compiled into the shim, so at most
// MaxForeignMethods methods and MaxForeignClasses classes can be bound per VM.
//
// # Memory
//
// Wren's reallocate is served by the host on top of the guest's libc
// allocator, so live bytes can be reported by Stats. Strings the host hands
// to the guest are copied into blocks from the same allocator; the ones Wren
// keeps (module sources, resolved names) are released by Wren through
// reallocate.
//
// # Re-entrancy
//
// Host imports run nested inside the guest call that triggered them and may
// call back into the same instance. The calling instance is carried in the
// context passed to every guest call.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use.
// WazeroGuest is NOT thread-safe and should be used by a single goroutine.
package engine
