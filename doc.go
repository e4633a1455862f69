// Package wrenruntime embeds the Wren scripting language in Go.
//
// The Wren VM is compiled, together with a small C shim, to a WebAssembly
// reactor module and executed with wazero. The host never touches Wren's C
// structures directly: every interaction goes through the guest's exported
// C API and every VM callback arrives through a host import.
//
// # Architecture Overview
//
//	wrenruntime/         Root package with guest Memory and Allocator interfaces
//	├── wren/            VM lifecycle, slots, foreign classes, handles, callbacks
//	├── engine/          wazero integration and the guest ABI
//	├── resource/        Tagged handle tables
//	├── errors/          Structured error types
//	└── cmd/wren/        Script runner and REPL
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	guest, err := eng.LoadGuest(ctx, wrenWasm)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt := wren.NewRuntime(guest)
//	vm, err := rt.NewVM(ctx, wren.WithPrinter(wren.StdoutPrinter()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close(ctx)
//
//	if err := vm.Interpret(ctx, "main", `System.print("hello")`); err != nil {
//	    log.Fatal(err)
//	}
//
// # Foreign Classes
//
// Go types become Wren foreign classes through a ModuleLibrary:
//
//	counter := wren.NewClass(func(vm *wren.VM) (*Counter, error) {
//	    return &Counter{}, nil
//	}).Method("increment()", func(c *Counter, vm *wren.VM) error {
//	    c.n++
//	    return nil
//	})
//
//	lib := wren.NewModuleLibrary()
//	lib.Module("main").Class("Counter", counter)
//
// # Thread Safety
//
// A VM is single-threaded. Runtime may create VMs from several goroutines,
// but each VM and its Wrapper clones must be driven by one goroutine at a time.
//
// # Memory Model
//
// Each VM runs in its own guest instance. Wren's allocations go through the
// host so live guest bytes can be observed with MemoryStats. Guest linear
// memory grows but never shrinks; closing the VM releases the whole instance.
package wrenruntime
