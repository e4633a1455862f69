package wren

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/resource"
)

// RelativeImportMarker starts module names resolved relative to the importer.
const RelativeImportMarker = "@"

var _ engine.Callbacks = (*Runtime)(nil)

// hostContext resolves the context of a VM from its user data. A VM
// without one is a fatal inconsistency.
func (r *Runtime) hostContext(ctx context.Context, g engine.Guest, vm engine.VMRef) *hostContext {
	key, err := g.UserData(ctx, vm)
	if err != nil {
		panic(&FatalError{Detail: fmt.Sprintf("read VM user data: %v", err)})
	}
	return r.contextByKey(key)
}

func (r *Runtime) contextByKey(key uint32) *hostContext {
	v, ok := r.contexts.Get(resource.Handle(key))
	if !ok {
		panic(&FatalError{Detail: fmt.Sprintf("no host context %d", key)})
	}
	return v.(*hostContext)
}

// Error queues a VM error for the call that is running.
func (r *Runtime) Error(ctx context.Context, g engine.Guest, vm engine.VMRef, typ engine.ErrorType, module string, line int, message string) {
	hc := r.hostContext(ctx, g, vm)
	hc.errs.push(wrenError{typ: typ, module: module, line: line, message: message})
}

// Write forwards script output to the printer.
func (r *Runtime) Write(ctx context.Context, g engine.Guest, vm engine.VMRef, text string) {
	hc := r.hostContext(ctx, g, vm)
	defer func() {
		if p := recover(); p != nil {
			hc.log.Error("printer panicked", zap.String("panic", panicMessage(p)))
		}
	}()
	hc.printer.Print(text)
}

// BindForeignMethod resolves a foreign method declaration to a method id.
func (r *Runtime) BindForeignMethod(ctx context.Context, g engine.Guest, vm engine.VMRef, module, class string, isStatic bool, signature string) uint32 {
	hc := r.hostContext(ctx, g, vm)
	id := hc.lib.methodID(module, class, isStatic, signature)
	if id == 0 {
		hc.log.Debug("foreign method not bound",
			zap.String("module", module),
			zap.String("class", class),
			zap.Bool("static", isStatic),
			zap.String("signature", signature))
	}
	return id
}

// BindForeignClass resolves a foreign class declaration to a class id.
func (r *Runtime) BindForeignClass(ctx context.Context, g engine.Guest, vm engine.VMRef, module, class string) uint32 {
	hc := r.hostContext(ctx, g, vm)
	id := hc.lib.classID(module, class)
	if id == 0 {
		hc.log.Debug("foreign class not bound", zap.String("module", module), zap.String("class", class))
	}
	return id
}

// LoadModule asks the loader for an imported module's source.
func (r *Runtime) LoadModule(ctx context.Context, g engine.Guest, vm engine.VMRef, name string) (source string, ok bool) {
	hc := r.hostContext(ctx, g, vm)
	defer func() {
		if p := recover(); p != nil {
			hc.log.Error("loader panicked", zap.String("module", name), zap.String("panic", panicMessage(p)))
			source, ok = "", false
		}
	}()
	return hc.loader.Load(name)
}

// ResolveModule rewrites "@name" imported from importer to "importer/name".
// Only the first marker is significant.
func (r *Runtime) ResolveModule(_ context.Context, _ engine.Guest, _ engine.VMRef, importer, name string) string {
	return resolveModule(importer, name)
}

func resolveModule(importer, name string) string {
	rest, ok := strings.CutPrefix(name, RelativeImportMarker)
	if !ok {
		return name
	}
	return importer + "/" + rest
}

// CallForeign runs a bound foreign method.
func (r *Runtime) CallForeign(ctx context.Context, g engine.Guest, ref engine.VMRef, method uint32) {
	hc := r.hostContext(ctx, g, ref)
	c := hc.upgrade()
	vm := &VM{core: c.core, ctx: ctx}

	guard(vm, func() error {
		defer c.borrowShared()()
		m := hc.lib.method(method)
		if m == nil {
			return fmt.Errorf("unknown foreign method %d", method)
		}
		return m.Fn(vm)
	})
}

// Allocate constructs the native value of a new foreign instance.
func (r *Runtime) Allocate(ctx context.Context, g engine.Guest, ref engine.VMRef, class uint32) {
	hc := r.hostContext(ctx, g, ref)
	c := hc.upgrade()
	vm := &VM{core: c.core, ctx: ctx}

	guard(vm, func() error {
		defer c.borrowShared()()
		bc := hc.lib.class(class)
		if bc == nil {
			return fmt.Errorf("unknown foreign class %d", class)
		}

		ptr, err := g.SetSlotNewForeign(ctx, ref, 0, 0, engine.EnvelopeSize)
		if err != nil {
			return c.core.trap(err)
		}
		if ptr == 0 {
			return fmt.Errorf("unable to allocate %s.%s", bc.module, bc.name)
		}
		env := engine.Envelope{Context: hc.key, Tag: uint32(bc.tag)}
		if err := g.WriteEnvelope(ptr, env); err != nil {
			return err
		}

		var value any
		if bc.construct != nil {
			value, err = bc.construct(vm)
			if err != nil {
				return err
			}
		} else {
			value = reflect.New(bc.goType).Interface()
		}
		return vm.bindForeign(ptr, env, bc, value)
	})
}

// Finalize releases the native value of a collected foreign instance. It
// runs during collection and VM teardown, so it borrows nothing.
func (r *Runtime) Finalize(_ context.Context, g engine.Guest, data uint32, _ uint32) {
	env, err := g.ReadEnvelope(data)
	if err != nil {
		Logger().Error("read foreign envelope", zap.Uint32("ptr", data), zap.Error(err))
		return
	}
	if env.Object == 0 {
		return
	}
	v, ok := r.contexts.Get(resource.Handle(env.Context))
	if !ok {
		Logger().Warn("finalizer for unknown context", zap.Uint32("context", env.Context))
		return
	}
	hc := v.(*hostContext)
	hc.objects.Remove(resource.Handle(env.Object))
	env.Object = 0
	if err := g.WriteEnvelope(data, env); err != nil {
		hc.log.Error("clear foreign envelope", zap.Uint32("ptr", data), zap.Error(err))
	}
}

// guard runs fn and converts a panic or error into a fiber abort, so no
// panic unwinds through guest frames. Fatal errors pass through.
func guard(vm *VM, fn func() error) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				if fatal, ok := p.(*FatalError); ok {
					panic(fatal)
				}
				err = panicError{msg: panicMessage(p)}
			}
		}()
		return fn()
	}()
	if err != nil {
		vm.core.log.Debug("aborting fiber", zap.Error(err))
		vm.abort(err.Error())
	}
}

type panicError struct {
	msg string
}

func (e panicError) Error() string { return e.msg }

// panicMessage extracts a best-effort message from a recovered value.
func panicMessage(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
