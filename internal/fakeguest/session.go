package fakeguest

import (
	"context"
	"fmt"

	"github.com/wippyai/wren-runtime/engine"
)

// Session is one run of a registered script or call. Its methods stand in
// for the Wren statements a script would execute.
type Session struct {
	g      *Guest
	v      *vmState
	ctx    context.Context
	module string
	ref    engine.VMRef
}

// Module returns the name of the module being run.
func (s *Session) Module() string { return s.module }

// Guest returns the guest the session runs in.
func (s *Session) Guest() *Guest { return s.g }

// VM returns the VM the session runs in.
func (s *Session) VM() engine.VMRef { return s.ref }

// Print writes text and a newline, as System.print does.
func (s *Session) Print(text string) {
	s.g.cb.Write(s.ctx, s.g, s.ref, text)
	s.g.cb.Write(s.ctx, s.g, s.ref, "\n")
}

// Define sets a top-level variable of the current module.
func (s *Session) Define(name string, v Value) {
	s.v.modules[s.module][name] = v
}

// Variable reads a top-level variable of the current module.
func (s *Session) Variable(name string) Value {
	v, ok := s.v.modules[s.module][name]
	if !ok {
		s.Abort(fmt.Sprintf("Variable '%s' is not defined.", name))
	}
	return v
}

// DeclareClass defines a plain class.
func (s *Session) DeclareClass(name string) *Class {
	c := &Class{Module: s.module, Name: name, methods: make(map[string]uint32)}
	s.Define(name, ClassValue(c))
	return c
}

// DeclareForeignClass defines a foreign class, binding it through the host.
func (s *Session) DeclareForeignClass(name string) *Class {
	c := &Class{Module: s.module, Name: name, Foreign: true, methods: make(map[string]uint32)}
	c.id = s.g.cb.BindForeignClass(s.ctx, s.g, s.ref, s.module, name)
	s.Define(name, ClassValue(c))
	return c
}

func (s *Session) setArgs(recv Value, args ...Value) {
	s.v.slots = append(make([]Value, 0, len(args)+1), recv)
	s.v.slots = append(s.v.slots, args...)
}

// checkAbort ends the run if a host callback aborted the fiber.
func (s *Session) checkAbort() {
	if s.v.aborted != nil {
		msg := *s.v.aborted
		s.v.aborted = nil
		panic(abortSignal{message: msg, frames: s.frames()})
	}
}

func (s *Session) frames() []Frame {
	return []Frame{{Module: s.module, Line: 1, Function: "(script)"}}
}

// Construct calls a constructor of c with args in slots 1 and up.
func (s *Session) Construct(c *Class, args ...Value) Value {
	if !c.Foreign {
		return Value{Type: engine.TypeUnknown}
	}
	if c.id == 0 {
		s.Abort(fmt.Sprintf("Foreign class '%s' has no allocator.", c.Name))
	}
	s.setArgs(ClassValue(c), args...)
	s.g.cb.Allocate(s.ctx, s.g, s.ref, c.id)
	s.checkAbort()
	v := s.v.slots[0]
	if v.Type != engine.TypeForeign {
		s.Abort(fmt.Sprintf("Allocator for '%s' did not create an instance.", c.Name))
	}
	return v
}

// Call invokes a foreign method on recv: an instance method for a foreign
// object, a static method for a class object. It returns slot 0.
func (s *Session) Call(recv Value, signature string, args ...Value) Value {
	var cls *Class
	static := false
	switch {
	case recv.Type == engine.TypeForeign && recv.Object != nil:
		cls = recv.Object.Class
	case recv.Class != nil:
		cls = recv.Class
		static = true
	default:
		s.Abort(fmt.Sprintf("Receiver does not implement '%s'.", signature))
	}

	key := signature
	if static {
		key = "static " + signature
	}
	id, ok := cls.methods[key]
	if !ok {
		id = s.g.cb.BindForeignMethod(s.ctx, s.g, s.ref, cls.Module, cls.Name, static, signature)
		cls.methods[key] = id
	}
	if id == 0 {
		s.Abort(fmt.Sprintf("Could not find foreign method '%s' for class %s in module '%s'.", signature, cls.Name, cls.Module))
	}

	s.setArgs(recv, args...)
	s.g.cb.CallForeign(s.ctx, s.g, s.ref, id)
	s.checkAbort()
	return s.v.slots[0]
}

// Import runs the module name, loading it through the host if needed.
func (s *Session) Import(name string) {
	resolved := name
	if s.v.settings.RelativeImport {
		resolved = s.g.cb.ResolveModule(s.ctx, s.g, s.ref, s.module, name)
	}
	if _, ok := s.v.modules[resolved]; ok {
		return
	}
	src, ok := s.g.cb.LoadModule(s.ctx, s.g, s.ref, resolved)
	if !ok {
		s.Abort(fmt.Sprintf("Could not load module '%s'.", resolved))
	}
	fn, diags, ok := s.g.b.script(src)
	if !ok {
		if len(diags) == 0 {
			diags = []Diagnostic{{Module: resolved, Line: 1, Message: "Unknown source."}}
		}
		s.g.reportCompile(s.ctx, s.ref, resolved, diags)
		s.Abort(fmt.Sprintf("Could not compile module '%s'.", resolved))
	}
	s.g.Imports = append(s.g.Imports, resolved)
	s.v.modules[resolved] = make(map[string]Value)
	fn(&Session{g: s.g, v: s.v, ctx: s.ctx, module: resolved, ref: s.ref})
}

// Abort fails the fiber with msg. Frames default to the current module.
func (s *Session) Abort(msg string, frames ...Frame) {
	if len(frames) == 0 {
		frames = s.frames()
	}
	panic(abortSignal{message: msg, frames: frames})
}

// Drop makes a foreign object unreachable; the next collection finalizes it.
func (s *Session) Drop(v Value) {
	if v.Object != nil {
		v.Object.Dropped = true
	}
}

// CollectGarbage finalizes unreachable foreign objects.
func (s *Session) CollectGarbage() {
	if err := s.g.CollectGarbage(s.ctx, s.ref); err != nil {
		panic(err)
	}
}

// Slot returns the value in slot i.
func (s *Session) Slot(i int) Value {
	return s.v.slots[i]
}

// Return stores v in slot 0.
func (s *Session) Return(v Value) {
	if len(s.v.slots) == 0 {
		s.v.slots = append(s.v.slots, v)
		return
	}
	s.v.slots[0] = v
}
