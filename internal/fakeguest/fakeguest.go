// Package fakeguest is an in-memory engine.Backend for tests.
//
// It does not compile Wren. Sources are registered with Script and run as
// Go functions that drive the host through the same callbacks a real guest
// makes: binding, allocation, foreign calls, printing, imports and errors.
package fakeguest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/engine"
)

// Diagnostic is a compile error reported for a registered source.
type Diagnostic struct {
	Module  string
	Message string
	Line    int
}

// Frame is one stack frame of a runtime error.
type Frame struct {
	Module   string
	Function string
	Line     int
}

// Backend creates fake guests sharing one set of registered scripts.
type Backend struct {
	scripts map[string]func(*Session)
	compile map[string][]Diagnostic
	calls   map[string]func(*Session)
	guests  []*Guest
	mu      sync.Mutex

	// FailNewGuest, when set, is returned by NewGuest.
	FailNewGuest error
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		scripts: make(map[string]func(*Session)),
		compile: make(map[string][]Diagnostic),
		calls:   make(map[string]func(*Session)),
	}
}

// Script registers the behavior of a source text.
func (b *Backend) Script(source string, fn func(s *Session)) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[source] = fn
	return b
}

// CompileError makes source fail to compile with diags.
func (b *Backend) CompileError(source string, diags ...Diagnostic) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compile[source] = diags
	return b
}

// OnCall registers the behavior of calling signature through a call handle.
// The receiver and arguments are in the session's slots.
func (b *Backend) OnCall(signature string, fn func(s *Session)) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[signature] = fn
	return b
}

// NewGuest implements engine.Backend.
func (b *Backend) NewGuest(_ context.Context, cb engine.Callbacks) (engine.Guest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailNewGuest != nil {
		return nil, b.FailNewGuest
	}
	g := &Guest{
		b:         b,
		cb:        cb,
		vms:       make(map[engine.VMRef]*vmState),
		handles:   make(map[engine.HandleRef]*handleState),
		envelopes: make(map[uint32]engine.Envelope),
		Released:  make(map[engine.HandleRef]int),
		next:      1024,
	}
	b.guests = append(b.guests, g)
	return g, nil
}

// Guests returns every guest created so far.
func (b *Backend) Guests() []*Guest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.guests)
}

// Last returns the most recently created guest.
func (b *Backend) Last() *Guest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.guests) == 0 {
		return nil
	}
	return b.guests[len(b.guests)-1]
}

func (b *Backend) script(source string) (func(*Session), []Diagnostic, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if diags, ok := b.compile[source]; ok {
		return nil, diags, false
	}
	fn, ok := b.scripts[source]
	return fn, nil, ok
}

func (b *Backend) call(signature string) (func(*Session), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn, ok := b.calls[signature]
	return fn, ok
}

type vmState struct {
	modules  map[string]map[string]Value
	objects  map[uint32]*Object
	aborted  *string
	slots    []Value
	settings engine.VMSettings
	freed    bool
}

type handleState struct {
	call  string
	value Value
	live  bool
}

// Guest is one fake guest instance.
type Guest struct {
	b         *Backend
	cb        engine.Callbacks
	vms       map[engine.VMRef]*vmState
	handles   map[engine.HandleRef]*handleState
	envelopes map[uint32]engine.Envelope
	stats     wrenruntime.AllocStats
	next      uint32

	// Released counts ReleaseHandle calls per handle.
	Released map[engine.HandleRef]int
	// LeakedHandles is the number of handles still live when a VM was freed.
	LeakedHandles int
	// CallHandlesMade counts MakeCallHandle calls.
	CallHandlesMade int
	// Aborts lists the messages fibers were aborted with.
	Aborts []string
	// Imports lists the modules imported, by resolved name.
	Imports []string
	// FailForeignAlloc makes SetSlotNewForeign return a null pointer.
	FailForeignAlloc bool
	// Closed is set by Close.
	Closed bool
}

var _ engine.Guest = (*Guest)(nil)

func (g *Guest) alloc(size uint32) uint32 {
	ptr := g.next
	g.next += (size + 15) &^ 15
	if size == 0 {
		g.next += 16
	}
	g.stats.Allocs++
	g.stats.LiveBytes += uint64(size)
	g.stats.PeakBytes = max(g.stats.PeakBytes, g.stats.LiveBytes)
	return ptr
}

func (g *Guest) vm(ref engine.VMRef) (*vmState, error) {
	if g.Closed {
		return nil, fmt.Errorf("guest closed")
	}
	v, ok := g.vms[ref]
	if !ok || v.freed {
		return nil, fmt.Errorf("no VM at %d", ref)
	}
	return v, nil
}

func (g *Guest) slot(ref engine.VMRef, slot int) (*vmState, *Value, error) {
	v, err := g.vm(ref)
	if err != nil {
		return nil, nil, err
	}
	if slot < 0 || slot >= len(v.slots) {
		return nil, nil, fmt.Errorf("slot %d out of range (%d slots)", slot, len(v.slots))
	}
	return v, &v.slots[slot], nil
}

// Slots returns a copy of the VM's slots.
func (g *Guest) Slots(ref engine.VMRef) []Value {
	v, err := g.vm(ref)
	if err != nil {
		return nil
	}
	return slices.Clone(v.slots)
}

// Objects returns the VM's foreign objects in allocation order.
func (g *Guest) Objects(ref engine.VMRef) []*Object {
	v, ok := g.vms[ref]
	if !ok {
		return nil
	}
	out := make([]*Object, 0, len(v.objects))
	for _, o := range v.objects {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b *Object) int { return int(a.Ptr) - int(b.Ptr) })
	return out
}

// VMs returns the refs of every VM created in the guest.
func (g *Guest) VMs() []engine.VMRef {
	out := make([]engine.VMRef, 0, len(g.vms))
	for ref := range g.vms {
		out = append(out, ref)
	}
	slices.Sort(out)
	return out
}

func (g *Guest) NewVM(_ context.Context, s engine.VMSettings) (engine.VMRef, error) {
	if g.Closed {
		return 0, fmt.Errorf("guest closed")
	}
	ref := engine.VMRef(g.alloc(256))
	g.vms[ref] = &vmState{
		settings: s,
		modules:  make(map[string]map[string]Value),
		objects:  make(map[uint32]*Object),
	}
	return ref, nil
}

func (g *Guest) FreeVM(ctx context.Context, ref engine.VMRef) error {
	v, err := g.vm(ref)
	if err != nil {
		return err
	}
	for _, o := range g.Objects(ref) {
		g.finalize(ctx, v, o)
	}
	for _, h := range g.handles {
		if h.live {
			g.LeakedHandles++
		}
	}
	v.freed = true
	return nil
}

func (g *Guest) UserData(_ context.Context, ref engine.VMRef) (uint32, error) {
	v, err := g.vm(ref)
	if err != nil {
		return 0, err
	}
	return v.settings.UserData, nil
}

func (g *Guest) CollectGarbage(ctx context.Context, ref engine.VMRef) error {
	v, err := g.vm(ref)
	if err != nil {
		return err
	}
	for _, o := range g.Objects(ref) {
		if o.Dropped {
			g.finalize(ctx, v, o)
		}
	}
	return nil
}

func (g *Guest) finalize(ctx context.Context, v *vmState, o *Object) {
	if o.Finalized {
		return
	}
	o.Finalized = true
	delete(v.objects, o.Ptr)
	g.stats.LiveBytes -= uint64(o.Size)
	g.stats.Frees++
	g.cb.Finalize(ctx, g, o.Ptr, o.Class.id)
}

func (g *Guest) Interpret(ctx context.Context, ref engine.VMRef, module, source string) (engine.InterpretResult, error) {
	v, err := g.vm(ref)
	if err != nil {
		return 0, err
	}
	fn, diags, ok := g.b.script(source)
	if !ok {
		if len(diags) == 0 {
			diags = []Diagnostic{{Module: module, Line: 1, Message: "Unknown source."}}
		}
		g.reportCompile(ctx, ref, module, diags)
		return engine.ResultCompileError, nil
	}
	if v.modules[module] == nil {
		v.modules[module] = make(map[string]Value)
	}
	return g.run(ctx, ref, v, module, fn), nil
}

func (g *Guest) reportCompile(ctx context.Context, ref engine.VMRef, module string, diags []Diagnostic) {
	for _, d := range diags {
		m := d.Module
		if m == "" {
			m = module
		}
		g.cb.Error(ctx, g, ref, engine.ErrorCompile, m, d.Line, d.Message)
	}
}

type abortSignal struct {
	message string
	frames  []Frame
}

func (g *Guest) run(ctx context.Context, ref engine.VMRef, v *vmState, module string, fn func(*Session)) (res engine.InterpretResult) {
	s := &Session{g: g, v: v, ref: ref, ctx: ctx, module: module}
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		a, ok := p.(abortSignal)
		if !ok {
			panic(p)
		}
		v.aborted = nil
		g.cb.Error(ctx, g, ref, engine.ErrorRuntime, "", -1, a.message)
		for _, f := range a.frames {
			g.cb.Error(ctx, g, ref, engine.ErrorStackTrace, f.Module, f.Line, f.Function)
		}
		res = engine.ResultRuntimeError
	}()
	fn(s)
	return engine.ResultSuccess
}

func (g *Guest) MakeCallHandle(_ context.Context, ref engine.VMRef, signature string) (engine.HandleRef, error) {
	if _, err := g.vm(ref); err != nil {
		return 0, err
	}
	g.CallHandlesMade++
	h := engine.HandleRef(g.alloc(16))
	g.handles[h] = &handleState{call: signature, live: true}
	return h, nil
}

func (g *Guest) Call(ctx context.Context, ref engine.VMRef, method engine.HandleRef) (engine.InterpretResult, error) {
	v, err := g.vm(ref)
	if err != nil {
		return 0, err
	}
	h, ok := g.handles[method]
	if !ok || !h.live || h.call == "" {
		return 0, fmt.Errorf("invalid call handle %d", method)
	}
	fn, ok := g.b.call(h.call)
	if !ok {
		sig := h.call
		fn = func(s *Session) {
			s.Abort(fmt.Sprintf("Receiver does not implement '%s'.", sig))
		}
	}
	return g.run(ctx, ref, v, "", fn), nil
}

func (g *Guest) ReleaseHandle(_ context.Context, ref engine.VMRef, hr engine.HandleRef) error {
	if _, err := g.vm(ref); err != nil {
		return err
	}
	g.Released[hr]++
	if h, ok := g.handles[hr]; ok {
		h.live = false
	}
	return nil
}

func (g *Guest) GetSlotCount(_ context.Context, ref engine.VMRef) (int, error) {
	v, err := g.vm(ref)
	if err != nil {
		return 0, err
	}
	return len(v.slots), nil
}

func (g *Guest) EnsureSlots(_ context.Context, ref engine.VMRef, n int) error {
	v, err := g.vm(ref)
	if err != nil {
		return err
	}
	for len(v.slots) < n {
		v.slots = append(v.slots, Null())
	}
	return nil
}

func (g *Guest) GetSlotType(_ context.Context, ref engine.VMRef, slot int) (engine.WrenType, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return 0, err
	}
	return val.Type, nil
}

func (g *Guest) GetSlotBool(_ context.Context, ref engine.VMRef, slot int) (bool, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return false, err
	}
	return val.Bool, nil
}

func (g *Guest) GetSlotBytes(_ context.Context, ref engine.VMRef, slot int) ([]byte, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return nil, err
	}
	return slices.Clone(val.Bytes), nil
}

func (g *Guest) GetSlotDouble(_ context.Context, ref engine.VMRef, slot int) (float64, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return 0, err
	}
	return val.Num, nil
}

func (g *Guest) GetSlotForeign(_ context.Context, ref engine.VMRef, slot int) (uint32, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return 0, err
	}
	if val.Object == nil {
		return 0, nil
	}
	return val.Object.Ptr, nil
}

func (g *Guest) GetSlotString(_ context.Context, ref engine.VMRef, slot int) (string, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return "", err
	}
	return string(val.Bytes), nil
}

func (g *Guest) GetSlotHandle(_ context.Context, ref engine.VMRef, slot int) (engine.HandleRef, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return 0, err
	}
	h := engine.HandleRef(g.alloc(16))
	g.handles[h] = &handleState{value: *val, live: true}
	return h, nil
}

func (g *Guest) set(ref engine.VMRef, slot int, nv Value) error {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return err
	}
	*val = nv
	return nil
}

func (g *Guest) SetSlotBool(_ context.Context, ref engine.VMRef, slot int, b bool) error {
	return g.set(ref, slot, Bool(b))
}

func (g *Guest) SetSlotBytes(_ context.Context, ref engine.VMRef, slot int, b []byte) error {
	return g.set(ref, slot, Value{Type: engine.TypeString, Bytes: slices.Clone(b)})
}

func (g *Guest) SetSlotDouble(_ context.Context, ref engine.VMRef, slot int, n float64) error {
	return g.set(ref, slot, Num(n))
}

func (g *Guest) SetSlotNewForeign(_ context.Context, ref engine.VMRef, slot, classSlot int, size uint32) (uint32, error) {
	v, cls, err := g.slot(ref, classSlot)
	if err != nil {
		return 0, err
	}
	if cls.Class == nil || !cls.Class.Foreign {
		return 0, fmt.Errorf("slot %d does not hold a foreign class", classSlot)
	}
	if _, _, err := g.slot(ref, slot); err != nil {
		return 0, err
	}
	if g.FailForeignAlloc {
		return 0, nil
	}
	obj := &Object{Class: cls.Class, Ptr: g.alloc(size), Size: size}
	v.objects[obj.Ptr] = obj
	v.slots[slot] = Value{Type: engine.TypeForeign, Object: obj}
	return obj.Ptr, nil
}

func (g *Guest) SetSlotNewList(_ context.Context, ref engine.VMRef, slot int) error {
	return g.set(ref, slot, Value{Type: engine.TypeList, List: &List{}})
}

func (g *Guest) SetSlotNull(_ context.Context, ref engine.VMRef, slot int) error {
	return g.set(ref, slot, Null())
}

func (g *Guest) SetSlotString(_ context.Context, ref engine.VMRef, slot int, s string) error {
	return g.set(ref, slot, Str(s))
}

func (g *Guest) SetSlotHandle(_ context.Context, ref engine.VMRef, slot int, hr engine.HandleRef) error {
	h, ok := g.handles[hr]
	if !ok || !h.live {
		return fmt.Errorf("invalid handle %d", hr)
	}
	return g.set(ref, slot, h.value)
}

func (g *Guest) list(ref engine.VMRef, slot int) (*List, error) {
	_, val, err := g.slot(ref, slot)
	if err != nil {
		return nil, err
	}
	if val.Type != engine.TypeList {
		return nil, fmt.Errorf("slot %d does not hold a list", slot)
	}
	return val.List, nil
}

func (g *Guest) GetListCount(_ context.Context, ref engine.VMRef, slot int) (int, error) {
	l, err := g.list(ref, slot)
	if err != nil {
		return 0, err
	}
	return len(l.Items), nil
}

func (g *Guest) GetListElement(_ context.Context, ref engine.VMRef, listSlot, index, elementSlot int) error {
	l, err := g.list(ref, listSlot)
	if err != nil {
		return err
	}
	if index < 0 {
		index += len(l.Items)
	}
	if index < 0 || index >= len(l.Items) {
		return fmt.Errorf("list index %d out of range", index)
	}
	return g.set(ref, elementSlot, l.Items[index])
}

func (g *Guest) InsertInList(_ context.Context, ref engine.VMRef, listSlot, index, elementSlot int) error {
	l, err := g.list(ref, listSlot)
	if err != nil {
		return err
	}
	_, elem, err := g.slot(ref, elementSlot)
	if err != nil {
		return err
	}
	if index < 0 {
		index += len(l.Items) + 1
	}
	if index < 0 || index > len(l.Items) {
		return fmt.Errorf("list index %d out of range", index)
	}
	l.Items = slices.Insert(l.Items, index, *elem)
	return nil
}

func (g *Guest) GetVariable(_ context.Context, ref engine.VMRef, module, name string, slot int) error {
	v, err := g.vm(ref)
	if err != nil {
		return err
	}
	val, ok := v.modules[module][name]
	if !ok {
		return fmt.Errorf("variable %s.%s not defined", module, name)
	}
	return g.set(ref, slot, val)
}

func (g *Guest) HasVariable(_ context.Context, ref engine.VMRef, module, name string) (bool, error) {
	v, err := g.vm(ref)
	if err != nil {
		return false, err
	}
	vars, ok := v.modules[module]
	if !ok {
		return false, fmt.Errorf("module %q not defined", module)
	}
	_, ok = vars[name]
	return ok, nil
}

func (g *Guest) HasModule(_ context.Context, ref engine.VMRef, module string) (bool, error) {
	v, err := g.vm(ref)
	if err != nil {
		return false, err
	}
	_, ok := v.modules[module]
	return ok, nil
}

func (g *Guest) AbortFiber(_ context.Context, ref engine.VMRef, slot int) error {
	v, val, err := g.slot(ref, slot)
	if err != nil {
		return err
	}
	msg := "null"
	if val.Type == engine.TypeString {
		msg = string(val.Bytes)
	}
	v.aborted = &msg
	g.Aborts = append(g.Aborts, msg)
	return nil
}

func (g *Guest) ReadEnvelope(ptr uint32) (engine.Envelope, error) {
	env, ok := g.envelopes[ptr]
	if !ok {
		return engine.Envelope{}, fmt.Errorf("no envelope at %d", ptr)
	}
	return env, nil
}

func (g *Guest) WriteEnvelope(ptr uint32, env engine.Envelope) error {
	if ptr == 0 {
		return fmt.Errorf("null envelope pointer")
	}
	g.envelopes[ptr] = env
	return nil
}

// Envelope returns the envelope stored at ptr.
func (g *Guest) Envelope(ptr uint32) (engine.Envelope, bool) {
	env, ok := g.envelopes[ptr]
	return env, ok
}

func (g *Guest) Stats() wrenruntime.AllocStats {
	return g.stats
}

func (g *Guest) Close(context.Context) error {
	g.Closed = true
	return nil
}
