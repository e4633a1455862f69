package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// WazeroGuest is a Guest backed by one wazero module instance.
type WazeroGuest struct {
	mod     api.Module
	mem     wrenruntime.Memory
	fns     map[string]api.Function
	heap    *heap
	cb      Callbacks
	scratch uint32
	closed  atomic.Bool
}

type guestKey struct{}

// withGuest stamps ctx so host imports can find the calling instance.
func withGuest(ctx context.Context, g *WazeroGuest) context.Context {
	if cur, _ := ctx.Value(guestKey{}).(*WazeroGuest); cur == g {
		return ctx
	}
	return context.WithValue(ctx, guestKey{}, g)
}

func guestFromContext(ctx context.Context) *WazeroGuest {
	g, _ := ctx.Value(guestKey{}).(*WazeroGuest)
	return g
}

func (g *WazeroGuest) call(ctx context.Context, name string, args ...uint64) (uint64, error) {
	if g.closed.Load() {
		return 0, errors.Closed("guest")
	}
	res, err := g.fns[name].Call(withGuest(ctx, g), args...)
	if err != nil {
		return 0, errors.Trap(name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

// allocator returns the guest heap bound to ctx.
func (g *WazeroGuest) allocator(ctx context.Context) wrenruntime.Allocator {
	return allocatorAt{Ctx: withGuest(ctx, g), heap: g.heap}
}

// withStrings copies strs into temporary guest blocks for the duration of fn.
func (g *WazeroGuest) withStrings(ctx context.Context, strs []string, fn func(ptrs []uint64) error) error {
	a := g.allocator(ctx)
	ptrs := make([]uint64, 0, len(strs))
	defer func() {
		for _, p := range ptrs {
			a.Free(api.DecodeU32(p))
		}
	}()
	for _, s := range strs {
		p, err := allocString(a, g.mem, s)
		if err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "copy string into guest")
		}
		ptrs = append(ptrs, api.EncodeU32(p))
	}
	return fn(ptrs)
}

func i32(v int) uint64 {
	return api.EncodeI32(int32(v))
}

func vmArg(vm VMRef) uint64 {
	return api.EncodeU32(uint32(vm))
}

// NewVM creates a WrenVM with the host callback table installed.
func (g *WazeroGuest) NewVM(ctx context.Context, s VMSettings) (VMRef, error) {
	relative := uint64(0)
	if s.RelativeImport {
		relative = 1
	}
	res, err := g.call(ctx, ExportNewVM,
		api.EncodeU32(s.UserData),
		api.EncodeU32(s.InitialHeapSize),
		api.EncodeU32(s.MinHeapSize),
		api.EncodeI32(s.HeapGrowthPercent),
		relative,
	)
	if err != nil {
		return 0, err
	}
	vm := VMRef(api.DecodeU32(res))
	if vm == 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, s.InitialHeapSize)
	}
	return vm, nil
}

func (g *WazeroGuest) FreeVM(ctx context.Context, vm VMRef) error {
	_, err := g.call(ctx, ExportFreeVM, vmArg(vm))
	return err
}

func (g *WazeroGuest) UserData(ctx context.Context, vm VMRef) (uint32, error) {
	res, err := g.call(ctx, ExportGetUserData, vmArg(vm))
	return api.DecodeU32(res), err
}

func (g *WazeroGuest) CollectGarbage(ctx context.Context, vm VMRef) error {
	_, err := g.call(ctx, ExportCollectGarbage, vmArg(vm))
	return err
}

func (g *WazeroGuest) Interpret(ctx context.Context, vm VMRef, module, source string) (InterpretResult, error) {
	var result InterpretResult
	err := g.withStrings(ctx, []string{module, source}, func(p []uint64) error {
		res, err := g.call(ctx, ExportInterpret, vmArg(vm), p[0], p[1])
		result = InterpretResult(api.DecodeI32(res))
		return err
	})
	return result, err
}

func (g *WazeroGuest) MakeCallHandle(ctx context.Context, vm VMRef, signature string) (HandleRef, error) {
	var h HandleRef
	err := g.withStrings(ctx, []string{signature}, func(p []uint64) error {
		res, err := g.call(ctx, ExportMakeCallHandle, vmArg(vm), p[0])
		h = HandleRef(api.DecodeU32(res))
		return err
	})
	return h, err
}

func (g *WazeroGuest) Call(ctx context.Context, vm VMRef, method HandleRef) (InterpretResult, error) {
	res, err := g.call(ctx, ExportCall, vmArg(vm), api.EncodeU32(uint32(method)))
	return InterpretResult(api.DecodeI32(res)), err
}

func (g *WazeroGuest) ReleaseHandle(ctx context.Context, vm VMRef, h HandleRef) error {
	_, err := g.call(ctx, ExportReleaseHandle, vmArg(vm), api.EncodeU32(uint32(h)))
	return err
}

func (g *WazeroGuest) GetSlotCount(ctx context.Context, vm VMRef) (int, error) {
	res, err := g.call(ctx, ExportGetSlotCount, vmArg(vm))
	return int(api.DecodeI32(res)), err
}

func (g *WazeroGuest) EnsureSlots(ctx context.Context, vm VMRef, n int) error {
	_, err := g.call(ctx, ExportEnsureSlots, vmArg(vm), i32(n))
	return err
}

func (g *WazeroGuest) GetSlotType(ctx context.Context, vm VMRef, slot int) (WrenType, error) {
	res, err := g.call(ctx, ExportGetSlotType, vmArg(vm), i32(slot))
	return WrenType(api.DecodeI32(res)), err
}

func (g *WazeroGuest) GetSlotBool(ctx context.Context, vm VMRef, slot int) (bool, error) {
	res, err := g.call(ctx, ExportGetSlotBool, vmArg(vm), i32(slot))
	return api.DecodeU32(res) != 0, err
}

func (g *WazeroGuest) GetSlotBytes(ctx context.Context, vm VMRef, slot int) ([]byte, error) {
	res, err := g.call(ctx, ExportGetSlotBytes, vmArg(vm), i32(slot), api.EncodeU32(g.scratch))
	if err != nil {
		return nil, err
	}
	n, err := g.mem.ReadU32(g.scratch)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read byte length")
	}
	ptr := api.DecodeU32(res)
	if n == 0 {
		return []byte{}, nil
	}
	b, err := g.mem.Read(ptr, n)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read bytes")
	}
	return b, nil
}

func (g *WazeroGuest) GetSlotDouble(ctx context.Context, vm VMRef, slot int) (float64, error) {
	res, err := g.call(ctx, ExportGetSlotDouble, vmArg(vm), i32(slot))
	return api.DecodeF64(res), err
}

func (g *WazeroGuest) GetSlotForeign(ctx context.Context, vm VMRef, slot int) (uint32, error) {
	res, err := g.call(ctx, ExportGetSlotForeign, vmArg(vm), i32(slot))
	return api.DecodeU32(res), err
}

func (g *WazeroGuest) GetSlotString(ctx context.Context, vm VMRef, slot int) (string, error) {
	res, err := g.call(ctx, ExportGetSlotString, vmArg(vm), i32(slot))
	if err != nil {
		return "", err
	}
	s, err := readCString(g.mem, api.DecodeU32(res))
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindInvalidData, err, "read string")
	}
	return s, nil
}

func (g *WazeroGuest) GetSlotHandle(ctx context.Context, vm VMRef, slot int) (HandleRef, error) {
	res, err := g.call(ctx, ExportGetSlotHandle, vmArg(vm), i32(slot))
	return HandleRef(api.DecodeU32(res)), err
}

func (g *WazeroGuest) SetSlotBool(ctx context.Context, vm VMRef, slot int, v bool) error {
	b := uint64(0)
	if v {
		b = 1
	}
	_, err := g.call(ctx, ExportSetSlotBool, vmArg(vm), i32(slot), b)
	return err
}

func (g *WazeroGuest) SetSlotBytes(ctx context.Context, vm VMRef, slot int, v []byte) error {
	a := g.allocator(ctx)
	ptr, err := allocBytes(a, g.mem, v)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "copy bytes into guest")
	}
	defer a.Free(ptr)
	_, err = g.call(ctx, ExportSetSlotBytes, vmArg(vm), i32(slot), api.EncodeU32(ptr), api.EncodeU32(uint32(len(v))))
	return err
}

func (g *WazeroGuest) SetSlotDouble(ctx context.Context, vm VMRef, slot int, v float64) error {
	_, err := g.call(ctx, ExportSetSlotDouble, vmArg(vm), i32(slot), api.EncodeF64(v))
	return err
}

func (g *WazeroGuest) SetSlotNewForeign(ctx context.Context, vm VMRef, slot, classSlot int, size uint32) (uint32, error) {
	res, err := g.call(ctx, ExportSetSlotNewForeign, vmArg(vm), i32(slot), i32(classSlot), api.EncodeU32(size))
	return api.DecodeU32(res), err
}

func (g *WazeroGuest) SetSlotNewList(ctx context.Context, vm VMRef, slot int) error {
	_, err := g.call(ctx, ExportSetSlotNewList, vmArg(vm), i32(slot))
	return err
}

func (g *WazeroGuest) SetSlotNull(ctx context.Context, vm VMRef, slot int) error {
	_, err := g.call(ctx, ExportSetSlotNull, vmArg(vm), i32(slot))
	return err
}

func (g *WazeroGuest) SetSlotString(ctx context.Context, vm VMRef, slot int, v string) error {
	return g.withStrings(ctx, []string{v}, func(p []uint64) error {
		_, err := g.call(ctx, ExportSetSlotString, vmArg(vm), i32(slot), p[0])
		return err
	})
}

func (g *WazeroGuest) SetSlotHandle(ctx context.Context, vm VMRef, slot int, h HandleRef) error {
	_, err := g.call(ctx, ExportSetSlotHandle, vmArg(vm), i32(slot), api.EncodeU32(uint32(h)))
	return err
}

func (g *WazeroGuest) GetListCount(ctx context.Context, vm VMRef, slot int) (int, error) {
	res, err := g.call(ctx, ExportGetListCount, vmArg(vm), i32(slot))
	return int(api.DecodeI32(res)), err
}

func (g *WazeroGuest) GetListElement(ctx context.Context, vm VMRef, listSlot, index, elementSlot int) error {
	_, err := g.call(ctx, ExportGetListElement, vmArg(vm), i32(listSlot), i32(index), i32(elementSlot))
	return err
}

func (g *WazeroGuest) InsertInList(ctx context.Context, vm VMRef, listSlot, index, elementSlot int) error {
	_, err := g.call(ctx, ExportInsertInList, vmArg(vm), i32(listSlot), i32(index), i32(elementSlot))
	return err
}

func (g *WazeroGuest) GetVariable(ctx context.Context, vm VMRef, module, name string, slot int) error {
	return g.withStrings(ctx, []string{module, name}, func(p []uint64) error {
		_, err := g.call(ctx, ExportGetVariable, vmArg(vm), p[0], p[1], i32(slot))
		return err
	})
}

func (g *WazeroGuest) HasVariable(ctx context.Context, vm VMRef, module, name string) (bool, error) {
	var ok bool
	err := g.withStrings(ctx, []string{module, name}, func(p []uint64) error {
		res, err := g.call(ctx, ExportHasVariable, vmArg(vm), p[0], p[1])
		ok = api.DecodeU32(res) != 0
		return err
	})
	return ok, err
}

func (g *WazeroGuest) HasModule(ctx context.Context, vm VMRef, module string) (bool, error) {
	var ok bool
	err := g.withStrings(ctx, []string{module}, func(p []uint64) error {
		res, err := g.call(ctx, ExportHasModule, vmArg(vm), p[0])
		ok = api.DecodeU32(res) != 0
		return err
	})
	return ok, err
}

func (g *WazeroGuest) AbortFiber(ctx context.Context, vm VMRef, slot int) error {
	_, err := g.call(ctx, ExportAbortFiber, vmArg(vm), i32(slot))
	return err
}

func (g *WazeroGuest) ReadEnvelope(ptr uint32) (Envelope, error) {
	return readEnvelope(g.mem, ptr)
}

func (g *WazeroGuest) WriteEnvelope(ptr uint32, env Envelope) error {
	return writeEnvelope(g.mem, ptr, env)
}

func (g *WazeroGuest) Stats() wrenruntime.AllocStats {
	return g.heap.snapshot()
}

// Close releases the module instance. Further calls fail with a closed error.
func (g *WazeroGuest) Close(ctx context.Context) error {
	if g.closed.Swap(true) {
		return nil
	}
	return g.mod.Close(ctx)
}
