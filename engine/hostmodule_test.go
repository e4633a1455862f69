package engine

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

// stubCallbacks answers module loading from maps and ignores everything else.
type stubCallbacks struct {
	sources  map[string]string
	resolved map[string]string
	loads    []string
}

func (c *stubCallbacks) Error(context.Context, Guest, VMRef, ErrorType, string, int, string) {}
func (c *stubCallbacks) Write(context.Context, Guest, VMRef, string) {}
func (c *stubCallbacks) BindForeignMethod(context.Context, Guest, VMRef, string, string, bool, string) uint32 {
	return 0
}
func (c *stubCallbacks) BindForeignClass(context.Context, Guest, VMRef, string, string) uint32 {
	return 0
}
func (c *stubCallbacks) CallForeign(context.Context, Guest, VMRef, uint32) {}
func (c *stubCallbacks) Allocate(context.Context, Guest, VMRef, uint32) {}
func (c *stubCallbacks) Finalize(context.Context, Guest, uint32, uint32) {}

func (c *stubCallbacks) LoadModule(_ context.Context, _ Guest, _ VMRef, name string) (string, bool) {
	c.loads = append(c.loads, name)
	src, ok := c.sources[name]
	return src, ok
}

func (c *stubCallbacks) ResolveModule(_ context.Context, _ Guest, _ VMRef, importer, name string) string {
	if r, ok := c.resolved[importer+":"+name]; ok {
		return r
	}
	return name
}

// stubFunction stands in for a guest export.
type stubFunction struct {
	api.Function
	call func(params ...uint64) []uint64
}

func (f stubFunction) Call(_ context.Context, params ...uint64) ([]uint64, error) {
	return f.call(params...), nil
}

type hostFixture struct {
	g    *WazeroGuest
	mem  *sliceMemory
	libc *bumpLibc
	cb   *stubCallbacks
	ctx  context.Context
}

func newHostFixture() *hostFixture {
	mem := newSliceMemory(4096)
	c := newBumpLibc(mem)
	cb := &stubCallbacks{sources: map[string]string{}, resolved: map[string]string{}}
	g := &WazeroGuest{mem: mem, heap: newHeap(c), cb: cb, fns: map[string]api.Function{}}
	return &hostFixture{g: g, mem: mem, libc: c, cb: cb, ctx: withGuest(context.Background(), g)}
}

// cstr places s in guest memory outside the heap's accounting.
func (f *hostFixture) cstr(t *testing.T, s string) uint32 {
	t.Helper()
	ptr, err := f.libc.malloc(f.ctx, uint32(len(s))+1)
	if err != nil || ptr == 0 {
		t.Fatalf("malloc: %d, %v", ptr, err)
	}
	if err := writeCString(f.mem, ptr, s); err != nil {
		t.Fatal(err)
	}
	return ptr
}

func (f *hostFixture) read(t *testing.T, ptr uint32) string {
	t.Helper()
	s, err := readCString(f.mem, ptr)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHostLoadModule(t *testing.T) {
	f := newHostFixture()
	f.cb.sources["util"] = "class Util {}"

	stack := []uint64{7, api.EncodeU32(f.cstr(t, "util"))}
	hostLoadModule(f.ctx, nil, stack)

	ptr := api.DecodeU32(stack[0])
	if ptr == 0 {
		t.Fatal("expected module source")
	}
	if got := f.read(t, ptr); got != "class Util {}" {
		t.Fatalf("source = %q", got)
	}
	// Wren frees the source through reallocate, so it must be tracked.
	if s := f.g.heap.snapshot(); s.Allocs != 1 || s.LiveBytes != uint64(len("class Util {}")+1) {
		t.Fatalf("stats = %+v", s)
	}
	if len(f.cb.loads) != 1 || f.cb.loads[0] != "util" {
		t.Fatalf("loads = %v", f.cb.loads)
	}
}

func TestHostLoadModule_Missing(t *testing.T) {
	f := newHostFixture()

	stack := []uint64{7, api.EncodeU32(f.cstr(t, "nope"))}
	hostLoadModule(f.ctx, nil, stack)

	if stack[0] != 0 {
		t.Fatalf("missing module returned %d", stack[0])
	}
	if s := f.g.heap.snapshot(); s.Allocs != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestHostLoadModule_AllocFailure(t *testing.T) {
	f := newHostFixture()
	f.cb.sources["util"] = "class Util {}"
	name := f.cstr(t, "util")
	f.libc.fail = true

	stack := []uint64{7, api.EncodeU32(name)}
	hostLoadModule(f.ctx, nil, stack)

	if stack[0] != 0 {
		t.Fatalf("expected null source, got %d", stack[0])
	}
}

func TestHostLoadModule_NullName(t *testing.T) {
	f := newHostFixture()

	stack := []uint64{7, 0}
	hostLoadModule(f.ctx, nil, stack)

	if stack[0] != 0 {
		t.Fatalf("expected null source, got %d", stack[0])
	}
	if len(f.cb.loads) != 1 || f.cb.loads[0] != "" {
		t.Fatalf("loads = %v", f.cb.loads)
	}
}

func TestHostResolveModule(t *testing.T) {
	f := newHostFixture()
	f.cb.resolved["lib/a:./b"] = "lib/b"

	t.Run("unchanged", func(t *testing.T) {
		name := f.cstr(t, "b")
		stack := []uint64{7, api.EncodeU32(f.cstr(t, "lib/a")), api.EncodeU32(name)}
		hostResolveModule(f.ctx, nil, stack)

		if got := api.DecodeU32(stack[0]); got != name {
			t.Fatalf("unchanged name moved: %d != %d", got, name)
		}
		if s := f.g.heap.snapshot(); s.Allocs != 0 {
			t.Fatalf("stats = %+v", s)
		}
	})

	t.Run("rewritten", func(t *testing.T) {
		name := f.cstr(t, "./b")
		stack := []uint64{7, api.EncodeU32(f.cstr(t, "lib/a")), api.EncodeU32(name)}
		hostResolveModule(f.ctx, nil, stack)

		ptr := api.DecodeU32(stack[0])
		if ptr == 0 || ptr == name {
			t.Fatalf("expected a fresh block, got %d", ptr)
		}
		if got := f.read(t, ptr); got != "lib/b" {
			t.Fatalf("resolved = %q", got)
		}
		if s := f.g.heap.snapshot(); s.Allocs != 1 {
			t.Fatalf("stats = %+v", s)
		}
	})

	t.Run("alloc failure keeps name", func(t *testing.T) {
		name := f.cstr(t, "./b")
		importer := f.cstr(t, "lib/a")
		f.libc.fail = true
		defer func() { f.libc.fail = false }()

		stack := []uint64{7, api.EncodeU32(importer), api.EncodeU32(name)}
		hostResolveModule(f.ctx, nil, stack)

		if got := api.DecodeU32(stack[0]); got != name {
			t.Fatalf("got %d, want original %d", got, name)
		}
	})
}

func TestGetSlotBytes(t *testing.T) {
	f := newHostFixture()
	scratch, _ := f.libc.malloc(f.ctx, 4)
	f.g.scratch = scratch

	data := []byte{0, 'a', 0, 'b', 0xff}
	buf, _ := f.libc.malloc(f.ctx, uint32(len(data)))
	if err := f.mem.Write(buf, data); err != nil {
		t.Fatal(err)
	}

	var length uint32
	f.g.fns[ExportGetSlotBytes] = stubFunction{call: func(params ...uint64) []uint64 {
		if api.DecodeU32(params[2]) != scratch {
			t.Errorf("length written to %d, want scratch %d", api.DecodeU32(params[2]), scratch)
		}
		_ = f.mem.WriteU32(scratch, length)
		return []uint64{api.EncodeU32(buf)}
	}}

	length = uint32(len(data))
	got, err := f.g.GetSlotBytes(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("bytes = %q, want %q", got, data)
	}

	length = 0
	got, err = f.g.GetSlotBytes(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("empty bytes = %#v, want non-nil empty", got)
	}

	length = f.mem.Size()
	if _, err := f.g.GetSlotBytes(context.Background(), 1, 0); err == nil {
		t.Fatal("expected out-of-bounds length to fail")
	}
}
