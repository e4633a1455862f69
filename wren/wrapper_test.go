package wren

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/internal/fakeguest"
)

func TestNewVM_Settings(t *testing.T) {
	fake := fakeguest.New()
	rt, w := newTestVM(t, fake,
		WithInitialHeapSize(4<<20),
		WithMinHeapSize(2<<20),
		WithHeapGrowthPercent(25),
		WithRelativeImport(true))

	assert.Equal(t, 1, rt.LiveVMs())
	g := fake.Last()
	require.Len(t, g.VMs(), 1)

	ud, err := g.UserData(context.Background(), w.cell.core.ref)
	require.NoError(t, err)
	assert.Equal(t, w.cell.core.host.key, ud)
	assert.Equal(t, uint32(w.cell.core.key), ud)
}

func TestNewVM_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero initial heap", WithInitialHeapSize(0)},
		{"zero growth", WithHeapGrowthPercent(0)},
		{"nil printer", WithPrinter(nil)},
		{"nil loader", WithLoader(nil)},
		{"nil library", WithLibrary(nil)},
		{"nil logger", WithLogger(nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRuntime(fakeguest.New())
			_, err := rt.NewVM(context.Background(), tc.opt)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}), "got %v", err)
			assert.Zero(t, rt.LiveVMs())
		})
	}
}

func TestNewVM_GuestFailure(t *testing.T) {
	fake := fakeguest.New()
	fake.FailNewGuest = stderrors.New("no instance")
	rt := NewRuntime(fake)

	_, err := rt.NewVM(context.Background())
	require.Error(t, err)
	assert.Zero(t, rt.LiveVMs())
}

func TestWrapper_Close(t *testing.T) {
	fake := fakeguest.New().Script("noop", func(*fakeguest.Session) {})
	rt, w := newTestVM(t, fake)
	ctx := context.Background()

	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))
	assert.True(t, fake.Last().Closed)
	assert.Zero(t, rt.LiveVMs())

	err := w.Interpret(ctx, "main", "noop")
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindClosed}))
}

func TestWrapper_Clone(t *testing.T) {
	fake := fakeguest.New().Script("noop", func(*fakeguest.Session) {})
	rt, w := newTestVM(t, fake)
	ctx := context.Background()

	w2 := w.Clone()
	require.NoError(t, w.Close(ctx))
	assert.False(t, fake.Last().Closed)
	assert.Equal(t, 1, rt.LiveVMs())

	require.NoError(t, w2.Interpret(ctx, "main", "noop"))
	assert.Error(t, w.Interpret(ctx, "main", "noop"))

	require.NoError(t, w2.Close(ctx))
	assert.True(t, fake.Last().Closed)
	assert.Zero(t, rt.LiveVMs())
}

func TestWrapper_BorrowGuard(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())
	ctx := context.Background()
	w2 := w.Clone()

	execute(t, w, func(vm *VM) {
		require.NoError(t, w2.Execute(ctx, func(*VM) error { return nil }), "shared borrows nest")
		require.NoError(t, w2.Close(ctx), "closing a non-last owner needs no borrow")

		err := w.Close(ctx)
		assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindBorrow}), "got %v", err)
	})

	require.NoError(t, w.Execute(ctx, func(*VM) error { return nil }), "failed close leaves the wrapper open")
	require.NoError(t, w.Close(ctx))
	assert.True(t, guestOf(w).Closed)
}

func TestWrapper_CloseFromForeignMethod(t *testing.T) {
	var w *Wrapper
	var closeErr error
	lib := NewModuleLibrary()
	lib.Module("main").Class("Counter", NewClass(func(vm *VM) (*Counter, error) {
		return &Counter{}, nil
	}).Method("shutdown()", func(c *Counter, vm *VM) error {
		closeErr = w.Close(vm.Context())
		return closeErr
	}))

	src := "close from inside"
	fake := fakeguest.New().Script(src, func(s *fakeguest.Session) {
		c := s.Construct(s.DeclareForeignClass("Counter"))
		s.Call(c, "shutdown()")
	})
	rt, w := newTestVM(t, fake, WithLibrary(lib))
	ctx := context.Background()

	err := w.Interpret(ctx, "main", src)
	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr), "got %v", err)
	assert.Contains(t, rerr.Message, "already borrowed")
	assert.True(t, stderrors.Is(closeErr, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindBorrow}), "got %v", closeErr)
	assert.Equal(t, 1, rt.LiveVMs())
	assert.False(t, fake.Last().Closed)

	require.NoError(t, w.Close(ctx))
	assert.Zero(t, rt.LiveVMs())
	assert.True(t, fake.Last().Closed)
}

func TestNewVM_HeapSettings(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"initial below default min", []Option{WithInitialHeapSize(64 * 1024)}},
		{"min above initial", []Option{WithInitialHeapSize(1 << 20), WithMinHeapSize(4 << 20)}},
		{"large growth", []Option{WithHeapGrowthPercent(2000)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt, w := newTestVM(t, fakeguest.New(), tc.opts...)
			assert.Equal(t, 1, rt.LiveVMs())
			require.NoError(t, w.Close(context.Background()))
		})
	}
}

func TestInterpret_Printer(t *testing.T) {
	fake := fakeguest.New().Script(`System.print("hello")`, func(s *fakeguest.Session) {
		s.Print("hello")
	})
	var out bytes.Buffer
	_, w := newTestVM(t, fake, WithPrinter(WriterPrinter(&out)))

	require.NoError(t, w.Interpret(context.Background(), "main", `System.print("hello")`))
	assert.Equal(t, "hello\n", out.String())
}

func TestInterpret_PrinterPanic(t *testing.T) {
	fake := fakeguest.New().Script("print", func(s *fakeguest.Session) {
		s.Print("x")
	})
	_, w := newTestVM(t, fake, WithPrinter(PrinterFunc(func(string) { panic("sink down") })))

	assert.NoError(t, w.Interpret(context.Background(), "main", "print"))
}

func TestInterpret_CompileError(t *testing.T) {
	src := "var x = "
	fake := fakeguest.New().CompileError(src,
		fakeguest.Diagnostic{Line: 1, Message: "Error at end of file: Expected expression."},
		fakeguest.Diagnostic{Line: 2, Message: "second"})
	_, w := newTestVM(t, fake)

	err := w.Interpret(context.Background(), "main", src)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrCompile))

	var cerr *errors.CompileError
	require.True(t, stderrors.As(err, &cerr))
	assert.Equal(t, errors.CompileError{Module: "main", Line: 1, Message: "Error at end of file: Expected expression."}, *cerr)
	assert.Equal(t, "Compile Error (main:1): Error at end of file: Expected expression.", err.Error())
}

func TestInterpret_RuntimeErrorFrames(t *testing.T) {
	frames := []fakeguest.Frame{
		{Module: "main", Line: 3, Function: "inner"},
		{Module: "main", Line: 7, Function: "outer"},
		{Module: "main", Line: 9, Function: ""},
	}
	fake := fakeguest.New().Script("boom", func(s *fakeguest.Session) {
		s.Abort("boom", frames...)
	})
	_, w := newTestVM(t, fake)

	err := w.Interpret(context.Background(), "main", "boom")
	assert.True(t, stderrors.Is(err, errors.ErrRuntime))

	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "boom", rerr.Message)
	assert.Equal(t, []errors.StackFrame{
		{Module: "main", Line: 3, Function: "inner"},
		{Module: "main", Line: 7, Function: "outer"},
		{Module: "main", Line: 9, Function: ""},
	}, rerr.Frames)
	assert.Equal(t, "Runtime Error: boom\n\tin main:3: inner\n\tin main:7: outer\n\tin main:9: <constructor>", rerr.Error())
}

func TestInterpret_ErrorQueueReset(t *testing.T) {
	fake := fakeguest.New().
		Script("first", func(s *fakeguest.Session) {
			s.Abort("first", fakeguest.Frame{Module: "main", Line: 1, Function: "a"})
		}).
		Script("second", func(s *fakeguest.Session) {
			s.Abort("second", fakeguest.Frame{Module: "main", Line: 2, Function: "b"})
		})
	_, w := newTestVM(t, fake)
	ctx := context.Background()

	require.Error(t, w.Interpret(ctx, "main", "first"))
	err := w.Interpret(ctx, "main", "second")

	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "second", rerr.Message)
	require.Len(t, rerr.Frames, 1)
	assert.Equal(t, "b", rerr.Frames[0].Function)
}

func TestInterpret_Import(t *testing.T) {
	fake := fakeguest.New().
		Script("import", func(s *fakeguest.Session) {
			s.Import("@util")
			s.Import("@util")
		}).
		Script("util source", func(s *fakeguest.Session) {
			s.Print("util " + s.Module())
		})

	var out bytes.Buffer
	_, w := newTestVM(t, fake,
		WithRelativeImport(true),
		WithPrinter(WriterPrinter(&out)),
		WithLoader(MapLoader(map[string]string{"main/util": "util source"})))

	require.NoError(t, w.Interpret(context.Background(), "main", "import"))
	assert.Equal(t, []string{"main/util"}, fake.Last().Imports)
	assert.Equal(t, "util main/util\n", out.String())
}

func TestInterpret_ImportMissing(t *testing.T) {
	fake := fakeguest.New().Script("import", func(s *fakeguest.Session) {
		s.Import("nope")
	})
	_, w := newTestVM(t, fake)

	err := w.Interpret(context.Background(), "main", "import")
	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "Could not load module 'nope'.", rerr.Message)
}

func TestInterpret_ImportCompileError(t *testing.T) {
	fake := fakeguest.New().
		Script("import", func(s *fakeguest.Session) {
			s.Import("broken")
		}).
		CompileError("broken source", fakeguest.Diagnostic{Line: 4, Message: "Unexpected token."})
	_, w := newTestVM(t, fake, WithLoader(MapLoader(map[string]string{"broken": "broken source"})))

	err := w.Interpret(context.Background(), "main", "import")
	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "Could not compile module 'broken'.\nCompile Error (broken:4): Unexpected token.", rerr.Message)
}

func TestInterpret_LoaderPanic(t *testing.T) {
	fake := fakeguest.New().Script("import", func(s *fakeguest.Session) {
		s.Import("util")
	})
	_, w := newTestVM(t, fake, WithLoader(LoaderFunc(func(string) (string, bool) {
		panic("disk on fire")
	})))

	err := w.Interpret(context.Background(), "main", "import")
	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "Could not load module 'util'.", rerr.Message)
}

func TestCall(t *testing.T) {
	fake := fakeguest.New().OnCall("add(_,_)", func(s *fakeguest.Session) {
		s.Return(fakeguest.Num(s.Slot(1).Num + s.Slot(2).Num))
	})
	_, w := newTestVM(t, fake)
	ctx := context.Background()

	for range 2 {
		execute(t, w, func(vm *VM) {
			vm.EnsureSlots(3)
			vm.SetSlotNull(0)
			vm.SetSlotDouble(1, 2)
			vm.SetSlotDouble(2, 3)
		})
		require.NoError(t, w.Call(ctx, Function("add", 2)))
		execute(t, w, func(vm *VM) {
			n, ok := vm.GetSlotDouble(0)
			require.True(t, ok)
			assert.Equal(t, 5.0, n)
		})
	}

	g := fake.Last()
	assert.Equal(t, 1, g.CallHandlesMade, "call handle is cached")

	require.NoError(t, w.Close(ctx))
	assert.Zero(t, g.LeakedHandles)
	for _, n := range g.Released {
		assert.Equal(t, 1, n)
	}
	assert.Len(t, g.Released, 1)
}

func TestCall_RuntimeError(t *testing.T) {
	fake := fakeguest.New().OnCall("fail()", func(s *fakeguest.Session) {
		s.Abort("nope", fakeguest.Frame{Module: "main", Line: 12, Function: "fail()"})
	})
	_, w := newTestVM(t, fake)
	ctx := context.Background()

	execute(t, w, func(vm *VM) { vm.EnsureSlots(1) })
	err := w.Call(ctx, Function("fail", 0))

	var rerr *errors.RuntimeError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, "nope", rerr.Message)
	assert.Equal(t, []errors.StackFrame{{Module: "main", Line: 12, Function: "fail()"}}, rerr.Frames)
}

func TestCallHandle(t *testing.T) {
	fake := fakeguest.New().OnCall("name", func(s *fakeguest.Session) {
		s.Return(fakeguest.Str("wren"))
	})
	_, w := newTestVM(t, fake)
	ctx := context.Background()

	h, err := w.MakeCallHandle(ctx, Getter("name"))
	require.NoError(t, err)
	assert.Equal(t, "name", h.Signature())

	execute(t, w, func(vm *VM) { vm.EnsureSlots(1) })
	require.NoError(t, w.CallHandle(ctx, h))
	execute(t, w, func(vm *VM) {
		s, ok := vm.GetSlotString(0)
		require.True(t, ok)
		assert.Equal(t, "wren", s)
	})

	require.NoError(t, h.Release(ctx))
	assert.Error(t, w.CallHandle(ctx, h))
}

func TestHostContext_UpgradeFailure(t *testing.T) {
	hc := &hostContext{cell: weak.Make(&cell{}), key: 9}

	p := recovered(func() { hc.upgrade() })
	fatal, ok := p.(*FatalError)
	require.True(t, ok, "got %v", p)
	assert.Contains(t, fatal.Error(), "context 9")
}

func TestRouter_UnknownContext(t *testing.T) {
	fake := fakeguest.New()
	rt := NewRuntime(fake)
	ctx := context.Background()

	g, err := fake.NewGuest(ctx, rt)
	require.NoError(t, err)
	ref, err := g.NewVM(ctx, engine.VMSettings{UserData: 999})
	require.NoError(t, err)

	p := recovered(func() { rt.CallForeign(ctx, g, ref, 1) })
	_, ok := p.(*FatalError)
	assert.True(t, ok, "got %v", p)
}

func TestGuard_FatalPassesThrough(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		p := recovered(func() {
			guard(vm, func() error { panic(&FatalError{Detail: "gone"}) })
		})
		_, ok := p.(*FatalError)
		assert.True(t, ok, "got %v", p)
	})
}

func TestResolveModule(t *testing.T) {
	tests := []struct {
		importer, name, want string
	}{
		{"main", "@util", "main/util"},
		{"main", "util", "util"},
		{"a/b", "@c", "a/b/c"},
		{"main", "@@x", "main/@x"},
		{"main", "lib@x", "lib@x"},
	}
	rt := NewRuntime(fakeguest.New())
	for _, tc := range tests {
		got := rt.ResolveModule(context.Background(), nil, 0, tc.importer, tc.name)
		assert.Equal(t, tc.want, got, "%s imports %s", tc.importer, tc.name)
	}
}
