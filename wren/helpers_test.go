package wren

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wren-runtime/internal/fakeguest"
)

type Counter struct {
	n int
}

type Other struct {
	name string
}

const counterSource = `foreign class Counter {
  construct new() {}
  foreign increment()
  foreign count
}
var c = Counter.new()
c.increment()
c.increment()
`

func counterClass() *ClassBuilder[Counter] {
	return NewClass(func(vm *VM) (*Counter, error) {
		return &Counter{}, nil
	}).Method("increment()", func(c *Counter, vm *VM) error {
		c.n++
		return nil
	}).Method("count", func(c *Counter, vm *VM) error {
		vm.SetSlotDouble(0, float64(c.n))
		return nil
	})
}

func counterLibrary() *ModuleLibrary {
	lib := NewModuleLibrary()
	lib.Module("main").Class("Counter", counterClass())
	return lib
}

// counterScript plays counterSource.
func counterScript(s *fakeguest.Session) {
	cls := s.DeclareForeignClass("Counter")
	c := s.Construct(cls)
	s.Define("c", c)
	s.Call(c, "increment()")
	s.Call(c, "increment()")
}

func newTestVM(t *testing.T, fake *fakeguest.Backend, opts ...Option) (*Runtime, *Wrapper) {
	t.Helper()
	rt := NewRuntime(fake)
	w, err := rt.NewVM(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return rt, w
}

// execute runs fn with the VM borrowed and fails the test on error.
func execute(t *testing.T, w *Wrapper, fn func(vm *VM)) {
	t.Helper()
	require.NoError(t, w.Execute(context.Background(), func(vm *VM) error {
		fn(vm)
		return nil
	}))
}

func recovered(fn func()) (p any) {
	defer func() { p = recover() }()
	fn()
	return nil
}
