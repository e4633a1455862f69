package wren

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/internal/fakeguest"
)

func requireKind(t *testing.T, p any, kind errors.Kind) {
	t.Helper()
	err, ok := p.(error)
	require.True(t, ok, "expected an error panic, got %v", p)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "got %v", err)
	assert.Equal(t, kind, e.Kind)
}

func TestSlots_Scalars(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(5)
		assert.GreaterOrEqual(t, vm.GetSlotCount(), 5)

		vm.SetSlotBool(0, true)
		vm.SetSlotDouble(1, 2.5)
		vm.SetSlotString(2, "hello")
		vm.SetSlotBytes(3, []byte{0, 255, 1})
		vm.SetSlotNull(4)

		b, ok := vm.GetSlotBool(0)
		assert.True(t, ok)
		assert.True(t, b)

		n, ok := vm.GetSlotDouble(1)
		assert.True(t, ok)
		assert.Equal(t, 2.5, n)

		s, ok := vm.GetSlotString(2)
		assert.True(t, ok)
		assert.Equal(t, "hello", s)

		raw, ok := vm.GetSlotBytes(3)
		assert.True(t, ok)
		assert.Equal(t, []byte{0, 255, 1}, raw)

		assert.Equal(t, SlotNull, vm.GetSlotType(4))
		assert.Equal(t, SlotString, vm.GetSlotType(3))
	})
}

func TestSlots_TypeMismatch(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(1)
		vm.SetSlotDouble(0, 1)

		_, ok := vm.GetSlotBool(0)
		assert.False(t, ok)
		_, ok = vm.GetSlotString(0)
		assert.False(t, ok)
		_, ok = vm.GetSlotBytes(0)
		assert.False(t, ok)
		_, ok = vm.GetListCount(0)
		assert.False(t, ok)

		vm.SetSlotString(0, "x")
		_, ok = vm.GetSlotDouble(0)
		assert.False(t, ok)
	})
}

func TestSlots_OutOfBounds(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(2)
		n := vm.GetSlotCount()

		requireKind(t, recovered(func() { vm.SetSlotDouble(n, 1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.GetSlotType(-1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.AbortFiber(n) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.EnsureSlots(-1) }), errors.KindInvalidInput)
	})
}

func TestSlots_Lists(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(3)
		vm.SetSlotNewList(0)

		for _, v := range []float64{1, 2, 3} {
			vm.SetSlotDouble(1, v)
			vm.InsertInList(0, -1, 1)
		}
		vm.SetSlotDouble(1, 0)
		vm.InsertInList(0, 0, 1)

		n, ok := vm.GetListCount(0)
		require.True(t, ok)
		assert.Equal(t, 4, n)

		var got []float64
		for i := range n {
			vm.GetListElement(0, i, 2)
			v, ok := vm.GetSlotDouble(2)
			require.True(t, ok)
			got = append(got, v)
		}
		assert.Equal(t, []float64{0, 1, 2, 3}, got)

		vm.GetListElement(0, -1, 2)
		last, _ := vm.GetSlotDouble(2)
		assert.Equal(t, 3.0, last)

		vm.GetListElement(0, -4, 2)
		first, _ := vm.GetSlotDouble(2)
		assert.Equal(t, 0.0, first)
	})
}

func TestSlots_ListBounds(t *testing.T) {
	_, w := newTestVM(t, fakeguest.New())

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(2)
		vm.SetSlotNewList(0)
		vm.SetSlotDouble(1, 7)
		vm.InsertInList(0, 0, 1)

		requireKind(t, recovered(func() { vm.GetListElement(0, 1, 1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.GetListElement(0, -2, 1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.InsertInList(0, 2, 1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.InsertInList(0, -3, 1) }), errors.KindOutOfBounds)
		requireKind(t, recovered(func() { vm.GetListElement(1, 0, 0) }), errors.KindTypeMismatch)
	})
}

func TestSlots_Variables(t *testing.T) {
	fake := fakeguest.New().Script("var greeting", func(s *fakeguest.Session) {
		s.Define("greeting", fakeguest.Str("hi"))
	})
	_, w := newTestVM(t, fake)
	require.NoError(t, w.Interpret(t.Context(), "main", "var greeting"))

	execute(t, w, func(vm *VM) {
		vm.EnsureSlots(1)
		assert.True(t, vm.HasModule("main"))
		assert.False(t, vm.HasModule("other"))
		assert.True(t, vm.HasVariable("main", "greeting"))
		assert.False(t, vm.HasVariable("main", "missing"))

		vm.GetVariable("main", "greeting", 0)
		s, ok := vm.GetSlotString(0)
		require.True(t, ok)
		assert.Equal(t, "hi", s)
	})
}

func TestSlotType_String(t *testing.T) {
	assert.Equal(t, "bool", SlotBool.String())
	assert.Equal(t, "foreign", SlotForeign.String())
	assert.Equal(t, "unknown", SlotType(99).String())
}
