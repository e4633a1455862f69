package wren

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
)

func TestErrorQueue_CompileError(t *testing.T) {
	q := &errorQueue{}
	q.push(wrenError{typ: engine.ErrorCompile, module: "main", line: 3, message: "first"})
	q.push(wrenError{typ: engine.ErrorCompile, module: "main", line: 5, message: "second"})

	err := q.compileError("main")
	assert.Equal(t, &errors.CompileError{Module: "main", Line: 3, Message: "first"}, err)
	assert.Empty(t, q.drain())
}

func TestErrorQueue_CompileFallback(t *testing.T) {
	q := &errorQueue{}
	err := q.compileError("main")
	assert.Equal(t, "Compile Error (main:0): compilation failed", err.Error())
}

func TestErrorQueue_RuntimeError(t *testing.T) {
	q := &errorQueue{}
	q.push(wrenError{typ: engine.ErrorCompile, module: "lib", line: 2, message: "bad"})
	q.push(wrenError{typ: engine.ErrorRuntime, line: -1, message: "Could not compile module 'lib'."})
	q.push(wrenError{typ: engine.ErrorStackTrace, module: "main", line: 4, message: "run()"})

	err := q.runtimeError()
	assert.Equal(t, "Could not compile module 'lib'.\nCompile Error (lib:2): bad", err.Message)
	assert.Equal(t, []errors.StackFrame{{Module: "main", Line: 4, Function: "run()"}}, err.Frames)
	assert.True(t, stderrors.Is(err, errors.ErrRuntime))
}

func TestErrorQueue_CompileOnlyRuntime(t *testing.T) {
	q := &errorQueue{}
	q.push(wrenError{typ: engine.ErrorCompile, module: "lib", line: 1, message: "bad"})

	assert.Equal(t, "Compile Error (lib:1): bad", q.runtimeError().Message)
}

func TestErrorQueue_Reset(t *testing.T) {
	q := &errorQueue{}
	q.push(wrenError{typ: engine.ErrorRuntime, message: "stale"})
	q.reset()
	q.push(wrenError{typ: engine.ErrorRuntime, message: "fresh"})

	require.Equal(t, "fresh", q.runtimeError().Message)
}

func TestBorrow(t *testing.T) {
	c := &cell{}

	release := c.borrowShared()
	inner := c.borrowShared()
	_, err := c.tryBorrowExclusive()
	requireKind(t, err, errors.KindBorrow)
	assert.ErrorContains(t, err, "VM already borrowed")
	inner()
	release()

	done, err := c.tryBorrowExclusive()
	require.NoError(t, err)
	requireKind(t, recovered(func() { c.borrowShared() }), errors.KindBorrow)
	_, err = c.tryBorrowExclusive()
	requireKind(t, err, errors.KindBorrow)
	done()

	c.borrowShared()()
	assert.Zero(t, c.borrow.Load())
}

func TestBorrowError_LiteralDetail(t *testing.T) {
	err := borrowError("slot 100% busy")
	assert.Equal(t, "slot 100% busy", err.Detail)
	assert.Equal(t, errors.KindBorrow, err.Kind)
}
