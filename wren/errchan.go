package wren

import (
	"strings"
	"sync"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
)

// wrenError is one event reported through the VM's error callback.
type wrenError struct {
	module  string
	message string
	line    int
	typ     engine.ErrorType
}

// errorQueue carries error events from the callback router to the call that
// triggered them, in emission order.
type errorQueue struct {
	events []wrenError
	mu     sync.Mutex
}

func (q *errorQueue) push(e wrenError) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *errorQueue) reset() {
	q.mu.Lock()
	q.events = q.events[:0]
	q.mu.Unlock()
}

func (q *errorQueue) drain() []wrenError {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// compileError returns the first compile event of a failed interpret.
func (q *errorQueue) compileError(module string) *errors.CompileError {
	for _, e := range q.drain() {
		if e.typ == engine.ErrorCompile {
			return &errors.CompileError{Module: e.module, Line: e.line, Message: e.message}
		}
	}
	return &errors.CompileError{Module: module, Message: "compilation failed"}
}

// runtimeError assembles a failed run's events. Compile events come from
// modules imported during the run and are appended to the message.
func (q *errorQueue) runtimeError() *errors.RuntimeError {
	rerr := &errors.RuntimeError{}
	var compile []string
	for _, e := range q.drain() {
		switch e.typ {
		case engine.ErrorRuntime:
			rerr.Message = e.message
		case engine.ErrorStackTrace:
			rerr.Frames = append(rerr.Frames, errors.StackFrame{
				Module:   e.module,
				Line:     e.line,
				Function: e.message,
			})
		case engine.ErrorCompile:
			ce := errors.CompileError{Module: e.module, Line: e.line, Message: e.message}
			compile = append(compile, ce.Error())
		}
	}
	if len(compile) > 0 {
		if rerr.Message != "" {
			compile = append([]string{rerr.Message}, compile...)
		}
		rerr.Message = strings.Join(compile, "\n")
	}
	return rerr
}
