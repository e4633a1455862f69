package errors

import (
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching. Returned errors carry the same phase and kind.
var (
	ErrCompile = &Error{Phase: PhaseScript, Kind: KindCompile}
	ErrRuntime = &Error{Phase: PhaseScript, Kind: KindRuntime}

	ErrNoForeignClass = &Error{Phase: PhaseForeign, Kind: KindNoForeignClass, Detail: "no foreign class"}
	ErrNoWrenClass    = &Error{Phase: PhaseForeign, Kind: KindNoWrenClass, Detail: "no Wren class"}
	ErrNoMemory       = &Error{Phase: PhaseForeign, Kind: KindAllocation, Detail: "unable to allocate memory"}
	ErrClassMismatch  = &Error{Phase: PhaseForeign, Kind: KindClassMismatch, Detail: "class mismatch"}
)

// ForeignSend derives a foreign construction error from one of the sentinels,
// naming the class it was raised for.
func ForeignSend(sentinel *Error, module, class, goType string) *Error {
	return &Error{
		Phase:  sentinel.Phase,
		Kind:   sentinel.Kind,
		Detail: sentinel.Detail,
		Symbol: module + "." + class,
		GoType: goType,
	}
}

// CompileError is reported by Interpret when the source fails to compile.
type CompileError struct {
	Module  string
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("Compile Error (%s:%d): %s", e.Module, e.Line, e.Message)
}

// Is matches ErrCompile.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

// StackFrame is one entry of a runtime error's stack trace, innermost first.
type StackFrame struct {
	Module   string
	Line     int
	Function string
}

func (f StackFrame) String() string {
	fn := f.Function
	if fn == "" {
		fn = "<constructor>"
	}
	return fmt.Sprintf("in %s:%d: %s", f.Module, f.Line, fn)
}

// RuntimeError is reported when a fiber aborts during Interpret or Call.
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString("Runtime Error: ")
	b.WriteString(e.Message)
	for _, f := range e.Frames {
		b.WriteString("\n\t")
		b.WriteString(f.String())
	}
	return b.String()
}

// Is matches ErrRuntime.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}
