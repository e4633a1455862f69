// Package errors provides structured error types for the wren-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: slot path, Go type name, guest symbol and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
//		Path("slot", "3").
//		Detail("slot count is 2").
//		Build()
//
// Script failures have their own types. Interpret returns *CompileError for
// sources that do not compile and both Interpret and Call return *RuntimeError
// when a fiber aborts:
//
//	var rt *errors.RuntimeError
//	if errors.As(err, &rt) {
//		for _, f := range rt.Frames { ... }
//	}
//
// Foreign construction failures match the ErrNoForeignClass, ErrNoWrenClass,
// ErrNoMemory and ErrClassMismatch sentinels with errors.Is.
package errors
