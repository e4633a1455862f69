package wren

import "strings"

// SignatureKind distinguishes the three shapes of a Wren method name.
type SignatureKind uint8

const (
	KindFunction SignatureKind = iota
	KindGetter
	KindSetter
)

// FunctionSignature names a Wren method for dynamic resolution.
type FunctionSignature struct {
	Name  string
	Arity int
	Kind  SignatureKind
}

// Function returns the signature of a method taking arity arguments.
func Function(name string, arity int) FunctionSignature {
	return FunctionSignature{Kind: KindFunction, Name: name, Arity: arity}
}

// Getter returns the signature of a getter.
func Getter(name string) FunctionSignature {
	return FunctionSignature{Kind: KindGetter, Name: name}
}

// Setter returns the signature of a setter.
func Setter(name string) FunctionSignature {
	return FunctionSignature{Kind: KindSetter, Name: name, Arity: 1}
}

// String returns the canonical form the VM resolves methods by:
// name(_,_) for functions, name for getters and name=(_) for setters.
func (s FunctionSignature) String() string {
	switch s.Kind {
	case KindGetter:
		return s.Name
	case KindSetter:
		return s.Name + "=(_)"
	default:
		var b strings.Builder
		b.WriteString(s.Name)
		b.WriteByte('(')
		for i := 0; i < s.Arity; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('_')
		}
		b.WriteByte(')')
		return b.String()
	}
}

// Slots returns the number of slots a call with this signature uses,
// receiver included.
func (s FunctionSignature) Slots() int {
	switch s.Kind {
	case KindGetter:
		return 1
	case KindSetter:
		return 2
	default:
		return s.Arity + 1
	}
}
