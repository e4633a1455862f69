package fakeguest

import "github.com/wippyai/wren-runtime/engine"

// Value is a Wren value held by the fake VM.
type Value struct {
	List   *List
	Object *Object
	Class  *Class
	Bytes  []byte
	Num    float64
	Type   engine.WrenType
	Bool   bool
}

// List is a Wren list.
type List struct {
	Items []Value
}

// Class is a class declared by a script.
type Class struct {
	methods map[string]uint32
	Module  string
	Name    string
	id      uint32
	Foreign bool
}

// ID returns the class id the host bound the class to, 0 if unbound.
func (c *Class) ID() uint32 { return c.id }

// Object is a foreign instance.
type Object struct {
	Class     *Class
	Ptr       uint32
	Size      uint32
	Dropped   bool
	Finalized bool
}

func Null() Value { return Value{Type: engine.TypeNull} }

func Bool(b bool) Value { return Value{Type: engine.TypeBool, Bool: b} }

func Num(n float64) Value { return Value{Type: engine.TypeNum, Num: n} }

func Str(s string) Value { return Value{Type: engine.TypeString, Bytes: []byte(s)} }

// ClassValue is the class object of c. Wren reports class objects as unknown.
func ClassValue(c *Class) Value { return Value{Type: engine.TypeUnknown, Class: c} }

// String returns the text of a string value.
func (v Value) String() string {
	if v.Type != engine.TypeString {
		return ""
	}
	return string(v.Bytes)
}
