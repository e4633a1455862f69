package wren

import (
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/errors"
	"github.com/wippyai/wren-runtime/resource"
)

// MethodPointer is one entry of a foreign class's method table.
type MethodPointer struct {
	Fn        func(vm *VM) error
	Signature string
	IsStatic  bool
}

// RuntimeClass holds the native bindings of one foreign class.
type RuntimeClass struct {
	construct func(vm *VM) (any, error)
	destruct  func(obj any)
	goType    reflect.Type
	methods   []MethodPointer
	tag       resource.Tag
}

// Methods returns the class's method table in registration order.
func (c *RuntimeClass) Methods() []MethodPointer {
	return append([]MethodPointer(nil), c.methods...)
}

// GoType returns the native type instances of the class carry.
func (c *RuntimeClass) GoType() reflect.Type {
	return c.goType
}

// ClassObject is anything that can be registered as a foreign class.
type ClassObject interface {
	RuntimeClass() *RuntimeClass
}

// RuntimeClass implements ClassObject.
func (c *RuntimeClass) RuntimeClass() *RuntimeClass {
	return c
}

// Module is the set of foreign classes registered under one Wren module name.
type Module struct {
	classes map[string]*RuntimeClass
}

// Class registers a foreign class, replacing any class of the same name.
func (m *Module) Class(name string, c ClassObject) *Module {
	m.classes[name] = c.RuntimeClass()
	return m
}

// ModuleLibrary maps module and class names to foreign class bindings.
// A VM takes a snapshot of the library when it is created; later changes do
// not affect it.
type ModuleLibrary struct {
	modules map[string]*Module
}

// NewModuleLibrary creates an empty library.
func NewModuleLibrary() *ModuleLibrary {
	return &ModuleLibrary{modules: make(map[string]*Module)}
}

// Module returns the named module, creating it if needed.
func (l *ModuleLibrary) Module(name string) *Module {
	m, ok := l.modules[name]
	if !ok {
		m = &Module{classes: make(map[string]*RuntimeClass)}
		l.modules[name] = m
	}
	return m
}

// ForeignClass looks up a registered class.
func (l *ModuleLibrary) ForeignClass(module, class string) (*RuntimeClass, bool) {
	if l == nil {
		return nil, false
	}
	m, ok := l.modules[module]
	if !ok {
		return nil, false
	}
	c, ok := m.classes[class]
	return c, ok
}

var (
	tagsMu sync.Mutex
	tags   = make(map[reflect.Type]resource.Tag)
)

// tagOf returns the process-wide type tag for t. Tags start at 1.
func tagOf(t reflect.Type) resource.Tag {
	tagsMu.Lock()
	defer tagsMu.Unlock()
	tag, ok := tags[t]
	if !ok {
		tag = resource.Tag(len(tags) + 1)
		tags[t] = tag
	}
	return tag
}

func tagFor[T any]() resource.Tag {
	return tagOf(reflect.TypeFor[T]())
}

type boundClass struct {
	*RuntimeClass
	module string
	name   string
}

type boundMethod struct {
	MethodPointer
	class *boundClass
}

// boundLibrary is the immutable snapshot a VM binds against. Class and
// method ids are 1-based indexes into the slices.
type boundLibrary struct {
	classes []*boundClass
	methods []boundMethod
}

func (l *ModuleLibrary) snapshot() (*boundLibrary, error) {
	b := &boundLibrary{}
	if l == nil {
		return b, nil
	}

	modules := make([]string, 0, len(l.modules))
	for name := range l.modules {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	for _, module := range modules {
		classes := l.modules[module].classes
		names := make([]string, 0, len(classes))
		for name := range classes {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			bc := &boundClass{RuntimeClass: classes[name], module: module, name: name}
			b.classes = append(b.classes, bc)
			for _, m := range bc.methods {
				b.methods = append(b.methods, boundMethod{MethodPointer: m, class: bc})
			}
		}
	}

	if len(b.classes) > engine.MaxForeignClasses {
		return nil, errors.New(errors.PhaseConfig, errors.KindRegistration).
			Detail("%d foreign classes registered, at most %d supported", len(b.classes), engine.MaxForeignClasses).
			Build()
	}
	if len(b.methods) > engine.MaxForeignMethods {
		return nil, errors.New(errors.PhaseConfig, errors.KindRegistration).
			Detail("%d foreign methods registered, at most %d supported", len(b.methods), engine.MaxForeignMethods).
			Build()
	}
	return b, nil
}

func (b *boundLibrary) classID(module, class string) uint32 {
	for i, c := range b.classes {
		if c.module == module && c.name == class {
			return uint32(i + 1)
		}
	}
	return 0
}

func (b *boundLibrary) class(id uint32) *boundClass {
	if id == 0 || int(id) > len(b.classes) {
		return nil
	}
	return b.classes[id-1]
}

func (b *boundLibrary) lookupClass(module, class string) *boundClass {
	return b.class(b.classID(module, class))
}

// methodID returns the first exact match, or 0.
func (b *boundLibrary) methodID(module, class string, isStatic bool, signature string) uint32 {
	for i, m := range b.methods {
		if m.class.module == module && m.class.name == class &&
			m.IsStatic == isStatic && m.Signature == signature {
			return uint32(i + 1)
		}
	}
	return 0
}

func (b *boundLibrary) method(id uint32) *boundMethod {
	if id == 0 || int(id) > len(b.methods) {
		return nil
	}
	return &b.methods[id-1]
}
