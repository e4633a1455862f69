package wren

import (
	"fmt"
	"reflect"
)

// ClassBuilder describes a foreign class whose instances are *T values.
type ClassBuilder[T any] struct {
	construct func(vm *VM) (*T, error)
	finalize  func(obj *T)
	methods   []MethodPointer
}

// NewClass starts a foreign class. construct runs when a script calls a
// constructor of the class; the arguments are in slots 1 and up.
func NewClass[T any](construct func(vm *VM) (*T, error)) *ClassBuilder[T] {
	return &ClassBuilder[T]{construct: construct}
}

// Method adds an instance method. The receiver is read from slot 0; calls on
// a value of another type fail the fiber.
func (b *ClassBuilder[T]) Method(signature string, fn func(recv *T, vm *VM) error) *ClassBuilder[T] {
	b.methods = append(b.methods, MethodPointer{
		Signature: signature,
		Fn: func(vm *VM) error {
			recv, ok := GetSlotForeign[T](vm, 0)
			if !ok {
				name := reflect.TypeFor[T]().String()
				return fmt.Errorf("tried to call %s of %s on non-%s type", signature, name, name)
			}
			return fn(recv, vm)
		},
	})
	return b
}

// Static adds a static method. Slot 0 holds the class object.
func (b *ClassBuilder[T]) Static(signature string, fn func(vm *VM) error) *ClassBuilder[T] {
	b.methods = append(b.methods, MethodPointer{Signature: signature, IsStatic: true, Fn: fn})
	return b
}

// Finalizer sets a hook that runs when the VM collects an instance.
func (b *ClassBuilder[T]) Finalizer(fn func(obj *T)) *ClassBuilder[T] {
	b.finalize = fn
	return b
}

// RuntimeClass implements ClassObject.
func (b *ClassBuilder[T]) RuntimeClass() *RuntimeClass {
	c := &RuntimeClass{
		goType:  reflect.TypeFor[T](),
		tag:     tagFor[T](),
		methods: append([]MethodPointer(nil), b.methods...),
	}
	if construct := b.construct; construct != nil {
		c.construct = func(vm *VM) (any, error) {
			obj, err := construct(vm)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				obj = new(T)
			}
			return obj, nil
		}
	}
	if finalize := b.finalize; finalize != nil {
		c.destruct = func(obj any) {
			if p, ok := obj.(*T); ok {
				finalize(p)
			}
		}
	}
	return c
}
