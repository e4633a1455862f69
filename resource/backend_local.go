package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource backend closed")

// LocalBackend is an in-memory backend: a slice of entries with a free list.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	tag   Tag
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(tag Tag, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		tag:   tag,
		value: value,
		valid: true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// Get retrieves a value and its tag by handle.
func (b *LocalBackend) Get(handle Handle) (any, Tag, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, 0, false
	}
	return e.value, e.tag, true
}

// Drop removes a value and returns it.
func (b *LocalBackend) Drop(handle Handle) (any, Tag, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, 0, false
	}

	value, tag := e.value, e.tag
	e.valid = false
	e.value = nil
	e.tag = 0
	b.freeList = append(b.freeList, handle)

	return value, tag, true
}

func (b *LocalBackend) lookup(handle Handle) (*entry, bool) {
	if handle == 0 {
		return nil, false
	}
	idx := handle - 1
	if int(idx) >= len(b.entries) {
		return nil, false
	}
	e := &b.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e, true
}

// Close releases all entries, calling Drop on values that implement Dropper.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	entries := b.entries
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	// Droppers run without the lock held.
	for i := range entries {
		if entries[i].valid {
			if d, ok := entries[i].value.(Dropper); ok {
				d.Drop()
			}
		}
	}
	return nil
}

// Len returns the number of live entries.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live entries. The table must not be mutated from fn.
func (b *LocalBackend) Each(fn func(Handle, Tag, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.tag, e.value) {
				break
			}
		}
	}
}
