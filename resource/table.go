package resource

import (
	"sync"
)

// Table maps handles to tagged Go values and notifies observers of lifecycle events.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{backend: NewLocalBackend()}
}

// Insert adds a value and returns its handle, or 0 if the table is closed.
func (t *Table) Insert(tag Tag, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(tag, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Tag:    tag,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	v, _, ok := t.backend.Get(handle)
	return v, ok
}

// GetTyped retrieves a value only if it was inserted with the expected tag.
func (t *Table) GetTyped(handle Handle, tag Tag) (any, bool) {
	v, actual, ok := t.backend.Get(handle)
	if !ok || actual != tag {
		return nil, false
	}
	return v, true
}

// Remove drops a value and returns (value, true) if found.
// Values implementing Dropper have Drop called exactly once.
func (t *Table) Remove(handle Handle) (any, bool) {
	value, tag, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Tag:    tag,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live values.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Handles returns the live handles in ascending order.
func (t *Table) Handles() []Handle {
	var handles []Handle
	t.backend.Each(func(h Handle, _ Tag, _ any) bool {
		handles = append(handles, h)
		return true
	})
	return handles
}

// Clear removes all values.
func (t *Table) Clear() {
	// Collect handles first to avoid holding the backend lock during Remove
	for _, h := range t.Handles() {
		t.Remove(h)
	}
}

// Close removes all values and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.Clear()
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
