// Package resource provides tagged handle tables.
//
// A Table maps small integer handles to Go values. The guest never sees a Go
// pointer: it stores a handle, and the host resolves it back through the table.
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	h := table.Insert(tag, myValue)
//
//	// Retrieve only if the tag matches
//	v, ok := table.GetTyped(h, tag)
//
//	// Remove; a handle is removed at most once
//	v, ok = table.Remove(h)
//
// # Tags
//
// Every value is inserted with a Tag. GetTyped refuses to return a value
// inserted under a different tag, which is how foreign object downcasts are
// checked. Tag 0 is used for untagged values.
//
// # Cleanup
//
// Values implementing Dropper have Drop called when removed, and for any
// entries still live when the table is closed. Observers see every insert
// and removal.
//
// Handle 0 is never issued and is treated as invalid everywhere.
package resource
