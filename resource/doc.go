// Package resource manages native object handles.
//
// # Handles
//
// A Handle is an opaque 64-bit reference. The low half indexes a table slot
// and the high half carries the slot generation, so a stale handle never
// aliases a newer object. Null (0) is always invalid.
//
// # Handle Table
//
// Table is the reference-counted store a device implementation keeps its
// objects in:
//
//	table := resource.NewTable()
//
//	h, _ := table.Insert(resource.KindBuffer, buf) // refs = 1
//	table.Retain(h)                                // refs = 2
//	table.Release(h)                               // refs = 1
//	dropped, _ := table.Release(h)                 // dropped == true
//
// Values implementing Dropper have Drop called once the last reference is
// gone. Observers receive created, retained, released and dropped events.
//
// # Ownership
//
// Owner wraps exactly one handle on behalf of a host object:
//
//	b := &Buffer{}
//	b.owner = resource.NewOwner(b, resource.KindBuffer, h, backend.Release)
//	defer b.owner.Release()
//
// Release invalidates the handle under a lock before issuing the native
// release, so concurrent or repeated calls release exactly once. If the host
// object becomes unreachable while still holding its handle, a cleanup
// releases it and logs a "resource leaked" warning. Warnings are rate limited
// per kind.
package resource
