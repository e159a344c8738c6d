package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed        = errors.New("resource table closed")
	ErrInvalidHandle = errors.New("invalid resource handle")
)

type entry struct {
	value any
	kind  Kind
	gen   uint32
	refs  int32
	valid bool
}

// Table is a reference-counted handle table. Objects start with one reference;
// the object is dropped when the count reaches zero.
type Table struct {
	entries   []entry
	freeList  []uint32
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores value with one reference and returns its handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Null, ErrClosed
	}

	var idx uint32
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, entry{})
		idx = uint32(len(t.entries) - 1)
	}
	e := &t.entries[idx]
	e.gen++
	e.kind = kind
	e.value = value
	e.refs = 1
	e.valid = true
	h := makeHandle(idx, e.gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Kind: kind, Value: value, Refs: 1})
	return h, nil
}

// lookup returns the live entry for h. Callers hold t.mu.
func (t *Table) lookup(h Handle) *entry {
	idx, gen, ok := h.slot()
	if !ok || int(idx) >= len(t.entries) {
		return nil
	}
	e := &t.entries[idx]
	if !e.valid || e.gen != gen {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// GetKind retrieves a value only if it is of the expected kind.
func (t *Table) GetKind(h Handle, kind Kind) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil || e.kind != kind {
		return nil, false
	}
	return e.value, true
}

// KindOf returns the kind of a live handle.
func (t *Table) KindOf(h Handle) (Kind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil {
		return KindUnknown, false
	}
	return e.kind, true
}

// RefCount returns the current reference count, or 0 for dead handles.
func (t *Table) RefCount(h Handle) int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.lookup(h); e != nil {
		return e.refs
	}
	return 0
}

// Retain adds a reference.
func (t *Table) Retain(h Handle) error {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return ErrInvalidHandle
	}
	e.refs++
	ev := Event{Type: EventRetained, Handle: h, Kind: e.kind, Value: e.value, Refs: e.refs}
	t.mu.Unlock()

	t.notify(ev)
	return nil
}

// Release drops a reference. When the last reference goes the value is
// removed, its Drop method runs (outside the table lock) and dropped is true.
func (t *Table) Release(h Handle) (dropped bool, err error) {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return false, ErrInvalidHandle
	}
	e.refs--
	ev := Event{Type: EventReleased, Handle: h, Kind: e.kind, Value: e.value, Refs: e.refs}
	if e.refs > 0 {
		t.mu.Unlock()
		t.notify(ev)
		return false, nil
	}
	value := e.value
	t.free(h, e)
	t.mu.Unlock()

	t.notify(ev)
	t.drop(h, ev.Kind, value)
	return true, nil
}

// Remove drops an object regardless of its reference count.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return nil, false
	}
	kind, value := e.kind, e.value
	t.free(h, e)
	t.mu.Unlock()

	t.drop(h, kind, value)
	return value, true
}

func (t *Table) free(h Handle, e *entry) {
	idx, _, _ := h.slot()
	e.valid = false
	e.value = nil
	e.refs = 0
	t.freeList = append(t.freeList, idx)
}

func (t *Table) drop(h Handle, kind Kind, value any) {
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, Kind: kind, Value: value})
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Count returns the number of live objects of one kind.
func (t *Table) Count(kind Kind) int {
	n := 0
	t.Each(func(_ Handle, k Kind, _ any) bool {
		if k == kind {
			n++
		}
		return true
	})
	return n
}

// Each iterates over live objects until fn returns false.
// fn runs without the table lock held.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	type item struct {
		h     Handle
		kind  Kind
		value any
	}
	t.mu.RLock()
	items := make([]item, 0, len(t.entries))
	for i := range t.entries {
		if e := &t.entries[i]; e.valid {
			items = append(items, item{makeHandle(uint32(i), e.gen), e.kind, e.value})
		}
	}
	t.mu.RUnlock()

	for _, it := range items {
		if !fn(it.h, it.kind, it.value) {
			return
		}
	}
}

// Close drops every live object and rejects further inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var handles []Handle
	t.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed provides type-safe access to the objects of one kind.
type Typed[T any] struct {
	table *Table
	kind  Kind
}

// View returns a typed view over the objects of kind in t.
func View[T any](t *Table, kind Kind) Typed[T] {
	return Typed[T]{table: t, kind: kind}
}

// Insert adds a value and returns its handle.
func (v Typed[T]) Insert(value T) (Handle, error) {
	return v.table.Insert(v.kind, value)
}

// Get retrieves a value by handle. It fails for handles of another kind.
func (v Typed[T]) Get(h Handle) (T, bool) {
	var zero T
	raw, ok := v.table.GetKind(h, v.kind)
	if !ok {
		return zero, false
	}
	val, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return val, true
}

// Each iterates over all live values of the view's kind.
func (v Typed[T]) Each(fn func(Handle, T) bool) {
	v.table.Each(func(h Handle, k Kind, raw any) bool {
		if k != v.kind {
			return true
		}
		val, ok := raw.(T)
		if !ok {
			return true
		}
		return fn(h, val)
	})
}
