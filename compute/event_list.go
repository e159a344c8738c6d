package compute

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/compute-runtime/errors"
)

// EventList is an ordered collection of events used to build dependency
// chains. A queue given a mutable list waits on its members and appends the
// new event; a read-only list is only waited on.
//
// A nil *EventList is a valid empty read-only list.
type EventList struct {
	mu       sync.Mutex
	events   []*Event
	readOnly bool
}

// NewEventList returns a mutable list holding events.
func NewEventList(events ...*Event) *EventList {
	l := &EventList{}
	for _, e := range events {
		if e != nil {
			l.events = append(l.events, e)
		}
	}
	return l
}

// ReadOnly returns a read-only snapshot of the list.
func (l *EventList) ReadOnly() *EventList {
	return &EventList{events: l.Events(), readOnly: true}
}

func (l *EventList) IsReadOnly() bool {
	if l == nil {
		return true
	}
	return l.readOnly
}

// Add appends e. Read-only lists reject it.
func (l *EventList) Add(e *Event) error {
	if l.IsReadOnly() {
		return errors.ReadOnly("event_list_add")
	}
	if e == nil {
		return errors.InvalidInput(errors.PhaseEnqueue, "nil event")
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

// Remove deletes the first occurrence of e and reports whether it was found.
func (l *EventList) Remove(e *Event) bool {
	if l.IsReadOnly() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.events {
		if m == e {
			copy(l.events[i:], l.events[i+1:])
			l.events[len(l.events)-1] = nil
			l.events = l.events[:len(l.events)-1]
			return true
		}
	}
	return false
}

func (l *EventList) Contains(e *Event) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.events {
		if m == e {
			return true
		}
	}
	return false
}

func (l *EventList) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// At returns the i-th event. It panics when i is out of range, as for a
// slice; a nil list has no events.
func (l *EventList) At(i int) *Event {
	if l == nil {
		var none []*Event
		return none[i]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[i]
}

// Last returns the most recently added event, or nil.
func (l *EventList) Last() *Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	return l.events[len(l.events)-1]
}

// Events returns a copy of the members.
func (l *EventList) Events() []*Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Event(nil), l.events...)
}

// Clear removes every member without releasing it.
func (l *EventList) Clear() {
	if l.IsReadOnly() {
		return
	}
	l.mu.Lock()
	clear(l.events)
	l.events = l.events[:0]
	l.mu.Unlock()
}

// Wait blocks until every member is terminal. Aborted members do not make it
// fail; inspect their status instead. The only error is ctx.Err().
func (l *EventList) Wait(ctx context.Context) error {
	return WaitAll(ctx, l.Events()...)
}

// Release releases every member and clears the list.
func (l *EventList) Release() error {
	events := l.Events()
	var err error
	for _, e := range events {
		err = multierr.Append(err, e.Release())
	}
	l.Clear()
	return err
}

// WaitAll blocks until every event is terminal or ctx is done.
func WaitAll(ctx context.Context, events ...*Event) error {
	for _, e := range events {
		if e == nil {
			continue
		}
		if err := e.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
