package sim

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

type event struct {
	sim       *Sim
	handle    resource.Handle
	cmd       backend.CommandType
	ctx       *simContext
	queue     *queue
	thread    *fifo
	profiling bool

	mu        sync.Mutex
	status    backend.ExecutionStatus
	callbacks []backend.EventCallback
	prof      backend.ProfilingInfo

	// done closes when the status becomes terminal, notified once the
	// callbacks registered by then have been delivered.
	done     chan struct{}
	notified chan struct{}
}

func (s *Sim) newEvent(ctx *simContext, q *queue, cmd backend.CommandType, initial backend.ExecutionStatus) (*event, errors.Code) {
	ev := &event{
		sim:      s,
		cmd:      cmd,
		ctx:      ctx,
		queue:    q,
		status:   initial,
		done:     make(chan struct{}),
		notified: make(chan struct{}),
	}
	if q != nil {
		ev.thread = q.callbacks
		ev.profiling = q.props.Has(backend.Profiling)
	} else {
		ev.thread = ctx.callbacks
	}
	now := s.now()
	ev.prof.Queued = now
	if initial <= backend.Submitted {
		ev.prof.Submitted = now
	}

	h, err := s.objects.Insert(resource.KindEvent, ev)
	if err != nil {
		return nil, errors.OutOfHostMemory
	}
	ev.handle = h
	return ev, errors.Success
}

// setStatus moves the event forward. Terminal statuses are recorded once;
// later calls are ignored.
func (e *event) setStatus(st backend.ExecutionStatus) {
	e.mu.Lock()
	if e.status.IsTerminal() || st >= e.status {
		e.mu.Unlock()
		return
	}
	now := e.sim.now()
	switch {
	case st == backend.Submitted:
		e.prof.Submitted = now
	case st == backend.Running:
		if e.prof.Submitted == 0 {
			e.prof.Submitted = now
		}
		e.prof.Started = now
	case st.IsTerminal():
		if e.prof.Started == 0 {
			e.prof.Started = now
		}
		e.prof.Ended = now
	}
	e.status = st
	if !st.IsTerminal() {
		e.mu.Unlock()
		return
	}

	close(e.done)
	cbs := e.callbacks
	e.callbacks = nil
	h := e.handle
	e.thread.push(func() {
		for _, cb := range cbs {
			cb(h, st)
		}
		close(e.notified)
	})
	e.mu.Unlock()

	if st.IsAborted() {
		e.sim.log.Debug("command aborted",
			zap.Stringer("event", h),
			zap.Stringer("command", e.cmd),
			zap.Stringer("status", st))
	}
}

func (e *event) current() backend.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// addCallback registers cb. For an event that is already terminal, cb is
// scheduled on the callback thread right away.
func (e *event) addCallback(cb backend.EventCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.IsTerminal() {
		h, st := e.handle, e.status
		e.thread.push(func() { cb(h, st) })
		return
	}
	e.callbacks = append(e.callbacks, cb)
}

// callbacksSupported reports whether the devices behind e deliver callbacks.
func (e *event) callbacksSupported() bool {
	if e.queue != nil {
		return !e.queue.dev.cfg.DisableCallbacks
	}
	for _, d := range e.ctx.devices {
		if !d.cfg.DisableCallbacks {
			return true
		}
	}
	return false
}

func (s *Sim) lookupEvent(h resource.Handle) (*event, bool) {
	return resource.View[*event](s.objects, resource.KindEvent).Get(h)
}

// resolveWaitList validates a wait list against ctx.
func (s *Sim) resolveWaitList(ctx *simContext, wait []resource.Handle) ([]*event, errors.Code) {
	if len(wait) == 0 {
		return nil, errors.Success
	}
	out := make([]*event, 0, len(wait))
	for _, h := range wait {
		ev, ok := s.lookupEvent(h)
		if !ok {
			return nil, errors.InvalidEventWaitList
		}
		if ctx != nil && ev.ctx != ctx {
			return nil, errors.InvalidContext
		}
		out = append(out, ev)
	}
	return out, errors.Success
}

// CreateUserEvent creates a host-controlled event in the Submitted state.
func (s *Sim) CreateUserEvent(ctx resource.Handle) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	ev, code := s.newEvent(c, nil, backend.CommandUser, backend.Submitted)
	if code != errors.Success {
		return resource.Null, code
	}
	s.log.Debug("user event created", zap.Stringer("event", ev.handle))
	return ev.handle, errors.Success
}

// SetUserEventStatus completes or aborts a user event. It may be called once.
func (s *Sim) SetUserEventStatus(h resource.Handle, status backend.ExecutionStatus) errors.Code {
	ev, ok := s.lookupEvent(h)
	if !ok || ev.cmd != backend.CommandUser {
		return errors.InvalidEvent
	}
	if !status.IsTerminal() {
		return errors.InvalidValue
	}
	if ev.current().IsTerminal() {
		return errors.InvalidOperation
	}
	ev.setStatus(status)
	return errors.Success
}

func (s *Sim) SetEventCallback(h resource.Handle, cb backend.EventCallback) errors.Code {
	ev, ok := s.lookupEvent(h)
	if !ok {
		return errors.InvalidEvent
	}
	if cb == nil {
		return errors.InvalidValue
	}
	if !ev.callbacksSupported() {
		return errors.InvalidOperation
	}
	ev.addCallback(cb)
	return errors.Success
}

func (s *Sim) EventStatus(h resource.Handle) (backend.ExecutionStatus, errors.Code) {
	ev, ok := s.lookupEvent(h)
	if !ok {
		return 0, errors.InvalidEvent
	}
	return ev.current(), errors.Success
}

func (s *Sim) EventCommandType(h resource.Handle) (backend.CommandType, errors.Code) {
	ev, ok := s.lookupEvent(h)
	if !ok {
		return 0, errors.InvalidEvent
	}
	return ev.cmd, errors.Success
}

func (s *Sim) EventProfiling(h resource.Handle) (backend.ProfilingInfo, errors.Code) {
	ev, ok := s.lookupEvent(h)
	if !ok {
		return backend.ProfilingInfo{}, errors.InvalidEvent
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if !ev.profiling || !ev.status.IsTerminal() {
		return backend.ProfilingInfo{}, errors.ProfilingInfoNotAvailable
	}
	return ev.prof, errors.Success
}

// WaitForEvents blocks until every event is terminal.
func (s *Sim) WaitForEvents(handles []resource.Handle) errors.Code {
	if len(handles) == 0 {
		return errors.InvalidValue
	}
	events, code := s.resolveWaitList(nil, handles)
	if code != errors.Success {
		return errors.InvalidEvent
	}
	ctx := events[0].ctx
	for _, ev := range events {
		if ev.ctx != ctx {
			return errors.InvalidContext
		}
	}
	for _, ev := range events {
		if ev.queue != nil {
			ev.queue.flush()
		}
	}
	result := errors.Success
	for _, ev := range events {
		<-ev.done
		if ev.current().IsAborted() {
			result = errors.ExecStatusErrorForEventsInWaitList
		}
	}
	return result
}
