package compute

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Event is the completion token of one command.
//
// The terminal transition happens once, driven by the backend callback or, on
// devices without callbacks, by a poller. It publishes the status, runs the
// user handlers, runs internal hooks such as unpinning host memory, and then
// closes Done.
type Event struct {
	owner   *resource.Owner
	backend backend.Backend
	native  resource.Handle
	ctx     *Context
	queue   *CommandQueue
	command Command
	poller  *poller

	mu        sync.Mutex
	status    backend.ExecutionStatus
	terminal  bool
	tracked   bool
	completes []func(*Event)
	aborts    []func(*Event, errors.Code)
	hooks     []func()
	profiling bool
	prof      backend.ProfilingInfo
	profErr   error

	done chan struct{}
}

// newEvent wraps h. The event takes a second native reference that keeps the
// handle usable for status queries and wait lists until the terminal hooks
// have run, even if the caller releases the event earlier.
func newEvent(ctx *Context, q *CommandQueue, cmd Command, h resource.Handle, initial backend.ExecutionStatus) *Event {
	e := &Event{
		backend: ctx.backend,
		native:  h,
		ctx:     ctx,
		queue:   q,
		command: cmd,
		status:  initial,
		done:    make(chan struct{}),
	}
	if q != nil {
		e.profiling = q.props.Has(backend.Profiling)
	}
	e.owner = resource.NewOwner(e, resource.KindEvent, h, releaser(ctx.backend, "release_event"))
	if code := ctx.backend.Retain(h); code == errors.Success {
		e.tracked = true
	} else {
		Logger().Warn("event tracking reference failed", zap.Stringer("event", h), zap.Stringer("code", code))
	}
	Logger().Debug("event created", zap.Stringer("event", h), zap.Stringer("command", cmd))
	return e
}

func releaser(b backend.Backend, op string) resource.ReleaseFunc {
	return func(h resource.Handle) error {
		return errors.Check(errors.PhaseRelease, op, b.Release(h))
	}
}

// Handle returns the caller's native handle, or resource.Null once released.
func (e *Event) Handle() resource.Handle { return e.owner.Handle() }

func (e *Event) Command() Command { return e.command }
func (e *Event) Type() backend.CommandType { return e.command.Type }
func (e *Event) Context() *Context { return e.ctx }

// Queue returns the queue that created the event, or nil for user events.
func (e *Event) Queue() *CommandQueue { return e.queue }

// Done is closed after the terminal transition and all its hooks have run.
func (e *Event) Done() <-chan struct{} { return e.done }

// Status returns the current execution status. A terminal status is reported
// only once the event has made its terminal transition.
func (e *Event) Status() backend.ExecutionStatus {
	if st, ok := e.terminalStatus(); ok {
		return st
	}
	if e.poller != nil {
		e.poller.tryPoll()
		if st, ok := e.terminalStatus(); ok {
			return st
		}
	}
	st, code := e.backend.EventStatus(e.native)
	if code != errors.Success || st.IsTerminal() {
		return e.cached()
	}
	e.advance(st)
	return e.cached()
}

func (e *Event) terminalStatus() (backend.ExecutionStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.terminal
}

func (e *Event) cached() backend.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Event) advance(st backend.ExecutionStatus) {
	e.mu.Lock()
	if !e.terminal && st < e.status {
		e.status = st
	}
	e.mu.Unlock()
}

// Err returns an aborted error once the command failed, nil otherwise.
func (e *Event) Err() error {
	st, terminal := e.terminalStatus()
	if !terminal || !st.IsAborted() {
		return nil
	}
	return errors.Aborted(e.command.op(), st.Code())
}

// OnComplete registers fn for successful completion. If the event already
// completed, fn runs before OnComplete returns. Handlers must not block on
// work queued behind the same queue.
func (e *Event) OnComplete(fn func(*Event)) {
	e.mu.Lock()
	if !e.terminal {
		e.completes = append(e.completes, fn)
		e.mu.Unlock()
		return
	}
	st := e.status
	e.mu.Unlock()
	if st == backend.Complete {
		e.invoke("complete", func() { fn(e) })
	}
}

// OnAbort registers fn for an aborted command; fn receives the failure code.
// If the event already aborted, fn runs before OnAbort returns.
func (e *Event) OnAbort(fn func(*Event, errors.Code)) {
	e.mu.Lock()
	if !e.terminal {
		e.aborts = append(e.aborts, fn)
		e.mu.Unlock()
		return
	}
	st := e.status
	e.mu.Unlock()
	if st.IsAborted() {
		e.invoke("abort", func() { fn(e, st.Code()) })
	}
}

// addHook registers an internal terminal hook. Hooks run after the user
// handlers and before Done closes.
func (e *Event) addHook(fn func()) {
	e.mu.Lock()
	if !e.terminal {
		e.hooks = append(e.hooks, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}

// transition moves the event forward. Only the first terminal status counts.
func (e *Event) transition(st backend.ExecutionStatus) {
	if !st.IsTerminal() {
		e.advance(st)
		return
	}
	prof, profErr := e.captureProfile()

	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return
	}
	e.terminal = true
	e.status = st
	e.prof, e.profErr = prof, profErr
	completes, aborts, hooks := e.completes, e.aborts, e.hooks
	e.completes, e.aborts, e.hooks = nil, nil, nil
	e.mu.Unlock()

	if st.IsAborted() {
		Logger().Debug("command aborted",
			zap.Stringer("event", e.native),
			zap.Stringer("command", e.command),
			zap.Stringer("status", st))
		for _, fn := range aborts {
			e.invoke("abort", func() { fn(e, st.Code()) })
		}
	} else {
		for _, fn := range completes {
			e.invoke("complete", func() { fn(e) })
		}
	}
	for _, fn := range hooks {
		fn()
	}
	e.dropTracking()
	close(e.done)
}

func (e *Event) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("event handler panicked",
				zap.String("handler", kind),
				zap.Stringer("command", e.command),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func (e *Event) captureProfile() (backend.ProfilingInfo, error) {
	if !e.profiling {
		return backend.ProfilingInfo{}, errors.Check(errors.PhaseQuery, "profile", errors.ProfilingInfoNotAvailable)
	}
	prof, code := e.backend.EventProfiling(e.native)
	return prof, errors.Check(errors.PhaseQuery, "profile", code)
}

func (e *Event) dropTracking() {
	e.mu.Lock()
	tracked := e.tracked
	e.tracked = false
	e.mu.Unlock()
	if tracked {
		if code := e.backend.Release(e.native); code != errors.Success {
			Logger().Warn("release event tracking reference", zap.Stringer("event", e.native), zap.Stringer("code", code))
		}
	}
}

// acquire takes a temporary native reference for use in a wait list. It
// fails once the event has finished and dropped its tracking reference.
func (e *Event) acquire() (resource.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tracked {
		return resource.Null, false
	}
	if e.backend.Retain(e.native) != errors.Success {
		return resource.Null, false
	}
	return e.native, true
}

// refresh queries the backend and makes the terminal transition if the
// command finished. It reports whether the event is terminal.
func (e *Event) refresh() bool {
	if _, ok := e.terminalStatus(); ok {
		return true
	}
	st, code := e.backend.EventStatus(e.native)
	if code != errors.Success {
		return false
	}
	e.transition(st)
	return st.IsTerminal()
}

// Wait blocks until the event is terminal and its hooks have run, or ctx is
// done. Cancelling ctx stops the wait, never the command.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	default:
	}
	if e.queue != nil {
		e.queue.flushQuiet()
	}
	if e.poller != nil {
		e.poller.kick()
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Profile returns the command's timestamps. They are captured at the terminal
// transition and remain available after the handle is released.
func (e *Event) Profile() (backend.ProfilingInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.terminal {
		return backend.ProfilingInfo{}, errors.NotTerminal("profile")
	}
	return e.prof, e.profErr
}

// Release drops the caller's reference. It is safe to call more than once and
// does not affect an in-flight command.
func (e *Event) Release() error {
	return e.owner.Release()
}

// attach connects e to its terminal transition source: the backend callback,
// or a poller when callbacks are unavailable.
func attach(e *Event, polling bool, fallback func() *poller) {
	if !polling {
		code := e.backend.SetEventCallback(e.native, func(_ resource.Handle, st backend.ExecutionStatus) {
			e.transition(st)
		})
		if code == errors.Success {
			return
		}
		Logger().Warn("event callback unavailable, polling",
			zap.Stringer("event", e.native),
			zap.Stringer("code", code))
	}
	e.poller = fallback()
	e.poller.add(e)
}
