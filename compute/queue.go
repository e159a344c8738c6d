package compute

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// CommandQueue submits commands to one device and returns an Event for each.
//
// Events enqueued without a mutable EventList are kept in a private list and
// released automatically once terminal. On an in-order queue events complete,
// and their handlers run, in submission order.
type CommandQueue struct {
	owner   *resource.Owner
	ctx     *Context
	dev     *Device
	props   backend.QueueProperties
	polling bool
	poller  *poller

	// submitMu keeps native submission and callback registration of
	// non-blocking commands in one order.
	submitMu sync.Mutex

	mu       sync.Mutex
	inflight map[*Event]struct{}
	private  *EventList
	pinned   atomic.Int64
}

// CreateCommandQueue creates a queue on dev, which must belong to c.
func (c *Context) CreateCommandQueue(dev *Device, props backend.QueueProperties) (*CommandQueue, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	if dev == nil || !c.hasDevice(dev) {
		return nil, errors.InvalidInput(errors.PhaseCreate, "device is not part of the context")
	}
	h, code := c.backend.CreateCommandQueue(ch, dev.handle, props)
	if err := errors.Check(errors.PhaseCreate, "create_command_queue", code); err != nil {
		return nil, err
	}
	q := &CommandQueue{
		ctx:      c,
		dev:      dev,
		props:    props,
		polling:  !dev.info.EventCallbacks,
		poller:   newPoller(c.pollInterval, !props.Has(backend.OutOfOrderExecution)),
		inflight: make(map[*Event]struct{}),
		private:  NewEventList(),
	}
	q.owner = resource.NewOwner(q, resource.KindQueue, h, releaser(c.backend, "release_command_queue"))
	Logger().Info("command queue created",
		zap.Stringer("queue", h),
		zap.String("device", dev.Name()),
		zap.Stringer("properties", props),
		zap.Bool("polling", q.polling))
	return q, nil
}

func (q *CommandQueue) Handle() resource.Handle { return q.owner.Handle() }
func (q *CommandQueue) Device() *Device { return q.dev }
func (q *CommandQueue) Context() *Context { return q.ctx }
func (q *CommandQueue) Properties() backend.QueueProperties { return q.props }

// Pending returns the number of unfinished events on the private list.
func (q *CommandQueue) Pending() int { return q.private.Len() }

// Pinned returns the number of host slices currently pinned for transfers.
func (q *CommandQueue) Pinned() int { return int(q.pinned.Load()) }

func (q *CommandQueue) handle(phase errors.Phase) (resource.Handle, error) {
	h := q.owner.Handle()
	if h == resource.Null {
		return resource.Null, errors.Released(phase, "command queue")
	}
	return h, nil
}

// Flush issues every queued command to the device without waiting.
func (q *CommandQueue) Flush() error {
	h, err := q.handle(errors.PhaseEnqueue)
	if err != nil {
		return err
	}
	return errors.Check(errors.PhaseEnqueue, "flush", q.ctx.backend.Flush(h))
}

func (q *CommandQueue) flushQuiet() {
	h := q.owner.Handle()
	if h == resource.Null {
		return
	}
	if code := q.ctx.backend.Flush(h); code != errors.Success {
		Logger().Debug("flush before wait", zap.Stringer("queue", h), zap.Stringer("code", code))
	}
}

// Finish blocks until every command enqueued so far has finished and the
// terminal hooks of its event have run.
func (q *CommandQueue) Finish() error {
	h, err := q.handle(errors.PhaseWait)
	if err != nil {
		return err
	}
	events := q.inflightEvents()
	if err := errors.Check(errors.PhaseWait, "finish", q.ctx.backend.Finish(h)); err != nil {
		return err
	}
	if q.polling {
		q.poller.sync()
	}
	for _, e := range events {
		<-e.done
	}
	return nil
}

// Wait blocks until every event in events is terminal or ctx is done.
func (q *CommandQueue) Wait(ctx context.Context, events *EventList) error {
	q.flushQuiet()
	return events.Wait(ctx)
}

// EnqueueWait makes later commands wait for events without blocking the host.
func (q *CommandQueue) EnqueueWait(events *EventList) error {
	h, err := q.handle(errors.PhaseEnqueue)
	if err != nil {
		return err
	}
	if events.Len() == 0 {
		return errors.InvalidInput(errors.PhaseEnqueue, "empty wait list")
	}
	wait := acquireAll(events.Events())
	defer releaseAll(q.ctx.backend, wait)
	if len(wait) == 0 {
		// everything already finished
		return nil
	}
	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	code := q.ctx.backend.EnqueueWaitForEvents(h, wait)
	if code.Failed() {
		return errors.Submission("wait_for_events", code)
	}
	return nil
}

// Barrier makes later commands wait for every command enqueued before it.
func (q *CommandQueue) Barrier() error {
	h, err := q.handle(errors.PhaseEnqueue)
	if err != nil {
		return err
	}
	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	if code := q.ctx.backend.EnqueueBarrier(h); code.Failed() {
		return errors.Submission("barrier", code)
	}
	return nil
}

// Marker enqueues an event that completes once every command enqueued before
// it has completed.
func (q *CommandQueue) Marker() (*Event, error) {
	return q.submit(submission{cmd: Command{Type: backend.CommandMarker}},
		func(qh resource.Handle, _ []resource.Handle) (resource.Handle, errors.Code) {
			return q.ctx.backend.EnqueueMarker(qh)
		})
}

// Release releases the queue. Commands already enqueued still run.
func (q *CommandQueue) Release() error {
	h := q.owner.Handle()
	err := q.owner.Release()
	if h != resource.Null {
		Logger().Info("command queue released", zap.Stringer("queue", h))
	}
	return err
}

func (q *CommandQueue) inflightEvents() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Event, 0, len(q.inflight))
	for e := range q.inflight {
		out = append(out, e)
	}
	return out
}

// submission is one command ready for the backend.
type submission struct {
	cmd      Command
	events   *EventList
	pins     []*pinnedHostBuffer
	blocking bool
}

func (s submission) unpin() {
	for _, p := range s.pins {
		p.unpin()
	}
}

// enqueueFunc issues the native enqueue with the queue handle and wait list.
type enqueueFunc func(queue resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code)

// submit runs call and wraps the resulting native event. Pins are released
// before submit returns for blocking commands and for failed submissions, and
// by the event's terminal hooks otherwise.
func (q *CommandQueue) submit(s submission, call enqueueFunc) (*Event, error) {
	qh, err := q.handle(errors.PhaseEnqueue)
	if err != nil {
		s.unpin()
		return nil, err
	}
	wait := acquireAll(s.events.Events())
	s.cmd.Queue = q
	s.cmd.Wait = wait

	if !s.blocking {
		q.submitMu.Lock()
		defer q.submitMu.Unlock()
	}
	h, code := call(qh, wait)
	releaseAll(q.ctx.backend, wait)
	if code.Failed() {
		s.unpin()
		return nil, errors.Submission(s.cmd.op(), code)
	}
	if s.blocking {
		s.unpin()
	}

	e := newEvent(q.ctx, q, s.cmd, h, backend.Queued)
	if !s.blocking && len(s.pins) > 0 {
		e.addHook(s.unpin)
	}
	shared := !s.events.IsReadOnly()
	e.addHook(func() { q.untrack(e, shared) })

	q.mu.Lock()
	q.inflight[e] = struct{}{}
	q.mu.Unlock()
	if shared {
		// a mutable list never rejects Add
		_ = s.events.Add(e)
	} else {
		_ = q.private.Add(e)
	}

	attach(e, q.polling, func() *poller { return q.poller })
	if s.blocking {
		q.settle(e)
	}
	return e, nil
}

// settle waits for a blocking command's terminal transition.
func (q *CommandQueue) settle(e *Event) {
	if q.polling {
		q.poller.sync()
	}
	<-e.done
}

func (q *CommandQueue) untrack(e *Event, shared bool) {
	q.mu.Lock()
	delete(q.inflight, e)
	q.mu.Unlock()
	if shared {
		return
	}
	q.private.Remove(e)
	if err := e.Release(); err != nil {
		Logger().Warn("release finished event", zap.Stringer("command", e.command), zap.Error(err))
	}
}

// acquireAll takes temporary native references on the unfinished events.
// Events that already finished are left out of the wait list.
func acquireAll(events []*Event) []resource.Handle {
	if len(events) == 0 {
		return nil
	}
	wait := make([]resource.Handle, 0, len(events))
	for _, e := range events {
		if e == nil {
			continue
		}
		if h, ok := e.acquire(); ok {
			wait = append(wait, h)
		}
	}
	return wait
}

func releaseAll(b backend.Backend, handles []resource.Handle) {
	for _, h := range handles {
		if code := b.Release(h); code != errors.Success {
			Logger().Warn("release wait list reference", zap.Stringer("event", h), zap.Stringer("code", code))
		}
	}
}
