package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// queue executes commands on two goroutines: the executor, which starts
// commands in submission order, and the callback thread, which delivers
// event callbacks in completion order.
//
// In-order queues run each command to completion before starting the next.
// Out-of-order queues start commands as soon as their wait lists allow, up to
// the device's compute units; barriers and markers drain everything before
// them.
type queue struct {
	sim       *Sim
	handle    resource.Handle
	ctx       *simContext
	dev       *device
	props     backend.QueueProperties
	exec      *fifo
	callbacks *fifo

	// group is only touched from the executor goroutine.
	group *errgroup.Group

	mu       sync.Mutex
	held     []*command
	released bool
}

type command struct {
	typ    backend.CommandType
	ev     *event
	wait   []*event
	kernel string
	// barrier commands wait for every earlier command of an out-of-order queue.
	barrier bool
	run     func() errors.Code
}

func (q *queue) outOfOrder() bool {
	return q.props.Has(backend.OutOfOrderExecution)
}

func (s *Sim) CreateCommandQueue(ctx, dev resource.Handle, props backend.QueueProperties) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	d, ok := s.lookupDevice(dev)
	if !ok || !c.hasDevice(d) {
		return resource.Null, errors.InvalidDevice
	}
	if props&^(backend.OutOfOrderExecution|backend.Profiling) != 0 {
		return resource.Null, errors.InvalidValue
	}
	if (props.Has(backend.OutOfOrderExecution) && d.cfg.DisableOutOfOrder) ||
		(props.Has(backend.Profiling) && d.cfg.DisableProfiling) {
		return resource.Null, errors.InvalidQueueProperties
	}
	if !d.available.Load() {
		return resource.Null, errors.DeviceNotAvailable
	}

	q := &queue{
		sim:       s,
		ctx:       c,
		dev:       d,
		props:     props,
		exec:      newFIFO("executor", s.log),
		callbacks: newFIFO("callbacks", s.log),
	}
	if q.outOfOrder() {
		q.group = new(errgroup.Group)
		q.group.SetLimit(d.cfg.ComputeUnits)
	}

	h, err := s.objects.Insert(resource.KindQueue, q)
	if err != nil {
		q.exec.close()
		q.callbacks.close()
		return resource.Null, errors.OutOfHostMemory
	}
	q.handle = h
	_ = s.objects.Retain(c.handle)

	s.log.Info("command queue created",
		zap.Stringer("queue", h),
		zap.String("device", d.cfg.Name),
		zap.Stringer("properties", props))
	return h, errors.Success
}

// Drop submits held commands and shuts the queue down once they finish.
func (q *queue) Drop() {
	q.mu.Lock()
	q.released = true
	q.dispatchHeldLocked()
	q.exec.push(func() {
		if q.group != nil {
			_ = q.group.Wait()
		}
		q.callbacks.close()
		q.sim.Release(q.ctx.handle)
	})
	q.mu.Unlock()
	q.exec.close()
}

func (s *Sim) lookupQueue(h resource.Handle) (*queue, bool) {
	return resource.View[*queue](s.objects, resource.KindQueue).Get(h)
}

// prepare validates the queue and wait list shared by every enqueue call.
func (s *Sim) prepare(qh resource.Handle, wait []resource.Handle) (*queue, []*event, errors.Code) {
	q, ok := s.lookupQueue(qh)
	if !ok {
		return nil, nil, errors.InvalidCommandQueue
	}
	if !q.dev.available.Load() {
		return nil, nil, errors.DeviceNotAvailable
	}
	events, code := s.resolveWaitList(q.ctx, wait)
	if code != errors.Success {
		return nil, nil, code
	}
	return q, events, errors.Success
}

// enqueue creates the command's event and submits it. Blocking calls return
// once the event is terminal and its callbacks have been delivered.
func (q *queue) enqueue(c *command, blocking bool) (resource.Handle, errors.Code) {
	ev, code := q.sim.newEvent(q.ctx, q, c.typ, backend.Queued)
	if code != errors.Success {
		return resource.Null, code
	}
	// the command holds its own reference until completion is delivered
	_ = q.sim.objects.Retain(ev.handle)
	c.ev = ev

	q.submit(c)
	if blocking {
		q.flush()
		<-ev.notified
	}
	return ev.handle, errors.Success
}

func (q *queue) submit(c *command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sim.cfg.ManualFlush && !q.released {
		q.held = append(q.held, c)
		return
	}
	q.dispatchLocked(c)
}

func (q *queue) dispatchLocked(c *command) {
	if c.ev != nil {
		c.ev.setStatus(backend.Submitted)
	}
	q.exec.push(func() { q.schedule(c) })
}

func (q *queue) dispatchHeldLocked() {
	held := q.held
	q.held = nil
	for _, c := range held {
		q.dispatchLocked(c)
	}
}

func (q *queue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatchHeldLocked()
}

// schedule runs on the executor goroutine.
func (q *queue) schedule(c *command) {
	if !q.outOfOrder() {
		q.execute(c)
		return
	}
	if c.barrier {
		_ = q.group.Wait()
		q.execute(c)
		return
	}
	q.group.Go(func() error {
		q.execute(c)
		return nil
	})
}

func (q *queue) execute(c *command) {
	code := errors.Success
	for _, w := range c.wait {
		<-w.done
		if w.current().IsAborted() {
			code = errors.ExecStatusErrorForEventsInWaitList
		}
	}

	if c.ev == nil {
		if c.run != nil {
			c.run()
		}
		return
	}

	c.ev.setStatus(backend.Running)
	if code == errors.Success && !q.dev.available.Load() {
		code = errors.DeviceNotAvailable
	}
	if code == errors.Success {
		if fc, ok := q.sim.takeFault(c.typ, c.kernel); ok {
			code = fc
		} else if c.run != nil {
			code = q.run(c)
		}
	}
	if lat := q.dev.cfg.Latency; lat > 0 {
		time.Sleep(lat)
	}
	q.complete(c.ev, code)
}

// run executes a command body. A panic aborts the command with
// OutOfResources so its event still reaches a terminal state.
func (q *queue) run(c *command) (code errors.Code) {
	defer func() {
		if p := recover(); p != nil {
			q.sim.log.Warn("command panicked", zap.Stringer("command", c.typ), zap.Any("panic", p))
			code = errors.OutOfResources
		}
	}()
	return c.run()
}

func (q *queue) complete(ev *event, code errors.Code) {
	if code == errors.Success {
		ev.setStatus(backend.Complete)
	} else {
		ev.setStatus(backend.Aborted(code))
	}
	h := ev.handle
	q.callbacks.push(func() { q.sim.Release(h) })
}

func (s *Sim) Flush(qh resource.Handle) errors.Code {
	q, ok := s.lookupQueue(qh)
	if !ok {
		return errors.InvalidCommandQueue
	}
	q.flush()
	return errors.Success
}

// Finish blocks until every command submitted so far has completed and its
// callbacks have been delivered.
func (s *Sim) Finish(qh resource.Handle) errors.Code {
	q, ok := s.lookupQueue(qh)
	if !ok {
		return errors.InvalidCommandQueue
	}
	done := make(chan struct{})
	q.mu.Lock()
	q.dispatchHeldLocked()
	q.dispatchLocked(&command{barrier: true, run: func() errors.Code {
		close(done)
		return errors.Success
	}})
	q.mu.Unlock()

	<-done
	q.callbacks.sync()
	return errors.Success
}

func (s *Sim) EnqueueMarker(qh resource.Handle) (resource.Handle, errors.Code) {
	q, _, code := s.prepare(qh, nil)
	if code != errors.Success {
		return resource.Null, code
	}
	return q.enqueue(&command{typ: backend.CommandMarker, barrier: true}, false)
}

func (s *Sim) EnqueueBarrier(qh resource.Handle) errors.Code {
	q, _, code := s.prepare(qh, nil)
	if code != errors.Success {
		return code
	}
	q.submit(&command{barrier: true})
	return errors.Success
}

// EnqueueWaitForEvents makes later commands of the queue wait for events.
func (s *Sim) EnqueueWaitForEvents(qh resource.Handle, handles []resource.Handle) errors.Code {
	if len(handles) == 0 {
		return errors.InvalidValue
	}
	q, events, code := s.prepare(qh, handles)
	if code != errors.Success {
		if code == errors.InvalidEventWaitList {
			return errors.InvalidEvent
		}
		return code
	}
	q.submit(&command{barrier: true, wait: events})
	return errors.Success
}
