package sim

import (
	"sync"

	"go.uber.org/zap"
)

// fifo runs jobs one at a time, in push order, on its own goroutine.
// Push never blocks. It backs both the command executor and the callback
// thread of every queue and context.
type fifo struct {
	name   string
	log    *zap.Logger
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool
	exited chan struct{}
}

func newFIFO(name string, log *zap.Logger) *fifo {
	f := &fifo{name: name, log: log, exited: make(chan struct{})}
	f.cond = sync.NewCond(&f.mu)
	go f.run()
	return f
}

func (f *fifo) run() {
	defer close(f.exited)
	for {
		f.mu.Lock()
		for len(f.jobs) == 0 && !f.closed {
			f.cond.Wait()
		}
		if len(f.jobs) == 0 {
			f.mu.Unlock()
			return
		}
		job := f.jobs[0]
		f.jobs[0] = nil
		f.jobs = f.jobs[1:]
		f.mu.Unlock()

		f.invoke(job)
	}
}

func (f *fifo) invoke(job func()) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("job panicked", zap.String("thread", f.name), zap.Any("panic", r))
		}
	}()
	job()
}

// push schedules job. After close, jobs run on a fresh goroutine so late
// callbacks are still delivered asynchronously.
func (f *fifo) push(job func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		go f.invoke(job)
		return
	}
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	f.cond.Signal()
}

// sync blocks until every job pushed before the call has run.
func (f *fifo) sync() {
	done := make(chan struct{})
	f.push(func() { close(done) })
	<-done
}

// close stops accepting jobs once the backlog drains.
func (f *fifo) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// pending returns the number of jobs not yet started.
func (f *fifo) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}
