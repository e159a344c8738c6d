package compute

import (
	"sync"
	"time"
)

// DefaultPollInterval is used for devices that cannot deliver event callbacks.
const DefaultPollInterval = time.Millisecond

// poller drives terminal transitions for events on devices without callback
// support. For in-order queues it stops at the first unfinished event, so
// handlers still run in submission order.
type poller struct {
	interval time.Duration
	ordered  bool
	kickCh   chan struct{}

	// pollMu serializes transitions made by the poller.
	pollMu sync.Mutex

	mu      sync.Mutex
	events  []*Event
	running bool
}

func newPoller(interval time.Duration, ordered bool) *poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &poller{interval: interval, ordered: ordered, kickCh: make(chan struct{}, 1)}
}

func (p *poller) add(e *Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	start := !p.running
	p.running = true
	p.mu.Unlock()
	if start {
		go p.loop()
	}
}

// kick makes the poller check its events without waiting for the next tick.
func (p *poller) kick() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

func (p *poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-p.kickCh:
		}
		p.pollMu.Lock()
		left := p.pollLocked()
		p.pollMu.Unlock()
		if left > 0 {
			continue
		}
		p.mu.Lock()
		if len(p.events) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// pollLocked refreshes the tracked events and returns how many are still
// pending. Callers hold pollMu.
func (p *poller) pollLocked() int {
	p.mu.Lock()
	snapshot := append([]*Event(nil), p.events...)
	p.mu.Unlock()

	for _, e := range snapshot {
		if !e.refresh() && p.ordered {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.events[:0]
	for _, e := range p.events {
		if _, terminal := e.terminalStatus(); !terminal {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(p.events); i++ {
		p.events[i] = nil
	}
	p.events = live
	return len(live)
}

// sync polls once on the calling goroutine.
func (p *poller) sync() {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	p.pollLocked()
}

// tryPoll polls unless another poll is in progress, which happens when a
// handler run by the poller queries an event.
func (p *poller) tryPoll() {
	if !p.pollMu.TryLock() {
		return
	}
	defer p.pollMu.Unlock()
	p.pollLocked()
}

func (p *poller) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
