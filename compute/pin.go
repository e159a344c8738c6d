package compute

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// pinnedHostBuffer keeps a host slice at a stable address while the device
// accesses it. It is owned by one transfer and unpinned exactly once.
type pinnedHostBuffer struct {
	pinner   runtime.Pinner
	buf      []byte
	released atomic.Bool
	gauge    *atomic.Int64
}

// pin pins buf and counts it in gauge, which may be nil. Empty slices yield a
// guard that is already released.
func pin(buf []byte, gauge *atomic.Int64) *pinnedHostBuffer {
	p := &pinnedHostBuffer{buf: buf, gauge: gauge}
	if len(buf) == 0 {
		p.released.Store(true)
		return p
	}
	p.pinner.Pin(unsafe.SliceData(buf))
	if gauge != nil {
		gauge.Add(1)
	}
	return p
}

// Addr returns the address of the pinned memory, or 0 for an empty guard.
func (p *pinnedHostBuffer) Addr() uintptr {
	if len(p.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(p.buf)))
}

func (p *pinnedHostBuffer) pinned() bool {
	return !p.released.Load()
}

func (p *pinnedHostBuffer) unpin() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	p.pinner.Unpin()
	if p.gauge != nil {
		p.gauge.Add(-1)
	}
}
