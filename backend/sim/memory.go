package sim

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

type memObject struct {
	sim    *Sim
	handle resource.Handle
	ctx    *simContext
	flags  backend.MemFlags
	data   []byte

	// parent is set for sub-buffers, which alias the parent's storage.
	parent *memObject
	// glName is non-zero for objects shared with GL.
	glName uint32
	// owned is the number of bytes charged against device memory.
	owned uint64

	mu       sync.Mutex
	maps     int
	acquired bool
}

func (m *memObject) Drop() {
	if m.owned > 0 {
		m.sim.mu.Lock()
		m.sim.memUsed -= m.owned
		m.sim.mu.Unlock()
	}
	if m.parent != nil {
		m.sim.Release(m.parent.handle)
	}
	m.sim.Release(m.ctx.handle)
}

func (s *Sim) lookupMem(h resource.Handle) (*memObject, bool) {
	return resource.View[*memObject](s.objects, resource.KindBuffer).Get(h)
}

func validAccess(flags backend.MemFlags) bool {
	n := 0
	for _, f := range []backend.MemFlags{backend.MemReadWrite, backend.MemWriteOnly, backend.MemReadOnly} {
		if flags.Has(f) {
			n++
		}
	}
	return n <= 1
}

func (s *Sim) contextLimits(c *simContext) (maxAlloc, global uint64) {
	for i, d := range c.devices {
		if i == 0 || d.cfg.MaxMemAllocSize < maxAlloc {
			maxAlloc = d.cfg.MaxMemAllocSize
		}
		if i == 0 || d.cfg.GlobalMemSize < global {
			global = d.cfg.GlobalMemSize
		}
	}
	return maxAlloc, global
}

// CreateBuffer allocates a buffer. With MemUseHostPtr the buffer aliases host,
// which must stay valid for the buffer's lifetime.
func (s *Sim) CreateBuffer(ctx resource.Handle, flags backend.MemFlags, size int, host []byte) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	if !validAccess(flags) || (flags.Has(backend.MemUseHostPtr) && (flags.Has(backend.MemCopyHostPtr) || flags.Has(backend.MemAllocHostPtr))) {
		return resource.Null, errors.InvalidValue
	}
	if size <= 0 {
		return resource.Null, errors.InvalidBufferSize
	}
	maxAlloc, global := s.contextLimits(c)
	if uint64(size) > maxAlloc {
		return resource.Null, errors.InvalidBufferSize
	}

	wantsHost := flags.Has(backend.MemUseHostPtr) || flags.Has(backend.MemCopyHostPtr)
	if wantsHost != (host != nil) || (wantsHost && len(host) < size) {
		return resource.Null, errors.InvalidHostPtr
	}

	m := &memObject{sim: s, ctx: c, flags: flags}
	if flags.Has(backend.MemUseHostPtr) {
		m.data = host[:size:size]
	} else {
		s.mu.Lock()
		if s.memUsed+uint64(size) > global {
			s.mu.Unlock()
			return resource.Null, errors.MemObjectAllocationFailure
		}
		s.memUsed += uint64(size)
		s.mu.Unlock()
		m.owned = uint64(size)
		m.data = make([]byte, size)
		if flags.Has(backend.MemCopyHostPtr) {
			copy(m.data, host[:size])
		}
	}
	return s.insertMem(m)
}

func (s *Sim) insertMem(m *memObject) (resource.Handle, errors.Code) {
	h, err := s.objects.Insert(resource.KindBuffer, m)
	if err != nil {
		return resource.Null, errors.OutOfHostMemory
	}
	m.handle = h
	_ = s.objects.Retain(m.ctx.handle)
	s.log.Debug("buffer created", zap.Stringer("buffer", h), zap.Int("size", len(m.data)))
	return h, errors.Success
}

// CreateSubBuffer creates a view of region within buffer. The origin must be
// aligned to the device's base address alignment.
func (s *Sim) CreateSubBuffer(buffer resource.Handle, flags backend.MemFlags, region backend.Region) (resource.Handle, errors.Code) {
	parent, ok := s.lookupMem(buffer)
	if !ok || parent.parent != nil {
		return resource.Null, errors.InvalidMemObject
	}
	if !validAccess(flags) || flags.Has(backend.MemUseHostPtr) || flags.Has(backend.MemCopyHostPtr) || flags.Has(backend.MemAllocHostPtr) {
		return resource.Null, errors.InvalidValue
	}
	if flags&(backend.MemReadWrite|backend.MemWriteOnly|backend.MemReadOnly) == 0 {
		flags |= parent.flags & (backend.MemReadWrite | backend.MemWriteOnly | backend.MemReadOnly)
	}
	if region.Size <= 0 {
		return resource.Null, errors.InvalidBufferSize
	}
	if region.Origin < 0 || region.Size > len(parent.data) || region.Origin > len(parent.data)-region.Size {
		return resource.Null, errors.InvalidValue
	}
	if region.Origin%DefaultMemBaseAddrAlign != 0 {
		return resource.Null, errors.MisalignedSubBufferOffset
	}

	end := region.Origin + region.Size
	m := &memObject{
		sim:    s,
		ctx:    parent.ctx,
		flags:  flags,
		data:   parent.data[region.Origin:end:end],
		parent: parent,
	}
	if err := s.objects.Retain(parent.handle); err != nil {
		return resource.Null, errors.InvalidMemObject
	}
	h, code := s.insertMem(m)
	if code != errors.Success {
		s.Release(parent.handle)
	}
	return h, code
}

// CreateFromGLBuffer wraps a GL buffer listed in Config.GLBuffers. Every
// wrapper of the same name shares storage.
func (s *Sim) CreateFromGLBuffer(ctx resource.Handle, flags backend.MemFlags, name uint32) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	if !validAccess(flags) || flags.Has(backend.MemUseHostPtr) || flags.Has(backend.MemCopyHostPtr) || flags.Has(backend.MemAllocHostPtr) {
		return resource.Null, errors.InvalidValue
	}
	size, ok := s.cfg.GLBuffers[name]
	if !ok || name == 0 || size <= 0 {
		return resource.Null, errors.InvalidGLObject
	}

	s.mu.Lock()
	store, ok := s.glStore[name]
	if !ok {
		store = make([]byte, size)
		s.glStore[name] = store
	}
	s.mu.Unlock()

	return s.insertMem(&memObject{sim: s, ctx: c, flags: flags, data: store, glName: name})
}

func (s *Sim) BufferSize(buffer resource.Handle) (int, errors.Code) {
	m, ok := s.lookupMem(buffer)
	if !ok {
		return 0, errors.InvalidMemObject
	}
	return len(m.data), errors.Success
}

// GLBuffer returns the shared storage of a GL buffer, as the GL side sees it.
func (s *Sim) GLBuffer(name uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.glStore[name]
}

// MemoryInUse returns the number of device bytes allocated.
func (s *Sim) MemoryInUse() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memUsed
}

// mappedOffset returns the offset of a slice previously returned by
// EnqueueMapBuffer within m, or -1.
func (m *memObject) mappedOffset(mapped []byte) int {
	if len(mapped) == 0 || len(m.data) == 0 {
		return -1
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(m.data)))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(mapped)))
	if p < base || p+uintptr(len(mapped)) > base+uintptr(len(m.data)) {
		return -1
	}
	return int(p - base)
}

// overlaps reports whether two non-empty slices share memory.
func overlaps(a, b []byte) bool {
	pa := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	pb := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return pa < pb+uintptr(len(b)) && pb < pa+uintptr(len(a))
}
