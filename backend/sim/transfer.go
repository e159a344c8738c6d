package sim

import (
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// bufferFor resolves a buffer argument of queue q.
func (s *Sim) bufferFor(q *queue, h resource.Handle) (*memObject, errors.Code) {
	m, ok := s.lookupMem(h)
	if !ok {
		return nil, errors.InvalidMemObject
	}
	if m.ctx != q.ctx {
		return nil, errors.InvalidContext
	}
	return m, errors.Success
}

// inBounds reports whether [offset, offset+size) lies within m without
// computing offset+size.
func inBounds(m *memObject, offset, size int) bool {
	return offset >= 0 && size > 0 && size <= len(m.data) && offset <= len(m.data)-size
}

func (s *Sim) EnqueueReadBuffer(qh, bh resource.Handle, blocking bool, offset int, dst []byte, wait []resource.Handle) (resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	m, code := s.bufferFor(q, bh)
	if code != errors.Success {
		return resource.Null, code
	}
	if !inBounds(m, offset, len(dst)) {
		return resource.Null, errors.InvalidValue
	}
	return q.enqueue(&command{
		typ:  backend.CommandReadBuffer,
		wait: events,
		run: func() errors.Code {
			copy(dst, m.data[offset:offset+len(dst)])
			return errors.Success
		},
	}, blocking)
}

func (s *Sim) EnqueueWriteBuffer(qh, bh resource.Handle, blocking bool, offset int, src []byte, wait []resource.Handle) (resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	m, code := s.bufferFor(q, bh)
	if code != errors.Success {
		return resource.Null, code
	}
	if !inBounds(m, offset, len(src)) {
		return resource.Null, errors.InvalidValue
	}
	return q.enqueue(&command{
		typ:  backend.CommandWriteBuffer,
		wait: events,
		run: func() errors.Code {
			copy(m.data[offset:offset+len(src)], src)
			return errors.Success
		},
	}, blocking)
}

// EnqueueCopyBuffer copies between buffers. Overlapping regions of the same
// storage are rejected.
func (s *Sim) EnqueueCopyBuffer(qh, srcH, dstH resource.Handle, srcOffset, dstOffset, size int, wait []resource.Handle) (resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	src, code := s.bufferFor(q, srcH)
	if code != errors.Success {
		return resource.Null, code
	}
	dst, code := s.bufferFor(q, dstH)
	if code != errors.Success {
		return resource.Null, code
	}
	if !inBounds(src, srcOffset, size) || !inBounds(dst, dstOffset, size) {
		return resource.Null, errors.InvalidValue
	}
	from := src.data[srcOffset : srcOffset+size]
	to := dst.data[dstOffset : dstOffset+size]
	if overlaps(from, to) {
		return resource.Null, errors.MemCopyOverlap
	}
	return q.enqueue(&command{
		typ:  backend.CommandCopyBuffer,
		wait: events,
		run: func() errors.Code {
			copy(to, from)
			return errors.Success
		},
	}, false)
}

// EnqueueMapBuffer returns a slice aliasing the buffer. Its contents are
// valid once the returned event completes.
func (s *Sim) EnqueueMapBuffer(qh, bh resource.Handle, blocking bool, flags backend.MapFlags, offset, size int, wait []resource.Handle) ([]byte, resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return nil, resource.Null, code
	}
	m, code := s.bufferFor(q, bh)
	if code != errors.Success {
		return nil, resource.Null, code
	}
	if flags == 0 || flags&^(backend.MapRead|backend.MapWrite) != 0 {
		return nil, resource.Null, errors.InvalidValue
	}
	if !inBounds(m, offset, size) {
		return nil, resource.Null, errors.InvalidValue
	}

	m.mu.Lock()
	m.maps++
	m.mu.Unlock()

	end := offset + size
	mapped := m.data[offset:end:end]
	h, code := q.enqueue(&command{typ: backend.CommandMapBuffer, wait: events}, blocking)
	if code != errors.Success {
		m.mu.Lock()
		m.maps--
		m.mu.Unlock()
		return nil, resource.Null, code
	}
	return mapped, h, errors.Success
}

func (s *Sim) EnqueueUnmapMemObject(qh, bh resource.Handle, mapped []byte, wait []resource.Handle) (resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	m, code := s.bufferFor(q, bh)
	if code != errors.Success {
		return resource.Null, code
	}
	if m.mappedOffset(mapped) < 0 {
		return resource.Null, errors.InvalidValue
	}
	m.mu.Lock()
	if m.maps == 0 {
		m.mu.Unlock()
		return resource.Null, errors.InvalidValue
	}
	m.maps--
	m.mu.Unlock()
	return q.enqueue(&command{typ: backend.CommandUnmapMemObject, wait: events}, false)
}

func (s *Sim) EnqueueAcquireGLObjects(qh resource.Handle, mems []resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
	return s.enqueueGL(backend.CommandAcquireGLObjects, qh, mems, wait, true)
}

func (s *Sim) EnqueueReleaseGLObjects(qh resource.Handle, mems []resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
	return s.enqueueGL(backend.CommandReleaseGLObjects, qh, mems, wait, false)
}

func (s *Sim) enqueueGL(typ backend.CommandType, qh resource.Handle, mems, wait []resource.Handle, acquire bool) (resource.Handle, errors.Code) {
	if len(mems) == 0 {
		return resource.Null, errors.InvalidValue
	}
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	objs := make([]*memObject, len(mems))
	for i, h := range mems {
		m, code := s.bufferFor(q, h)
		if code != errors.Success {
			return resource.Null, code
		}
		if m.glName == 0 {
			return resource.Null, errors.InvalidGLObject
		}
		objs[i] = m
	}
	return q.enqueue(&command{
		typ:  typ,
		wait: events,
		run: func() errors.Code {
			for _, m := range objs {
				m.mu.Lock()
				m.acquired = acquire
				m.mu.Unlock()
			}
			return errors.Success
		},
	}, false)
}

// Acquired reports whether a GL buffer is currently acquired by a queue.
func (s *Sim) Acquired(h resource.Handle) bool {
	m, ok := s.lookupMem(h)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}
