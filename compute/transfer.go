package compute

import (
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Execute enqueues an NDRange launch of k. local may be nil to let the device
// pick a work-group size. The kernel's current arguments are captured.
func (q *CommandQueue) Execute(k *Kernel, offset, global, local []int, events *EventList) (*Event, error) {
	kh, err := k.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandNDRangeKernel, Label: k.name}
	return q.submit(submission{cmd: cmd, events: events},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			return q.ctx.backend.EnqueueNDRangeKernel(qh, kh, offset, global, local, wait)
		})
}

// ExecuteTask enqueues k as a single work-item.
func (q *CommandQueue) ExecuteTask(k *Kernel, events *EventList) (*Event, error) {
	kh, err := k.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandTask, Label: k.name}
	return q.submit(submission{cmd: cmd, events: events},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			return q.ctx.backend.EnqueueTask(qh, kh, wait)
		})
}

// ReadBuffer reads size bytes at offset into a new slice. For a non-blocking
// read the slice is filled once the event completes.
func (q *CommandQueue) ReadBuffer(b *Buffer, blocking bool, offset, size int, events *EventList) ([]byte, *Event, error) {
	if size < 0 {
		return nil, nil, errors.InvalidInput(errors.PhaseEnqueue, "negative read size")
	}
	dst := make([]byte, size)
	e, err := q.ReadBufferInto(b, blocking, offset, dst, events)
	if err != nil {
		return nil, nil, err
	}
	return dst, e, nil
}

// ReadBufferInto reads len(dst) bytes at offset into dst. dst is pinned until
// the read finishes and must not be touched before the event is terminal.
func (q *CommandQueue) ReadBufferInto(b *Buffer, blocking bool, offset int, dst []byte, events *EventList) (*Event, error) {
	bh, err := b.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandReadBuffer}
	s := submission{cmd: cmd, events: events, blocking: blocking, pins: []*pinnedHostBuffer{pin(dst, &q.pinned)}}
	return q.submit(s, func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
		return q.ctx.backend.EnqueueReadBuffer(qh, bh, blocking, offset, dst, wait)
	})
}

// WriteBuffer writes src to the buffer at offset. src is pinned until the
// write finishes and must not be modified before the event is terminal.
func (q *CommandQueue) WriteBuffer(b *Buffer, blocking bool, offset int, src []byte, events *EventList) (*Event, error) {
	bh, err := b.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandWriteBuffer}
	s := submission{cmd: cmd, events: events, blocking: blocking, pins: []*pinnedHostBuffer{pin(src, &q.pinned)}}
	return q.submit(s, func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
		return q.ctx.backend.EnqueueWriteBuffer(qh, bh, blocking, offset, src, wait)
	})
}

// CopyBuffer copies size bytes between two buffers on the device.
func (q *CommandQueue) CopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size int, events *EventList) (*Event, error) {
	sh, err := src.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	dh, err := dst.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandCopyBuffer}
	return q.submit(submission{cmd: cmd, events: events},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			return q.ctx.backend.EnqueueCopyBuffer(qh, sh, dh, srcOffset, dstOffset, size, wait)
		})
}

// MapBuffer maps size bytes at offset into host memory. The returned slice is
// valid once the event completes and until it is passed to Unmap.
func (q *CommandQueue) MapBuffer(b *Buffer, blocking bool, flags backend.MapFlags, offset, size int, events *EventList) ([]byte, *Event, error) {
	bh, err := b.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, nil, err
	}
	var mapped []byte
	cmd := Command{Type: backend.CommandMapBuffer}
	e, err := q.submit(submission{cmd: cmd, events: events, blocking: blocking},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			var (
				h    resource.Handle
				code errors.Code
			)
			mapped, h, code = q.ctx.backend.EnqueueMapBuffer(qh, bh, blocking, flags, offset, size, wait)
			return h, code
		})
	if err != nil {
		return nil, nil, err
	}
	return mapped, e, nil
}

// Unmap releases a region returned by MapBuffer.
func (q *CommandQueue) Unmap(b *Buffer, mapped []byte, events *EventList) (*Event, error) {
	bh, err := b.handle(errors.PhaseEnqueue)
	if err != nil {
		return nil, err
	}
	cmd := Command{Type: backend.CommandUnmapMemObject}
	return q.submit(submission{cmd: cmd, events: events},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			return q.ctx.backend.EnqueueUnmapMemObject(qh, bh, mapped, wait)
		})
}

// AcquireGLObjects hands GL buffers over to the device.
func (q *CommandQueue) AcquireGLObjects(mems []*Buffer, events *EventList) (*Event, error) {
	return q.enqueueGL(backend.CommandAcquireGLObjects, mems, events, q.ctx.backend.EnqueueAcquireGLObjects)
}

// ReleaseGLObjects hands GL buffers back to GL.
func (q *CommandQueue) ReleaseGLObjects(mems []*Buffer, events *EventList) (*Event, error) {
	return q.enqueueGL(backend.CommandReleaseGLObjects, mems, events, q.ctx.backend.EnqueueReleaseGLObjects)
}

func (q *CommandQueue) enqueueGL(typ backend.CommandType, mems []*Buffer, events *EventList,
	enqueue func(queue resource.Handle, mems, wait []resource.Handle) (resource.Handle, errors.Code),
) (*Event, error) {
	handles := make([]resource.Handle, len(mems))
	for i, m := range mems {
		h, err := m.handle(errors.PhaseEnqueue)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	return q.submit(submission{cmd: Command{Type: typ}, events: events},
		func(qh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
			return enqueue(qh, handles, wait)
		})
}

// ReadElements reads len(dst) elements starting at element offset.
func ReadElements[T Element](q *CommandQueue, b *Buffer, blocking bool, offset int, dst []T, events *EventList) (*Event, error) {
	return q.ReadBufferInto(b, blocking, offset*sizeOf[T](), AsBytes(dst), events)
}

// WriteElements writes src starting at element offset.
func WriteElements[T Element](q *CommandQueue, b *Buffer, blocking bool, offset int, src []T, events *EventList) (*Event, error) {
	return q.WriteBuffer(b, blocking, offset*sizeOf[T](), AsBytes(src), events)
}
