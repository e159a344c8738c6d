package compute

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Buffer is a device memory object.
type Buffer struct {
	owner  *resource.Owner
	ctx    *Context
	flags  backend.MemFlags
	size   int
	parent *Buffer
	glName uint32
}

// CreateBuffer allocates size bytes of device memory.
func (c *Context) CreateBuffer(flags backend.MemFlags, size int) (*Buffer, error) {
	if flags.Has(backend.MemUseHostPtr) || flags.Has(backend.MemCopyHostPtr) {
		return nil, errors.InvalidInput(errors.PhaseCreate, "host pointer flags need CreateBufferFrom")
	}
	return c.createBuffer(flags, size, nil)
}

// CreateBufferFrom creates a buffer initialized from host. With
// backend.MemUseHostPtr the device uses host directly, and it stays pinned
// until the buffer is released; otherwise host is copied.
func (c *Context) CreateBufferFrom(flags backend.MemFlags, host []byte) (*Buffer, error) {
	if len(host) == 0 {
		return nil, errors.InvalidInput(errors.PhaseCreate, "empty host slice")
	}
	if !flags.Has(backend.MemUseHostPtr) {
		flags |= backend.MemCopyHostPtr
	}
	return c.createBuffer(flags, len(host), host)
}

func (c *Context) createBuffer(flags backend.MemFlags, size int, host []byte) (*Buffer, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	var guard *pinnedHostBuffer
	if flags.Has(backend.MemUseHostPtr) {
		guard = pin(host, nil)
	}
	h, code := c.backend.CreateBuffer(ch, flags, size, host)
	if err := errors.Check(errors.PhaseCreate, "create_buffer", code); err != nil {
		if guard != nil {
			guard.unpin()
		}
		return nil, err
	}
	return c.wrapBuffer(h, flags, size, guard, nil, 0), nil
}

func (c *Context) wrapBuffer(h resource.Handle, flags backend.MemFlags, size int, host *pinnedHostBuffer, parent *Buffer, glName uint32) *Buffer {
	b := &Buffer{ctx: c, flags: flags, size: size, parent: parent, glName: glName}
	release := releaser(c.backend, "release_buffer")
	if host != nil {
		// the guard lives in the release closure so a leaked buffer is still
		// unpinned by its cleanup
		native := release
		release = func(h resource.Handle) error {
			defer host.unpin()
			return native(h)
		}
	}
	b.owner = resource.NewOwner(b, resource.KindBuffer, h, release)
	Logger().Debug("buffer created", zap.Stringer("buffer", h), zap.Int("size", size))
	return b
}

// CreateFromGLBuffer wraps a GL buffer object.
func (c *Context) CreateFromGLBuffer(flags backend.MemFlags, name uint32) (*Buffer, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	h, code := c.backend.CreateFromGLBuffer(ch, flags, name)
	if err := errors.Check(errors.PhaseCreate, "create_from_gl_buffer", code); err != nil {
		return nil, err
	}
	size, code := c.backend.BufferSize(h)
	if code != errors.Success {
		c.backend.Release(h)
		return nil, errors.Check(errors.PhaseQuery, "buffer_size", code)
	}
	return c.wrapBuffer(h, flags, size, nil, nil, name), nil
}

// SubBuffer creates a view of size bytes at origin. The origin must be a
// multiple of the device's base address alignment.
func (b *Buffer) SubBuffer(flags backend.MemFlags, origin, size int) (*Buffer, error) {
	h, err := b.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	sh, code := b.ctx.backend.CreateSubBuffer(h, flags, backend.Region{Origin: origin, Size: size})
	if err := errors.Check(errors.PhaseCreate, "create_sub_buffer", code); err != nil {
		return nil, err
	}
	if flags == 0 {
		flags = b.flags &^ (backend.MemUseHostPtr | backend.MemCopyHostPtr | backend.MemAllocHostPtr)
	}
	return b.ctx.wrapBuffer(sh, flags, size, nil, b, 0), nil
}

func (b *Buffer) Handle() resource.Handle { return b.owner.Handle() }
func (b *Buffer) Size() int { return b.size }
func (b *Buffer) Flags() backend.MemFlags { return b.flags }
func (b *Buffer) Context() *Context { return b.ctx }

// Parent returns the buffer a sub-buffer was created from.
func (b *Buffer) Parent() *Buffer { return b.parent }

// GLName returns the GL buffer name, or 0 for ordinary buffers.
func (b *Buffer) GLName() uint32 { return b.glName }

func (b *Buffer) handle(phase errors.Phase) (resource.Handle, error) {
	h := b.owner.Handle()
	if h == resource.Null {
		return resource.Null, errors.Released(phase, "buffer")
	}
	return h, nil
}

// Release releases the buffer and unpins its host memory, if any.
func (b *Buffer) Release() error {
	return b.owner.Release()
}

// Element is a fixed-size numeric type that buffers can be read and written as.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// AsBytes views s as bytes without copying.
func AsBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

func sizeOf[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
