package compute

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Context groups devices that share memory objects, programs and events.
type Context struct {
	owner        *resource.Owner
	backend      backend.Backend
	devices      []*Device
	pollInterval time.Duration
	polling      bool

	pollerOnce sync.Once
	poller     *poller
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithPollInterval sets how often events are polled on devices that cannot
// deliver callbacks. Defaults to DefaultPollInterval.
func WithPollInterval(d time.Duration) ContextOption {
	return func(c *Context) {
		c.pollInterval = d
	}
}

// NewContext creates a context over devices, which must share a platform.
func NewContext(devices []*Device, opts ...ContextOption) (*Context, error) {
	if len(devices) == 0 {
		return nil, errors.InvalidInput(errors.PhaseCreate, "context needs at least one device")
	}
	p := devices[0].platform
	handles := make([]resource.Handle, len(devices))
	polling := true
	for i, d := range devices {
		if d.platform.backend != p.backend || d.platform.handle != p.handle {
			return nil, errors.InvalidInput(errors.PhaseCreate, "devices belong to different platforms")
		}
		handles[i] = d.handle
		if d.info.EventCallbacks {
			polling = false
		}
	}

	h, code := p.backend.CreateContext(handles)
	if err := errors.Check(errors.PhaseCreate, "create_context", code); err != nil {
		return nil, err
	}
	c := &Context{
		backend:      p.backend,
		devices:      append([]*Device(nil), devices...),
		pollInterval: DefaultPollInterval,
		polling:      polling,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.owner = resource.NewOwner(c, resource.KindContext, h, releaser(p.backend, "release_context"))
	Logger().Info("context created", zap.Stringer("context", h), zap.Int("devices", len(devices)))
	return c, nil
}

func (c *Context) Handle() resource.Handle { return c.owner.Handle() }
func (c *Context) Backend() backend.Backend { return c.backend }

// Devices returns the devices of the context.
func (c *Context) Devices() []*Device {
	return append([]*Device(nil), c.devices...)
}

func (c *Context) hasDevice(d *Device) bool {
	for _, cd := range c.devices {
		if cd == d || (cd.handle == d.handle && cd.platform.backend == d.platform.backend) {
			return true
		}
	}
	return false
}

// handle returns the native handle or a released error.
func (c *Context) handle(phase errors.Phase) (resource.Handle, error) {
	h := c.owner.Handle()
	if h == resource.Null {
		return resource.Null, errors.Released(phase, "context")
	}
	return h, nil
}

// userPoller polls user events when no device delivers callbacks.
func (c *Context) userPoller() *poller {
	c.pollerOnce.Do(func() {
		c.poller = newPoller(c.pollInterval, false)
	})
	return c.poller
}

// Release releases the context. Objects created from it keep their own
// references and stay usable until released.
func (c *Context) Release() error {
	return c.owner.Release()
}
