package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/engine"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Sim is an in-process compute device implementing backend.Backend.
type Sim struct {
	cfg     Config
	log     *zap.Logger
	objects *resource.Table
	start   time.Time

	platform resource.Handle
	devices  []resource.Handle

	mu       sync.Mutex
	sources  map[string]Library
	faults   []*faultRule
	glStore  map[uint32][]byte
	memUsed  uint64
	launches atomic.Uint64

	engineOnce sync.Once
	engine     *engine.WazeroEngine
	engineErr  error
}

var _ backend.Backend = (*Sim)(nil)

type platform struct {
	info backend.PlatformInfo
}

type device struct {
	cfg       DeviceConfig
	handle    resource.Handle
	available atomic.Bool
}

type simContext struct {
	handle    resource.Handle
	devices   []*device
	callbacks *fifo
}

func (c *simContext) Drop() {
	c.callbacks.close()
}

func (c *simContext) hasDevice(d *device) bool {
	for _, cd := range c.devices {
		if cd == d {
			return true
		}
	}
	return false
}

// New creates a simulator.
func New(cfg *Config) *Sim {
	c := cfg.withDefaults()
	s := &Sim{
		cfg:     c,
		log:     c.Logger,
		objects: resource.NewTable(),
		start:   time.Now(),
		sources: make(map[string]Library),
		glStore: make(map[uint32][]byte),
	}

	s.platform, _ = s.objects.Insert(resource.KindPlatform, &platform{info: backend.PlatformInfo{
		Name:       c.PlatformName,
		Vendor:     DefaultPlatformVendor,
		Version:    c.PlatformVersion,
		Profile:    "FULL_PROFILE",
		Extensions: []string{"cl_khr_gl_sharing", "cl_wippy_wasm_kernels"},
	}})
	for _, dc := range c.Devices {
		d := &device{cfg: dc}
		d.available.Store(true)
		h, _ := s.objects.Insert(resource.KindDevice, d)
		d.handle = h
		s.devices = append(s.devices, h)
	}

	s.log.Info("simulator started",
		zap.String("platform", c.PlatformName),
		zap.Int("devices", len(s.devices)))
	return s
}

// now returns the device clock in nanoseconds. It is never zero.
func (s *Sim) now() uint64 {
	return uint64(time.Since(s.start)) + 1
}

func (s *Sim) Platforms() ([]resource.Handle, errors.Code) {
	return []resource.Handle{s.platform}, errors.Success
}

func (s *Sim) PlatformInfo(h resource.Handle) (backend.PlatformInfo, errors.Code) {
	p, ok := resource.View[*platform](s.objects, resource.KindPlatform).Get(h)
	if !ok {
		return backend.PlatformInfo{}, errors.InvalidPlatform
	}
	info := p.info
	info.Extensions = append([]string(nil), p.info.Extensions...)
	return info, errors.Success
}

func (s *Sim) Devices(p resource.Handle, typ backend.DeviceType) ([]resource.Handle, errors.Code) {
	if p != s.platform {
		return nil, errors.InvalidPlatform
	}
	if typ == 0 {
		return nil, errors.InvalidDeviceType
	}
	var out []resource.Handle
	for i, h := range s.devices {
		dt := s.cfg.Devices[i].Type
		if typ == backend.DeviceAll || typ&dt != 0 || (typ == backend.DeviceDefault && i == 0) {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil, errors.DeviceNotFound
	}
	return out, errors.Success
}

func (s *Sim) DeviceInfo(h resource.Handle) (backend.DeviceInfo, errors.Code) {
	d, ok := s.lookupDevice(h)
	if !ok {
		return backend.DeviceInfo{}, errors.InvalidDevice
	}
	info := d.cfg.info()
	info.Available = d.available.Load()
	return info, errors.Success
}

func (s *Sim) lookupDevice(h resource.Handle) (*device, bool) {
	return resource.View[*device](s.objects, resource.KindDevice).Get(h)
}

func (s *Sim) lookupContext(h resource.Handle) (*simContext, bool) {
	return resource.View[*simContext](s.objects, resource.KindContext).Get(h)
}

// SetDeviceAvailable marks a device as (un)available. Submissions to an
// unavailable device fail with DeviceNotAvailable.
func (s *Sim) SetDeviceAvailable(h resource.Handle, available bool) errors.Code {
	d, ok := s.lookupDevice(h)
	if !ok {
		return errors.InvalidDevice
	}
	d.available.Store(available)
	s.log.Info("device availability changed", zap.Stringer("device", h), zap.Bool("available", available))
	return errors.Success
}

func (s *Sim) CreateContext(devices []resource.Handle) (resource.Handle, errors.Code) {
	if len(devices) == 0 {
		return resource.Null, errors.InvalidValue
	}
	c := &simContext{}
	for _, h := range devices {
		d, ok := s.lookupDevice(h)
		if !ok {
			return resource.Null, errors.InvalidDevice
		}
		if !d.available.Load() {
			return resource.Null, errors.DeviceNotAvailable
		}
		c.devices = append(c.devices, d)
	}
	c.callbacks = newFIFO("context-callbacks", s.log)
	h, err := s.objects.Insert(resource.KindContext, c)
	if err != nil {
		c.callbacks.close()
		return resource.Null, errors.OutOfHostMemory
	}
	c.handle = h
	s.log.Debug("context created", zap.Stringer("context", h), zap.Int("devices", len(c.devices)))
	return h, errors.Success
}

// Retain adds a reference to any object.
func (s *Sim) Retain(h resource.Handle) errors.Code {
	if err := s.objects.Retain(h); err != nil {
		return invalidFor(s.kindHint(h))
	}
	return errors.Success
}

// Release drops a reference. Objects are destroyed with their last reference;
// a queue finishes its outstanding commands first.
func (s *Sim) Release(h resource.Handle) errors.Code {
	kind, ok := s.objects.KindOf(h)
	if !ok {
		return errors.InvalidValue
	}
	if kind == resource.KindPlatform || kind == resource.KindDevice {
		return errors.Success
	}
	dropped, err := s.objects.Release(h)
	if err != nil {
		return invalidFor(kind)
	}
	if dropped {
		s.log.Debug("object destroyed", zap.Stringer("kind", kind), zap.Stringer("handle", h))
	}
	return errors.Success
}

func (s *Sim) kindHint(h resource.Handle) resource.Kind {
	k, _ := s.objects.KindOf(h)
	return k
}

func invalidFor(kind resource.Kind) errors.Code {
	switch kind {
	case resource.KindContext:
		return errors.InvalidContext
	case resource.KindQueue:
		return errors.InvalidCommandQueue
	case resource.KindBuffer:
		return errors.InvalidMemObject
	case resource.KindEvent:
		return errors.InvalidEvent
	case resource.KindProgram:
		return errors.InvalidProgram
	case resource.KindKernel:
		return errors.InvalidKernel
	case resource.KindSampler:
		return errors.InvalidSampler
	}
	return errors.InvalidValue
}

// RefCount returns the reference count of an object, 0 once destroyed.
func (s *Sim) RefCount(h resource.Handle) int32 {
	return s.objects.RefCount(h)
}

// LiveObjects returns the number of live objects of kind.
func (s *Sim) LiveObjects(kind resource.Kind) int {
	return s.objects.Count(kind)
}

// Launches returns the number of kernels executed so far.
func (s *Sim) Launches() uint64 {
	return s.launches.Load()
}

// Subscribe registers an observer of object lifecycle events.
func (s *Sim) Subscribe(o resource.Observer) {
	s.objects.Subscribe(o)
}

func (s *Sim) wasmEngine() (*engine.WazeroEngine, error) {
	s.engineOnce.Do(func() {
		s.engine, s.engineErr = engine.NewWazeroEngine(context.Background())
	})
	return s.engine, s.engineErr
}

// Close destroys every object. Queues drain their outstanding commands.
func (s *Sim) Close() error {
	err := s.objects.Close()
	if s.engine != nil {
		if cerr := s.engine.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.log.Info("simulator closed")
	return err
}
