package compute

import (
	"encoding/binary"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Program is a compiled or compilable set of kernels.
type Program struct {
	owner  *resource.Owner
	ctx    *Context
	source string
}

// CreateProgramWithSource creates a program from kernel source.
func (c *Context) CreateProgramWithSource(source string) (*Program, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	h, code := c.backend.CreateProgramWithSource(ch, source)
	if err := errors.Check(errors.PhaseCreate, "create_program_with_source", code); err != nil {
		return nil, err
	}
	return c.wrapProgram(h, source), nil
}

// CreateProgramWithBinary creates a program from a device binary for devices.
// No devices means every device of the context.
func (c *Context) CreateProgramWithBinary(binary []byte, devices ...*Device) (*Program, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	h, code := c.backend.CreateProgramWithBinary(ch, deviceHandles(devices), binary)
	if err := errors.Check(errors.PhaseCreate, "create_program_with_binary", code); err != nil {
		return nil, err
	}
	return c.wrapProgram(h, ""), nil
}

func (c *Context) wrapProgram(h resource.Handle, source string) *Program {
	p := &Program{ctx: c, source: source}
	p.owner = resource.NewOwner(p, resource.KindProgram, h, releaser(c.backend, "release_program"))
	Logger().Debug("program created", zap.Stringer("program", h))
	return p
}

func deviceHandles(devices []*Device) []resource.Handle {
	if len(devices) == 0 {
		return nil
	}
	out := make([]resource.Handle, len(devices))
	for i, d := range devices {
		out[i] = d.handle
	}
	return out
}

func (p *Program) Handle() resource.Handle { return p.owner.Handle() }
func (p *Program) Source() string { return p.source }
func (p *Program) Context() *Context { return p.ctx }

func (p *Program) handle(phase errors.Phase) (resource.Handle, error) {
	h := p.owner.Handle()
	if h == resource.Null {
		return resource.Null, errors.Released(phase, "program")
	}
	return h, nil
}

// Build compiles the program for devices, or for every device of the context.
// A failed build returns an error carrying the build log.
func (p *Program) Build(options string, devices ...*Device) error {
	h, err := p.handle(errors.PhaseBuild)
	if err != nil {
		return err
	}
	code := p.ctx.backend.BuildProgram(h, deviceHandles(devices), options)
	if code == errors.Success {
		return nil
	}
	if code != errors.BuildProgramFailure {
		return errors.Check(errors.PhaseBuild, "build_program", code)
	}
	log, _ := p.ctx.backend.BuildLog(h, resource.Null)
	return errors.BuildFailed(code, log)
}

// BuildLog returns the build log for dev, or for the last build if dev is nil.
func (p *Program) BuildLog(dev *Device) (string, error) {
	h, err := p.handle(errors.PhaseQuery)
	if err != nil {
		return "", err
	}
	dh := resource.Null
	if dev != nil {
		dh = dev.handle
	}
	log, code := p.ctx.backend.BuildLog(h, dh)
	return log, errors.Check(errors.PhaseQuery, "build_log", code)
}

// KernelNames lists the kernels of a built program.
func (p *Program) KernelNames() ([]string, error) {
	h, err := p.handle(errors.PhaseQuery)
	if err != nil {
		return nil, err
	}
	names, code := p.ctx.backend.KernelNames(h)
	return names, errors.Check(errors.PhaseQuery, "kernel_names", code)
}

// CreateKernel creates the named kernel of a built program.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	h, err := p.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	kh, code := p.ctx.backend.CreateKernel(h, name)
	if code == errors.InvalidKernelName {
		return nil, errors.NotFound(errors.PhaseCreate, "kernel", name)
	}
	if err := errors.Check(errors.PhaseCreate, "create_kernel", code); err != nil {
		return nil, err
	}
	n, code := p.ctx.backend.KernelArgCount(kh)
	if code != errors.Success {
		p.ctx.backend.Release(kh)
		return nil, errors.Check(errors.PhaseQuery, "kernel_arg_count", code)
	}
	k := &Kernel{program: p, name: name, args: n}
	k.owner = resource.NewOwner(k, resource.KindKernel, kh, releaser(p.ctx.backend, "release_kernel"))
	Logger().Debug("kernel created", zap.String("kernel", name), zap.Stringer("handle", kh))
	return k, nil
}

// CreateAllKernels creates one kernel for every kernel of the program.
func (p *Program) CreateAllKernels() ([]*Kernel, error) {
	names, err := p.KernelNames()
	if err != nil {
		return nil, err
	}
	out := make([]*Kernel, 0, len(names))
	for _, name := range names {
		k, err := p.CreateKernel(name)
		if err != nil {
			for _, made := range out {
				made.Release()
			}
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Release releases the program. Kernels keep it alive until they are released.
func (p *Program) Release() error {
	return p.owner.Release()
}

// Kernel is a kernel function with its bound arguments. Arguments are captured
// when the kernel is enqueued, so they may be changed between launches.
type Kernel struct {
	owner   *resource.Owner
	program *Program
	name    string
	args    int
}

func (k *Kernel) Handle() resource.Handle { return k.owner.Handle() }
func (k *Kernel) Name() string { return k.name }
func (k *Kernel) ArgCount() int { return k.args }
func (k *Kernel) Program() *Program { return k.program }

func (k *Kernel) handle(phase errors.Phase) (resource.Handle, error) {
	h := k.owner.Handle()
	if h == resource.Null {
		return resource.Null, errors.Released(phase, "kernel")
	}
	return h, nil
}

// SetArg binds the raw little-endian bytes of a by-value argument.
func (k *Kernel) SetArg(index int, value []byte) error {
	h, err := k.handle(errors.PhaseCreate)
	if err != nil {
		return err
	}
	code := k.program.ctx.backend.SetKernelArg(h, index, value)
	return errors.Check(errors.PhaseCreate, "set_kernel_arg", code)
}

// SetBuffer binds a buffer argument.
func (k *Kernel) SetBuffer(index int, b *Buffer) error {
	h, err := k.handle(errors.PhaseCreate)
	if err != nil {
		return err
	}
	bh, err := b.handle(errors.PhaseCreate)
	if err != nil {
		return err
	}
	code := k.program.ctx.backend.SetKernelArgMem(h, index, bh)
	return errors.Check(errors.PhaseCreate, "set_kernel_arg", code)
}

func (k *Kernel) SetInt32(index int, v int32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	return k.SetArg(index, raw[:])
}

func (k *Kernel) SetInt64(index int, v int64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], uint64(v))
	return k.SetArg(index, raw[:])
}

func (k *Kernel) SetFloat32(index int, v float32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], math.Float32bits(v))
	return k.SetArg(index, raw[:])
}

func (k *Kernel) SetFloat64(index int, v float64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], math.Float64bits(v))
	return k.SetArg(index, raw[:])
}

// SetArgs binds args in order. Each argument is a *Buffer, a []byte, or one of
// int32, int64, float32 and float64.
func (k *Kernel) SetArgs(args ...any) error {
	for i, a := range args {
		var err error
		switch v := a.(type) {
		case *Buffer:
			err = k.SetBuffer(i, v)
		case []byte:
			err = k.SetArg(i, v)
		case int32:
			err = k.SetInt32(i, v)
		case int64:
			err = k.SetInt64(i, v)
		case float32:
			err = k.SetFloat32(i, v)
		case float64:
			err = k.SetFloat64(i, v)
		default:
			err = errors.New(errors.PhaseCreate, errors.KindInvalidInput).
				Op("set_kernel_arg").
				Value(a).
				Detail("unsupported argument %d of type %T", i, a).
				Build()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Release releases the kernel.
func (k *Kernel) Release() error {
	return k.owner.Release()
}
