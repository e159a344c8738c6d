package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/engine"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

type program struct {
	sim    *Sim
	handle resource.Handle
	ctx    *simContext
	source string
	binary []byte

	mu      sync.Mutex
	built   bool
	log     string
	lib     Library
	module  *engine.KernelModule
	kernels int
}

func (p *program) Drop() {
	p.mu.Lock()
	mod := p.module
	p.module = nil
	p.mu.Unlock()
	if mod != nil {
		if err := mod.Close(context.Background()); err != nil {
			p.sim.log.Warn("close kernel module", zap.Error(err))
		}
	}
	p.sim.Release(p.ctx.handle)
}

type kernel struct {
	sim    *Sim
	handle resource.Handle
	prog   *program
	name   string
	nargs  int
	fn     KernelFunc

	mu   sync.Mutex
	args []kernelArg
}

type kernelArg struct {
	set bool
	raw []byte
	mem *memObject
}

func (k *kernel) Drop() {
	k.prog.mu.Lock()
	k.prog.kernels--
	k.prog.mu.Unlock()
	k.sim.Release(k.prog.handle)
}

// RegisterSource makes programs created from source build into lib.
func (s *Sim) RegisterSource(source string, lib Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source] = lib
}

func (s *Sim) lookupProgram(h resource.Handle) (*program, bool) {
	return resource.View[*program](s.objects, resource.KindProgram).Get(h)
}

func (s *Sim) lookupKernel(h resource.Handle) (*kernel, bool) {
	return resource.View[*kernel](s.objects, resource.KindKernel).Get(h)
}

func (s *Sim) insertProgram(p *program) (resource.Handle, errors.Code) {
	h, err := s.objects.Insert(resource.KindProgram, p)
	if err != nil {
		return resource.Null, errors.OutOfHostMemory
	}
	p.handle = h
	_ = s.objects.Retain(p.ctx.handle)
	return h, errors.Success
}

func (s *Sim) CreateProgramWithSource(ctx resource.Handle, source string) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	if source == "" {
		return resource.Null, errors.InvalidValue
	}
	return s.insertProgram(&program{sim: s, ctx: c, source: source})
}

// CreateProgramWithBinary creates a program from a WASM kernel module.
func (s *Sim) CreateProgramWithBinary(ctx resource.Handle, devices []resource.Handle, binary []byte) (resource.Handle, errors.Code) {
	c, ok := s.lookupContext(ctx)
	if !ok {
		return resource.Null, errors.InvalidContext
	}
	if code := s.checkDevices(c, devices); code != errors.Success {
		return resource.Null, code
	}
	if len(binary) < 8 || string(binary[:4]) != "\x00asm" {
		return resource.Null, errors.InvalidBinary
	}
	bin := make([]byte, len(binary))
	copy(bin, binary)
	return s.insertProgram(&program{sim: s, ctx: c, binary: bin})
}

func (s *Sim) checkDevices(c *simContext, devices []resource.Handle) errors.Code {
	for _, h := range devices {
		d, ok := s.lookupDevice(h)
		if !ok || !c.hasDevice(d) {
			return errors.InvalidDevice
		}
	}
	return errors.Success
}

func (s *Sim) BuildProgram(h resource.Handle, devices []resource.Handle, options string) errors.Code {
	p, ok := s.lookupProgram(h)
	if !ok {
		return errors.InvalidProgram
	}
	if code := s.checkDevices(p.ctx, devices); code != errors.Success {
		return code
	}
	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			return errors.InvalidBuildOptions
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kernels > 0 {
		return errors.InvalidOperation
	}

	if p.binary != nil {
		return p.buildBinary()
	}

	s.mu.Lock()
	lib, ok := s.sources[p.source]
	s.mu.Unlock()
	if !ok {
		p.log = "error: no kernel library registered for this source"
		p.built = false
		return errors.BuildProgramFailure
	}
	names := make([]string, 0, len(lib))
	for name := range lib {
		names = append(names, name)
	}
	sort.Strings(names)
	p.lib = lib
	p.built = true
	p.log = fmt.Sprintf("built %d kernel(s): %s", len(names), strings.Join(names, ", "))
	s.log.Debug("program built", zap.Stringer("program", h), zap.Strings("kernels", names))
	return errors.Success
}

// buildBinary compiles the WASM module. Callers hold p.mu.
func (p *program) buildBinary() errors.Code {
	if p.module != nil {
		return errors.Success
	}
	eng, err := p.sim.wasmEngine()
	if err != nil {
		p.log = err.Error()
		return errors.CompilerNotAvailable
	}
	mod, err := eng.LoadModule(context.Background(), p.binary)
	if err != nil {
		p.log = err.Error()
		p.built = false
		return errors.BuildProgramFailure
	}
	p.module = mod
	p.built = true
	p.log = fmt.Sprintf("built %d wasm kernel(s): %s", len(mod.Kernels()), strings.Join(mod.Kernels(), ", "))
	return errors.Success
}

func (s *Sim) BuildLog(h, dev resource.Handle) (string, errors.Code) {
	p, ok := s.lookupProgram(h)
	if !ok {
		return "", errors.InvalidProgram
	}
	if dev != resource.Null {
		if code := s.checkDevices(p.ctx, []resource.Handle{dev}); code != errors.Success {
			return "", code
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.log, errors.Success
}

func (s *Sim) KernelNames(h resource.Handle) ([]string, errors.Code) {
	p, ok := s.lookupProgram(h)
	if !ok {
		return nil, errors.InvalidProgram
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.built {
		return nil, errors.InvalidProgramExecutable
	}
	if p.module != nil {
		return p.module.Kernels(), errors.Success
	}
	names := make([]string, 0, len(p.lib))
	for name := range p.lib {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, errors.Success
}

func (s *Sim) CreateKernel(h resource.Handle, name string) (resource.Handle, errors.Code) {
	p, ok := s.lookupProgram(h)
	if !ok {
		return resource.Null, errors.InvalidProgram
	}

	p.mu.Lock()
	if !p.built {
		p.mu.Unlock()
		return resource.Null, errors.InvalidProgramExecutable
	}
	k := &kernel{sim: s, prog: p, name: name}
	if p.module != nil {
		n, err := p.module.ArgCount(name)
		if err != nil {
			p.mu.Unlock()
			return resource.Null, errors.CodeOf(err)
		}
		k.nargs = n
	} else {
		def, ok := p.lib[name]
		if !ok || def.Func == nil {
			p.mu.Unlock()
			if !ok {
				return resource.Null, errors.InvalidKernelName
			}
			return resource.Null, errors.InvalidKernelDefinition
		}
		k.nargs = def.Args
		k.fn = def.Func
	}
	p.kernels++
	p.mu.Unlock()

	k.args = make([]kernelArg, k.nargs)
	kh, err := s.objects.Insert(resource.KindKernel, k)
	if err != nil {
		p.mu.Lock()
		p.kernels--
		p.mu.Unlock()
		return resource.Null, errors.OutOfHostMemory
	}
	k.handle = kh
	_ = s.objects.Retain(p.handle)
	return kh, errors.Success
}

func (s *Sim) KernelArgCount(h resource.Handle) (int, errors.Code) {
	k, ok := s.lookupKernel(h)
	if !ok {
		return 0, errors.InvalidKernel
	}
	return k.nargs, errors.Success
}

func (s *Sim) SetKernelArg(h resource.Handle, index int, value []byte) errors.Code {
	k, ok := s.lookupKernel(h)
	if !ok {
		return errors.InvalidKernel
	}
	if index < 0 || index >= k.nargs {
		return errors.InvalidArgIndex
	}
	if len(value) == 0 {
		return errors.InvalidArgValue
	}
	raw := make([]byte, len(value))
	copy(raw, value)
	k.mu.Lock()
	k.args[index] = kernelArg{set: true, raw: raw}
	k.mu.Unlock()
	return errors.Success
}

func (s *Sim) SetKernelArgMem(h resource.Handle, index int, mem resource.Handle) errors.Code {
	k, ok := s.lookupKernel(h)
	if !ok {
		return errors.InvalidKernel
	}
	if index < 0 || index >= k.nargs {
		return errors.InvalidArgIndex
	}
	m, ok := s.lookupMem(mem)
	if !ok {
		return errors.InvalidMemObject
	}
	if m.ctx != k.prog.ctx {
		return errors.InvalidContext
	}
	k.mu.Lock()
	k.args[index] = kernelArg{set: true, mem: m}
	k.mu.Unlock()
	return errors.Success
}

// snapshot captures the kernel arguments for one launch.
func (k *kernel) snapshot() ([]kernelArg, errors.Code) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]kernelArg, len(k.args))
	for i, a := range k.args {
		if !a.set {
			return nil, errors.InvalidKernelArgs
		}
		out[i] = a
	}
	return out, errors.Success
}
