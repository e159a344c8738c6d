package engine

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/errors"
)

// WazeroEngine compiles and runs WASM kernel modules
type WazeroEngine struct {
	runtime  wazero.Runtime
	launches atomic.Uint64
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per kernel instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// LoadModule compiles a kernel module. Every exported function is a kernel.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*KernelModule, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	defs := compiled.ExportedFunctions()
	if len(defs) == 0 {
		_ = compiled.Close(ctx)
		return nil, errors.Load("module exports no kernels", nil)
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	Logger().Debug("kernel module loaded", zap.Strings("kernels", names))

	return &KernelModule{
		engine:   e,
		compiled: compiled,
		defs:     defs,
		names:    names,
	}, nil
}

// Launches returns the number of kernel launches run by this engine.
func (e *WazeroEngine) Launches() uint64 {
	return e.launches.Load()
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// KernelModule is a compiled kernel module. It is safe for concurrent use:
// each launch runs in its own anonymous instance.
type KernelModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	defs     map[string]api.FunctionDefinition
	names    []string
}

// Kernels returns the exported kernel names in sorted order.
func (m *KernelModule) Kernels() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// ArgCount returns the number of kernel arguments, excluding the global id.
func (m *KernelModule) ArgCount(name string) (int, error) {
	def, ok := m.defs[name]
	if !ok {
		return 0, m.notFound(name)
	}
	params := def.ParamTypes()
	if len(params) == 0 || params[0] != api.ValueTypeI32 {
		return 0, errors.New(errors.PhaseLoad, errors.KindInvalidValue).
			Op(name).
			Code(errors.InvalidKernelDefinition).
			Detail("first parameter must be the i32 global id").
			Build()
	}
	return len(params) - 1, nil
}

func (m *KernelModule) notFound(name string) error {
	return errors.New(errors.PhaseRuntime, errors.KindNotFound).
		Op(name).
		Code(errors.InvalidKernelName).
		Detail("kernel %q not exported", name).
		Build()
}

// Launch describes one kernel execution.
type Launch struct {
	Args []Arg

	// Offset is added to every global id.
	Offset int

	// Items is the number of work items.
	Items int
}

// Run executes kernel name once per work item. Memory arguments are staged
// into a fresh instance and copied back after the last item.
func (m *KernelModule) Run(ctx context.Context, name string, launch Launch) error {
	def, ok := m.defs[name]
	if !ok {
		return m.notFound(name)
	}
	params := def.ParamTypes()
	if len(params) != len(launch.Args)+1 {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidValue).
			Op(name).
			Code(errors.InvalidKernelArgs).
			Detail("kernel takes %d arguments, got %d", len(params)-1, len(launch.Args)).
			Build()
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return errors.Instantiation(err)
	}
	defer func() {
		if cerr := instance.Close(ctx); cerr != nil {
			Logger().Warn("close kernel instance", zap.String("kernel", name), zap.Error(cerr))
		}
	}()

	offsets, end := layout(launch.Args)
	mem := &WazeroMemory{mem: instance.Memory()}
	if end > firstOffset {
		if err := mem.ensure(end); err != nil {
			return errors.New(errors.PhaseRuntime, errors.KindOutOfResources).
				Op(name).
				Code(errors.MemObjectAllocationFailure).
				Cause(err).
				Build()
		}
	}

	stack := make([]uint64, len(params))
	for i, a := range launch.Args {
		v, err := encodeParam(name, i, params[i+1], a, offsets[i])
		if err != nil {
			return err
		}
		stack[i+1] = v
		if a.IsMem {
			if err := mem.Write(offsets[i], a.Mem); err != nil {
				return errors.Wrap(errors.PhaseRuntime, errors.KindOutOfResources, err, "stage buffer")
			}
		}
	}
	args := make([]uint64, len(stack))
	copy(args, stack)

	fn := instance.ExportedFunction(name)
	for item := 0; item < launch.Items; item++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(stack, args)
		stack[0] = api.EncodeU32(uint32(launch.Offset + item))
		if err := fn.CallWithStack(ctx, stack); err != nil {
			return errors.New(errors.PhaseRuntime, errors.KindAborted).
				Op(name).
				Code(errors.OutOfResources).
				Detail("work item %d trapped", launch.Offset+item).
				Cause(err).
				Build()
		}
	}

	for i, a := range launch.Args {
		if !a.IsMem {
			continue
		}
		data, err := mem.Read(offsets[i], uint32(len(a.Mem)))
		if err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindOutOfResources, err, "copy back buffer")
		}
		copy(a.Mem, data)
	}

	m.engine.launches.Add(1)
	return nil
}

// Close releases the compiled module.
func (m *KernelModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WazeroMemory wraps a kernel instance's linear memory
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, fmt.Errorf("module has no memory")
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if m.mem == nil {
		return fmt.Errorf("module has no memory")
	}
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// ensure grows memory to hold at least n bytes.
func (m *WazeroMemory) ensure(n uint32) error {
	if m.mem == nil {
		return fmt.Errorf("module has no memory")
	}
	size := m.mem.Size()
	if n <= size {
		return nil
	}
	pages := (n - size + pageSize - 1) / pageSize
	if _, ok := m.mem.Grow(pages); !ok {
		return fmt.Errorf("grow memory by %d pages failed", pages)
	}
	return nil
}
