package engine

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/internal/wasmkernels"
)

func i32s(vals ...int32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func readI32s(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func loadArith(t *testing.T) (*WazeroEngine, *KernelModule) {
	t.Helper()
	ctx := context.Background()
	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	t.Cleanup(func() { engine.Close(ctx) })

	mod, err := engine.LoadModule(ctx, wasmkernels.Arith)
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return engine, mod
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	if cfg.MemoryLimitPages != 0 {
		t.Errorf("expected default MemoryLimitPages 0, got %d", cfg.MemoryLimitPages)
	}
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestLoadModule_Invalid(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	if _, err := engine.LoadModule(ctx, nil); err == nil {
		t.Error("expected error for empty module")
	}
	_, err = engine.LoadModule(ctx, []byte("not wasm"))
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidValue}) {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestKernelModule_Kernels(t *testing.T) {
	_, mod := loadArith(t)

	got := mod.Kernels()
	want := []string{"double", "fail", "scale"}
	if len(got) != len(want) {
		t.Fatalf("Kernels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kernels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	tests := []struct {
		name string
		want int
	}{
		{"double", 1},
		{"scale", 2},
		{"fail", 1},
	}
	for _, tt := range tests {
		n, err := mod.ArgCount(tt.name)
		if err != nil {
			t.Fatalf("ArgCount(%q) failed: %v", tt.name, err)
		}
		if n != tt.want {
			t.Errorf("ArgCount(%q) = %d, want %d", tt.name, n, tt.want)
		}
	}

	if _, err := mod.ArgCount("missing"); !errors.Is(err, errors.InvalidKernelName) {
		t.Errorf("ArgCount(missing) = %v, want InvalidKernelName", err)
	}
}

func TestKernelModule_RunDouble(t *testing.T) {
	engine, mod := loadArith(t)
	buf := i32s(1, 2, 3, 4, 5)

	err := mod.Run(context.Background(), "double", Launch{
		Args:  []Arg{MemArg(buf)},
		Items: 5,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := readI32s(buf)
	for i, v := range got {
		if want := int32(2 * (i + 1)); v != want {
			t.Errorf("buf[%d] = %d, want %d", i, v, want)
		}
	}
	if engine.Launches() != 1 {
		t.Errorf("Launches() = %d, want 1", engine.Launches())
	}
}

func TestKernelModule_RunScaleWithOffset(t *testing.T) {
	_, mod := loadArith(t)
	buf := i32s(1, 1, 1, 1)

	err := mod.Run(context.Background(), "scale", Launch{
		Args:   []Arg{MemArg(buf), ScalarArg(i32s(7))},
		Offset: 2,
		Items:  2,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int32{1, 1, 7, 7}
	for i, v := range readI32s(buf) {
		if v != want[i] {
			t.Errorf("buf[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestKernelModule_RunLargeBufferGrowsMemory(t *testing.T) {
	_, mod := loadArith(t)
	n := 40000 // 160000 bytes, more than the module's single page
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = int32(i)
	}
	buf := i32s(vals...)

	if err := mod.Run(context.Background(), "double", Launch{Args: []Arg{MemArg(buf)}, Items: n}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := readI32s(buf)
	if got[n-1] != int32(2*(n-1)) {
		t.Errorf("last element = %d, want %d", got[n-1], 2*(n-1))
	}
}

func TestKernelModule_RunErrors(t *testing.T) {
	_, mod := loadArith(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		kernel string
		launch Launch
		code   errors.Code
	}{
		{"unknown kernel", "nope", Launch{}, errors.InvalidKernelName},
		{"arg count", "double", Launch{Items: 1}, errors.InvalidKernelArgs},
		{"scalar size", "scale", Launch{Args: []Arg{MemArg(i32s(1)), ScalarArg([]byte{1})}, Items: 1}, errors.InvalidArgSize},
		{"trap", "fail", Launch{Args: []Arg{MemArg(i32s(1))}, Items: 1}, errors.OutOfResources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mod.Run(ctx, tt.kernel, tt.launch)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.CodeOf(err); got != tt.code {
				t.Errorf("got %v, want %v (%v)", got, tt.code, err)
			}
		})
	}
}

func TestKernelModule_TrapLeavesBufferUntouched(t *testing.T) {
	_, mod := loadArith(t)
	buf := i32s(9)
	_ = mod.Run(context.Background(), "fail", Launch{Args: []Arg{MemArg(buf)}, Items: 1})
	if readI32s(buf)[0] != 9 {
		t.Fatal("buffer modified by trapped launch")
	}
}

func TestKernelModule_ConcurrentRuns(t *testing.T) {
	_, mod := loadArith(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			buf := i32s(int32(g), int32(g))
			if err := mod.Run(ctx, "double", Launch{Args: []Arg{MemArg(buf)}, Items: 2}); err != nil {
				errs <- err
				return
			}
			for _, v := range readI32s(buf) {
				if v != int32(2*g) {
					errs <- errors.InvalidInput(errors.PhaseRuntime, "cross-talk between launches")
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLayout(t *testing.T) {
	offsets, end := layout([]Arg{MemArg(make([]byte, 5)), ScalarArg(i32s(1)), MemArg(make([]byte, 16))})
	if offsets[0] != 16 || offsets[1] != 0 || offsets[2] != 32 {
		t.Errorf("offsets = %v", offsets)
	}
	if end != 48 {
		t.Errorf("end = %d, want 48", end)
	}
}
