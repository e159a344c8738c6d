package compute

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/internal/wasmkernels"
)

func TestProgram_BuildAndKernels(t *testing.T) {
	r := newRig(t, nil, 0)
	p, err := r.ctx.CreateProgramWithSource(testSource)
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Build("-cl-fast-relaxed-math"))
	log, err := p.BuildLog(r.dev)
	require.NoError(t, err)
	assert.Contains(t, log, "inc")

	names, err := p.KernelNames()
	require.NoError(t, err)
	slices.Sort(names)
	assert.Equal(t, []string{"add", "inc"}, names)

	kernels, err := p.CreateAllKernels()
	require.NoError(t, err)
	for _, k := range kernels {
		want := 1
		if k.Name() == "add" {
			want = 3
		}
		if k.ArgCount() != want {
			t.Errorf("%s: got %d args, want %d", k.Name(), k.ArgCount(), want)
		}
		require.NoError(t, k.Release())
	}

	_, err = p.CreateKernel("missing")
	assert.True(t, errors.Is(err, &errors.Error{Phase: errors.PhaseCreate, Kind: errors.KindNotFound}), "got %v", err)
}

func TestProgram_BuildFailure(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		options string
		code    errors.Code
	}{
		{"unknown source", "kernel void nothing()", "", errors.BuildProgramFailure},
		{"bad options", testSource, "fast", errors.InvalidBuildOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, nil, 0)
			p, err := r.ctx.CreateProgramWithSource(tt.source)
			require.NoError(t, err)
			defer p.Release()

			err = p.Build(tt.options)
			var ce *errors.Error
			if !errors.As(err, &ce) || ce.Kind != errors.KindBuild || ce.Code != tt.code {
				t.Fatalf("got %v, want %v", err, tt.code)
			}
			if tt.code == errors.BuildProgramFailure && ce.Detail == "" {
				t.Fatal("build error carries no log")
			}
		})
	}
}

func TestKernel_VectorAdd(t *testing.T) {
	r := newRig(t, nil, 0)
	k := r.kernel(t, "add")

	const n = 512
	a, b := make([]int32, n), make([]int32, n)
	for i := range n {
		a[i], b[i] = int32(i), int32(2*i)
	}
	ba := r.buffer(t, AsBytes(a))
	bb := r.buffer(t, AsBytes(b))
	bc, err := r.ctx.CreateBuffer(backend.MemWriteOnly, 4*n)
	require.NoError(t, err)
	defer bc.Release()

	require.NoError(t, k.SetArgs(ba, bb, bc))
	_, err = r.queue.Execute(k, nil, []int{n}, []int{64}, nil)
	require.NoError(t, err)

	c := make([]int32, n)
	_, err = ReadElements(r.queue, bc, true, 0, c, nil)
	require.NoError(t, err)
	for i := range n {
		if c[i] != 3*int32(i) {
			t.Fatalf("c[%d]: got %d, want %d", i, c[i], 3*i)
		}
	}
}

func TestKernel_Task(t *testing.T) {
	r := newRig(t, nil, 0)
	k := r.kernel(t, "inc")
	buf := r.buffer(t, i32s(41, 7))
	require.NoError(t, k.SetBuffer(0, buf))

	e, err := r.queue.ExecuteTask(k, nil)
	require.NoError(t, err)
	require.NoError(t, r.queue.Finish())
	assert.Equal(t, backend.CommandTask, e.Type())

	out, _, err := r.queue.ReadBuffer(buf, true, 0, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{42, 7}, readI32s(out))
}

func TestKernel_SubmissionErrors(t *testing.T) {
	r := newRig(t, nil, 0)
	k := r.kernel(t, "add")

	_, err := r.queue.Execute(k, nil, []int{4}, nil, nil)
	assert.True(t, errors.Is(err, errors.InvalidKernelArgs), "got %v", err)

	buf := r.buffer(t, make([]byte, 16))
	require.NoError(t, k.SetArgs(buf, buf, buf))
	_, err = r.queue.Execute(k, nil, []int{4}, []int{3}, nil)
	assert.True(t, errors.Is(err, errors.InvalidWorkGroupSize), "got %v", err)
	_, err = r.queue.Execute(k, nil, []int{1, 1, 1, 1}, nil, nil)
	assert.True(t, errors.Is(err, errors.InvalidWorkDimension), "got %v", err)

	err = k.SetArgs(buf, "buffer")
	assert.True(t, errors.Is(err, &errors.Error{Phase: errors.PhaseCreate, Kind: errors.KindInvalidInput}), "got %v", err)
	assert.True(t, errors.Is(k.SetInt32(9, 1), errors.InvalidArgIndex))
}

func TestKernel_WASM(t *testing.T) {
	r := newRig(t, nil, 0)
	p, err := r.ctx.CreateProgramWithBinary(wasmkernels.Arith, r.dev)
	require.NoError(t, err)
	defer p.Release()
	require.NoError(t, p.Build(""))

	k, err := p.CreateKernel("scale")
	require.NoError(t, err)
	defer k.Release()
	buf := r.buffer(t, i32s(1, 2, 3))
	require.NoError(t, k.SetArgs(buf, int32(5)))

	_, err = r.queue.Execute(k, nil, []int{3}, nil, nil)
	require.NoError(t, err)
	out, _, err := r.queue.ReadBuffer(buf, true, 0, 12, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 10, 15}, readI32s(out))

	fail, err := p.CreateKernel("fail")
	require.NoError(t, err)
	defer fail.Release()
	require.NoError(t, fail.SetBuffer(0, buf))
	e, err := r.queue.Execute(fail, nil, []int{1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.Wait(waitCtx(t)))
	assert.True(t, e.Status().IsAborted())

	_, err = r.ctx.CreateProgramWithBinary([]byte("not wasm"))
	assert.True(t, errors.Is(err, errors.InvalidBinary), "got %v", err)
}
