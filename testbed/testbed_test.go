// Package testbed runs end-to-end scenarios against the simulated device.
package testbed

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/backend/sim"
	"github.com/wippyai/compute-runtime/compute"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/internal/wasmkernels"
	"github.com/wippyai/compute-runtime/resource"
)

const source = "kernel void saxpy(float a, global const float* x, global float* y)"

var library = sim.Library{
	"saxpy": {Args: 3, Func: func(item sim.WorkItem, args sim.Args) error {
		a := args.Float32(0)
		x, y := sim.Slice[float32](args, 1), sim.Slice[float32](args, 2)
		i := item.GlobalLinear()
		y[i] += a * x[i]
		return nil
	}},
}

type env struct {
	sim *sim.Sim
	dev *compute.Device
	ctx *compute.Context
}

func newEnv(t *testing.T, cfg *sim.Config) *env {
	t.Helper()
	if cfg == nil {
		cfg = &sim.Config{}
	}
	cfg.Logger = zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))
	s := sim.New(cfg)
	s.RegisterSource(source, library)
	t.Cleanup(func() { s.Close() })

	dev, err := compute.DefaultDevice(s)
	require.NoError(t, err)
	ctx, err := compute.NewContext([]*compute.Device{dev})
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Release() })
	return &env{sim: s, dev: dev, ctx: ctx}
}

func (e *env) queue(t *testing.T, props backend.QueueProperties) *compute.CommandQueue {
	t.Helper()
	q, err := e.ctx.CreateCommandQueue(e.dev, props)
	require.NoError(t, err)
	t.Cleanup(func() { q.Release() })
	return q
}

func (e *env) saxpy(t *testing.T) *compute.Kernel {
	t.Helper()
	p, err := e.ctx.CreateProgramWithSource(source)
	require.NoError(t, err)
	require.NoError(t, p.Build(""))
	k, err := p.CreateKernel("saxpy")
	require.NoError(t, err)
	t.Cleanup(func() {
		k.Release()
		p.Release()
	})
	return k
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Two queues of one context exchange work through events: the second queue
// runs a WASM kernel on the result of the first queue's Go kernel.
func TestCrossQueuePipeline(t *testing.T) {
	e := newEnv(t, &sim.Config{Devices: []sim.DeviceConfig{{Latency: time.Millisecond}}})
	first := e.queue(t, backend.Profiling)
	second := e.queue(t, backend.OutOfOrderExecution|backend.Profiling)
	saxpy := e.saxpy(t)

	const n = 256
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(i)
	}
	bx, err := e.ctx.CreateBufferFrom(backend.MemReadOnly, compute.AsBytes(x))
	require.NoError(t, err)
	defer bx.Release()
	by, err := e.ctx.CreateBuffer(backend.MemReadWrite, 4*n)
	require.NoError(t, err)
	defer by.Release()
	counts, err := e.ctx.CreateBuffer(backend.MemReadWrite, 4*n)
	require.NoError(t, err)
	defer counts.Release()

	require.NoError(t, saxpy.SetArgs(float32(3), bx, by))

	wasm, err := e.ctx.CreateProgramWithBinary(wasmkernels.Arith)
	require.NoError(t, err)
	defer wasm.Release()
	require.NoError(t, wasm.Build(""))
	double, err := wasm.CreateKernel("double")
	require.NoError(t, err)
	defer double.Release()
	require.NoError(t, double.SetBuffer(0, counts))

	deps := compute.NewEventList()
	defer deps.Release()

	ones := make([]int32, n)
	for i := range ones {
		ones[i] = 1
	}
	_, err = compute.WriteElements(first, counts, false, 0, ones, deps)
	require.NoError(t, err)
	run, err := first.Execute(saxpy, nil, []int{n}, []int{32}, deps)
	require.NoError(t, err)
	dbl, err := second.Execute(double, nil, []int{n}, nil, deps)
	require.NoError(t, err)

	y := make([]float32, n)
	got := make([]int32, n)
	_, err = compute.ReadElements(second, by, false, 0, y, deps)
	require.NoError(t, err)
	_, err = compute.ReadElements(second, counts, false, 0, got, deps)
	require.NoError(t, err)

	require.NoError(t, second.Wait(waitCtx(t), deps))
	for i := range n {
		if y[i] != 3*x[i] || got[i] != 2 {
			t.Fatalf("element %d: got y=%g count=%d", i, y[i], got[i])
		}
	}

	rp, err := run.Profile()
	require.NoError(t, err)
	dp, err := dbl.Profile()
	require.NoError(t, err)
	if dp.Started < rp.Ended {
		t.Fatalf("second queue started at %d before the first queue's kernel ended at %d", dp.Started, rp.Ended)
	}
}

// Many goroutines enqueue unretained non-blocking transfers on one queue.
// Every pin and every event handle must be gone once the queue finishes.
func TestConcurrentUnretainedTransfers(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cfg   *sim.Config
		props backend.QueueProperties
	}{
		{"in-order", nil, 0},
		{"out-of-order", nil, backend.OutOfOrderExecution},
		{"polling", &sim.Config{Devices: []sim.DeviceConfig{{DisableCallbacks: true}}}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, tc.cfg)
			q := e.queue(t, tc.props)
			const workers, each = 8, 32
			buf, err := e.ctx.CreateBuffer(backend.MemReadWrite, 4*workers*each)
			require.NoError(t, err)
			defer buf.Release()

			var wg sync.WaitGroup
			for w := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range each {
						slot := w*each + i
						if _, err := compute.WriteElements(q, buf, false, slot, []int32{int32(slot)}, nil); err != nil {
							t.Errorf("write %d: %v", slot, err)
							return
						}
					}
				}()
			}
			wg.Wait()
			require.NoError(t, q.Finish())
			assert.Equal(t, 0, q.Pinned())
			assert.Equal(t, 0, q.Pending())

			got := make([]int32, workers*each)
			_, err = compute.ReadElements(q, buf, true, 0, got, nil)
			require.NoError(t, err)
			for i, v := range got {
				if v != int32(i) {
					t.Fatalf("slot %d: got %d", i, v)
				}
			}
			require.Eventually(t, func() bool {
				return e.sim.LiveObjects(resource.KindEvent) == 0
			}, 2*time.Second, time.Millisecond)
		})
	}
}

// A failed kernel aborts everything chained on it, and the pins of the
// aborted transfers are still released.
func TestAbortPropagatesThroughChain(t *testing.T) {
	e := newEnv(t, nil)
	q := e.queue(t, 0)
	saxpy := e.saxpy(t)
	bx, err := e.ctx.CreateBuffer(backend.MemReadWrite, 64)
	require.NoError(t, err)
	defer bx.Release()
	require.NoError(t, saxpy.SetArgs(float32(1), bx, bx))

	e.sim.InjectFault(sim.Fault{Kernel: "saxpy", Code: errors.OutOfResources, Count: 1})

	var (
		mu    sync.Mutex
		codes = map[string]errors.Code{}
	)
	deps := compute.NewEventList()
	defer deps.Release()
	run, err := q.Execute(saxpy, nil, []int{16}, nil, deps)
	require.NoError(t, err)
	out := make([]float32, 16)
	read, err := compute.ReadElements(q, bx, false, 0, out, deps)
	require.NoError(t, err)
	for name, ev := range map[string]*compute.Event{"kernel": run, "read": read} {
		ev.OnAbort(func(_ *compute.Event, code errors.Code) {
			mu.Lock()
			codes[name] = code
			mu.Unlock()
		})
	}

	require.NoError(t, deps.Wait(waitCtx(t)))
	require.Eventually(t, func() bool { return q.Pinned() == 0 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, errors.OutOfResources, codes["kernel"])
	assert.Equal(t, errors.ExecStatusErrorForEventsInWaitList, codes["read"])
	assert.True(t, errors.Is(read.Err(), errors.ExecStatusErrorForEventsInWaitList))
}

// Objects dropped without Release are reclaimed by the garbage collector and
// reported once as leaks.
func TestLeakedObjectsAreReclaimed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	compute.SetLogger(zap.New(core))
	defer compute.SetLogger(nil)

	e := newEnv(t, nil)
	before := e.sim.LiveObjects(resource.KindBuffer)
	func() {
		for range 3 {
			if _, err := e.ctx.CreateBuffer(backend.MemReadWrite, 16); err != nil {
				t.Fatal(err)
			}
		}
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return e.sim.LiveObjects(resource.KindBuffer) == before
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		leaked := logs.FilterMessage("resource leaked").FilterField(zap.Stringer("kind", resource.KindBuffer))
		return leaked.Len() == 3
	}, time.Second, 10*time.Millisecond)
}

// Finish waits for user-event gated work and for the completion handlers.
func TestFinishWaitsForHandlers(t *testing.T) {
	e := newEnv(t, &sim.Config{ManualFlush: true})
	q := e.queue(t, 0)
	buf, err := e.ctx.CreateBuffer(backend.MemReadWrite, 4)
	require.NoError(t, err)
	defer buf.Release()

	gate, err := e.ctx.CreateUserEvent()
	require.NoError(t, err)
	defer gate.Release()

	var handled sync.WaitGroup
	handled.Add(1)
	done := false
	gated := compute.NewEventList(gate.Event).ReadOnly()
	ev, err := compute.WriteElements(q, buf, false, 0, []int32{1}, gated)
	require.NoError(t, err)
	ev.OnComplete(func(*compute.Event) {
		time.Sleep(5 * time.Millisecond)
		done = true
		handled.Done()
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		gate.Complete()
	}()
	require.NoError(t, q.Finish())
	if !done {
		t.Fatal("Finish returned before the completion handler ran")
	}
	handled.Wait()
}
