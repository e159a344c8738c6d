package main

import (
	"fmt"
	"time"

	computeruntime "github.com/wippyai/compute-runtime"
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/backend/sim"
	"github.com/wippyai/compute-runtime/compute"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/internal/wasmkernels"
)

const vaddSource = "kernel void vadd(global const int* a, global const int* b, global int* c)"

var library = sim.Library{
	"vadd": {Args: 3, Func: func(item sim.WorkItem, args sim.Args) error {
		a, b, c := sim.Slice[int32](args, 0), sim.Slice[int32](args, 1), sim.Slice[int32](args, 2)
		i := item.GlobalLinear()
		c[i] = a[i] + b[i]
		return nil
	}},
}

type options struct {
	n       int
	ooo     bool
	profile bool
	fail    bool
	poll    bool
	latency time.Duration
}

func (o options) simConfig() *sim.Config {
	return &sim.Config{Devices: []sim.DeviceConfig{
		{Name: "sim-cpu", Latency: o.latency, DisableCallbacks: o.poll},
		{Name: "sim-gpu", Type: backend.DeviceGPU, ComputeUnits: 16, MaxWorkGroupSize: 1024, Latency: o.latency, DisableCallbacks: o.poll},
	}}
}

// step is one command of the pipeline as shown in the timeline.
type step struct {
	name  string
	event *compute.Event
}

type timelineRow struct {
	index    int
	name     string
	status   backend.ExecutionStatus
	started  time.Duration
	duration time.Duration
}

func rowFor(i int, s step, origin uint64) timelineRow {
	r := timelineRow{index: i, name: s.name, status: s.event.Status()}
	if p, err := s.event.Profile(); err == nil {
		if origin > 0 && p.Started >= origin {
			r.started = time.Duration(p.Started - origin)
		}
		r.duration = p.Duration()
	}
	return r
}

// pipeline runs c = 2 * (a + b) as a chain of dependent commands.
type pipeline struct {
	opts  options
	sim   *sim.Sim
	dev   *compute.Device
	ctx   *compute.Context
	queue *compute.CommandQueue
}

func newPipeline(opts options) (*pipeline, error) {
	s := sim.New(opts.simConfig())
	s.RegisterSource(vaddSource, library)

	dev, err := compute.DefaultDevice(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	ctx, err := compute.NewContext([]*compute.Device{dev})
	if err != nil {
		s.Close()
		return nil, err
	}
	var props backend.QueueProperties
	if opts.ooo {
		props |= backend.OutOfOrderExecution
	}
	if opts.profile {
		props |= backend.Profiling
	}
	q, err := ctx.CreateCommandQueue(dev, props)
	if err != nil {
		ctx.Release()
		s.Close()
		return nil, err
	}
	return &pipeline{opts: opts, sim: s, dev: dev, ctx: ctx, queue: q}, nil
}

func (p *pipeline) Close() {
	p.queue.Release()
	p.ctx.Release()
	p.sim.Close()
}

// run enqueues the pipeline and returns its steps without waiting. notify is
// called from the completion handlers of each step.
func (p *pipeline) run(notify func(i int, e *compute.Event)) ([]step, []int32, func() error, error) {
	n := p.opts.n
	a, b := make([]int32, n), make([]int32, n)
	for i := range n {
		a[i], b[i] = int32(i), int32(n-i)
	}

	var cleanup []computeruntime.Releaser
	release := func() error { return computeruntime.ReleaseAll(cleanup...) }
	fail := func(err error) ([]step, []int32, func() error, error) {
		release()
		return nil, nil, nil, err
	}

	size := 4 * n
	ba, err := p.ctx.CreateBuffer(backend.MemReadOnly, size)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, ba)
	bb, err := p.ctx.CreateBuffer(backend.MemReadOnly, size)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, bb)
	bc, err := p.ctx.CreateBuffer(backend.MemReadWrite, size)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, bc)

	vaddProg, err := p.ctx.CreateProgramWithSource(vaddSource)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, vaddProg)
	if err := vaddProg.Build(""); err != nil {
		return fail(err)
	}
	vadd, err := vaddProg.CreateKernel("vadd")
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, vadd)
	if err := vadd.SetArgs(ba, bb, bc); err != nil {
		return fail(err)
	}

	wasmProg, err := p.ctx.CreateProgramWithBinary(wasmkernels.Arith)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, wasmProg)
	if err := wasmProg.Build(""); err != nil {
		return fail(err)
	}
	scale, err := wasmProg.CreateKernel("scale")
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, scale)
	if err := scale.SetArgs(bc, int32(2)); err != nil {
		return fail(err)
	}

	if p.opts.fail {
		p.sim.InjectFault(sim.Fault{Command: backend.CommandNDRangeKernel, Kernel: "vadd", Code: errors.OutOfResources, Count: 1})
	}

	deps := compute.NewEventList()
	cleanup = append(cleanup, deps)
	out := make([]int32, n)
	var steps []step
	add := func(name string, e *compute.Event, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		i := len(steps)
		steps = append(steps, step{name: name, event: e})
		if notify != nil {
			e.OnComplete(func(e *compute.Event) { notify(i, e) })
			e.OnAbort(func(e *compute.Event, _ errors.Code) { notify(i, e) })
		}
		return nil
	}

	e, err := compute.WriteElements(p.queue, ba, false, 0, a, deps)
	if err := add("write a", e, err); err != nil {
		return fail(err)
	}
	e, err = compute.WriteElements(p.queue, bb, false, 0, b, deps)
	if err := add("write b", e, err); err != nil {
		return fail(err)
	}
	e, err = p.queue.Execute(vadd, nil, []int{n}, nil, deps)
	if err := add("vadd", e, err); err != nil {
		return fail(err)
	}
	e, err = p.queue.Execute(scale, nil, []int{n}, nil, deps)
	if err := add("scale (wasm)", e, err); err != nil {
		return fail(err)
	}
	e, err = compute.ReadElements(p.queue, bc, false, 0, out, deps)
	if err := add("read c", e, err); err != nil {
		return fail(err)
	}
	if err := p.queue.Flush(); err != nil {
		return fail(err)
	}
	return steps, out, release, nil
}

// verify checks out against 2 * (a + b) as produced by run.
func verify(out []int32) error {
	n := len(out)
	for i, got := range out {
		if want := int32(2 * n); got != want {
			return fmt.Errorf("element %d: got %d, want %d", i, got, want)
		}
	}
	return nil
}
