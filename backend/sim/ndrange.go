package sim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/engine"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// MaxGlobalWorkSize bounds the total work items of a launch and each
// offset+global extent, so ids fit the i32 WASM kernel ABI.
const MaxGlobalWorkSize = math.MaxInt32

type ndrange struct {
	dims   int
	offset [3]int
	global [3]int
	local  [3]int
}

func (r ndrange) items() int {
	n := 1
	for d := 0; d < r.dims; d++ {
		n *= r.global[d]
	}
	return n
}

// newNDRange validates launch dimensions against dev. A nil local picks the
// largest work-group that divides the first dimension.
func newNDRange(dev *device, offset, global, local []int) (ndrange, errors.Code) {
	r := ndrange{dims: len(global)}
	if r.dims < 1 || r.dims > 3 {
		return r, errors.InvalidWorkDimension
	}
	if offset != nil && len(offset) != r.dims {
		return r, errors.InvalidGlobalOffset
	}
	if local != nil && len(local) != r.dims {
		return r, errors.InvalidWorkGroupSize
	}
	for d := 0; d < 3; d++ {
		r.global[d], r.local[d] = 1, 1
	}

	maxGroup := dev.cfg.MaxWorkGroupSize
	groupSize := 1
	items := 1
	for d := 0; d < r.dims; d++ {
		if global[d] <= 0 || global[d] > MaxGlobalWorkSize/items {
			return r, errors.InvalidGlobalWorkSize
		}
		items *= global[d]
		r.global[d] = global[d]
		if offset != nil {
			if offset[d] < 0 || offset[d] > MaxGlobalWorkSize-global[d] {
				return r, errors.InvalidGlobalOffset
			}
			r.offset[d] = offset[d]
		}
		if local == nil {
			continue
		}
		if local[d] <= 0 || global[d]%local[d] != 0 {
			return r, errors.InvalidWorkGroupSize
		}
		if local[d] > maxGroup {
			return r, errors.InvalidWorkItemSize
		}
		r.local[d] = local[d]
		groupSize *= local[d]
	}
	if groupSize > maxGroup {
		return r, errors.InvalidWorkGroupSize
	}
	if local == nil {
		r.local[0] = largestDivisor(r.global[0], maxGroup)
	}
	return r, errors.Success
}

func largestDivisor(n, limit int) int {
	if n <= limit {
		return n
	}
	for d := limit; d > 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}

func (s *Sim) EnqueueNDRangeKernel(qh, kh resource.Handle, offset, global, local []int, wait []resource.Handle) (resource.Handle, errors.Code) {
	return s.enqueueKernel(backend.CommandNDRangeKernel, qh, kh, offset, global, local, wait)
}

// EnqueueTask runs a kernel as a single work item.
func (s *Sim) EnqueueTask(qh, kh resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code) {
	return s.enqueueKernel(backend.CommandTask, qh, kh, nil, []int{1}, []int{1}, wait)
}

func (s *Sim) enqueueKernel(typ backend.CommandType, qh, kh resource.Handle, offset, global, local []int, wait []resource.Handle) (resource.Handle, errors.Code) {
	q, events, code := s.prepare(qh, wait)
	if code != errors.Success {
		return resource.Null, code
	}
	k, ok := s.lookupKernel(kh)
	if !ok {
		return resource.Null, errors.InvalidKernel
	}
	if k.prog.ctx != q.ctx {
		return resource.Null, errors.InvalidContext
	}
	r, code := newNDRange(q.dev, offset, global, local)
	if code != errors.Success {
		return resource.Null, code
	}
	args, code := k.snapshot()
	if code != errors.Success {
		return resource.Null, code
	}

	return q.enqueue(&command{
		typ:    typ,
		wait:   events,
		kernel: k.name,
		run:    func() errors.Code { return q.launch(k, args, r) },
	}, false)
}

type kernelPanic struct {
	value any
}

func (p kernelPanic) Error() string {
	return fmt.Sprintf("kernel panicked: %v", p.value)
}

// launch runs a kernel on the executor. Go kernels run their work-groups in
// parallel, bounded by the device's compute units.
func (q *queue) launch(k *kernel, args []kernelArg, r ndrange) errors.Code {
	q.sim.launches.Add(1)
	if k.fn == nil {
		return q.launchWASM(k, args, r)
	}

	vals := make([]argValue, len(args))
	for i, a := range args {
		if a.mem != nil {
			vals[i] = argValue{mem: a.mem.data, isMem: true}
		} else {
			vals[i] = argValue{raw: a.raw}
		}
	}
	kargs := Args{vals: vals}

	var groups [3]int
	for d := 0; d < 3; d++ {
		groups[d] = r.global[d] / r.local[d]
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(q.dev.cfg.ComputeUnits)
	for gz := 0; gz < groups[2]; gz++ {
		for gy := 0; gy < groups[1]; gy++ {
			for gx := 0; gx < groups[0]; gx++ {
				group := [3]int{gx, gy, gz}
				g.Go(func() error {
					if ctx.Err() != nil {
						return nil
					}
					return runGroup(k.fn, kargs, r, group)
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		var kp kernelPanic
		if errors.As(err, &kp) {
			q.sim.log.Warn("kernel panicked", zap.String("kernel", k.name), zap.Any("panic", kp.value))
		}
		return errors.CodeOf(err)
	}
	return errors.Success
}

// runGroup runs one work-group. A panicking kernel aborts the launch with
// OutOfResources.
func runGroup(fn KernelFunc, args Args, r ndrange, group [3]int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = kernelPanic{value: p}
		}
	}()
	item := WorkItem{
		Dims:       r.dims,
		Group:      group,
		GlobalSize: r.global,
		LocalSize:  r.local,
		Offset:     r.offset,
	}
	for lz := 0; lz < r.local[2]; lz++ {
		for ly := 0; ly < r.local[1]; ly++ {
			for lx := 0; lx < r.local[0]; lx++ {
				item.Local = [3]int{lx, ly, lz}
				for d := 0; d < 3; d++ {
					item.Global[d] = r.offset[d] + group[d]*r.local[d] + item.Local[d]
				}
				if err := fn(item, args); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// launchWASM runs a WASM kernel over the flattened range.
func (q *queue) launchWASM(k *kernel, args []kernelArg, r ndrange) errors.Code {
	k.prog.mu.Lock()
	mod := k.prog.module
	k.prog.mu.Unlock()
	if mod == nil {
		return errors.InvalidProgramExecutable
	}

	wargs := make([]engine.Arg, len(args))
	for i, a := range args {
		if a.mem != nil {
			wargs[i] = engine.MemArg(a.mem.data)
		} else {
			wargs[i] = engine.ScalarArg(a.raw)
		}
	}
	err := mod.Run(context.Background(), k.name, engine.Launch{
		Args:   wargs,
		Offset: r.offset[0],
		Items:  r.items(),
	})
	if err != nil {
		q.sim.log.Debug("wasm kernel failed", zap.String("kernel", k.name), zap.Error(err))
		return errors.CodeOf(err)
	}
	return errors.Success
}
