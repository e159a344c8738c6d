package compute

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/backend/sim"
)

const testSource = "kernel void inc(global int* buf); kernel void add(global int* a, global int* b, global int* c)"

var testLibrary = sim.Library{
	"inc": {Args: 1, Func: func(item sim.WorkItem, args sim.Args) error {
		buf := sim.Slice[int32](args, 0)
		buf[item.GlobalLinear()]++
		return nil
	}},
	"add": {Args: 3, Func: func(item sim.WorkItem, args sim.Args) error {
		a, b, c := sim.Slice[int32](args, 0), sim.Slice[int32](args, 1), sim.Slice[int32](args, 2)
		i := item.GlobalLinear()
		c[i] = a[i] + b[i]
		return nil
	}},
}

type rig struct {
	sim   *sim.Sim
	dev   *Device
	ctx   *Context
	queue *CommandQueue
}

func newRig(t *testing.T, cfg *sim.Config, props backend.QueueProperties) *rig {
	t.Helper()
	s := sim.New(cfg)
	t.Cleanup(func() { s.Close() })
	s.RegisterSource(testSource, testLibrary)

	dev, err := DefaultDevice(s)
	if err != nil {
		t.Fatalf("default device: %v", err)
	}
	ctx, err := NewContext([]*Device{dev}, WithPollInterval(200*time.Microsecond))
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	q, err := ctx.CreateCommandQueue(dev, props)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	t.Cleanup(func() {
		q.Release()
		ctx.Release()
	})
	return &rig{sim: s, dev: dev, ctx: ctx, queue: q}
}

// gate returns a user event and a read-only list holding it.
func (r *rig) gate(t *testing.T) (*UserEvent, *EventList) {
	t.Helper()
	u, err := r.ctx.CreateUserEvent()
	if err != nil {
		t.Fatalf("user event: %v", err)
	}
	t.Cleanup(func() { u.Release() })
	return u, NewEventList(u.Event).ReadOnly()
}

func (r *rig) buffer(t *testing.T, data []byte) *Buffer {
	t.Helper()
	b, err := r.ctx.CreateBufferFrom(backend.MemReadWrite, data)
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	t.Cleanup(func() { b.Release() })
	return b
}

func (r *rig) kernel(t *testing.T, name string) *Kernel {
	t.Helper()
	p, err := r.ctx.CreateProgramWithSource(testSource)
	if err != nil {
		t.Fatalf("program: %v", err)
	}
	if err := p.Build(""); err != nil {
		t.Fatalf("build: %v", err)
	}
	k, err := p.CreateKernel(name)
	if err != nil {
		t.Fatalf("kernel: %v", err)
	}
	t.Cleanup(func() {
		k.Release()
		p.Release()
	})
	return k
}

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

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func equalI32(got, want []int32) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
