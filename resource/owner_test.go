package resource

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type wrapped struct {
	owner *Owner
	_     [16]byte
}

func TestOwner_ReleaseOnce(t *testing.T) {
	var calls atomic.Int32
	obj := &wrapped{}
	obj.owner = NewOwner(obj, KindBuffer, Handle(42), func(h Handle) error {
		if h != 42 {
			t.Errorf("release got handle %v", h)
		}
		calls.Add(1)
		return nil
	})

	require.True(t, obj.owner.Valid())
	require.Equal(t, Handle(42), obj.owner.Handle())
	require.Equal(t, KindBuffer, obj.owner.Kind())

	require.NoError(t, obj.owner.Release())
	require.NoError(t, obj.owner.Release())

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, obj.owner.Valid())
	assert.Equal(t, Null, obj.owner.Handle())
}

func TestOwner_ConcurrentRelease(t *testing.T) {
	var calls atomic.Int32
	obj := &wrapped{}
	obj.owner = NewOwner(obj, KindEvent, Handle(7), func(Handle) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = obj.owner.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestOwner_NilAndNull(t *testing.T) {
	var o *Owner
	require.NoError(t, o.Release())
	require.Equal(t, Null, o.Handle())

	obj := &wrapped{}
	obj.owner = NewOwner(obj, KindBuffer, Null, func(Handle) error {
		t.Error("release called for null handle")
		return nil
	})
	require.NoError(t, obj.owner.Release())
}

func TestOwner_LeakWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	released := make(chan Handle, 1)
	before := Leaks()

	leak := func() {
		obj := &wrapped{}
		obj.owner = NewOwner(obj, KindKernel, Handle(0x100000001), func(h Handle) error {
			released <- h
			return nil
		})
	}
	leak()

	assert.Eventually(t, func() bool {
		runtime.GC()
		select {
		case h := <-released:
			return h == Handle(0x100000001)
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("resource leaked").Len() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, before+1, Leaks())

	entry := logs.FilterMessage("resource leaked").All()[0]
	assert.Equal(t, "kernel", entry.ContextMap()["kind"])
}

func TestOwner_ReleasedNotReclaimed(t *testing.T) {
	var calls atomic.Int32
	before := Leaks()

	func() {
		obj := &wrapped{}
		obj.owner = NewOwner(obj, KindQueue, Handle(9), func(Handle) error {
			calls.Add(1)
			return nil
		})
		require.NoError(t, obj.owner.Release())
	}()

	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, before, Leaks())
}
