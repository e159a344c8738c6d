package resource

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/errors"
)

// ReleaseFunc issues the native release for a handle.
type ReleaseFunc func(Handle) error

// Owner holds the single native handle of a wrapped object and releases it
// exactly once, either through Release or, if the object is dropped without
// one, from a garbage collection cleanup that also logs a leak warning.
type Owner struct {
	state   *ownerState
	cleanup runtime.Cleanup
}

// ownerState is the cleanup argument. It must never point back at the owning
// object, otherwise the cleanup would keep it reachable forever.
type ownerState struct {
	mu      sync.Mutex
	handle  Handle
	kind    Kind
	release ReleaseFunc
}

// NewOwner takes ownership of h on behalf of obj.
func NewOwner[T any](obj *T, kind Kind, h Handle, release ReleaseFunc) *Owner {
	st := &ownerState{handle: h, kind: kind, release: release}
	o := &Owner{state: st}
	if h != Null {
		o.cleanup = runtime.AddCleanup(obj, reclaim, st)
	}
	return o
}

// invalidate clears the handle and returns the previous value.
func (s *ownerState) invalidate() (Handle, ReleaseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = Null
	return h, s.release
}

// Handle returns the native handle, or Null once released.
func (o *Owner) Handle() Handle {
	if o == nil {
		return Null
	}
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.handle
}

// Valid reports whether the handle has not been released.
func (o *Owner) Valid() bool {
	return o.Handle() != Null
}

// Kind returns the kind of the owned object.
func (o *Owner) Kind() Kind {
	return o.state.kind
}

// Release invalidates the handle and issues the native release.
// Subsequent calls are no-ops returning nil.
func (o *Owner) Release() error {
	if o == nil {
		return nil
	}
	h, release := o.state.invalidate()
	if h == Null {
		return nil
	}
	o.cleanup.Stop()
	Logger().Debug("resource released", zap.Stringer("kind", o.state.kind), zap.Stringer("handle", h))
	if release == nil {
		return nil
	}
	return release(h)
}

func reclaim(st *ownerState) {
	h, release := st.invalidate()
	if h == Null {
		return
	}
	warnLeak(st.kind, h)
	if release == nil {
		return
	}
	if err := release(h); err != nil {
		Logger().Warn("release of leaked resource failed",
			zap.Stringer("kind", st.kind),
			zap.Stringer("handle", h),
			zap.Error(err))
	}
}

var (
	leaks       atomic.Uint64
	suppressed  atomic.Uint64
	limiterOnce sync.Once
	leakLimiter *catrate.Limiter
)

func limiter() *catrate.Limiter {
	limiterOnce.Do(func() {
		leakLimiter = catrate.NewLimiter(map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		})
	})
	return leakLimiter
}

func warnLeak(kind Kind, h Handle) {
	leaks.Add(1)
	if _, ok := limiter().Allow(kind); !ok {
		suppressed.Add(1)
		return
	}
	Logger().Warn("resource leaked",
		zap.Stringer("kind", kind),
		zap.Stringer("handle", h),
		zap.Uint64("suppressed", suppressed.Swap(0)),
		zap.Error(errors.Leaked(kind.String(), uint64(h))))
}

// Leaks returns the number of objects reclaimed without an explicit release.
func Leaks() uint64 {
	return leaks.Load()
}
