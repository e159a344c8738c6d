// Package compute is the host API for submitting work to compute devices.
//
// A Context groups devices, a CommandQueue submits commands to one of them,
// and every enqueue returns an Event that reaches a terminal status when the
// command completes or aborts:
//
//	dev, _ := compute.DefaultDevice(backend)
//	ctx, _ := compute.NewContext([]*compute.Device{dev})
//	q, _ := ctx.CreateCommandQueue(dev, 0)
//
//	deps := compute.NewEventList()
//	q.WriteBuffer(buf, false, 0, input, deps)
//	q.Execute(kernel, nil, []int{n}, nil, deps)
//	out, _, _ := q.ReadBuffer(buf, true, 0, size, deps)
//
// # Events
//
// Submission errors are returned directly and leave no event behind.
// Failures on the device are only visible through the event: its Status
// becomes a negative code, Err returns an aborted error and OnAbort handlers
// run. Blocking calls return the aborted event with a nil error.
//
// Handlers run on a backend goroutine, or on the registering goroutine when
// the event is already terminal. They must not block on commands queued
// behind their own event on the same queue.
//
// # Host memory
//
// Host slices passed to transfers are pinned until the device is done with
// them: blocking calls unpin before returning, non-blocking calls unpin when
// the event is terminal. The slice must be left alone until then.
//
// # Lifetime
//
// Every wrapper owns one native handle and releases it once, on Release or,
// for objects dropped without one, from a garbage collection cleanup that
// logs a leak warning. Events enqueued without a mutable EventList are
// tracked by the queue and released automatically once terminal.
package compute
