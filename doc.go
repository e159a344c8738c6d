// Package computeruntime is a host library for asynchronous work on
// compute devices in the OpenCL style.
//
// Commands are enqueued on a command queue and return at once with an
// event. Events report completion and failure through handlers, chain
// further commands through event lists, and keep host memory handed to a
// transfer pinned until the device is done with it.
//
// # Architecture Overview
//
//	computeruntime/      Root package with the Releaser and Waiter interfaces
//	├── compute/         Platforms, contexts, queues, buffers, programs and events
//	├── backend/         Native driver interface and the shared enums
//	│   └── sim/         In-process simulated device used by tests and demos
//	├── engine/          wazero execution of WASM kernel binaries
//	├── resource/        Native handle ownership, reclaim and leak reporting
//	├── errors/          Native status codes and structured errors
//	└── cmd/clrun/       Pipeline demo with a timeline and an interactive TUI
//
// # Quick Start
//
//	sim := sim.New(nil)
//	defer sim.Close()
//
//	dev, _ := compute.DefaultDevice(sim)
//	ctx, _ := compute.NewContext([]*compute.Device{dev})
//	defer ctx.Release()
//	queue, _ := ctx.CreateCommandQueue(dev, 0)
//	defer queue.Release()
//
//	events := compute.NewEventList()
//	defer events.Release()
//	compute.WriteElements(queue, buf, false, 0, input, events)
//	queue.Execute(kernel, nil, []int{len(input)}, nil, events)
//	compute.ReadElements(queue, buf, true, 0, output, events)
//
// # Thread Safety
//
// Every object may be used from several goroutines. Event handlers run on
// the driver's callback goroutine (or the poller when the device has no
// callbacks) and must not block on work queued behind the same queue.
package computeruntime
