// Package sim is an in-process compute device implementing backend.Backend.
//
// It behaves like an OpenCL 1.1 driver: objects are reference counted
// handles, enqueue calls return events, and failures of commands already
// accepted are reported only through event status. Kernels are either Go
// functions registered with RegisterSource or WASM binaries run by the
// engine package.
//
// # Threads
//
// Each command queue owns two goroutines. The executor starts commands in
// submission order; the callback thread delivers event callbacks in the
// order events became terminal. User events deliver their callbacks on a
// per-context thread. Callbacks never run on the goroutine that enqueued
// the command.
//
// # Testing hooks
//
//	InjectFault         - abort matching commands with a chosen code
//	SetDeviceAvailable  - make submissions and executions fail
//	Config.ManualFlush  - hold commands until Flush or Finish
//	DeviceConfig.DisableCallbacks - force hosts to poll event status
//	LiveObjects, RefCount - observe leaks
package sim
