package backend

import (
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Enumerator discovers platforms and devices.
type Enumerator interface {
	Platforms() ([]resource.Handle, errors.Code)
	PlatformInfo(platform resource.Handle) (PlatformInfo, errors.Code)
	Devices(platform resource.Handle, typ DeviceType) ([]resource.Handle, errors.Code)
	DeviceInfo(device resource.Handle) (DeviceInfo, errors.Code)
}

// Compiler builds programs and binds kernel arguments.
type Compiler interface {
	CreateProgramWithSource(ctx resource.Handle, source string) (resource.Handle, errors.Code)
	CreateProgramWithBinary(ctx resource.Handle, devices []resource.Handle, binary []byte) (resource.Handle, errors.Code)
	BuildProgram(program resource.Handle, devices []resource.Handle, options string) errors.Code
	BuildLog(program, device resource.Handle) (string, errors.Code)
	KernelNames(program resource.Handle) ([]string, errors.Code)
	CreateKernel(program resource.Handle, name string) (resource.Handle, errors.Code)
	KernelArgCount(kernel resource.Handle) (int, errors.Code)
	SetKernelArg(kernel resource.Handle, index int, value []byte) errors.Code
	SetKernelArgMem(kernel resource.Handle, index int, mem resource.Handle) errors.Code
}

// Backend is the native compute driver.
//
// Every call returns a status code; the host checks all of them. Enqueue calls
// that return Success produce an event handle owned by the caller. Commands
// that later fail on the device report it only through that event's status.
//
// Read and write calls receive the host slice itself. For non-blocking calls
// the device accesses it until the returned event is terminal, so the caller
// must keep it alive and pinned for that long.
type Backend interface {
	Enumerator
	Compiler

	CreateContext(devices []resource.Handle) (resource.Handle, errors.Code)
	CreateCommandQueue(ctx, device resource.Handle, props QueueProperties) (resource.Handle, errors.Code)

	CreateBuffer(ctx resource.Handle, flags MemFlags, size int, host []byte) (resource.Handle, errors.Code)
	CreateSubBuffer(buffer resource.Handle, flags MemFlags, region Region) (resource.Handle, errors.Code)
	CreateFromGLBuffer(ctx resource.Handle, flags MemFlags, glObject uint32) (resource.Handle, errors.Code)
	BufferSize(buffer resource.Handle) (int, errors.Code)

	CreateUserEvent(ctx resource.Handle) (resource.Handle, errors.Code)
	SetUserEventStatus(event resource.Handle, status ExecutionStatus) errors.Code

	EnqueueNDRangeKernel(queue, kernel resource.Handle, offset, global, local []int, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueTask(queue, kernel resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueReadBuffer(queue, buffer resource.Handle, blocking bool, offset int, dst []byte, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueWriteBuffer(queue, buffer resource.Handle, blocking bool, offset int, src []byte, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueCopyBuffer(queue, src, dst resource.Handle, srcOffset, dstOffset, size int, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueMapBuffer(queue, buffer resource.Handle, blocking bool, flags MapFlags, offset, size int, wait []resource.Handle) ([]byte, resource.Handle, errors.Code)
	EnqueueUnmapMemObject(queue, buffer resource.Handle, mapped []byte, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueAcquireGLObjects(queue resource.Handle, mems []resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueReleaseGLObjects(queue resource.Handle, mems []resource.Handle, wait []resource.Handle) (resource.Handle, errors.Code)
	EnqueueMarker(queue resource.Handle) (resource.Handle, errors.Code)
	EnqueueBarrier(queue resource.Handle) errors.Code
	EnqueueWaitForEvents(queue resource.Handle, events []resource.Handle) errors.Code

	Flush(queue resource.Handle) errors.Code
	Finish(queue resource.Handle) errors.Code
	WaitForEvents(events []resource.Handle) errors.Code

	// SetEventCallback registers cb for the terminal transition of event.
	// If the event is already terminal, cb is still delivered, asynchronously.
	SetEventCallback(event resource.Handle, cb EventCallback) errors.Code
	EventStatus(event resource.Handle) (ExecutionStatus, errors.Code)
	EventCommandType(event resource.Handle) (CommandType, errors.Code)
	EventProfiling(event resource.Handle) (ProfilingInfo, errors.Code)

	Retain(h resource.Handle) errors.Code
	Release(h resource.Handle) errors.Code
}
