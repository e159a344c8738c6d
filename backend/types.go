package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// CommandType identifies the operation an event tracks.
type CommandType uint32

const (
	CommandNDRangeKernel     CommandType = 0x11F0
	CommandTask              CommandType = 0x11F1
	CommandNativeKernel      CommandType = 0x11F2
	CommandReadBuffer        CommandType = 0x11F3
	CommandWriteBuffer       CommandType = 0x11F4
	CommandCopyBuffer        CommandType = 0x11F5
	CommandReadImage         CommandType = 0x11F6
	CommandWriteImage        CommandType = 0x11F7
	CommandCopyImage         CommandType = 0x11F8
	CommandCopyImageToBuffer CommandType = 0x11F9
	CommandCopyBufferToImage CommandType = 0x11FA
	CommandMapBuffer         CommandType = 0x11FB
	CommandMapImage          CommandType = 0x11FC
	CommandUnmapMemObject    CommandType = 0x11FD
	CommandMarker            CommandType = 0x11FE
	CommandAcquireGLObjects  CommandType = 0x11FF
	CommandReleaseGLObjects  CommandType = 0x1200
	CommandReadBufferRect    CommandType = 0x1201
	CommandWriteBufferRect   CommandType = 0x1202
	CommandCopyBufferRect    CommandType = 0x1203
	CommandUser              CommandType = 0x1204
)

var commandNames = map[CommandType]string{
	CommandNDRangeKernel:     "ndrange_kernel",
	CommandTask:              "task",
	CommandNativeKernel:      "native_kernel",
	CommandReadBuffer:        "read_buffer",
	CommandWriteBuffer:       "write_buffer",
	CommandCopyBuffer:        "copy_buffer",
	CommandReadImage:         "read_image",
	CommandWriteImage:        "write_image",
	CommandCopyImage:         "copy_image",
	CommandCopyImageToBuffer: "copy_image_to_buffer",
	CommandCopyBufferToImage: "copy_buffer_to_image",
	CommandMapBuffer:         "map_buffer",
	CommandMapImage:          "map_image",
	CommandUnmapMemObject:    "unmap_mem_object",
	CommandMarker:            "marker",
	CommandAcquireGLObjects:  "acquire_gl_objects",
	CommandReleaseGLObjects:  "release_gl_objects",
	CommandReadBufferRect:    "read_buffer_rect",
	CommandWriteBufferRect:   "write_buffer_rect",
	CommandCopyBufferRect:    "copy_buffer_rect",
	CommandUser:              "user",
}

func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%#x)", uint32(c))
}

// ExecutionStatus is the state of a command. Values count down towards
// Complete; any negative value is an aborted command carrying its failure code.
type ExecutionStatus int32

const (
	Complete  ExecutionStatus = 0
	Running   ExecutionStatus = 1
	Submitted ExecutionStatus = 2
	Queued    ExecutionStatus = 3
)

// Aborted returns the status of a command that failed with code.
func Aborted(code errors.Code) ExecutionStatus {
	if code >= 0 {
		code = errors.OutOfResources
	}
	return ExecutionStatus(code)
}

// IsTerminal reports whether the status is Complete or Aborted.
func (s ExecutionStatus) IsTerminal() bool {
	return s <= Complete
}

// IsAborted reports whether the command failed.
func (s ExecutionStatus) IsAborted() bool {
	return s < Complete
}

// Code returns the failure code of an aborted status, Success otherwise.
func (s ExecutionStatus) Code() errors.Code {
	if s < 0 {
		return errors.Code(s)
	}
	return errors.Success
}

func (s ExecutionStatus) String() string {
	switch {
	case s == Complete:
		return "complete"
	case s == Running:
		return "running"
	case s == Submitted:
		return "submitted"
	case s == Queued:
		return "queued"
	case s < 0:
		return "aborted(" + errors.Code(s).String() + ")"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// QueueProperties configures a command queue.
type QueueProperties uint64

const (
	OutOfOrderExecution QueueProperties = 1 << 0
	Profiling           QueueProperties = 1 << 1
)

// Has reports whether every flag in p is set.
func (q QueueProperties) Has(p QueueProperties) bool {
	return q&p == p
}

func (q QueueProperties) String() string {
	var parts []string
	if q.Has(OutOfOrderExecution) {
		parts = append(parts, "out_of_order")
	}
	if q.Has(Profiling) {
		parts = append(parts, "profiling")
	}
	if len(parts) == 0 {
		return "in_order"
	}
	return strings.Join(parts, "|")
}

// MemFlags configures buffer allocation and access.
type MemFlags uint64

const (
	MemReadWrite    MemFlags = 1 << 0
	MemWriteOnly    MemFlags = 1 << 1
	MemReadOnly     MemFlags = 1 << 2
	MemUseHostPtr   MemFlags = 1 << 3
	MemAllocHostPtr MemFlags = 1 << 4
	MemCopyHostPtr  MemFlags = 1 << 5
)

// Has reports whether every flag in f is set.
func (m MemFlags) Has(f MemFlags) bool {
	return m&f == f
}

// MapFlags selects the access a mapped region allows.
type MapFlags uint64

const (
	MapRead  MapFlags = 1 << 0
	MapWrite MapFlags = 1 << 1
)

// DeviceType filters device enumeration.
type DeviceType uint64

const (
	DeviceDefault     DeviceType = 1 << 0
	DeviceCPU         DeviceType = 1 << 1
	DeviceGPU         DeviceType = 1 << 2
	DeviceAccelerator DeviceType = 1 << 3
	DeviceAll         DeviceType = 0xFFFFFFFF
)

func (d DeviceType) String() string {
	switch d {
	case DeviceDefault:
		return "default"
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	case DeviceAccelerator:
		return "accelerator"
	case DeviceAll:
		return "all"
	}
	return fmt.Sprintf("device_type(%#x)", uint64(d))
}

// ProfilingInfo holds device timestamps in nanoseconds.
type ProfilingInfo struct {
	Queued    uint64
	Submitted uint64
	Started   uint64
	Ended     uint64
}

// Duration is the time the command spent executing.
func (p ProfilingInfo) Duration() time.Duration {
	if p.Ended < p.Started {
		return 0
	}
	return time.Duration(p.Ended - p.Started)
}

// Latency is the time between enqueue and the start of execution.
func (p ProfilingInfo) Latency() time.Duration {
	if p.Started < p.Queued {
		return 0
	}
	return time.Duration(p.Started - p.Queued)
}

// PlatformInfo describes a platform.
type PlatformInfo struct {
	Name       string
	Vendor     string
	Version    string
	Profile    string
	Extensions []string
}

// DeviceInfo describes a device and the features it supports.
type DeviceInfo struct {
	Name                string
	Vendor              string
	DriverVersion       string
	Type                DeviceType
	MaxComputeUnits     int
	MaxWorkGroupSize    int
	MaxWorkItemSizes    [3]int
	GlobalMemSize       uint64
	MaxMemAllocSize     uint64
	MemBaseAddrAlign    int
	Available           bool
	OutOfOrder          bool
	Profiling           bool
	EventCallbacks      bool
	CompilerAvailable   bool
	MaxWorkItemDims     int
	ProfilingResolution time.Duration
}

// Region is a byte range within a buffer.
type Region struct {
	Origin int
	Size   int
}

// EventCallback is invoked by the device when an event reaches a terminal
// state. It runs on a goroutine owned by the device.
type EventCallback func(ev resource.Handle, status ExecutionStatus)
