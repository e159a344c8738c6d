package sim

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
)

const (
	DefaultPlatformName     = "Simulated Compute Platform"
	DefaultPlatformVendor   = "wippy"
	DefaultPlatformVersion  = "OpenCL 1.1 sim"
	DefaultDeviceName       = "sim-cpu"
	DefaultComputeUnits     = 4
	DefaultMaxWorkGroupSize = 256
	DefaultGlobalMemSize    = 64 << 20
	DefaultMemBaseAddrAlign = 64
)

// Config holds simulator configuration. The zero value is a single-platform,
// single-device simulator with callbacks, profiling and out-of-order support.
type Config struct {
	// Logger receives driver diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// PlatformName defaults to DefaultPlatformName.
	PlatformName string

	// PlatformVersion defaults to DefaultPlatformVersion.
	PlatformVersion string

	// Devices lists the devices of the platform. Empty means one default device.
	Devices []DeviceConfig

	// GLBuffers maps GL buffer names to their sizes in bytes. Only listed
	// names can be wrapped with CreateFromGLBuffer.
	GLBuffers map[uint32]int

	// ManualFlush holds enqueued commands until Flush, Finish or a blocking
	// call submits them. By default commands are submitted immediately.
	ManualFlush bool
}

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	// Name defaults to DefaultDeviceName.
	Name string

	// Type defaults to backend.DeviceCPU.
	Type backend.DeviceType

	// ComputeUnits bounds parallel work-groups and out-of-order commands.
	// Defaults to DefaultComputeUnits.
	ComputeUnits int

	// MaxWorkGroupSize defaults to DefaultMaxWorkGroupSize.
	MaxWorkGroupSize int

	// GlobalMemSize is the total allocatable memory. Defaults to DefaultGlobalMemSize.
	GlobalMemSize uint64

	// MaxMemAllocSize defaults to a quarter of GlobalMemSize.
	MaxMemAllocSize uint64

	// Latency is added to the execution of every command.
	Latency time.Duration

	// DisableOutOfOrder rejects out-of-order queues.
	DisableOutOfOrder bool

	// DisableProfiling rejects profiling queues.
	DisableProfiling bool

	// DisableCallbacks makes SetEventCallback fail, forcing hosts to poll.
	DisableCallbacks bool
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.PlatformName == "" {
		out.PlatformName = DefaultPlatformName
	}
	if out.PlatformVersion == "" {
		out.PlatformVersion = DefaultPlatformVersion
	}
	if len(out.Devices) == 0 {
		out.Devices = []DeviceConfig{{}}
	}
	devices := make([]DeviceConfig, len(out.Devices))
	for i, d := range out.Devices {
		devices[i] = d.withDefaults()
	}
	out.Devices = devices
	return out
}

func (d DeviceConfig) withDefaults() DeviceConfig {
	if d.Name == "" {
		d.Name = DefaultDeviceName
	}
	if d.Type == 0 {
		d.Type = backend.DeviceCPU
	}
	if d.ComputeUnits <= 0 {
		d.ComputeUnits = DefaultComputeUnits
	}
	if d.MaxWorkGroupSize <= 0 {
		d.MaxWorkGroupSize = DefaultMaxWorkGroupSize
	}
	if d.GlobalMemSize == 0 {
		d.GlobalMemSize = DefaultGlobalMemSize
	}
	if d.MaxMemAllocSize == 0 {
		d.MaxMemAllocSize = d.GlobalMemSize / 4
	}
	return d
}

func (d DeviceConfig) info() backend.DeviceInfo {
	return backend.DeviceInfo{
		Name:                d.Name,
		Vendor:              DefaultPlatformVendor,
		DriverVersion:       "1.0",
		Type:                d.Type,
		MaxComputeUnits:     d.ComputeUnits,
		MaxWorkGroupSize:    d.MaxWorkGroupSize,
		MaxWorkItemSizes:    [3]int{d.MaxWorkGroupSize, d.MaxWorkGroupSize, d.MaxWorkGroupSize},
		MaxWorkItemDims:     3,
		GlobalMemSize:       d.GlobalMemSize,
		MaxMemAllocSize:     d.MaxMemAllocSize,
		MemBaseAddrAlign:    DefaultMemBaseAddrAlign,
		Available:           true,
		OutOfOrder:          !d.DisableOutOfOrder,
		Profiling:           !d.DisableProfiling,
		EventCallbacks:      !d.DisableCallbacks,
		CompilerAvailable:   true,
		ProfilingResolution: time.Nanosecond,
	}
}
