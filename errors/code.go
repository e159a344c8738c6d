package errors

import "strconv"

// Code is a native device status. Zero is success, negative values are failures.
// A Code is itself an error so backend results can flow through errors.Is.
type Code int32

const (
	Success                            Code = 0
	DeviceNotFound                     Code = -1
	DeviceNotAvailable                 Code = -2
	CompilerNotAvailable               Code = -3
	MemObjectAllocationFailure         Code = -4
	OutOfResources                     Code = -5
	OutOfHostMemory                    Code = -6
	ProfilingInfoNotAvailable          Code = -7
	MemCopyOverlap                     Code = -8
	ImageFormatMismatch                Code = -9
	ImageFormatNotSupported            Code = -10
	BuildProgramFailure                Code = -11
	MapFailure                         Code = -12
	MisalignedSubBufferOffset          Code = -13
	ExecStatusErrorForEventsInWaitList Code = -14
	InvalidValue                       Code = -30
	InvalidDeviceType                  Code = -31
	InvalidPlatform                    Code = -32
	InvalidDevice                      Code = -33
	InvalidContext                     Code = -34
	InvalidQueueProperties             Code = -35
	InvalidCommandQueue                Code = -36
	InvalidHostPtr                     Code = -37
	InvalidMemObject                   Code = -38
	InvalidImageFormatDescriptor       Code = -39
	InvalidImageSize                   Code = -40
	InvalidSampler                     Code = -41
	InvalidBinary                      Code = -42
	InvalidBuildOptions                Code = -43
	InvalidProgram                     Code = -44
	InvalidProgramExecutable           Code = -45
	InvalidKernelName                  Code = -46
	InvalidKernelDefinition            Code = -47
	InvalidKernel                      Code = -48
	InvalidArgIndex                    Code = -49
	InvalidArgValue                    Code = -50
	InvalidArgSize                     Code = -51
	InvalidKernelArgs                  Code = -52
	InvalidWorkDimension               Code = -53
	InvalidWorkGroupSize               Code = -54
	InvalidWorkItemSize                Code = -55
	InvalidGlobalOffset                Code = -56
	InvalidEventWaitList               Code = -57
	InvalidEvent                       Code = -58
	InvalidOperation                   Code = -59
	InvalidGLObject                    Code = -60
	InvalidBufferSize                  Code = -61
	InvalidMipLevel                    Code = -62
	InvalidGlobalWorkSize              Code = -63
	PlatformNotFoundKHR                Code = -1001
	InvalidGLSharegroupReferenceKHR    Code = -1000
)

var codeNames = map[Code]string{
	Success:                            "Success",
	DeviceNotFound:                     "DeviceNotFound",
	DeviceNotAvailable:                 "DeviceNotAvailable",
	CompilerNotAvailable:               "CompilerNotAvailable",
	MemObjectAllocationFailure:         "MemObjectAllocationFailure",
	OutOfResources:                     "OutOfResources",
	OutOfHostMemory:                    "OutOfHostMemory",
	ProfilingInfoNotAvailable:          "ProfilingInfoNotAvailable",
	MemCopyOverlap:                     "MemCopyOverlap",
	ImageFormatMismatch:                "ImageFormatMismatch",
	ImageFormatNotSupported:            "ImageFormatNotSupported",
	BuildProgramFailure:                "BuildProgramFailure",
	MapFailure:                         "MapFailure",
	MisalignedSubBufferOffset:          "MisalignedSubBufferOffset",
	ExecStatusErrorForEventsInWaitList: "ExecStatusErrorForEventsInWaitList",
	InvalidValue:                       "InvalidValue",
	InvalidDeviceType:                  "InvalidDeviceType",
	InvalidPlatform:                    "InvalidPlatform",
	InvalidDevice:                      "InvalidDevice",
	InvalidContext:                     "InvalidContext",
	InvalidQueueProperties:             "InvalidQueueProperties",
	InvalidCommandQueue:                "InvalidCommandQueue",
	InvalidHostPtr:                     "InvalidHostPtr",
	InvalidMemObject:                   "InvalidMemObject",
	InvalidImageFormatDescriptor:       "InvalidImageFormatDescriptor",
	InvalidImageSize:                   "InvalidImageSize",
	InvalidSampler:                     "InvalidSampler",
	InvalidBinary:                      "InvalidBinary",
	InvalidBuildOptions:                "InvalidBuildOptions",
	InvalidProgram:                     "InvalidProgram",
	InvalidProgramExecutable:           "InvalidProgramExecutable",
	InvalidKernelName:                  "InvalidKernelName",
	InvalidKernelDefinition:            "InvalidKernelDefinition",
	InvalidKernel:                      "InvalidKernel",
	InvalidArgIndex:                    "InvalidArgIndex",
	InvalidArgValue:                    "InvalidArgValue",
	InvalidArgSize:                     "InvalidArgSize",
	InvalidKernelArgs:                  "InvalidKernelArgs",
	InvalidWorkDimension:               "InvalidWorkDimension",
	InvalidWorkGroupSize:               "InvalidWorkGroupSize",
	InvalidWorkItemSize:                "InvalidWorkItemSize",
	InvalidGlobalOffset:                "InvalidGlobalOffset",
	InvalidEventWaitList:               "InvalidEventWaitList",
	InvalidEvent:                       "InvalidEvent",
	InvalidOperation:                   "InvalidOperation",
	InvalidGLObject:                    "InvalidGLObject",
	InvalidBufferSize:                  "InvalidBufferSize",
	InvalidMipLevel:                    "InvalidMipLevel",
	InvalidGlobalWorkSize:              "InvalidGlobalWorkSize",
	PlatformNotFoundKHR:                "PlatformNotFoundKHR",
	InvalidGLSharegroupReferenceKHR:    "InvalidGLSharegroupReferenceKHR",
}

// String returns the symbolic name, or the numeric value for unknown codes.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

func (c Code) Error() string {
	return c.String() + " (" + strconv.Itoa(int(c)) + ")"
}

// Failed reports whether c is a failure status.
func (c Code) Failed() bool {
	return c < 0
}

// Kind classifies the code into an error category.
func (c Code) Kind() Kind {
	switch c {
	case Success:
		return ""
	case OutOfResources, OutOfHostMemory, MemObjectAllocationFailure:
		return KindOutOfResources
	case DeviceNotFound, DeviceNotAvailable, CompilerNotAvailable:
		return KindDeviceUnavailable
	case InvalidPlatform, InvalidDevice, InvalidContext, InvalidCommandQueue,
		InvalidMemObject, InvalidSampler, InvalidProgram, InvalidProgramExecutable,
		InvalidKernel, InvalidEvent, InvalidGLObject:
		return KindInvalidResource
	case BuildProgramFailure, InvalidBuildOptions, InvalidBinary:
		return KindBuild
	case InvalidKernelName:
		return KindNotFound
	case ImageFormatNotSupported, ProfilingInfoNotAvailable, InvalidQueueProperties:
		return KindUnsupported
	case ExecStatusErrorForEventsInWaitList:
		return KindAborted
	default:
		return KindInvalidValue
	}
}
