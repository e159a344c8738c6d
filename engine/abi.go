package engine

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/compute-runtime/errors"
)

// Kernel calling convention:
//
//	(func (param $gid i32) (param $arg0 ...) ... )
//
// The first parameter is the linear global id of the work item. Each kernel
// argument follows: memory arguments are i32 byte offsets of the staged buffer
// in linear memory, scalar arguments are passed by value as i32, i64, f32 or
// f64 according to the export's signature. Kernels return nothing.
const (
	// MemoryAlign is the alignment of staged buffers in linear memory.
	MemoryAlign = 16

	// firstOffset keeps offset 0 unused so a zero pointer never aliases a buffer.
	firstOffset = MemoryAlign

	pageSize = 65536
)

// Arg is one kernel argument.
type Arg struct {
	// Mem is the backing store of a memory argument. It is copied into linear
	// memory before the launch and back afterwards.
	Mem []byte

	// Scalar holds the little-endian bytes of a by-value argument.
	Scalar []byte

	// IsMem selects Mem over Scalar.
	IsMem bool
}

// MemArg returns a memory argument over buf.
func MemArg(buf []byte) Arg {
	return Arg{Mem: buf, IsMem: true}
}

// ScalarArg returns a by-value argument.
func ScalarArg(raw []byte) Arg {
	return Arg{Scalar: raw}
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// layout assigns linear memory offsets to memory arguments and returns the
// end of the staged region.
func layout(args []Arg) (offsets []uint32, end uint32) {
	offsets = make([]uint32, len(args))
	end = firstOffset
	for i, a := range args {
		if !a.IsMem {
			continue
		}
		offsets[i] = end
		end = alignUp(end+uint32(len(a.Mem)), MemoryAlign)
	}
	return offsets, end
}

// encodeParam lowers one kernel argument to a core wasm value.
func encodeParam(name string, index int, t api.ValueType, a Arg, offset uint32) (uint64, error) {
	if a.IsMem {
		if t != api.ValueTypeI32 {
			return 0, argError(name, index, "memory argument needs an i32 parameter, got %s", api.ValueTypeName(t))
		}
		return api.EncodeU32(offset), nil
	}

	switch t {
	case api.ValueTypeI32:
		if len(a.Scalar) != 4 {
			return 0, sizeError(name, index, 4, len(a.Scalar))
		}
		return api.EncodeU32(binary.LittleEndian.Uint32(a.Scalar)), nil
	case api.ValueTypeF32:
		if len(a.Scalar) != 4 {
			return 0, sizeError(name, index, 4, len(a.Scalar))
		}
		return uint64(binary.LittleEndian.Uint32(a.Scalar)), nil
	case api.ValueTypeI64, api.ValueTypeF64:
		if len(a.Scalar) != 8 {
			return 0, sizeError(name, index, 8, len(a.Scalar))
		}
		return binary.LittleEndian.Uint64(a.Scalar), nil
	default:
		return 0, argError(name, index, "unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func argError(name string, index int, format string, args ...any) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidValue).
		Op(name).
		Code(errors.InvalidArgValue).
		Value(index).
		Detail("arg %d: "+format, append([]any{index}, args...)...).
		Build()
}

func sizeError(name string, index int, want, got int) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidValue).
		Op(name).
		Code(errors.InvalidArgSize).
		Value(index).
		Detail("arg %d: want %d bytes, got %d", index, want, got).
		Build()
}
