package sim

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// KernelFunc is the body of a Go kernel, invoked once per work item.
// Returning an errors.Code aborts the command with that code; any other
// error aborts it with OutOfResources.
type KernelFunc func(item WorkItem, args Args) error

// Kernel is a Go kernel with a fixed argument count.
type Kernel struct {
	Args int
	Func KernelFunc
}

// Library maps kernel names to their implementations. Registering a library
// for a source string lets programs created from that source build.
type Library map[string]Kernel

// WorkItem identifies one work item of an NDRange.
type WorkItem struct {
	Dims       int
	Global     [3]int
	Local      [3]int
	Group      [3]int
	GlobalSize [3]int
	LocalSize  [3]int
	Offset     [3]int
}

// GlobalLinear returns the flattened global id, ignoring the offset.
func (w WorkItem) GlobalLinear() int {
	x := w.Global[0] - w.Offset[0]
	y := w.Global[1] - w.Offset[1]
	z := w.Global[2] - w.Offset[2]
	return x + w.GlobalSize[0]*(y+w.GlobalSize[1]*z)
}

type argValue struct {
	mem   []byte
	raw   []byte
	isMem bool
}

// Args gives a kernel access to the arguments captured at enqueue time.
type Args struct {
	vals []argValue
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.vals)
}

// Mem returns the bytes of a memory argument, or nil for scalars.
func (a Args) Mem(i int) []byte {
	return a.vals[i].mem
}

// Raw returns the bytes of a scalar argument.
func (a Args) Raw(i int) []byte {
	return a.vals[i].raw
}

func (a Args) Int32(i int) int32 {
	return int32(binary.LittleEndian.Uint32(a.vals[i].raw))
}

func (a Args) Uint32(i int) uint32 {
	return binary.LittleEndian.Uint32(a.vals[i].raw)
}

func (a Args) Int64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(a.vals[i].raw))
}

func (a Args) Float32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.vals[i].raw))
}

func (a Args) Float64(i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(a.vals[i].raw))
}

// Element is a fixed-size numeric type a buffer can be viewed as.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Slice views memory argument i as a []T without copying.
func Slice[T Element](a Args, i int) []T {
	mem := a.vals[i].mem
	var zero T
	n := len(mem) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(mem))), n)
}
