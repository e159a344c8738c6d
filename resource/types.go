package resource

import "fmt"

// Handle is an opaque reference to a native object.
// The low 32 bits index a table slot, the high 32 bits carry the slot generation,
// so a handle is never reused after its object is gone. Null is always invalid.
type Handle uint64

// Null is the invalid handle.
const Null Handle = 0

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) slot() (index uint32, gen uint32, ok bool) {
	lo := uint32(h)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(h >> 32), true
}

// Valid reports whether h is not Null.
func (h Handle) Valid() bool {
	return h != Null
}

func (h Handle) String() string {
	return fmt.Sprintf("%#x", uint64(h))
}

// Kind identifies the class of native object a handle refers to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPlatform
	KindDevice
	KindContext
	KindQueue
	KindBuffer
	KindEvent
	KindProgram
	KindKernel
	KindSampler
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindPlatform: "platform",
	KindDevice:   "device",
	KindContext:  "context",
	KindQueue:    "queue",
	KindBuffer:   "buffer",
	KindEvent:    "event",
	KindProgram:  "program",
	KindKernel:   "kernel",
	KindSampler:  "sampler",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
	Refs   int32
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by resource values that need cleanup
// once their last reference is released.
type Dropper interface {
	Drop()
}
