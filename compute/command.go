package compute

import (
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/resource"
)

// Command describes one unit of work submitted to a queue. It is never
// modified after submission.
type Command struct {
	Type  backend.CommandType
	Queue *CommandQueue

	// Label names the command in logs, for example the kernel name.
	Label string

	// Wait holds the native handles of the events the command waited for.
	// They identify the dependencies only: the command holds no reference on
	// them, so a handle may already be released or reused.
	Wait []resource.Handle
}

func (c Command) String() string {
	if c.Label == "" {
		return c.Type.String()
	}
	return c.Type.String() + "(" + c.Label + ")"
}

// op is the operation name used in errors.
func (c Command) op() string {
	return c.Type.String()
}
