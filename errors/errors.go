package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCreate  Phase = "create"  // object creation
	PhaseEnqueue Phase = "enqueue" // command submission
	PhaseExecute Phase = "execute" // asynchronous device execution
	PhaseWait    Phase = "wait"    // host-side waits
	PhaseQuery   Phase = "query"   // info and status queries
	PhaseRelease Phase = "release" // native handle release
	PhaseBuild   Phase = "build"   // program compilation
	PhaseLoad    Phase = "load"    // kernel module loading
	PhaseRuntime Phase = "runtime" // kernel module execution
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidValue      Kind = "invalid_value"
	KindInvalidResource   Kind = "invalid_resource"
	KindOutOfResources    Kind = "out_of_resources"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindAborted           Kind = "aborted"
	KindLeaked            Kind = "leaked"
	KindReadOnly          Kind = "read_only"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindReleased          Kind = "released"
	KindInvalidInput      Kind = "invalid_input"
	KindBuild             Kind = "build"
	KindNotTerminal       Kind = "not_terminal"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Code   Code
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code != Success {
		b.WriteString(" [")
		b.WriteString(e.Code.Error())
		b.WriteByte(']')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An *Error target matches on Phase and Kind; a Code target matches the native status.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Phase == t.Phase && e.Kind == t.Kind
	case Code:
		return e.Code != Success && e.Code == t
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the native status
func (b *Builder) Code(c Code) *Builder {
	b.err.Code = c
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Submission creates an immediate submission error: the command was rejected
// before anything was queued.
func Submission(op string, code Code) *Error {
	return &Error{
		Phase: PhaseEnqueue,
		Kind:  kindOf(code),
		Code:  code,
		Op:    op,
	}
}

// Aborted creates the error reported by an event whose command failed on the device.
func Aborted(op string, code Code) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindAborted,
		Code:   code,
		Op:     op,
		Detail: "command aborted",
	}
}

// Leaked describes a native resource reclaimed without an explicit release.
func Leaked(kind string, handle uint64) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindLeaked,
		Detail: fmt.Sprintf("%s %#x was not released", kind, handle),
		Value:  handle,
	}
}

// ReadOnly creates a mutation-on-read-only-list error
func ReadOnly(op string) *Error {
	return &Error{
		Phase:  PhaseEnqueue,
		Kind:   KindReadOnly,
		Op:     op,
		Detail: "event list is read-only",
	}
}

// Released creates a use-after-release error
func Released(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: fmt.Sprintf("%s already released", what),
	}
}

// NotTerminal is returned by queries only defined after an event finished.
func NotTerminal(op string) *Error {
	return &Error{
		Phase:  PhaseQuery,
		Kind:   KindNotTerminal,
		Op:     op,
		Detail: "event has not reached a terminal state",
	}
}

// BuildFailed creates a program build error carrying the build log
func BuildFailed(code Code, log string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindBuild,
		Code:   code,
		Op:     "build_program",
		Detail: strings.TrimSpace(log),
	}
}

// Check converts a native status into an error, or nil on success.
func Check(phase Phase, op string, code Code) error {
	if code == Success {
		return nil
	}
	return &Error{
		Phase: phase,
		Kind:  kindOf(code),
		Code:  code,
		Op:    op,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a kernel module instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidValue,
		Detail: detail,
		Cause:  cause,
	}
}

// CodeOf extracts the native status from err. It returns Success for nil and
// OutOfResources for errors that carry no status.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var c Code
	if As(err, &c) {
		return c
	}
	var e *Error
	if As(err, &e) && e.Code != Success {
		return e.Code
	}
	return OutOfResources
}

func kindOf(code Code) Kind {
	if k := code.Kind(); k != "" {
		return k
	}
	return KindInvalidValue
}
