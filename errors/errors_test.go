package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseEnqueue,
				Kind:   KindInvalidValue,
				Op:     "write_buffer",
				Code:   InvalidValue,
				Detail: "offset past end",
			},
			contains: []string{"[enqueue]", "invalid_value", "write_buffer", "offset past end", "InvalidValue (-30)"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseQuery,
				Kind:  KindNotTerminal,
			},
			contains: []string{"[query]", "not_terminal"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidValue,
				Detail: "compile module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "compile module", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseRuntime, KindInvalidInput, cause, "run kernel")

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Submission("execute", InvalidWorkDimension)

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{"same phase and kind", &Error{Phase: PhaseEnqueue, Kind: KindInvalidValue}, true},
		{"different phase", &Error{Phase: PhaseExecute, Kind: KindInvalidValue}, false},
		{"different kind", &Error{Phase: PhaseEnqueue, Kind: KindAborted}, false},
		{"same code", InvalidWorkDimension, true},
		{"different code", InvalidValue, false},
		{"unrelated", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{Success, "Success"},
		{OutOfResources, "OutOfResources"},
		{ExecStatusErrorForEventsInWaitList, "ExecStatusErrorForEventsInWaitList"},
		{InvalidGlobalWorkSize, "InvalidGlobalWorkSize"},
		{Code(-999), "Code(-999)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", int32(tt.code), got, tt.want)
		}
	}
}

func TestCode_Values(t *testing.T) {
	// Values are part of the device ABI.
	tests := []struct {
		code Code
		want int32
	}{
		{DeviceNotFound, -1},
		{OutOfResources, -5},
		{MisalignedSubBufferOffset, -13},
		{ExecStatusErrorForEventsInWaitList, -14},
		{InvalidValue, -30},
		{InvalidQueueProperties, -35},
		{InvalidEventWaitList, -57},
		{InvalidGlobalWorkSize, -63},
	}
	for _, tt := range tests {
		if int32(tt.code) != tt.want {
			t.Errorf("%s = %d, want %d", tt.code, int32(tt.code), tt.want)
		}
	}
}

func TestCode_Kind(t *testing.T) {
	tests := []struct {
		code Code
		want Kind
	}{
		{OutOfResources, KindOutOfResources},
		{DeviceNotAvailable, KindDeviceUnavailable},
		{InvalidMemObject, KindInvalidResource},
		{InvalidCommandQueue, KindInvalidResource},
		{BuildProgramFailure, KindBuild},
		{InvalidKernelName, KindNotFound},
		{InvalidQueueProperties, KindUnsupported},
		{ExecStatusErrorForEventsInWaitList, KindAborted},
		{InvalidWorkGroupSize, KindInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.Kind(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	if err := Check(PhaseCreate, "create_buffer", Success); err != nil {
		t.Fatalf("Check(Success) = %v, want nil", err)
	}

	err := Check(PhaseCreate, "create_buffer", InvalidBufferSize)
	if err == nil {
		t.Fatal("expected error")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Phase != PhaseCreate || e.Code != InvalidBufferSize || e.Op != "create_buffer" {
		t.Errorf("unexpected error fields: %+v", e)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, Success},
		{"bare code", InvalidEvent, InvalidEvent},
		{"structured", Submission("flush", InvalidCommandQueue), InvalidCommandQueue},
		{"wrapped structured", fmt.Errorf("outer: %w", Aborted("read_buffer", MapFailure)), MapFailure},
		{"plain", errors.New("boom"), OutOfResources},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseEnqueue, KindInvalidValue).
		Op("execute").
		Code(InvalidWorkDimension).
		Value(4).
		Detail("got %d dimensions", 4).
		Build()

	if err.Op != "execute" {
		t.Errorf("Op = %q, want execute", err.Op)
	}
	if err.Code != InvalidWorkDimension {
		t.Errorf("Code = %v, want InvalidWorkDimension", err.Code)
	}
	if err.Value != 4 {
		t.Errorf("Value = %v, want 4", err.Value)
	}
	if err.Detail != "got 4 dimensions" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"Submission", Submission("write_buffer", DeviceNotAvailable), PhaseEnqueue, KindDeviceUnavailable},
		{"Aborted", Aborted("execute", OutOfResources), PhaseExecute, KindAborted},
		{"Leaked", Leaked("buffer", 0x10001), PhaseRelease, KindLeaked},
		{"ReadOnly", ReadOnly("add"), PhaseEnqueue, KindReadOnly},
		{"Released", Released(PhaseQuery, "event"), PhaseQuery, KindReleased},
		{"NotTerminal", NotTerminal("profile"), PhaseQuery, KindNotTerminal},
		{"BuildFailed", BuildFailed(BuildProgramFailure, "line 1: oops\n"), PhaseBuild, KindBuild},
		{"Unsupported", Unsupported(PhaseCreate, "images"), PhaseCreate, KindUnsupported},
		{"NotFound", NotFound(PhaseLoad, "kernel", "add"), PhaseLoad, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseLoad, "empty"), PhaseLoad, KindInvalidInput},
		{"Instantiation", Instantiation(errors.New("x")), PhaseRuntime, KindInstantiation},
		{"Load", Load("bad module", nil), PhaseLoad, KindInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestBuildFailed_TrimsLog(t *testing.T) {
	err := BuildFailed(BuildProgramFailure, "\n  error: undeclared identifier  \n")
	if err.Detail != "error: undeclared identifier" {
		t.Errorf("Detail = %q", err.Detail)
	}
}
