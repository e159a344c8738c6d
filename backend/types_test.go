package backend

import (
	"testing"
	"time"

	"github.com/wippyai/compute-runtime/errors"
)

func TestExecutionStatus(t *testing.T) {
	tests := []struct {
		status   ExecutionStatus
		terminal bool
		aborted  bool
		code     errors.Code
		str      string
	}{
		{Queued, false, false, errors.Success, "queued"},
		{Submitted, false, false, errors.Success, "submitted"},
		{Running, false, false, errors.Success, "running"},
		{Complete, true, false, errors.Success, "complete"},
		{Aborted(errors.OutOfResources), true, true, errors.OutOfResources, "aborted(OutOfResources)"},
		{Aborted(errors.ExecStatusErrorForEventsInWaitList), true, true, errors.ExecStatusErrorForEventsInWaitList, "aborted(ExecStatusErrorForEventsInWaitList)"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.IsAborted(); got != tt.aborted {
				t.Errorf("IsAborted() = %v, want %v", got, tt.aborted)
			}
			if got := tt.status.Code(); got != tt.code {
				t.Errorf("Code() = %v, want %v", got, tt.code)
			}
			if got := tt.status.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestAborted_NonNegativeCode(t *testing.T) {
	if got := Aborted(errors.Success); got != ExecutionStatus(errors.OutOfResources) {
		t.Fatalf("Aborted(Success) = %v, want aborted(OutOfResources)", got)
	}
}

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		cmd  CommandType
		want string
	}{
		{CommandNDRangeKernel, "ndrange_kernel"},
		{CommandReadBuffer, "read_buffer"},
		{CommandMarker, "marker"},
		{CommandUser, "user"},
		{CommandType(0x42), "command(0x42)"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
	if CommandUser != 0x1204 || CommandNDRangeKernel != 0x11F0 {
		t.Fatal("command type values changed")
	}
}

func TestQueueProperties(t *testing.T) {
	p := OutOfOrderExecution | Profiling
	if !p.Has(OutOfOrderExecution) || !p.Has(Profiling) {
		t.Fatal("Has failed for set flags")
	}
	if QueueProperties(0).Has(Profiling) {
		t.Fatal("Has reported unset flag")
	}
	if got := p.String(); got != "out_of_order|profiling" {
		t.Errorf("String() = %q", got)
	}
	if got := QueueProperties(0).String(); got != "in_order" {
		t.Errorf("String() = %q", got)
	}
}

func TestProfilingInfo(t *testing.T) {
	p := ProfilingInfo{Queued: 100, Submitted: 150, Started: 200, Ended: 1200}
	if p.Duration() != 1000*time.Nanosecond {
		t.Errorf("Duration() = %v", p.Duration())
	}
	if p.Latency() != 100*time.Nanosecond {
		t.Errorf("Latency() = %v", p.Latency())
	}
	if (ProfilingInfo{Started: 5, Ended: 1}).Duration() != 0 {
		t.Error("inverted range should clamp to zero")
	}
}
