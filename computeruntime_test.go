package computeruntime_test

import (
	"errors"
	"testing"

	computeruntime "github.com/wippyai/compute-runtime"
	"github.com/wippyai/compute-runtime/compute"
)

var (
	_ computeruntime.Releaser = (*compute.Context)(nil)
	_ computeruntime.Releaser = (*compute.CommandQueue)(nil)
	_ computeruntime.Releaser = (*compute.Buffer)(nil)
	_ computeruntime.Releaser = (*compute.Program)(nil)
	_ computeruntime.Releaser = (*compute.Kernel)(nil)
	_ computeruntime.Releaser = (*compute.EventList)(nil)
	_ computeruntime.Waiter   = (*compute.Event)(nil)
	_ computeruntime.Waiter   = (*compute.EventList)(nil)
)

type recorder struct {
	name  string
	order *[]string
	err   error
}

func (r recorder) Release() error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestReleaseAll(t *testing.T) {
	var order []string
	first, second := errors.New("first"), errors.New("second")
	err := computeruntime.ReleaseAll(
		recorder{"a", &order, nil},
		recorder{"b", &order, second},
		recorder{"c", &order, first},
	)
	if err != first {
		t.Errorf("got %v, want %v", err, first)
	}
	if got := len(order); got != 3 || order[0] != "c" || order[2] != "a" {
		t.Errorf("got release order %v, want [c b a]", order)
	}
	if err := computeruntime.ReleaseAll(); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}
