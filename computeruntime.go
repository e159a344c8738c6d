package computeruntime

import "context"

// Releaser drops a reference to a native object.
type Releaser interface {
	Release() error
}

// Waiter blocks until asynchronous work reaches a terminal state.
type Waiter interface {
	Wait(ctx context.Context) error
}

// ReleaseAll releases rs in reverse order and returns the first error.
func ReleaseAll(rs ...Releaser) error {
	var err error
	for i := len(rs) - 1; i >= 0; i-- {
		if rerr := rs[i].Release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
