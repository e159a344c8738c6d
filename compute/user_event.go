package compute

import (
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
)

// UserEvent is an event completed by the host. Commands can wait on it like on
// any other event.
type UserEvent struct {
	*Event
}

// CreateUserEvent creates a user event in the Submitted state.
func (c *Context) CreateUserEvent() (*UserEvent, error) {
	ch, err := c.handle(errors.PhaseCreate)
	if err != nil {
		return nil, err
	}
	h, code := c.backend.CreateUserEvent(ch)
	if err := errors.Check(errors.PhaseCreate, "create_user_event", code); err != nil {
		return nil, err
	}
	e := newEvent(c, nil, Command{Type: backend.CommandUser}, h, backend.Submitted)
	attach(e, c.polling, c.userPoller)
	return &UserEvent{Event: e}, nil
}

// SetStatus completes the event with backend.Complete or aborts it with a
// status made by backend.Aborted. It may succeed only once.
func (u *UserEvent) SetStatus(st backend.ExecutionStatus) error {
	if !st.IsTerminal() {
		return errors.InvalidInput(errors.PhaseExecute, "user event status must be terminal")
	}
	code := u.backend.SetUserEventStatus(u.native, st)
	if err := errors.Check(errors.PhaseExecute, "set_user_event_status", code); err != nil {
		return err
	}
	if u.poller != nil {
		u.poller.sync()
	}
	return nil
}

// Complete marks the event complete.
func (u *UserEvent) Complete() error {
	return u.SetStatus(backend.Complete)
}

// Abort marks the event aborted with code, which must be negative.
func (u *UserEvent) Abort(code errors.Code) error {
	return u.SetStatus(backend.Aborted(code))
}
