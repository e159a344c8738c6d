package sim

import (
	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
)

// Fault makes matching commands abort on the device.
type Fault struct {
	// Command selects the command type. Zero matches every command.
	Command backend.CommandType

	// Kernel restricts kernel launches to one kernel name.
	Kernel string

	// Code is the failure reported by the event. Defaults to OutOfResources.
	Code errors.Code

	// Count is the number of commands to fail. Zero or less fails every
	// matching command until ClearFaults.
	Count int
}

type faultRule struct {
	Fault
	remaining int
}

// InjectFault arms a fault. Faults are matched in injection order.
func (s *Sim) InjectFault(f Fault) {
	if f.Code >= 0 {
		f.Code = errors.OutOfResources
	}
	s.mu.Lock()
	s.faults = append(s.faults, &faultRule{Fault: f, remaining: f.Count})
	s.mu.Unlock()
}

// ClearFaults disarms every fault.
func (s *Sim) ClearFaults() {
	s.mu.Lock()
	s.faults = nil
	s.mu.Unlock()
}

// takeFault consumes the first fault matching a command about to execute.
func (s *Sim) takeFault(cmd backend.CommandType, kernel string) (errors.Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.faults {
		if f.Command != 0 && f.Command != cmd {
			continue
		}
		if f.Kernel != "" && f.Kernel != kernel {
			continue
		}
		if f.Count > 0 {
			s.faults[i].remaining--
			if s.faults[i].remaining <= 0 {
				s.faults = append(s.faults[:i], s.faults[i+1:]...)
			}
		}
		s.log.Warn("injected fault",
			zap.Stringer("command", cmd),
			zap.String("kernel", kernel),
			zap.Stringer("code", f.Code))
		return f.Code, true
	}
	return errors.Success, false
}
