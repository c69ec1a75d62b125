// Package thread provides the cooperative kernel threads of the simulated
// machine. Every kernel thread is backed by a goroutine, but only the thread
// holding the CPU executes; the others are parked on their resume channel.
package thread

import (
	"fmt"

	"github.com/sarchlab/nachosim/machine"
)

// Status is the scheduling state of a thread.
type Status int

// Thread states.
const (
	JustCreated Status = iota
	Running
	Ready
	Blocked
	Finished
)

var statusNames = [...]string{
	"JustCreated", "Running", "Ready", "Blocked", "Finished",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}

	return statusNames[s]
}

// DefaultPriority is the priority of threads created without one. Lower
// values run first.
const DefaultPriority = 8

// A UserState is the per-process machine state that has to be switched
// together with a thread running a user program.
type UserState interface {
	SaveState()
	RestoreState()
}

// A Thread is a kernel thread.
type Thread struct {
	ID       int
	Name     string
	Priority int

	// Space is set on threads that run user code.
	Space UserState

	status        Status
	resume        chan struct{}
	userRegisters [machine.NumTotalRegs]int
}

// Status returns the scheduling state of the thread.
func (t *Thread) Status() Status {
	return t.status
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)", t.Name, t.ID)
}

// A FatalError reports a kernel invariant violation that stopped the
// machine.
type FatalError struct {
	Thread string
	Cause  interface{}
	Stack  []byte
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error in thread %s: %v", e.Thread, e.Cause)
}
