package machine

import (
	"fmt"
	"io"

	"github.com/sarchlab/nachosim/sim"
)

// Stats collects the performance counters of the machine.
type Stats struct {
	TotalTicks  sim.Tick
	IdleTicks   sim.Tick
	SystemTicks sim.Tick
	UserTicks   sim.Tick

	NumTLBMisses       uint64
	NumPageFaults      uint64
	NumEvictions       uint64
	NumSwapOuts        uint64
	NumSwapIns         uint64
	NumExecReads       uint64
	NumSyscalls        uint64
	NumContextSwitches uint64
}

// Print writes the counters in a human readable form.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "Ticks: total %d, idle %d, system %d, user %d\n",
		s.TotalTicks, s.IdleTicks, s.SystemTicks, s.UserTicks)
	fmt.Fprintf(w, "Paging: TLB misses %d, faults %d, evictions %d, "+
		"swap outs %d, swap ins %d\n",
		s.NumTLBMisses, s.NumPageFaults, s.NumEvictions,
		s.NumSwapOuts, s.NumSwapIns)
	fmt.Fprintf(w, "Executable reads %d, syscalls %d, context switches %d\n",
		s.NumExecReads, s.NumSyscalls, s.NumContextSwitches)
}
