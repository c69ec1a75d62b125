// Package tracing turns the hooks of a running kernel into records: event
// counters and database traces.
package tracing

import (
	"fmt"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/sim"
	"github.com/sarchlab/nachosim/synch"
	"github.com/sarchlab/nachosim/thread"
)

// VMEvent is a change in the translation state of a page.
type VMEvent struct {
	Time     uint64
	Kind     string
	Owner    int
	VPN      uint64
	Frame    int
	Slot     int
	Dirty    bool
	ReadOnly bool
}

// ThreadEvent is a scheduling decision or a thread blocking on, or released
// by, a synchronization primitive.
type ThreadEvent struct {
	Time   uint64
	Kind   string
	Thread string
	Other  string
}

// ProcessEvent is an address space changing state, a system call or an
// exception.
type ProcessEvent struct {
	Time  uint64
	Kind  string
	Name  string
	Space int
	Value int64
}

// Attach makes a hook listen to all the components of a kernel.
func Attach(h sim.Hook, k *kernel.Kernel) {
	for _, c := range []sim.Hookable{
		k,
		k.Machine(),
		k.Interrupt(),
		k.Scheduler(),
		k.TLB(),
		k.FaultHandler(),
	} {
		c.AcceptHook(h)
	}
}

// convert turns a hook context into a record. The bool is false for hooks
// that are not traced.
func convert(ctx sim.HookCtx) (any, bool) {
	now := uint64(ctx.Now)

	switch item := ctx.Item.(type) {
	case vm.TranslationEntry:
		slot := -1
		if s, ok := ctx.Detail.(int); ok {
			slot = s
		}

		return VMEvent{
			Time:     now,
			Kind:     ctx.Pos.Name,
			Owner:    int(item.Owner),
			VPN:      item.VirtualPage,
			Frame:    item.PhysicalPage,
			Slot:     slot,
			Dirty:    item.Dirty,
			ReadOnly: item.ReadOnly,
		}, true
	case *thread.Thread:
		e := ThreadEvent{Time: now, Kind: ctx.Pos.Name, Thread: item.String()}
		if other, ok := ctx.Detail.(*thread.Thread); ok {
			e.Other = other.String()
		}

		return e, true
	case *kernel.AddrSpace:
		e := ProcessEvent{
			Time:  now,
			Kind:  ctx.Pos.Name,
			Name:  item.Name(),
			Space: item.ID(),
		}
		if code, ok := ctx.Detail.(int); ok {
			e.Value = int64(code)
		}

		return e, true
	case kernel.SyscallCode:
		e := ProcessEvent{Time: now, Kind: ctx.Pos.Name, Name: item.String()}
		if arg, ok := ctx.Detail.(int); ok {
			e.Value = int64(arg)
		}

		return e, true
	case machine.ExceptionType:
		e := ProcessEvent{Time: now, Kind: ctx.Pos.Name, Name: item.String()}
		if addr, ok := ctx.Detail.(uint64); ok {
			e.Value = int64(addr)
		}

		return e, true
	case string:
		if ctx.Pos != synch.HookPosBlock && ctx.Pos != synch.HookPosWake {
			return nil, false
		}

		t, ok := ctx.Detail.(*thread.Thread)
		if !ok {
			return nil, false
		}

		return ThreadEvent{
			Time:   now,
			Kind:   ctx.Pos.Name,
			Thread: t.String(),
			Other:  item,
		}, true
	default:
		return nil, false
	}
}

func tableOf(record any) string {
	switch record.(type) {
	case VMEvent:
		return VMTable
	case ThreadEvent:
		return ThreadTable
	case ProcessEvent:
		return ProcessTable
	default:
		panic(fmt.Sprintf("no table for %T", record))
	}
}
