// Package kernel assembles the simulated machine, the thread runtime and the
// virtual memory system into a kernel that runs user programs.
package kernel

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/mmu"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
	"github.com/sarchlab/nachosim/sim"
	"github.com/sarchlab/nachosim/thread"
)

// Hook positions of the kernel. The item of the space hooks is the
// *AddrSpace; the item of the syscall hook is the SyscallCode.
var (
	HookPosSyscall     = &sim.HookPos{Name: "Syscall", Flag: 'e'}
	HookPosSpaceCreate = &sim.HookPos{Name: "SpaceCreate", Flag: 'a'}
	HookPosSpaceExit   = &sim.HookPos{Name: "SpaceExit", Flag: 'a'}
	HookPosSpaceFree   = &sim.HookPos{Name: "SpaceFree", Flag: 'a'}
)

// Kernel owns the whole simulated machine. It is built by a Builder and
// started with Run.
type Kernel struct {
	sim.HookableBase

	machine   *machine.Machine
	interrupt *machine.Interrupt
	stats     *machine.Stats
	scheduler *thread.Scheduler
	timer     *machine.Timer

	layout   vm.Layout
	tlb      *tlb.Manager
	faults   *mmu.FaultHandler
	inverted *vm.InvertedTable

	userStackSize int
	loader        Loader
	console       io.Writer
	statsOut      io.Writer

	spaces    map[vm.Owner]*AddrSpace
	forkTable []Program
}

// Machine returns the simulated hardware.
func (k *Kernel) Machine() *machine.Machine {
	return k.machine
}

// Interrupt returns the interrupt controller.
func (k *Kernel) Interrupt() *machine.Interrupt {
	return k.interrupt
}

// Stats returns the performance counters.
func (k *Kernel) Stats() *machine.Stats {
	return k.stats
}

// Scheduler returns the thread runtime.
func (k *Kernel) Scheduler() *thread.Scheduler {
	return k.scheduler
}

// TLB returns the TLB manager.
func (k *Kernel) TLB() *tlb.Manager {
	return k.tlb
}

// FaultHandler returns the handler of TLB misses and page faults.
func (k *Kernel) FaultHandler() *mmu.FaultHandler {
	return k.faults
}

// Layout returns the page table layout.
func (k *Kernel) Layout() vm.Layout {
	return k.layout
}

// InvertedTable returns the global page table, or nil with the flat layout.
func (k *Kernel) InvertedTable() *vm.InvertedTable {
	return k.inverted
}

// Loader returns where executables come from.
func (k *Kernel) Loader() Loader {
	return k.loader
}

// Spaces returns the address spaces created so far, ordered by ID. Freed
// spaces stay listed so that late joiners can collect their exit codes.
func (k *Kernel) Spaces() []*AddrSpace {
	spaces := make([]*AddrSpace, 0, len(k.spaces))
	for _, s := range k.spaces {
		spaces = append(spaces, s)
	}

	sort.Slice(spaces, func(i, j int) bool {
		return spaces[i].owner < spaces[j].owner
	})

	return spaces
}

// Space returns the address space of a process.
func (k *Kernel) Space(id int) (*AddrSpace, bool) {
	s, found := k.spaces[vm.Owner(id)]
	return s, found
}

func (k *Kernel) hookables() []sim.Hookable {
	return []sim.Hookable{
		k,
		k.machine,
		k.interrupt,
		k.scheduler,
		k.tlb,
		k.faults,
	}
}

// Run boots the machine with main as the first kernel thread. It returns
// once the machine halts, with a *thread.FatalError if the kernel crashed.
func (k *Kernel) Run(main func()) error {
	err := k.scheduler.Start("main", func() {
		if k.timer != nil {
			k.timer.Start()
		}

		k.interrupt.Enable()
		main()
	})

	if k.statsOut != nil {
		k.stats.Print(k.statsOut)
	}

	return err
}

// RunProgram boots the machine and runs an executable in the first thread.
func (k *Kernel) RunProgram(name string) error {
	var loadErr error

	err := k.Run(func() {
		loadErr = k.StartProcess(name)
	})
	if err != nil {
		return err
	}

	return loadErr
}

// StartProcess loads an executable into a new address space and runs it on
// the calling thread. It only returns if the executable cannot be loaded.
func (k *Kernel) StartProcess(name string) error {
	b, err := k.loader.Load(name)
	if err != nil {
		return err
	}

	t := k.scheduler.CurrentThread()
	space := k.newSpace(vm.Owner(t.ID), b)

	t.Space = space
	k.runUser(space)

	return nil
}

// Exec loads an executable into a new address space and starts it on a new
// thread. It returns the process identifier to join.
func (k *Kernel) Exec(name string) (int, error) {
	b, err := k.loader.Load(name)
	if err != nil {
		return -1, err
	}

	t := k.scheduler.NewThread(name, thread.DefaultPriority)
	space := k.newSpace(vm.Owner(t.ID), b)
	t.Space = space

	k.scheduler.Fork(t, func() {
		k.runUser(space)
	})

	return space.ID(), nil
}

// Join waits for a process to exit and returns its exit code, or -1 if there
// is no such process.
func (k *Kernel) Join(id int) int {
	s, found := k.Space(id)
	if !found {
		return -1
	}

	return s.Join()
}

// Fork starts a new thread that runs fn in the address space of the calling
// thread.
func (k *Kernel) Fork(name string, fn Program) {
	space := k.currentSpace()
	space.AddRef()

	t := k.scheduler.NewThread(name, thread.DefaultPriority)
	t.Space = space

	k.scheduler.Fork(t, func() {
		k.interrupt.Enable()
		space.InitRegisters()
		space.RestoreState()

		ctx := newUserContext(k, space)
		fn(ctx)
		ctx.Exit(0)
	})
}

// Halt stops the machine. It does not return.
func (k *Kernel) Halt() {
	k.scheduler.Halt()
}

func (k *Kernel) newSpace(owner vm.Owner, b *Binary) *AddrSpace {
	if b.Program == nil {
		log.Panicf("executable %s has no program", b.Name)
	}

	space := newAddrSpace(k, owner, b)
	k.spaces[owner] = space

	return space
}

// runUser runs the program of a space on the calling thread until it exits.
func (k *Kernel) runUser(space *AddrSpace) {
	k.interrupt.Enable()

	space.state = Running
	space.InitRegisters()
	space.RestoreState()

	ctx := newUserContext(k, space)
	space.program(ctx)
	ctx.Exit(0)
}

// exit is the end of every user thread.
func (k *Kernel) exit(code int) {
	space := k.currentSpace()
	freed := space.Exit(code)

	k.invokeHook(HookPosSpaceExit, space, code)

	if freed {
		k.scheduler.CurrentThread().Space = nil
	}

	k.scheduler.Finish()
}

func (k *Kernel) currentSpace() *AddrSpace {
	t := k.scheduler.CurrentThread()

	space, ok := t.Space.(*AddrSpace)
	if !ok {
		log.Panicf("thread %s has no address space", t)
	}

	return space
}

func (k *Kernel) invokeHook(pos *sim.HookPos, item, detail interface{}) {
	if k.NumHooks() == 0 {
		return
	}

	k.InvokeHook(sim.HookCtx{
		Domain: k,
		Now:    k.interrupt.CurrentTime(),
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

func (k *Kernel) String() string {
	return fmt.Sprintf("kernel(%s, %d frames, %d TLB slots)",
		k.layout, k.machine.NumPhysPages(), k.tlb.Size())
}
