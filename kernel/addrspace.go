package kernel

import (
	"fmt"
	"log"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/noff"
	"github.com/sarchlab/nachosim/synch"
)

// SpaceState is the stage of life of an address space.
type SpaceState int

// The stages of an address space.
const (
	Loading SpaceState = iota
	Running
	Draining
	Freed
)

func (s SpaceState) String() string {
	switch s {
	case Loading:
		return "Loading"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Freed:
		return "Freed"
	default:
		return fmt.Sprintf("SpaceState(%d)", int(s))
	}
}

// An AddrSpace is the memory of a user process. It is shared by all the
// threads of the process and freed when the last of them exits.
type AddrSpace struct {
	k       *Kernel
	owner   vm.Owner
	binary  *Binary
	program Program

	numPages   int
	translator vm.Translator
	flat       *vm.FlatTable

	state    SpaceState
	refs     int
	exitCode int
	lock     *synch.Lock
	exited   *synch.Condition
}

func newAddrSpace(k *Kernel, owner vm.Owner, b *Binary) *AddrSpace {
	pageSize := k.machine.PageSize()
	size := int(b.Header.Size()) + k.userStackSize
	numPages := (size + pageSize - 1) / pageSize

	s := &AddrSpace{
		k:        k,
		owner:    owner,
		binary:   b,
		program:  b.Program,
		numPages: numPages,
		state:    Loading,
		refs:     1,
	}

	name := fmt.Sprintf("space%d", owner)
	s.lock = synch.NewLock(k.scheduler, name)
	s.exited = synch.NewCondition(k.scheduler, name)

	if k.layout == vm.InvertedLayout {
		s.translator = k.inverted
	} else {
		if numPages > k.machine.NumPhysPages() {
			log.Panicf("%s needs %d pages, the machine has %d",
				b.Name, numPages, k.machine.NumPhysPages())
		}

		s.flat = vm.NewFlatTable(numPages)
		s.translator = s.flat
	}

	k.invokeHook(HookPosSpaceCreate, s, nil)

	return s
}

// ID returns the process identifier, which is the owner of its pages.
func (s *AddrSpace) ID() int {
	return int(s.owner)
}

// Name returns the name of the executable.
func (s *AddrSpace) Name() string {
	return s.binary.Name
}

// Owner returns the owner of the pages of the space.
func (s *AddrSpace) Owner() vm.Owner {
	return s.owner
}

// NumPages returns the size of the space in pages.
func (s *AddrSpace) NumPages() int {
	return s.numPages
}

// Translator returns the page table that maps the space.
func (s *AddrSpace) Translator() vm.Translator {
	return s.translator
}

// PageTable returns the flat page table, or nil with the inverted layout.
func (s *AddrSpace) PageTable() *vm.FlatTable {
	return s.flat
}

// Executable returns the file backing the space.
func (s *AddrSpace) Executable() *noff.Executable {
	return s.binary.Executable
}

// State returns the stage of life of the space.
func (s *AddrSpace) State() SpaceState {
	return s.state
}

// Refs returns the number of threads running in the space.
func (s *AddrSpace) Refs() int {
	return s.refs
}

// ExitCode returns the code the space exited with. It is only meaningful
// once the space is freed.
func (s *AddrSpace) ExitCode() int {
	return s.exitCode
}

func (s *AddrSpace) String() string {
	return fmt.Sprintf("space %d (%s, %s, %d refs)",
		s.owner, s.binary.Name, s.state, s.refs)
}

// AddRef registers one more thread running in the space.
func (s *AddrSpace) AddRef() {
	s.lock.Acquire()
	s.spaceMustBeAlive("AddRef")
	s.refs++
	s.lock.Release()
}

// Exit unregisters the calling thread. The last thread to leave publishes
// its exit code to the joiners and frees the space. It returns true if the
// space was freed.
func (s *AddrSpace) Exit(code int) bool {
	s.lock.Acquire()
	defer s.lock.Release()

	s.spaceMustBeAlive("Exit")
	s.refs--

	if s.refs > 0 {
		return false
	}

	s.state = Draining
	s.exitCode = code
	s.exited.BroadcastAndSetReturnValue(s.lock, code)
	s.free()

	return true
}

// Join waits until the last thread of the space exits and returns its exit
// code. It returns at once if the space is already gone.
func (s *AddrSpace) Join() int {
	s.lock.Acquire()
	defer s.lock.Release()

	for s.state != Freed {
		s.exited.Wait(s.lock)
	}

	return s.exited.ReturnValue()
}

// free gives the frames back to the machine. Inverted table frames are only
// reclaimed when evicted.
func (s *AddrSpace) free() {
	s.k.tlb.Flush(s.translator)

	if s.flat != nil {
		s.flat.Release(s.k.machine.MemUsage)
	}

	if err := s.binary.Close(); err != nil {
		log.Panic(err)
	}

	s.state = Freed
	s.k.invokeHook(HookPosSpaceFree, s, nil)
}

func (s *AddrSpace) spaceMustBeAlive(op string) {
	if s.state == Draining || s.state == Freed {
		log.Panicf("%s on space %d, which is %s", op, s.owner, s.state)
	}
}

// InitRegisters prepares the registers for the program to start at address
// zero with the stack at the top of the space.
func (s *AddrSpace) InitRegisters() {
	m := s.k.machine

	for i := range m.Registers {
		m.Registers[i] = 0
	}

	m.WriteRegister(machine.PCReg, 0)
	m.WriteRegister(machine.NextPCReg, machine.InstrSize)
	m.WriteRegister(machine.StackReg, s.numPages*m.PageSize()-16)
}

// SaveState is called when a thread of the space gives up the CPU. The TLB
// entries go back to the page table.
func (s *AddrSpace) SaveState() {
	s.k.tlb.Flush(s.translator)
}

// RestoreState is called when a thread of the space gets the CPU.
func (s *AddrSpace) RestoreState() {
	s.k.machine.PageTableSize = s.numPages
}
