// Package machine simulates the hardware the kernel runs on: the interrupt
// controller and timer, the register file, main memory and the
// software-managed TLB.
package machine

import (
	"encoding/binary"
	"log"

	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/sim"
)

// Register numbers. Registers 0 to 31 are the general purpose registers of
// the CPU; the rest are special.
const (
	StackReg     = 29
	RetAddrReg   = 31
	NumGPRegs    = 32
	HiReg        = 32
	LoReg        = 33
	PCReg        = 34
	NextPCReg    = 35
	PrevPCReg    = 36
	LoadReg      = 37
	LoadValueReg = 38
	BadVAddrReg  = 39
	NumTotalRegs = 40
)

// InstrSize is the size of an instruction in bytes.
const InstrSize = 4

// HookPosException marks user code trapping into the kernel.
var HookPosException = &sim.HookPos{Name: "Exception", Flag: 'e'}

// Config describes the size of the simulated hardware.
type Config struct {
	PageSize     int
	NumPhysPages int
	TLBSize      int
}

// Machine is the simulated CPU and memory.
type Machine struct {
	sim.HookableBase

	Registers  [NumTotalRegs]int
	MainMemory []byte
	TLB        []vm.TranslationEntry
	MemUsage   *vm.FrameMap

	// PageTableSize is the number of pages of the running address space.
	// Addresses beyond it raise an address error.
	PageTableSize int

	Interrupt *Interrupt
	Stats     *Stats

	pageSize int
	handler  ExceptionHandler
}

// NewMachine creates a machine with zeroed memory and an empty TLB.
func NewMachine(cfg Config, interrupt *Interrupt, stats *Stats) *Machine {
	if cfg.PageSize <= 0 || cfg.NumPhysPages <= 0 || cfg.TLBSize <= 0 {
		log.Panicf("invalid machine configuration %+v", cfg)
	}

	return &Machine{
		MainMemory: make([]byte, cfg.PageSize*cfg.NumPhysPages),
		TLB:        make([]vm.TranslationEntry, cfg.TLBSize),
		MemUsage:   vm.NewFrameMap(cfg.NumPhysPages),
		Interrupt:  interrupt,
		Stats:      stats,
		pageSize:   cfg.PageSize,
	}
}

// SetExceptionHandler sets the kernel entry point.
func (m *Machine) SetExceptionHandler(h ExceptionHandler) {
	m.handler = h
}

// PageSize returns the size of a page in bytes.
func (m *Machine) PageSize() int {
	return m.pageSize
}

// NumPhysPages returns the number of physical frames.
func (m *Machine) NumPhysPages() int {
	return len(m.MainMemory) / m.pageSize
}

// ReadRegister returns the content of a register.
func (m *Machine) ReadRegister(num int) int {
	registerMustExist(num)

	return m.Registers[num]
}

// WriteRegister sets the content of a register.
func (m *Machine) WriteRegister(num int, value int) {
	registerMustExist(num)

	m.Registers[num] = value
}

// AdvancePC moves the program counter past the current instruction.
func (m *Machine) AdvancePC() {
	m.Registers[PrevPCReg] = m.Registers[PCReg]
	m.Registers[PCReg] = m.Registers[NextPCReg]
	m.Registers[NextPCReg] += InstrSize
}

func registerMustExist(num int) {
	if num < 0 || num >= NumTotalRegs {
		log.Panicf("register %d does not exist", num)
	}
}

// Frame returns the bytes of a physical frame.
func (m *Machine) Frame(frame int) []byte {
	if frame < 0 || frame >= m.NumPhysPages() {
		log.Panicf("frame %d does not exist", frame)
	}

	start := frame * m.pageSize

	return m.MainMemory[start : start+m.pageSize]
}

// Translate converts a virtual address into a physical one through the TLB.
// A TLB hit marks the entry as used, and as dirty when writing.
func (m *Machine) Translate(
	vaddr uint64,
	size int,
	writing bool,
) (uint64, ExceptionType) {
	if (size == 4 && vaddr&0x3 != 0) || (size == 2 && vaddr&0x1 != 0) {
		return 0, AddressErrorException
	}

	pageSize := uint64(m.pageSize)
	vpn := vaddr / pageSize
	offset := vaddr % pageSize

	if vpn >= uint64(m.PageTableSize) {
		return 0, AddressErrorException
	}

	var entry *vm.TranslationEntry

	for i := range m.TLB {
		if m.TLB[i].Valid && m.TLB[i].VirtualPage == vpn {
			entry = &m.TLB[i]
			break
		}
	}

	if entry == nil {
		return 0, PageFaultException
	}

	if entry.ReadOnly && writing {
		return 0, ReadOnlyException
	}

	if entry.PhysicalPage < 0 || entry.PhysicalPage >= m.NumPhysPages() {
		return 0, BusErrorException
	}

	entry.Use = true
	entry.LastUse = m.Interrupt.CurrentTime()

	if writing {
		entry.Dirty = true
	}

	return uint64(entry.PhysicalPage)*pageSize + offset, NoException
}

// ReadMem reads 1, 2 or 4 bytes of user memory. If translation fails the
// exception is raised and false is returned; the access should be retried.
func (m *Machine) ReadMem(addr uint64, size int) (int, bool) {
	sizeMustBeSupported(size)

	phys, exception := m.Translate(addr, size, false)
	if exception != NoException {
		m.RaiseException(exception, addr)
		return 0, false
	}

	b := m.MainMemory[phys : phys+uint64(size)]

	switch size {
	case 1:
		return int(b[0]), true
	case 2:
		return int(binary.LittleEndian.Uint16(b)), true
	default:
		return int(int32(binary.LittleEndian.Uint32(b))), true
	}
}

// WriteMem writes 1, 2 or 4 bytes of user memory. It reports failures the
// same way as ReadMem.
func (m *Machine) WriteMem(addr uint64, size int, value int) bool {
	sizeMustBeSupported(size)

	phys, exception := m.Translate(addr, size, true)
	if exception != NoException {
		m.RaiseException(exception, addr)
		return false
	}

	b := m.MainMemory[phys : phys+uint64(size)]

	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	default:
		binary.LittleEndian.PutUint32(b, uint32(value))
	}

	return true
}

func sizeMustBeSupported(size int) {
	if size != 1 && size != 2 && size != 4 {
		log.Panicf("memory accesses of %d bytes are not supported", size)
	}
}

// RaiseException traps into the kernel. The faulting address is left in
// BadVAddrReg.
func (m *Machine) RaiseException(which ExceptionType, badVAddr uint64) {
	m.Registers[BadVAddrReg] = int(badVAddr)

	if m.NumHooks() > 0 {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Now:    m.Interrupt.CurrentTime(),
			Pos:    HookPosException,
			Item:   which,
			Detail: badVAddr,
		})
	}

	if m.handler == nil {
		log.Panicf("%s raised with no exception handler installed", which)
	}

	old := m.Interrupt.Status()
	m.Interrupt.SetStatus(SystemMode)
	m.handler.HandleException(which)
	m.Interrupt.SetStatus(old)
}
