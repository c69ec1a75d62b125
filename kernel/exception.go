package kernel

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/noff"
)

// SyscallCode selects the system call. User programs pass it in r2 and the
// arguments in r4 to r7. The result comes back in r2.
type SyscallCode int

// The system calls of the kernel.
const (
	SyscallHalt  SyscallCode = 0
	SyscallExit  SyscallCode = 1
	SyscallExec  SyscallCode = 2
	SyscallJoin  SyscallCode = 3
	SyscallWrite SyscallCode = 7
	SyscallFork  SyscallCode = 9
	SyscallYield SyscallCode = 10
)

// ConsoleOutput is the file descriptor of the console for Write.
const ConsoleOutput = 1

// Registers of the system call convention.
const (
	resultReg = 2
	arg1Reg   = 4
	arg2Reg   = 5
	arg3Reg   = 6
)

// maxStringLen bounds the strings the kernel reads from user memory.
const maxStringLen = 256

func (c SyscallCode) String() string {
	switch c {
	case SyscallHalt:
		return "Halt"
	case SyscallExit:
		return "Exit"
	case SyscallExec:
		return "Exec"
	case SyscallJoin:
		return "Join"
	case SyscallWrite:
		return "Write"
	case SyscallFork:
		return "Fork"
	case SyscallYield:
		return "Yield"
	default:
		return fmt.Sprintf("SyscallCode(%d)", int(c))
	}
}

// HandleException is the entry point into the kernel from user mode.
func (k *Kernel) HandleException(which machine.ExceptionType) {
	badVAddr := uint64(k.machine.ReadRegister(machine.BadVAddrReg))

	switch which {
	case machine.PageFaultException:
		k.faults.HandleTLBMiss(k.currentSpace(), badVAddr)
	case machine.SyscallException:
		k.handleSyscall()
	default:
		log.Panicf("unexpected user mode exception %s at address %#x",
			which, badVAddr)
	}
}

func (k *Kernel) handleSyscall() {
	m := k.machine
	code := SyscallCode(m.ReadRegister(resultReg))
	arg1 := m.ReadRegister(arg1Reg)

	k.stats.NumSyscalls++
	k.invokeHook(HookPosSyscall, code, arg1)

	// Calls like Exit never return, so the PC moves on first.
	m.AdvancePC()

	switch code {
	case SyscallHalt:
		k.Halt()
	case SyscallExit:
		k.exit(arg1)
	case SyscallExec:
		m.WriteRegister(resultReg, k.execFromUser(uint64(arg1)))
	case SyscallJoin:
		m.WriteRegister(resultReg, k.Join(arg1))
	case SyscallWrite:
		n := k.writeFromUser(uint64(arg1),
			m.ReadRegister(arg2Reg), m.ReadRegister(arg3Reg))
		m.WriteRegister(resultReg, n)
	case SyscallFork:
		k.forkFromUser(arg1)
	case SyscallYield:
		k.scheduler.Yield()
	default:
		log.Panicf("unknown system call %d", int(code))
	}
}

func (k *Kernel) execFromUser(nameAddr uint64) int {
	name := k.readUserString(nameAddr)

	id, err := k.Exec(name)
	if errors.Is(err, noff.ErrBadMagic) {
		log.Panicf("exec %s: %v", name, err)
	}

	if err != nil {
		return -1
	}

	return id
}

func (k *Kernel) writeFromUser(addr uint64, size, fd int) int {
	if fd != ConsoleOutput || size < 0 {
		return -1
	}

	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(k.readUser(addr+uint64(i), 1))
	}

	n, err := k.console.Write(buf)
	if err != nil {
		return -1
	}

	return n
}

func (k *Kernel) forkFromUser(index int) {
	if index < 0 || index >= len(k.forkTable) {
		log.Panicf("fork of unknown function %d", index)
	}

	t := k.scheduler.CurrentThread()
	k.Fork(fmt.Sprintf("%s.%d", t.Name, index), k.forkTable[index])
}

// registerForkTarget gives a function an index user programs can pass to
// the Fork system call.
func (k *Kernel) registerForkTarget(fn Program) int {
	k.forkTable = append(k.forkTable, fn)
	return len(k.forkTable) - 1
}

func (k *Kernel) readUserString(addr uint64) string {
	var buf []byte

	for i := 0; i < maxStringLen; i++ {
		c := byte(k.readUser(addr+uint64(i), 1))
		if c == 0 {
			return string(buf)
		}

		buf = append(buf, c)
	}

	log.Panicf("string at %#x is longer than %d bytes", addr, maxStringLen)

	return ""
}

// readUser reads user memory from kernel mode, serving page faults on the
// way.
func (k *Kernel) readUser(addr uint64, size int) int {
	for i := 0; i < maxAccessAttempts; i++ {
		if v, ok := k.machine.ReadMem(addr, size); ok {
			return v
		}
	}

	log.Panicf("cannot read user address %#x", addr)

	return 0
}
