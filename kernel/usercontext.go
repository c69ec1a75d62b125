package kernel

import (
	"log"

	"github.com/sarchlab/nachosim/machine"
)

// A Program is the code of a user process. It reaches memory and the kernel
// only through its UserContext, the way compiled user code would through
// loads, stores and system calls.
type Program func(ctx *UserContext)

// maxAccessAttempts bounds how many times a memory access is retried after
// the kernel served its page fault.
const maxAccessAttempts = 4

// UserContext is the CPU as seen by a user program.
type UserContext struct {
	k     *Kernel
	space *AddrSpace
}

func newUserContext(k *Kernel, space *AddrSpace) *UserContext {
	return &UserContext{k: k, space: space}
}

// Space returns the address space the program runs in.
func (c *UserContext) Space() *AddrSpace {
	return c.space
}

// Tick executes one user instruction worth of time.
func (c *UserContext) Tick() {
	i := c.k.interrupt
	i.SetStatus(machine.UserMode)
	i.OneTick()
	i.SetStatus(machine.SystemMode)
}

// StackPointer returns the stack register.
func (c *UserContext) StackPointer() uint64 {
	return uint64(c.k.machine.ReadRegister(machine.StackReg))
}

// LoadByte loads one byte.
func (c *UserContext) LoadByte(addr uint64) byte {
	return byte(c.load(addr, 1))
}

// LoadWord loads a 4-byte word.
func (c *UserContext) LoadWord(addr uint64) int {
	return c.load(addr, 4)
}

// StoreByte stores one byte.
func (c *UserContext) StoreByte(addr uint64, v byte) {
	c.store(addr, 1, int(v))
}

// StoreWord stores a 4-byte word.
func (c *UserContext) StoreWord(addr uint64, v int) {
	c.store(addr, 4, v)
}

// LoadString loads a NUL-terminated string.
func (c *UserContext) LoadString(addr uint64) string {
	var buf []byte

	for {
		b := c.LoadByte(addr)
		if b == 0 {
			return string(buf)
		}

		buf = append(buf, b)
		addr++
	}
}

// StoreString stores s followed by a NUL byte.
func (c *UserContext) StoreString(addr uint64, s string) {
	for i := 0; i < len(s); i++ {
		c.StoreByte(addr+uint64(i), s[i])
	}

	c.StoreByte(addr+uint64(len(s)), 0)
}

func (c *UserContext) load(addr uint64, size int) int {
	c.Tick()

	for i := 0; i < maxAccessAttempts; i++ {
		if v, ok := c.k.machine.ReadMem(addr, size); ok {
			return v
		}
	}

	log.Panicf("load of %#x keeps faulting", addr)

	return 0
}

func (c *UserContext) store(addr uint64, size int, v int) {
	c.Tick()

	for i := 0; i < maxAccessAttempts; i++ {
		if c.k.machine.WriteMem(addr, size, v) {
			return
		}
	}

	log.Panicf("store to %#x keeps faulting", addr)
}

// Syscall traps into the kernel with up to three arguments and returns the
// result register.
func (c *UserContext) Syscall(code SyscallCode, args ...int) int {
	if len(args) > 3 {
		log.Panicf("system call %s with %d arguments", code, len(args))
	}

	c.Tick()

	m := c.k.machine
	m.WriteRegister(resultReg, int(code))

	for i, a := range args {
		m.WriteRegister(arg1Reg+i, a)
	}

	m.RaiseException(machine.SyscallException, 0)

	return m.ReadRegister(resultReg)
}

// Halt stops the machine.
func (c *UserContext) Halt() {
	c.Syscall(SyscallHalt)
}

// Exit ends the calling thread with an exit code.
func (c *UserContext) Exit(code int) {
	c.Syscall(SyscallExit, code)
}

// Exec starts an executable in a new process and returns its identifier, or
// -1 if it cannot be loaded. The name is passed through the stack.
func (c *UserContext) Exec(name string) int {
	addr := (c.StackPointer() - uint64(len(name)) - 1) &^ 0x3
	c.StoreString(addr, name)

	return c.Syscall(SyscallExec, int(addr))
}

// Join waits for a process and returns its exit code.
func (c *UserContext) Join(id int) int {
	return c.Syscall(SyscallJoin, id)
}

// Write writes size bytes at addr to a file descriptor.
func (c *UserContext) Write(addr uint64, size int, fd int) int {
	return c.Syscall(SyscallWrite, int(addr), size, fd)
}

// Print writes a string to the console through the stack.
func (c *UserContext) Print(s string) {
	addr := (c.StackPointer() - uint64(len(s)) - 1) &^ 0x3
	c.StoreString(addr, s)
	c.Write(addr, len(s), ConsoleOutput)
}

// Fork starts a new thread in the same address space.
func (c *UserContext) Fork(fn Program) {
	c.Syscall(SyscallFork, c.k.registerForkTarget(fn))
}

// Yield gives the CPU to another thread.
func (c *UserContext) Yield() {
	c.Syscall(SyscallYield)
}
