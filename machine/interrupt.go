package machine

import (
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/nachosim/sim"
)

// IntLevel tells if interrupts are enabled.
type IntLevel int

// Interrupt levels.
const (
	IntOff IntLevel = iota
	IntOn
)

func (l IntLevel) String() string {
	if l == IntOn {
		return "on"
	}

	return "off"
}

// Status is what the CPU is doing.
type Status int

// Machine statuses.
const (
	IdleMode Status = iota
	SystemMode
	UserMode
)

func (s Status) String() string {
	switch s {
	case IdleMode:
		return "idle"
	case SystemMode:
		return "system"
	case UserMode:
		return "user"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Time charged for one step of execution.
const (
	UserTick   sim.Tick = 1
	SystemTick sim.Tick = 10
)

// IntType identifies the device an interrupt comes from.
type IntType int

func (t IntType) String() string {
	switch t {
	case TimerInt:
		return "timer"
	case DeviceInt:
		return "device"
	default:
		return fmt.Sprintf("IntType(%d)", int(t))
	}
}

// Interrupt sources.
const (
	TimerInt IntType = iota
	DeviceInt
)

// A PendingInterrupt is an interrupt scheduled to fire at a given tick.
type PendingInterrupt struct {
	*sim.EventBase
	Kind IntType
}

// NewPendingInterrupt creates an interrupt of the given kind for the handler.
func NewPendingInterrupt(
	t sim.Tick,
	handler sim.Handler,
	kind IntType,
) *PendingInterrupt {
	return &PendingInterrupt{
		EventBase: sim.NewEventBase(t, handler),
		Kind:      kind,
	}
}

func (p *PendingInterrupt) String() string {
	return fmt.Sprintf("%s interrupt #%d at %d", p.Kind, p.ID, p.Time())
}

// A Yielder gives the CPU to another ready thread.
type Yielder interface {
	Yield()
}

// HookPosInterrupt marks a pending interrupt being serviced.
var HookPosInterrupt = &sim.HookPos{Name: "Interrupt", Flag: 'i'}

// Interrupt is the interrupt controller. It also keeps the simulated clock:
// time advances only when interrupts are re-enabled, when user code executes
// an instruction, or when the CPU idles.
type Interrupt struct {
	sim.HookableBase

	level         IntLevel
	status        Status
	inHandler     bool
	yieldOnReturn bool
	pending       sim.EventQueue
	stats         *Stats
	yielder       Yielder

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	// cpu is held by the running kernel thread, except in between two ticks.
	cpu     sync.Mutex
	cpuHeld bool
}

// NewInterrupt creates an interrupt controller with interrupts disabled.
func NewInterrupt(stats *Stats) *Interrupt {
	return &Interrupt{
		level:   IntOff,
		status:  SystemMode,
		pending: sim.NewEventQueue(),
		stats:   stats,
	}
}

// SetYielder sets who gets the CPU back when a handler asks for a context
// switch.
func (i *Interrupt) SetYielder(y Yielder) {
	i.yielder = y
}

// CurrentTime returns the total number of ticks elapsed.
func (i *Interrupt) CurrentTime() sim.Tick {
	return i.stats.TotalTicks
}

// Level returns the current interrupt level.
func (i *Interrupt) Level() IntLevel {
	return i.level
}

// Status returns what the CPU is doing.
func (i *Interrupt) Status() Status {
	return i.status
}

// SetStatus changes what the CPU is doing.
func (i *Interrupt) SetStatus(s Status) {
	i.status = s
}

// InHandler tells if an interrupt handler is running.
func (i *Interrupt) InHandler() bool {
	return i.inHandler
}

// SetLevel changes the interrupt level and returns the previous one.
// Re-enabling interrupts advances the clock and may deliver pending
// interrupts.
func (i *Interrupt) SetLevel(now IntLevel) IntLevel {
	old := i.level

	if now == IntOn && i.inHandler {
		log.Panic("interrupts cannot be enabled inside an interrupt handler")
	}

	i.level = now

	if now == IntOn && old == IntOff {
		i.OneTick()
	}

	return old
}

// Enable turns interrupts on.
func (i *Interrupt) Enable() {
	i.SetLevel(IntOn)
}

// OneTick advances the clock by one step, delivers the interrupts that became
// due and performs a context switch if a handler asked for one.
func (i *Interrupt) OneTick() {
	i.safePoint()

	old := i.status

	if i.status == SystemMode {
		i.stats.TotalTicks += SystemTick
		i.stats.SystemTicks += SystemTick
	} else {
		i.stats.TotalTicks += UserTick
		i.stats.UserTicks += UserTick
	}

	i.level = IntOff
	for i.checkIfDue(false) {
	}
	i.level = IntOn

	if i.yieldOnReturn {
		i.yieldOnReturn = false
		i.status = SystemMode

		if i.yielder != nil {
			i.yielder.Yield()
		}

		i.status = old
	}
}

// YieldOnReturn asks for a context switch once the running handler returns.
// It may only be called from within a handler.
func (i *Interrupt) YieldOnReturn() {
	if !i.inHandler {
		log.Panic("YieldOnReturn called outside an interrupt handler")
	}

	i.yieldOnReturn = true
}

// Idle moves the clock to the next pending interrupt and services it. It
// returns false if nothing can ever wake the CPU up, in which case the caller
// is expected to halt the machine.
func (i *Interrupt) Idle() bool {
	i.status = IdleMode

	if i.checkIfDue(true) {
		for i.checkIfDue(false) {
		}

		i.yieldOnReturn = false
		i.status = SystemMode

		return true
	}

	i.status = SystemMode

	return false
}

// Schedule arranges for an interrupt to fire in the future.
func (i *Interrupt) Schedule(evt sim.Event) {
	if evt.Time() <= i.CurrentTime() {
		log.Panicf("interrupt scheduled at %d, not after the current tick %d",
			evt.Time(), i.CurrentTime())
	}

	i.pending.Push(evt)
}

// NumPending returns the number of interrupts waiting to fire.
func (i *Interrupt) NumPending() int {
	return i.pending.Len()
}

func (i *Interrupt) checkIfDue(advanceClock bool) bool {
	if i.pending.Len() == 0 {
		return false
	}

	next := i.pending.Peek()
	now := i.CurrentTime()

	if next.Time() > now {
		if !advanceClock {
			return false
		}

		if i.onlyTimerPending() {
			return false
		}

		i.stats.IdleTicks += next.Time() - now
		i.stats.TotalTicks = next.Time()
	}

	i.pending.Pop()

	if i.NumHooks() > 0 {
		i.InvokeHook(sim.HookCtx{
			Domain: i,
			Now:    i.CurrentTime(),
			Pos:    HookPosInterrupt,
			Item:   next,
		})
	}

	i.inHandler = true
	err := next.Handler().Handle(next)
	i.inHandler = false

	if err != nil {
		log.Panic(err)
	}

	return true
}

// An idle CPU with nothing but the timer left would spin forever.
func (i *Interrupt) onlyTimerPending() bool {
	if i.pending.Len() != 1 {
		return false
	}

	p, ok := i.pending.Peek().(*PendingInterrupt)

	return ok && p.Kind == TimerInt
}

// Pause stops the clock at the next tick until Continue is called.
func (i *Interrupt) Pause() {
	i.isPausedLock.Lock()
	defer i.isPausedLock.Unlock()

	if i.isPaused {
		return
	}

	i.pauseLock.Lock()
	i.isPaused = true
}

// Continue lets the clock advance again.
func (i *Interrupt) Continue() {
	i.isPausedLock.Lock()
	defer i.isPausedLock.Unlock()

	if !i.isPaused {
		return
	}

	i.pauseLock.Unlock()
	i.isPaused = false
}

func (i *Interrupt) waitIfPaused() {
	i.pauseLock.Lock()
	i.pauseLock.Unlock()
}

// AcquireCPU marks the start of simulated execution. Inspect blocks from now
// on, except at the start of each tick, until ReleaseCPU is called.
func (i *Interrupt) AcquireCPU() {
	i.cpu.Lock()
	i.cpuHeld = true
}

// ReleaseCPU marks the end of simulated execution. It may be called by a
// goroutine other than the one that acquired the CPU, as long as it is the
// one running kernel code.
func (i *Interrupt) ReleaseCPU() {
	if !i.cpuHeld {
		return
	}

	i.cpuHeld = false
	i.cpu.Unlock()
}

// Inspect runs fn while no kernel code runs. A paused machine can always be
// inspected.
func (i *Interrupt) Inspect(fn func()) {
	i.cpu.Lock()
	defer i.cpu.Unlock()

	fn()
}

func (i *Interrupt) safePoint() {
	if !i.cpuHeld {
		i.waitIfPaused()
		return
	}

	i.cpu.Unlock()
	i.waitIfPaused()
	i.cpu.Lock()
}
