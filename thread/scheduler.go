package thread

import (
	"log"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/sim"
)

// Hook positions of the scheduler.
var (
	HookPosFork          = &sim.HookPos{Name: "Fork", Flag: 't'}
	HookPosContextSwitch = &sim.HookPos{Name: "ContextSwitch", Flag: 't'}
	HookPosFinish        = &sim.HookPos{Name: "Finish", Flag: 't'}
	HookPosHalt          = &sim.HookPos{Name: "Halt", Flag: 't'}
)

// A Scheduler multiplexes the CPU among kernel threads. All its state is
// owned by the thread that currently holds the CPU.
type Scheduler struct {
	sim.HookableBase

	interrupt *machine.Interrupt
	machine   *machine.Machine

	ready   []*Thread
	current *Thread
	threads map[int]*Thread
	nextID  int

	halted   chan struct{}
	haltOnce sync.Once
	fatal    *FatalError
	stranded []*Thread
}

// NewScheduler creates a scheduler. The machine may be nil if no thread runs
// user code.
func NewScheduler(
	interrupt *machine.Interrupt,
	m *machine.Machine,
) *Scheduler {
	s := &Scheduler{
		interrupt: interrupt,
		machine:   m,
		threads:   make(map[int]*Thread),
		halted:    make(chan struct{}),
	}

	interrupt.SetYielder(s)

	return s
}

// NewThread creates a thread that is not scheduled yet.
func (s *Scheduler) NewThread(name string, priority int) *Thread {
	t := &Thread{
		ID:       s.nextID,
		Name:     name,
		Priority: priority,
		status:   JustCreated,
		resume:   make(chan struct{}, 1),
	}
	s.nextID++
	s.threads[t.ID] = t

	return t
}

// Start turns the caller into the machine: fn runs as the first kernel
// thread and Start returns once the machine halts. The error is a
// *FatalError if a thread violated a kernel invariant.
func (s *Scheduler) Start(name string, fn func()) error {
	s.interrupt.AcquireCPU()

	t := s.NewThread(name, DefaultPriority)
	t.status = Running
	s.current = t

	t.resume <- struct{}{}
	go s.threadBody(t, fn)

	<-s.halted

	if s.fatal != nil {
		return s.fatal
	}

	return nil
}

// Halted returns a channel closed when the machine stops.
func (s *Scheduler) Halted() <-chan struct{} {
	return s.halted
}

// Fork schedules fn to run on thread t.
func (s *Scheduler) Fork(t *Thread, fn func()) {
	if t.status != JustCreated {
		log.Panicf("thread %s has already been forked", t)
	}

	go s.threadBody(t, fn)

	s.invokeHook(HookPosFork, t)

	old := s.interrupt.SetLevel(machine.IntOff)
	s.ReadyToRun(t)
	s.interrupt.SetLevel(old)
}

func (s *Scheduler) threadBody(t *Thread, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(t, r)
		}
	}()

	s.waitForCPU(t)

	fn()

	s.Finish()
}

func (s *Scheduler) fail(t *Thread, cause interface{}) {
	s.haltOnce.Do(func() {
		s.fatal = &FatalError{
			Thread: t.String(),
			Cause:  cause,
			Stack:  debug.Stack(),
		}
		s.interrupt.ReleaseCPU()
		close(s.halted)
	})
}

// CurrentThread returns the thread holding the CPU.
func (s *Scheduler) CurrentThread() *Thread {
	return s.current
}

// CurrentTime returns the simulated clock.
func (s *Scheduler) CurrentTime() sim.Tick {
	return s.interrupt.CurrentTime()
}

// SetLevel changes the interrupt level, returning the previous level.
func (s *Scheduler) SetLevel(level machine.IntLevel) machine.IntLevel {
	return s.interrupt.SetLevel(level)
}

// ReadyToRun puts a thread on the ready list. Threads are ordered by
// priority and, among equal priorities, by the time they became ready.
// Interrupts must be off.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.interruptsMustBeOff("ReadyToRun")

	t.status = Ready

	i := sort.Search(len(s.ready), func(i int) bool {
		return s.ready[i].Priority > t.Priority
	})

	s.ready = append(s.ready, nil)
	copy(s.ready[i+1:], s.ready[i:])
	s.ready[i] = t
}

// NumReady returns the number of threads waiting for the CPU.
func (s *Scheduler) NumReady() int {
	return len(s.ready)
}

func (s *Scheduler) findNextToRun() *Thread {
	if len(s.ready) == 0 {
		return nil
	}

	t := s.ready[0]
	s.ready = s.ready[1:]

	return t
}

// Yield gives the CPU to the next ready thread unless that thread has a lower
// priority than the caller. The caller goes back to the ready list.
func (s *Scheduler) Yield() {
	old := s.interrupt.SetLevel(machine.IntOff)

	if len(s.ready) > 0 && s.ready[0].Priority <= s.current.Priority {
		next := s.findNextToRun()
		s.ReadyToRun(s.current)
		s.run(next)
	}

	s.interrupt.SetLevel(old)
}

// Sleep gives up the CPU. The caller must have interrupts off and must
// already be queued somewhere it will be woken from, unless it is finishing.
// If no thread is ready the CPU idles. If nothing can ever become ready the
// machine halts, and the blocked threads are reported by Stranded.
func (s *Scheduler) Sleep() {
	s.interruptsMustBeOff("Sleep")

	if s.current.status != Finished {
		s.current.status = Blocked
	}

	for {
		if next := s.findNextToRun(); next != nil {
			s.run(next)
			return
		}

		if !s.interrupt.Idle() {
			if s.current.status == Finished {
				delete(s.threads, s.current.ID)
			}

			s.stranded = s.Blocked()
			s.Halt()
		}
	}
}

// Finish ends the calling thread.
func (s *Scheduler) Finish() {
	s.interrupt.SetLevel(machine.IntOff)

	t := s.current
	t.status = Finished
	s.invokeHook(HookPosFinish, t)

	s.Sleep()
}

// TimerExpired is the timer interrupt routine: it asks for a context switch
// if another thread is waiting for the CPU.
func (s *Scheduler) TimerExpired() {
	if len(s.ready) > 0 {
		s.interrupt.YieldOnReturn()
	}
}

// Halt stops the machine. It does not return.
func (s *Scheduler) Halt() {
	s.invokeHook(HookPosHalt, s.current)

	s.haltOnce.Do(func() {
		s.interrupt.ReleaseCPU()
		close(s.halted)
	})

	runtime.Goexit()
}

// Threads returns the threads that have not finished, ordered by ID.
func (s *Scheduler) Threads() []*Thread {
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].ID < threads[j].ID
	})

	return threads
}

// Stranded returns the threads that were still blocked when the machine
// halted because no thread could ever run again. It is empty if the machine
// halted in any other way.
func (s *Scheduler) Stranded() []*Thread {
	return s.stranded
}

// Blocked returns the threads waiting to be woken up, ordered by ID.
func (s *Scheduler) Blocked() []*Thread {
	var blocked []*Thread

	for _, t := range s.Threads() {
		if t.status == Blocked {
			blocked = append(blocked, t)
		}
	}

	return blocked
}

func (s *Scheduler) run(next *Thread) {
	old := s.current

	if old.Space != nil {
		s.saveUserState(old)
	}

	finishing := old.status == Finished

	s.current = next
	next.status = Running

	if s.machine != nil {
		s.machine.Stats.NumContextSwitches++
	}

	s.invokeHookWithDetail(HookPosContextSwitch, next, old)

	if finishing {
		delete(s.threads, old.ID)
	}

	// Once next resumes, only next may touch the scheduler.
	next.resume <- struct{}{}

	if finishing {
		runtime.Goexit()
	}

	s.waitForCPU(old)
}

func (s *Scheduler) waitForCPU(t *Thread) {
	select {
	case <-t.resume:
	case <-s.halted:
		runtime.Goexit()
	}

	if t.Space != nil {
		s.restoreUserState(t)
	}
}

func (s *Scheduler) saveUserState(t *Thread) {
	if s.machine != nil {
		t.userRegisters = s.machine.Registers
	}

	t.Space.SaveState()
}

func (s *Scheduler) restoreUserState(t *Thread) {
	if s.machine != nil {
		s.machine.Registers = t.userRegisters
	}

	t.Space.RestoreState()
}

func (s *Scheduler) interruptsMustBeOff(op string) {
	if s.interrupt.Level() != machine.IntOff {
		log.Panicf("%s called with interrupts on", op)
	}
}

func (s *Scheduler) invokeHook(pos *sim.HookPos, t *Thread) {
	s.invokeHookWithDetail(pos, t, nil)
}

func (s *Scheduler) invokeHookWithDetail(
	pos *sim.HookPos,
	t *Thread,
	detail interface{},
) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Now:    s.interrupt.CurrentTime(),
		Pos:    pos,
		Item:   t,
		Detail: detail,
	})
}
