package synch

import "github.com/sarchlab/nachosim/machine"

// A Semaphore holds a non-negative count. P waits until the count is
// positive and decrements it; V increments it and wakes one waiter.
type Semaphore struct {
	name    string
	value   int
	waiters waitQueue
	k       Kernel
}

// NewSemaphore creates a semaphore with the initial count.
func NewSemaphore(k Kernel, name string, initial int) *Semaphore {
	if initial < 0 {
		panic("semaphore count cannot be negative")
	}

	return &Semaphore{
		name:  name,
		value: initial,
		k:     k,
	}
}

// Name returns the debug name of the semaphore.
func (s *Semaphore) Name() string {
	return s.name
}

// Value returns the current count.
func (s *Semaphore) Value() int {
	return s.value
}

// NumWaiting returns the number of threads blocked in P.
func (s *Semaphore) NumWaiting() int {
	return s.waiters.len()
}

// P waits until the count is positive, then decrements it.
func (s *Semaphore) P() {
	old := s.k.SetLevel(machine.IntOff)

	for s.value == 0 {
		t := s.k.CurrentThread()
		s.waiters.push(t)
		invokeHook(s.k, HookPosBlock, s.name, t)
		s.k.Sleep()
	}

	s.value--

	s.k.SetLevel(old)
}

// V increments the count and makes the longest waiting thread ready.
func (s *Semaphore) V() {
	old := s.k.SetLevel(machine.IntOff)

	if t, ok := s.waiters.pop(); ok {
		invokeHook(s.k, HookPosWake, s.name, t)
		s.k.ReadyToRun(t)
	}

	s.value++

	s.k.SetLevel(old)
}
