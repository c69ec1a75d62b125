package synch

import (
	"log"

	"github.com/sarchlab/nachosim/machine"
)

// A Condition lets threads wait for a predicate guarded by a lock. A woken
// thread competes for the lock again, so the predicate may no longer hold
// when Wait returns: callers must check it in a loop.
type Condition struct {
	name        string
	waiters     waitQueue
	returnValue int
	k           Kernel
}

// NewCondition creates a condition with no waiters.
func NewCondition(k Kernel, name string) *Condition {
	return &Condition{
		name: name,
		k:    k,
	}
}

// Name returns the debug name of the condition.
func (c *Condition) Name() string {
	return c.name
}

// NumWaiting returns the number of threads blocked in Wait.
func (c *Condition) NumWaiting() int {
	return c.waiters.len()
}

// Wait releases the lock, sleeps until signaled and re-acquires the lock
// before returning. The caller must hold the lock.
func (c *Condition) Wait(lock *Lock) {
	c.lockMustBeHeld(lock, "Wait")

	old := c.k.SetLevel(machine.IntOff)

	t := c.k.CurrentThread()
	c.waiters.push(t)
	invokeHook(c.k, HookPosBlock, c.name, t)

	lock.Release()
	c.k.Sleep()
	lock.Acquire()

	c.k.SetLevel(old)
}

// Signal wakes the longest waiting thread, if any. Signals are not
// remembered when nobody waits.
func (c *Condition) Signal(lock *Lock) {
	c.lockMustBeHeld(lock, "Signal")

	old := c.k.SetLevel(machine.IntOff)
	c.wakeOne()
	c.k.SetLevel(old)
}

// Broadcast wakes every waiting thread.
func (c *Condition) Broadcast(lock *Lock) {
	c.lockMustBeHeld(lock, "Broadcast")

	old := c.k.SetLevel(machine.IntOff)
	for c.wakeOne() {
	}
	c.k.SetLevel(old)
}

// BroadcastAndSetReturnValue publishes a value and wakes every waiting
// thread. Waiters read it with ReturnValue once they hold the lock again.
func (c *Condition) BroadcastAndSetReturnValue(lock *Lock, value int) {
	c.lockMustBeHeld(lock, "Broadcast")

	c.returnValue = value
	c.Broadcast(lock)
}

// ReturnValue returns the value of the last BroadcastAndSetReturnValue.
func (c *Condition) ReturnValue() int {
	return c.returnValue
}

func (c *Condition) wakeOne() bool {
	t, ok := c.waiters.pop()
	if !ok {
		return false
	}

	invokeHook(c.k, HookPosWake, c.name, t)
	c.k.ReadyToRun(t)

	return true
}

func (c *Condition) lockMustBeHeld(lock *Lock, op string) {
	if !lock.IsHeldByCurrentThread() {
		log.Panicf("%s on condition %s without holding lock %s",
			op, c.name, lock.Name())
	}
}
