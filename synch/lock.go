package synch

import (
	"log"

	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/thread"
)

// A Lock provides mutual exclusion. Only the thread holding a lock may
// release it and a thread may not acquire a lock it already holds.
type Lock struct {
	name  string
	sem   *Semaphore
	owner *thread.Thread
	k     Kernel
}

// NewLock creates a free lock.
func NewLock(k Kernel, name string) *Lock {
	return &Lock{
		name: name,
		sem:  NewSemaphore(k, name, 1),
		k:    k,
	}
}

// Name returns the debug name of the lock.
func (l *Lock) Name() string {
	return l.name
}

// Owner returns the holder of the lock, or nil.
func (l *Lock) Owner() *thread.Thread {
	return l.owner
}

// IsHeldByCurrentThread tells if the calling thread holds the lock.
func (l *Lock) IsHeldByCurrentThread() bool {
	return l.owner != nil && l.owner == l.k.CurrentThread()
}

// Acquire waits until the lock is free and takes it.
func (l *Lock) Acquire() {
	old := l.k.SetLevel(machine.IntOff)

	if l.IsHeldByCurrentThread() {
		log.Panicf("lock %s acquired again by its holder %s",
			l.name, l.owner)
	}

	l.sem.P()
	l.owner = l.k.CurrentThread()

	l.k.SetLevel(old)
}

// Release frees the lock. The caller must hold it.
func (l *Lock) Release() {
	old := l.k.SetLevel(machine.IntOff)

	if !l.IsHeldByCurrentThread() {
		log.Panicf("lock %s released by %s, which does not hold it",
			l.name, l.k.CurrentThread())
	}

	l.owner = nil
	l.sem.V()

	l.k.SetLevel(old)
}
