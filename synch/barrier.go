package synch

import "log"

// A Barrier holds threads until a fixed number of them have arrived, then
// releases them together. It can be reused for any number of rounds.
type Barrier struct {
	name       string
	target     int
	count      int
	generation uint64
	lock       *Lock
	cond       *Condition
}

// NewBarrier creates a barrier for target threads.
func NewBarrier(k Kernel, name string, target int) *Barrier {
	if target <= 0 {
		log.Panicf("barrier %s needs a positive thread count", name)
	}

	return &Barrier{
		name:   name,
		target: target,
		lock:   NewLock(k, name+" lock"),
		cond:   NewCondition(k, name+" condition"),
	}
}

// Count returns the number of threads waiting in the current round.
func (b *Barrier) Count() int {
	return b.count
}

// Generation returns the number of completed rounds.
func (b *Barrier) Generation() uint64 {
	return b.generation
}

// Wait blocks until target threads have called Wait in this round. The last
// thread to arrive wakes the others and resets the count.
func (b *Barrier) Wait() {
	b.lock.Acquire()

	round := b.generation
	b.count++

	if b.count == b.target {
		b.count = 0
		b.generation++
		b.cond.Broadcast(b.lock)
	} else {
		for round == b.generation {
			b.cond.Wait(b.lock)
		}
	}

	b.lock.Release()
}
