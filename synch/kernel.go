// Package synch provides the synchronization primitives of the kernel:
// semaphores, locks, condition variables, barriers and reader-writer locks.
//
// Atomicity comes from disabling interrupts on the single simulated CPU. A
// thread that has to wait queues itself and sleeps; the thread that releases
// it moves it back to the ready list. Waiters are woken in the order they
// started waiting.
package synch

import (
	"github.com/sarchlab/nachosim/machine"
	"github.com/sarchlab/nachosim/sim"
	"github.com/sarchlab/nachosim/thread"
)

// Kernel is what the primitives need from the thread runtime.
type Kernel interface {
	sim.Hookable

	CurrentThread() *thread.Thread
	ReadyToRun(t *thread.Thread)
	Sleep()
	SetLevel(level machine.IntLevel) machine.IntLevel
	CurrentTime() sim.Tick
	InvokeHook(ctx sim.HookCtx)
}

// Hook positions of the primitives. The item is the primitive name and the
// detail is the thread.
var (
	HookPosBlock = &sim.HookPos{Name: "Block", Flag: 't'}
	HookPosWake  = &sim.HookPos{Name: "Wake", Flag: 't'}
)

func invokeHook(k Kernel, pos *sim.HookPos, name string, t *thread.Thread) {
	if k.NumHooks() == 0 {
		return
	}

	k.InvokeHook(sim.HookCtx{
		Domain: k,
		Now:    k.CurrentTime(),
		Pos:    pos,
		Item:   name,
		Detail: t,
	})
}

// A waitQueue is a FIFO of blocked threads.
type waitQueue struct {
	threads []*thread.Thread
}

func (q *waitQueue) push(t *thread.Thread) {
	q.threads = append(q.threads, t)
}

func (q *waitQueue) pop() (*thread.Thread, bool) {
	if len(q.threads) == 0 {
		return nil, false
	}

	t := q.threads[0]
	q.threads[0] = nil
	q.threads = q.threads[1:]

	return t, true
}

func (q *waitQueue) len() int {
	return len(q.threads)
}
