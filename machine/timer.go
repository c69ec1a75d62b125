package machine

import (
	"math/rand"

	"github.com/sarchlab/nachosim/sim"
)

// TimerTicks is the fixed interval between timer interrupts.
const TimerTicks sim.Tick = 100

// A Timer interrupts the CPU periodically. With a random slice the interval
// is drawn from [1, 2*TimerTicks].
type Timer struct {
	interrupt *Interrupt
	rng       *rand.Rand
	onExpire  func()
}

// NewTimer creates a timer that calls onExpire on every interrupt. A nil rng
// gives a fixed interval.
func NewTimer(interrupt *Interrupt, rng *rand.Rand, onExpire func()) *Timer {
	return &Timer{
		interrupt: interrupt,
		rng:       rng,
		onExpire:  onExpire,
	}
}

// Start schedules the first timer interrupt.
func (t *Timer) Start() {
	t.scheduleNext()
}

// Handle serves a timer interrupt and arms the next one.
func (t *Timer) Handle(_ sim.Event) error {
	t.scheduleNext()

	if t.onExpire != nil {
		t.onExpire()
	}

	return nil
}

func (t *Timer) scheduleNext() {
	t.interrupt.Schedule(NewPendingInterrupt(
		t.interrupt.CurrentTime()+t.interval(), t, TimerInt))
}

func (t *Timer) interval() sim.Tick {
	if t.rng == nil {
		return TimerTicks
	}

	return sim.Tick(1 + t.rng.Int63n(int64(2*TimerTicks)))
}
