package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/nachosim/sim"
)

// EventCounter counts how many times each hook position fires.
type EventCounter struct {
	lock   sync.Mutex
	counts map[string]uint64
}

// NewEventCounter creates an EventCounter with all counts at zero.
func NewEventCounter() *EventCounter {
	return &EventCounter{
		counts: make(map[string]uint64),
	}
}

// Func counts the position of the hook context.
func (c *EventCounter) Func(ctx sim.HookCtx) {
	if ctx.Pos == nil {
		return
	}

	c.lock.Lock()
	c.counts[ctx.Pos.Name]++
	c.lock.Unlock()
}

// Count returns the number of times a position fired.
func (c *EventCounter) Count(name string) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.counts[name]
}

// Names returns the positions that fired, sorted.
func (c *EventCounter) Names() []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	names := make([]string, 0, len(c.counts))
	for name := range c.counts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Counts returns a copy of all the counts.
func (c *EventCounter) Counts() map[string]uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	counts := make(map[string]uint64, len(c.counts))
	for name, n := range c.counts {
		counts[name] = n
	}

	return counts
}
