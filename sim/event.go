package sim

import "sync/atomic"

// Tick is the unit of simulated time. Executing one user instruction advances
// the clock by one tick; kernel work is charged in larger steps.
type Tick uint64

// An Event is something that happens at a given tick.
type Event interface {
	Time() Tick
	Handler() Handler
}

// A Handler serves the events scheduled for it.
type Handler interface {
	Handle(e Event) error
}

// EventBase gives an event its identity, its tick and its handler.
type EventBase struct {
	ID      uint64
	time    Tick
	handler Handler
}

// NewEventBase creates an event numbered after all the events created
// before it.
func NewEventBase(t Tick, handler Handler) *EventBase {
	return &EventBase{
		ID:      nextEventID(),
		time:    t,
		handler: handler,
	}
}

var lastEventID atomic.Uint64

func nextEventID() uint64 {
	return lastEventID.Add(1)
}

// Time returns the tick of the event.
func (e EventBase) Time() Tick {
	return e.time
}

// Handler returns the handler of the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() Tick
}
