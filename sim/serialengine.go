package sim

import (
	"log"
	"reflect"
)

// A SerialEngine is an Engine that always run events one after another.
type SerialEngine struct {
	HookableBase

	time  VTimeInCycle
	queue EventQueue
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = NewEventQueue()

	return e
}

// Schedule registers an event to happen in the future.
func (e *SerialEngine) Schedule(evt Event) {
	if evt.Time() < e.time {
		log.Panic("scheduling an event earlier than current time")
	}

	e.queue.Push(evt)
}

// Run processes all the events scheduled in the SerialEngine.
func (e *SerialEngine) Run() error {
	for e.queue.Len() > 0 {
		e.step()
	}
	return nil
}

// RunUntil processes events up to and including the horizon cycle. Events
// scheduled after the horizon stay in the queue.
func (e *SerialEngine) RunUntil(horizon VTimeInCycle) error {
	for e.queue.Len() > 0 && e.queue.Peek().Time() <= horizon {
		e.step()
	}
	return nil
}

func (e *SerialEngine) step() {
	evt := e.queue.Pop()
	if evt.Time() < e.time {
		log.Panicf(
			"cannot run event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt), evt.Time(), e.time,
		)
	}
	e.time = evt.Time()

	hookCtx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	handler := evt.Handler()
	_ = handler.Handle(evt)

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)
}

// CurrentTime returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) CurrentTime() VTimeInCycle {
	return e.time
}

// Pending returns the number of events that are not processed yet.
func (e *SerialEngine) Pending() int {
	return e.queue.Len()
}
