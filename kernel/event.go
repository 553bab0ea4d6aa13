package kernel

import "sync/atomic"

// ---------------------------------------------------------------------------
// Event: the simplest kernel object, a signal bitmask
// ---------------------------------------------------------------------------

// Event is a kernel object holding a user-controlled signal bitmask.
type Event struct {
	dispatcherBase
	signals atomic.Uint32
}

// NewEvent creates an unsignaled event.
func NewEvent() *Event {
	return &Event{dispatcherBase: dispatcherBase{koid: AllocKoid()}}
}

func (e *Event) TypeName() string { return "event" }

// Signal sets the given signal bits.
func (e *Event) Signal(bits uint32) {
	for {
		old := e.signals.Load()
		if e.signals.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

// ClearSignals clears the given signal bits.
func (e *Event) ClearSignals(bits uint32) {
	for {
		old := e.signals.Load()
		if e.signals.CompareAndSwap(old, old&^bits) {
			return
		}
	}
}

// Signals returns the current signal bitmask.
func (e *Event) Signals() uint32 {
	return e.signals.Load()
}
