package kernel

import "sync/atomic"

// ---------------------------------------------------------------------------
// Dispatcher: the kernel-object side of a Handle
// ---------------------------------------------------------------------------

// Dispatcher is the contract the handle table needs from a kernel object.
// Dispatchers embed dispatcherBase, which supplies identity and handle-count
// bookkeeping; the table itself never looks past this interface.
type Dispatcher interface {
	// Koid returns the object's globally unique id.
	Koid() Koid

	// RelatedKoid returns the koid of a paired object (the peer endpoint of
	// a channel, for example), or KoidInvalid when there is none.
	RelatedKoid() Koid

	// TypeName returns the object's type for diagnostics ("event",
	// "channel", ...).
	TypeName() string

	incHandles()
	decHandles() (zero bool)
}

// zeroHandleNotifier is implemented by dispatchers that need to react when
// their last handle goes away (channels close their peer, for example).
type zeroHandleNotifier interface {
	onZeroHandles()
}

// dispatcherBase carries the identity and handle count shared by every
// dispatcher implementation.
type dispatcherBase struct {
	koid        Koid
	relatedKoid Koid
	handleCount atomic.Int64
}

func (b *dispatcherBase) Koid() Koid        { return b.koid }
func (b *dispatcherBase) RelatedKoid() Koid { return b.relatedKoid }

func (b *dispatcherBase) incHandles() {
	b.handleCount.Add(1)
}

func (b *dispatcherBase) decHandles() bool {
	return b.handleCount.Add(-1) == 0
}

// HandleCount returns the number of live handles referencing the object.
func (b *dispatcherBase) HandleCount() int64 {
	return b.handleCount.Load()
}
