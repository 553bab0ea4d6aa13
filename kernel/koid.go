package kernel

import "sync/atomic"

// ---------------------------------------------------------------------------
// Koid: globally unique kernel object identifiers
// ---------------------------------------------------------------------------

// Koid identifies a kernel object. It is stable across every Handle that
// references the object and is never reused for the lifetime of the runtime.
type Koid uint64

// KoidInvalid is the zero koid. No live object ever carries it.
const KoidInvalid Koid = 0

// koidFirst is the first koid handed out. Low values are kept clear so that
// they stand out in dumps and can never be confused with allocated ids.
const koidFirst = 1024

var koidCounter atomic.Uint64

func init() {
	koidCounter.Store(koidFirst - 1)
}

// AllocKoid returns the next unused koid.
func AllocKoid() Koid {
	return Koid(koidCounter.Add(1))
}
