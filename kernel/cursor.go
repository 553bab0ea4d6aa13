package kernel

// ---------------------------------------------------------------------------
// HandleCursor: a removal-safe iterator over a HandleTable
// ---------------------------------------------------------------------------

// HandleCursor walks a table's handle list across multiple short lock
// acquisitions. While the table lock is not held, the cursor's position is
// either past-the-end or a handle currently in the table — never a handle
// that has been removed. The table guarantees this by advancing every
// registered cursor off a handle before unlinking it.
//
// A cursor is bound to one enumeration: obtain it with newCursorLocked under
// the writer lock, advance it with Next under at least the reader lock, and
// deregister it with releaseCursorLocked under the writer lock. A single
// cursor must not be advanced from multiple goroutines.
type HandleCursor struct {
	table *HandleTable

	// pos is the handle the cursor is parked on, or nil once past the end.
	// Guarded by the table lock: Next mutates it under the reader lock
	// (cursors are single-goroutine), advanceIf and Invalidate under the
	// writer lock.
	pos *Handle
}

// Next returns the handle at the cursor's position and advances past it, or
// nil once the cursor is past the end. Requires the table's reader lock.
func (c *HandleCursor) Next() *Handle {
	h := c.pos
	if h != nil {
		c.pos = h.next
	}
	return h
}

// Invalidate forces the cursor past the end. Requires the writer lock.
// A past-the-end cursor never produces another handle.
func (c *HandleCursor) Invalidate() {
	c.pos = nil
}

// advanceIf moves the cursor past h if it is currently parked on it. Called
// for every registered cursor whenever a handle is removed, under the
// writer lock.
func (c *HandleCursor) advanceIf(h *Handle) {
	if c.pos == h {
		c.pos = h.next
	}
}
