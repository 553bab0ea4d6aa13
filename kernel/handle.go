package kernel

import "sync/atomic"

// ---------------------------------------------------------------------------
// Handle: an exclusively-owned capability token
// ---------------------------------------------------------------------------

// Handle binds a Dispatcher reference, a rights mask, and an owning process.
// A Handle is owned by at most one HandleTable at a time; while it is a
// member, the table owns it exclusively. The owner field is cleared the
// instant the handle logically leaves its table, before any unlinking, so a
// concurrent reader holding a transient pointer observes "not mine" rather
// than a stale membership.
type Handle struct {
	dispatcher Dispatcher
	rights     Rights

	// owner is the koid of the owning process, or 0 (KoidInvalid) while the
	// handle is not a table member. Stored atomically: it is cleared under
	// the table's writer lock but read by lookups under the reader lock.
	owner atomic.Uint64

	// base is the table-assigned slot id, set while the handle is a member.
	base uint32

	// Table list linkage, guarded by the owning table's lock.
	prev, next *Handle
}

// NewHandle mints a handle for the given dispatcher. The dispatcher's handle
// count is incremented; the caller owns the result until it is added to a
// table or released.
func NewHandle(d Dispatcher, rights Rights) *Handle {
	d.incHandles()
	return &Handle{dispatcher: d, rights: rights}
}

// Dispatcher returns the referenced kernel object, or nil after Release.
func (h *Handle) Dispatcher() Dispatcher { return h.dispatcher }

// Rights returns the handle's rights mask.
func (h *Handle) Rights() Rights { return h.rights }

// HasRights reports whether desired is a subset of the handle's rights.
func (h *Handle) HasRights(desired Rights) bool { return h.rights.Has(desired) }

// Owner returns the koid of the owning process, or KoidInvalid when the
// handle is not a member of any table.
func (h *Handle) Owner() Koid { return Koid(h.owner.Load()) }

// Duplicate mints a second handle to the same object, carrying the given
// rights. The source must hold RightDuplicate and the new rights must be a
// subset of the source's.
func (h *Handle) Duplicate(rights Rights) (*Handle, error) {
	if !h.HasRights(RightDuplicate) {
		return nil, ErrAccessDenied
	}
	if !h.rights.Has(rights) {
		return nil, ErrAccessDenied
	}
	return NewHandle(h.dispatcher, rights), nil
}

// Release drops the handle's reference to its object. If it was the last
// handle, the object's on-zero-handles hook runs. Release must only be
// called on a handle that is not a table member; it is a no-op on an
// already-released handle.
func (h *Handle) Release() {
	d := h.dispatcher
	if d == nil {
		return
	}
	h.dispatcher = nil
	if d.decHandles() {
		if n, ok := d.(zeroHandleNotifier); ok {
			n.onZeroHandles()
		}
	}
}
