package kernel

import (
	"crypto/rand"
	"io"
	"sync"
)

// ---------------------------------------------------------------------------
// HandleTable: the per-process set of live handles
// ---------------------------------------------------------------------------

// handleBatchSize is how many handles ForEachHandleBatched copies per lock
// acquisition. It bounds worst-case lock-hold time; the copy buffer lives on
// the enumerating goroutine's stack.
const handleBatchSize = 64

// HandleVisitor is called once per handle during enumeration. Returning a
// non-nil error stops the enumeration and propagates the error.
type HandleVisitor func(value HandleValue, rights Rights, d Dispatcher) error

// HandleInfo is one row of a diagnostic table snapshot.
type HandleInfo struct {
	Value       HandleValue
	Rights      Rights
	Type        string
	Koid        Koid
	RelatedKoid Koid
}

// HandleTable owns every Handle belonging to one process. A single
// reader/writer lock guards the handle list, the count, and the registered
// cursors together; lookups run concurrently in reader mode, mutations are
// exclusive. The per-table mixer and owner identity are set once at
// construction and read without synchronization.
type HandleTable struct {
	mu sync.RWMutex

	owner  Koid
	policy PolicyEnforcer
	mixer  uint32

	// nextBase issues table-local slot ids. Monotonic: a base value is
	// never reused for the table's lifetime.
	nextBase uint32

	handles    map[uint32]*Handle
	head, tail *Handle
	count      uint32

	cursors []*HandleCursor
}

// NewHandleTable creates an empty table for the process identified by owner.
// The mixer is drawn from rng once; pass nil to use crypto/rand. policy may
// be nil, in which case bad-handle presentations are not reported anywhere.
func NewHandleTable(owner Koid, policy PolicyEnforcer, rng io.Reader) (*HandleTable, error) {
	if rng == nil {
		rng = rand.Reader
	}
	mixer, err := newMixer(rng)
	if err != nil {
		return nil, err
	}
	return &HandleTable{
		owner:   owner,
		policy:  policy,
		mixer:   mixer,
		handles: make(map[uint32]*Handle),
	}, nil
}

// Owner returns the koid of the process this table belongs to.
func (ht *HandleTable) Owner() Koid { return ht.owner }

// AddHandle takes ownership of h, stamps it with this table's process, and
// returns the external value the process will use to refer to it. h must
// not currently be a member of any table.
func (ht *HandleTable) AddHandle(h *Handle) HandleValue {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.addHandleLocked(h)
}

func (ht *HandleTable) addHandleLocked(h *Handle) HandleValue {
	// Base values are issued monotonically and only wrap after the full
	// 30-bit space; the skip below keeps zero and any still-live slot from
	// ever being reissued.
	for {
		ht.nextBase = (ht.nextBase + 1) & maxBaseValue
		if ht.nextBase != 0 && ht.handles[ht.nextBase] == nil {
			break
		}
	}
	h.base = ht.nextBase
	h.owner.Store(uint64(ht.owner))

	// Front insertion, matching enumeration order: newest first.
	h.prev = nil
	h.next = ht.head
	if ht.head != nil {
		ht.head.prev = h
	} else {
		ht.tail = h
	}
	ht.head = h

	ht.handles[h.base] = h
	ht.count++
	return encodeHandleValue(ht.mixer, h.base)
}

// RemoveHandle resolves value exactly as a lookup does and, if found, yields
// ownership of the handle back to the caller. The caller is responsible for
// eventually calling Release on it.
func (ht *HandleTable) RemoveHandle(value HandleValue) (*Handle, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	h := ht.getHandleLocked(value, false)
	if h == nil {
		return nil, ErrBadHandle
	}
	ht.removeHandleLocked(h)
	return h, nil
}

// RemoveHandles removes every value that resolves, releasing each removed
// handle, and keeps going past failures. It returns ErrBadHandle if any
// value failed to resolve.
func (ht *HandleTable) RemoveHandles(values ...HandleValue) error {
	var status error

	ht.mu.Lock()
	var removed []*Handle
	for _, value := range values {
		h := ht.getHandleLocked(value, false)
		if h == nil {
			status = ErrBadHandle
			continue
		}
		ht.removeHandleLocked(h)
		removed = append(removed, h)
	}
	ht.mu.Unlock()

	// Releasing can run object teardown; never do it under the lock.
	for _, h := range removed {
		h.Release()
	}
	return status
}

func (ht *HandleTable) removeHandleLocked(h *Handle) {
	// Clear ownership before the handle is unlinked so a racing reader that
	// still sees a pointer to it observes "not mine".
	h.owner.Store(uint64(KoidInvalid))

	for _, c := range ht.cursors {
		c.advanceIf(h)
	}

	if h.prev != nil {
		h.prev.next = h.next
	} else {
		ht.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	} else {
		ht.tail = h.prev
	}
	h.prev, h.next = nil, nil

	delete(ht.handles, h.base)
	ht.count--
}

// getHandleLocked resolves an external value to a live handle owned by this
// table's process. On failure the process's policy is consulted for a
// bad-handle violation unless skipPolicy is set (reserved for existence
// probes that are not security sensitive). Requires at least the reader
// lock.
func (ht *HandleTable) getHandleLocked(value HandleValue, skipPolicy bool) *Handle {
	if base, ok := decodeHandleValue(ht.mixer, value); ok {
		if h := ht.handles[base]; h != nil && h.Owner() == ht.owner {
			return h
		}
	}
	if !skipPolicy && ht.policy != nil {
		// The policy's decision (ignore, kill, ...) is its own business;
		// this lookup fails regardless.
		_ = ht.policy.EnforceBasicPolicy(ViolationBadHandle)
	}
	return nil
}

// GetDispatcherAndRights resolves value to its object and a snapshot of its
// rights.
func (ht *HandleTable) GetDispatcherAndRights(value HandleValue) (Dispatcher, Rights, error) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h := ht.getHandleLocked(value, false)
	if h == nil {
		return nil, RightsNone, ErrBadHandle
	}
	return h.Dispatcher(), h.Rights(), nil
}

// GetDispatcherWithRights resolves value and verifies that desired is a
// subset of the handle's rights.
func (ht *HandleTable) GetDispatcherWithRights(value HandleValue, desired Rights) (Dispatcher, error) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h := ht.getHandleLocked(value, false)
	if h == nil {
		return nil, ErrBadHandle
	}
	if !h.HasRights(desired) {
		return nil, ErrAccessDenied
	}
	return h.Dispatcher(), nil
}

// GetTypedDispatcherWithRights resolves value, down-casts the object to T,
// and verifies rights. The type check strictly precedes the rights check: a
// wrong-typed handle reports ErrWrongType even when its rights would also
// have been insufficient, so callers cannot distinguish unauthorized
// objects of another type from merely wrong-typed ones.
func GetTypedDispatcherWithRights[T Dispatcher](ht *HandleTable, value HandleValue, desired Rights) (T, error) {
	var zero T
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h := ht.getHandleLocked(value, false)
	if h == nil {
		return zero, ErrBadHandle
	}
	d, ok := h.Dispatcher().(T)
	if !ok {
		return zero, ErrWrongType
	}
	if !h.HasRights(desired) {
		return zero, ErrAccessDenied
	}
	return d, nil
}

// HandleCount returns the number of handles currently in the table.
func (ht *HandleTable) HandleCount() uint32 {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.count
}

// KoidFor resolves value to the koid of the object it references.
func (ht *HandleTable) KoidFor(value HandleValue) (Koid, error) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h := ht.getHandleLocked(value, false)
	if h == nil {
		return KoidInvalid, ErrBadHandle
	}
	return h.Dispatcher().Koid(), nil
}

// IsHandleValid reports whether value currently resolves. It is an
// existence probe: a miss is not reported to the policy.
func (ht *HandleTable) IsHandleValid(value HandleValue) bool {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.getHandleLocked(value, true) != nil
}

// ForEachHandle visits every handle under the reader lock, stopping at the
// first error from fn. The whole traversal sees one consistent table state,
// at the cost of holding the lock for its full duration; fn must be quick
// and must not touch the table.
func (ht *HandleTable) ForEachHandle(fn HandleVisitor) error {
	return ht.ReadLocked(func(v *TableView) error {
		return v.ForEach(fn)
	})
}

// ForEachHandleBatched visits every handle while releasing the lock between
// fixed-size batches, bounding lock-hold latency. The traversal is not
// atomic: handles added or removed mid-scan may or may not be visited (each
// at most once), and a visited handle is only guaranteed to have been a
// member at some instant during the call. The dispatcher reference passed
// to fn remains valid even if the handle has since been removed.
func (ht *HandleTable) ForEachHandleBatched(fn HandleVisitor) error {
	type triple struct {
		value      HandleValue
		rights     Rights
		dispatcher Dispatcher
	}

	ht.mu.Lock()
	cursor := ht.newCursorLocked()
	ht.mu.Unlock()
	defer func() {
		ht.mu.Lock()
		ht.releaseCursorLocked(cursor)
		ht.mu.Unlock()
	}()

	for {
		var batch [handleBatchSize]triple
		n := 0

		ht.mu.RLock()
		for n < handleBatchSize {
			h := cursor.Next()
			if h == nil {
				break
			}
			batch[n] = triple{
				value:      encodeHandleValue(ht.mixer, h.base),
				rights:     h.Rights(),
				dispatcher: h.Dispatcher(),
			}
			n++
		}
		ht.mu.RUnlock()

		for i := 0; i < n; i++ {
			if err := fn(batch[i].value, batch[i].rights, batch[i].dispatcher); err != nil {
				return err
			}
		}
		if n < handleBatchSize {
			return nil
		}
	}
}

// HandleInfos returns a diagnostic snapshot of every handle. The slice is
// sized outside the lock and the fill pass retries if the table changed in
// between: allocation never happens while the lock is held.
func (ht *HandleTable) HandleInfos() []HandleInfo {
	for {
		n := ht.HandleCount()
		infos := make([]HandleInfo, 0, n)

		ht.mu.RLock()
		if ht.count > n {
			// Grew past our buffer; resize and try again.
			ht.mu.RUnlock()
			continue
		}
		for h := ht.head; h != nil; h = h.next {
			d := h.Dispatcher()
			infos = append(infos, HandleInfo{
				Value:       encodeHandleValue(ht.mixer, h.base),
				Rights:      h.Rights(),
				Type:        d.TypeName(),
				Koid:        d.Koid(),
				RelatedKoid: d.RelatedKoid(),
			})
		}
		ht.mu.RUnlock()
		return infos
	}
}

// Clean drains the table when the owning process dies. Every registered
// cursor is invalidated, every handle loses its owner and is detached, and
// only then — outside the lock — are the detached handles released, so that
// object teardown never runs on the table's critical path. Calling Clean on
// an already-clean table is a no-op.
func (ht *HandleTable) Clean() {
	ht.mu.Lock()
	for _, c := range ht.cursors {
		c.Invalidate()
	}
	detached := ht.head
	for h := ht.head; h != nil; h = h.next {
		h.owner.Store(uint64(KoidInvalid))
	}
	ht.head, ht.tail = nil, nil
	ht.handles = make(map[uint32]*Handle)
	ht.count = 0
	ht.mu.Unlock()

	for h := detached; h != nil; {
		next := h.next
		h.prev, h.next = nil, nil
		h.Release()
		h = next
	}
}

// newCursorLocked registers a cursor parked at the front of the list.
// Requires the writer lock.
func (ht *HandleTable) newCursorLocked() *HandleCursor {
	c := &HandleCursor{table: ht, pos: ht.head}
	ht.cursors = append(ht.cursors, c)
	return c
}

// releaseCursorLocked deregisters a cursor. Requires the writer lock.
func (ht *HandleTable) releaseCursorLocked(c *HandleCursor) {
	for i, reg := range ht.cursors {
		if reg == c {
			last := len(ht.cursors) - 1
			ht.cursors[i] = ht.cursors[last]
			ht.cursors[last] = nil
			ht.cursors = ht.cursors[:last]
			return
		}
	}
}

// cursorCount returns the number of registered cursors (for tests).
func (ht *HandleTable) cursorCount() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return len(ht.cursors)
}
