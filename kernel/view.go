package kernel

// ---------------------------------------------------------------------------
// TableView: reader-lock-scoped access to the table
// ---------------------------------------------------------------------------

// TableView exposes the operations that require the reader lock to be held.
// A view only exists inside a ReadLocked callback, so holding the lock is
// enforced by construction rather than by convention. Handles returned
// through a view are borrowed: they must not be retained past the callback.
type TableView struct {
	ht *HandleTable
}

// ReadLocked runs fn with the table's reader lock held, passing a view
// through which lock-requiring lookups can be composed without re-acquiring
// the lock per call. fn must not call any locking table method.
func (ht *HandleTable) ReadLocked(fn func(v *TableView) error) error {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return fn(&TableView{ht: ht})
}

// GetHandle resolves value to a borrowed handle, reporting a bad-handle
// violation to the process policy on failure.
func (v *TableView) GetHandle(value HandleValue) *Handle {
	return v.ht.getHandleLocked(value, false)
}

// GetHandleNoPolicy resolves value without involving the policy on failure.
// Only for existence checks that are not security sensitive.
func (v *TableView) GetHandleNoPolicy(value HandleValue) *Handle {
	return v.ht.getHandleLocked(value, true)
}

// Count returns the current handle count.
func (v *TableView) Count() uint32 {
	return v.ht.count
}

// ForEach visits every handle in list order, stopping at the first error
// from fn.
func (v *TableView) ForEach(fn HandleVisitor) error {
	ht := v.ht
	for h := ht.head; h != nil; h = h.next {
		value := encodeHandleValue(ht.mixer, h.base)
		if err := fn(value, h.Rights(), h.Dispatcher()); err != nil {
			return err
		}
	}
	return nil
}
