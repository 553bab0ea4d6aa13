package kernel

import "errors"

// ---------------------------------------------------------------------------
// Error kinds surfaced by the handle table
// ---------------------------------------------------------------------------

var (
	// ErrBadHandle means the presented value did not decode to, or did not
	// resolve to, a live Handle owned by the calling process.
	ErrBadHandle = errors.New("bad handle")

	// ErrWrongType means the resolved object is not of the expected
	// dispatcher type. Reported before any rights failure.
	ErrWrongType = errors.New("wrong type")

	// ErrAccessDenied means the resolved, correctly-typed handle does not
	// carry the desired rights.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoMemory means a diagnostic snapshot could not be sized because the
	// table kept changing under it. Callers are expected to retry.
	ErrNoMemory = errors.New("no memory")
)
