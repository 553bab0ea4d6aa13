package kernel

import "time"

// ---------------------------------------------------------------------------
// Policy enforcement on suspicious handle presentation
// ---------------------------------------------------------------------------

// PolicyViolation identifies a class of suspicious behavior reported to the
// owning process's policy.
type PolicyViolation uint32

const (
	// ViolationBadHandle is raised when a process presents a handle value
	// that does not resolve in its own table.
	ViolationBadHandle PolicyViolation = iota
)

func (v PolicyViolation) String() string {
	switch v {
	case ViolationBadHandle:
		return "bad-handle"
	default:
		return "unknown"
	}
}

// PolicyAction is what the process's policy decided to do about a violation.
// The handle table's own failure result is the same regardless.
type PolicyAction uint32

const (
	// PolicyActionAllow records the violation and continues.
	PolicyActionAllow PolicyAction = iota
	// PolicyActionDeny records the violation and reports it as an error to
	// the enforcement caller.
	PolicyActionDeny
	// PolicyActionKill tears the offending process down.
	PolicyActionKill
)

func (a PolicyAction) String() string {
	switch a {
	case PolicyActionAllow:
		return "allow"
	case PolicyActionDeny:
		return "deny"
	case PolicyActionKill:
		return "kill"
	default:
		return "unknown"
	}
}

// PolicyEnforcer is the process-side hook a HandleTable invokes when a bad
// handle is presented. Its decision is opaque to the table: lookups fail
// with ErrBadHandle either way.
type PolicyEnforcer interface {
	EnforceBasicPolicy(violation PolicyViolation) error
}

// ViolationRecord describes one enforced violation for audit sinks.
type ViolationRecord struct {
	When        time.Time
	Process     Koid
	ProcessName string
	Violation   PolicyViolation
	Action      PolicyAction
}

// ViolationRecorder receives violation records. Implementations must not
// block: they are called from the enforcement path.
type ViolationRecorder interface {
	RecordViolation(ViolationRecord)
}
