package kernel

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Process: the owner of a handle table
// ---------------------------------------------------------------------------

// Process is the entity a HandleTable belongs to. It supplies its koid for
// ownership stamping and implements the bad-handle policy invoked by its
// table.
type Process struct {
	koid  Koid
	name  string
	table *HandleTable

	badHandleAction PolicyAction
	recorder        ViolationRecorder

	violations atomic.Uint64
	killed     atomic.Bool
}

// ProcessOption configures a Process at creation.
type ProcessOption func(*processConfig)

type processConfig struct {
	badHandleAction PolicyAction
	recorder        ViolationRecorder
	rng             io.Reader
}

// WithBadHandlePolicy sets the action taken when the process presents an
// invalid handle. The default is PolicyActionAllow.
func WithBadHandlePolicy(action PolicyAction) ProcessOption {
	return func(c *processConfig) { c.badHandleAction = action }
}

// WithViolationRecorder routes enforced violations to an audit sink.
func WithViolationRecorder(r ViolationRecorder) ProcessOption {
	return func(c *processConfig) { c.recorder = r }
}

// WithRandSource overrides the randomness used to seed the handle-table
// mixer. Tests use this for deterministic values; production code should
// leave it unset (crypto/rand).
func WithRandSource(rng io.Reader) ProcessOption {
	return func(c *processConfig) { c.rng = rng }
}

// NewProcess creates a process with a fresh koid and an empty handle table.
func NewProcess(name string, opts ...ProcessOption) (*Process, error) {
	cfg := &processConfig{badHandleAction: PolicyActionAllow}
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Process{
		koid:            AllocKoid(),
		name:            name,
		badHandleAction: cfg.badHandleAction,
		recorder:        cfg.recorder,
	}
	table, err := NewHandleTable(p.koid, p, cfg.rng)
	if err != nil {
		return nil, fmt.Errorf("kernel: creating handle table for %q: %w", name, err)
	}
	p.table = table
	return p, nil
}

// Koid returns the process's identity.
func (p *Process) Koid() Koid { return p.koid }

// Name returns the process's name.
func (p *Process) Name() string { return p.name }

// Handles returns the process's handle table.
func (p *Process) Handles() *HandleTable { return p.table }

// ViolationCount returns how many policy violations the process has
// accumulated.
func (p *Process) ViolationCount() uint64 { return p.violations.Load() }

// Killed reports whether the process has been torn down.
func (p *Process) Killed() bool { return p.killed.Load() }

// EnforceBasicPolicy is the policy callback the handle table invokes on a
// bad-handle presentation. It records the violation and applies the
// configured action. A kill is carried out asynchronously: the callback
// runs while the table lock is held, and draining the table needs the
// writer lock.
func (p *Process) EnforceBasicPolicy(violation PolicyViolation) error {
	p.violations.Add(1)

	action := PolicyActionAllow
	if violation == ViolationBadHandle {
		action = p.badHandleAction
	}

	if p.recorder != nil {
		p.recorder.RecordViolation(ViolationRecord{
			When:        time.Now(),
			Process:     p.koid,
			ProcessName: p.name,
			Violation:   violation,
			Action:      action,
		})
	}

	switch action {
	case PolicyActionKill:
		go p.Kill()
		return ErrAccessDenied
	case PolicyActionDeny:
		return ErrAccessDenied
	default:
		return nil
	}
}

// Kill tears the process down, draining its handle table. Only the first
// call does anything.
func (p *Process) Kill() {
	if !p.killed.CompareAndSwap(false, true) {
		return
	}
	p.table.Clean()
}
