package server

import (
	"sort"
	"sync"

	"github.com/quark-os/quark/kernel"
)

// Runtime is the registry of live processes the inspector reports on.
type Runtime struct {
	name string

	mu        sync.RWMutex
	processes map[kernel.Koid]*kernel.Process
}

// NewRuntime creates an empty process registry.
func NewRuntime(name string) *Runtime {
	return &Runtime{
		name:      name,
		processes: make(map[kernel.Koid]*kernel.Process),
	}
}

// Name returns the runtime's configured name.
func (r *Runtime) Name() string { return r.name }

// Spawn creates and registers a process.
func (r *Runtime) Spawn(name string, opts ...kernel.ProcessOption) (*kernel.Process, error) {
	p, err := kernel.NewProcess(name, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.processes[p.Koid()] = p
	r.mu.Unlock()
	return p, nil
}

// Process looks a process up by koid.
func (r *Runtime) Process(koid kernel.Koid) (*kernel.Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[koid]
	return p, ok
}

// Processes returns all registered processes ordered by koid.
func (r *Runtime) Processes() []*kernel.Process {
	r.mu.RLock()
	out := make([]*kernel.Process, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Koid() < out[j].Koid() })
	return out
}

// Kill tears a process down. The process stays registered so dumps can still
// report it; use Reap to drop it.
func (r *Runtime) Kill(koid kernel.Koid) bool {
	p, ok := r.Process(koid)
	if !ok {
		return false
	}
	p.Kill()
	return true
}

// Reap deregisters a killed process. Live processes are left alone.
func (r *Runtime) Reap(koid kernel.Koid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[koid]
	if !ok || !p.Killed() {
		return false
	}
	delete(r.processes, koid)
	return true
}

// ProcessCount returns the number of registered processes.
func (r *Runtime) ProcessCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processes)
}

// Shutdown kills every registered process.
func (r *Runtime) Shutdown() {
	for _, p := range r.Processes() {
		p.Kill()
	}
}
