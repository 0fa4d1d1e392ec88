package loom

import (
	"sync"

	"github.com/nornlabs/norn/types"
)

// Registry holds every loom's metadata and uploaded bytecode, keyed by
// LoomID. Unlike the operation-validator registry in the thread package
// (a fixed compile-time table), this is live runtime data mutated as
// looms are registered, uploaded, paused, and terminated, so it exposes
// plain Get/Put rather than panic-on-duplicate registration.
type Registry struct {
	mu       sync.RWMutex
	looms    map[types.LoomID]*Loom
	programs map[types.LoomID]*Program
}

func NewRegistry() *Registry {
	return &Registry{
		looms:    make(map[types.LoomID]*Loom),
		programs: make(map[types.LoomID]*Program),
	}
}

func (r *Registry) Put(l *Loom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.looms[l.ID] = l
}

func (r *Registry) Get(id types.LoomID) (*Loom, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.looms[id]
	return l, ok
}

func (r *Registry) IsActive(id types.LoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.looms[id]
	return ok && l.IsActive()
}

func (r *Registry) SetProgram(id types.LoomID, p *Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = p
}

func (r *Registry) Program(id types.LoomID) (*Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

func (r *Registry) List(limit, offset int) []*Loom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Loom, 0, len(r.looms))
	for _, l := range r.looms {
		all = append(all, l)
	}
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
