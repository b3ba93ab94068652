package coord

import "sync"

// RequestContext tags an asynchronous operation with the owner it was
// issued for and the generation that was current at issue time.
type RequestContext struct {
	OwnerID    string
	Generation uint64
}

type ownerGen struct {
	gen  uint64
	open bool
}

// Registry issues monotonically increasing generations per owner.
type Registry struct {
	mu     sync.Mutex
	owners map[string]*ownerGen
}

func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]*ownerGen)}
}

func (r *Registry) entry(owner string) *ownerGen {
	g, ok := r.owners[owner]
	if !ok {
		g = &ownerGen{}
		r.owners[owner] = g
	}
	return g
}

// Open allocates the next generation for owner and marks it open. Earlier
// generations become stale; their in-flight work is not cancelled here.
func (r *Registry) Open(owner string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.entry(owner)
	g.gen++
	g.open = true
	return g.gen
}

// Invalidate bumps the generation without changing whether owner is open.
func (r *Registry) Invalidate(owner string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.entry(owner)
	g.gen++
	return g.gen
}

// Close marks owner closed. IsCurrent is false for every generation until
// the owner is opened again, and reopening yields a higher generation.
func (r *Registry) Close(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.entry(owner)
	g.gen++
	g.open = false
}

// IsCurrent reports whether gen is the latest generation of an open owner.
func (r *Registry) IsCurrent(owner string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.owners[owner]
	return ok && g.open && g.gen == gen
}

// Capture returns the RequestContext to tag a new operation with. ok is
// false when owner is not open.
func (r *Registry) Capture(owner string) (RequestContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.owners[owner]
	if !ok || !g.open {
		return RequestContext{}, false
	}
	return RequestContext{OwnerID: owner, Generation: g.gen}, true
}

// Still reports whether rc is current.
func (r *Registry) Still(rc RequestContext) bool { return r.IsCurrent(rc.OwnerID, rc.Generation) }

// Current returns the latest generation for owner and whether it is open.
func (r *Registry) Current(owner string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.owners[owner]
	if !ok {
		return 0, false
	}
	return g.gen, g.open
}
