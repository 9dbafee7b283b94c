package batch

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nguyennamkkb/Simpleverse-home/core"
)

// Preview is a transient, shareable view of source or output bytes.
type Preview struct {
	Owner  string
	Data   []byte
	Format core.Format
}

// Previews hands out opaque handles for preview bytes.  Every handle is
// owned by an item and must be revoked when the item is reset or removed.
type Previews struct {
	mu      sync.RWMutex
	handles map[string]Preview
}

func NewPreviews() *Previews {
	return &Previews{handles: make(map[string]Preview)}
}

// Create registers data under a fresh handle owned by owner.
func (p *Previews) Create(owner string, data []byte, f core.Format) string {
	h := uuid.NewString()
	p.mu.Lock()
	p.handles[h] = Preview{Owner: owner, Data: data, Format: f}
	p.mu.Unlock()
	return h
}

// Get resolves a handle.
func (p *Previews) Get(handle string) (Preview, bool) {
	p.mu.RLock()
	pv, ok := p.handles[handle]
	p.mu.RUnlock()
	return pv, ok
}

// Revoke releases one handle; unknown handles are ignored.
func (p *Previews) Revoke(handle string) {
	if handle == "" {
		return
	}
	p.mu.Lock()
	delete(p.handles, handle)
	p.mu.Unlock()
}

// RevokeOwner releases every handle owned by owner.
func (p *Previews) RevokeOwner(owner string) {
	p.mu.Lock()
	for h, pv := range p.handles {
		if pv.Owner == owner {
			delete(p.handles, h)
		}
	}
	p.mu.Unlock()
}

// Len returns the number of live handles.
func (p *Previews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}
