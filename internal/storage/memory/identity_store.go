package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/identity"
)

// IdentityDirectory is a goroutine-safe in-memory identity.Directory.
type IdentityDirectory struct {
	mu      sync.RWMutex
	members map[string]identity.Member
}

// NewIdentityDirectory constructs an empty in-memory identity directory.
func NewIdentityDirectory() *IdentityDirectory {
	return &IdentityDirectory{members: make(map[string]identity.Member)}
}

// Get implements identity.Directory.
func (d *IdentityDirectory) Get(_ context.Context, memberID string) (identity.Member, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[memberID]
	return m, ok, nil
}

// Put implements identity.Directory.
func (d *IdentityDirectory) Put(_ context.Context, m identity.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
	return nil
}
