package identity

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Role is a membership role. Order matters only for display; authorization
// decisions compare equality, not rank.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership is the durable tuple (user_id, tenant_id, role) from spec §3.
type Membership struct {
	UserID   string
	TenantID string
	Role     Role
}

// MembershipStore is implemented by whatever durable adapter backs the
// membership table (typically the same Postgres database as the routing
// registry's bootstrap backend).
type MembershipStore interface {
	MembershipsForUser(ctx context.Context, userID string) ([]Membership, error)
}

// MembershipCache is the shared, concurrency-safe membership cache spec §5
// names as one of the three permitted pieces of mutable global state (the
// other two being the adapter cache and the routing registry mirror).
// Entries are dropped on a membership-changed control event (one user with
// Invalidate, or all with InvalidateAll) rather than by per-entry TTLs,
// since membership changes are rare and the cache
// exists purely to avoid a store round trip on every request.
//
// Grounded on the registry mirror's read/write discipline in
// applications/system/registry.go: a single-writer lock guarding a map, read
// without holding the writer path hot.
type MembershipCache struct {
	mu    sync.RWMutex
	store MembershipStore
	lru   *lru.Cache[string, []Membership]
}

// NewMembershipCache builds a cache of the given capacity (entries keyed by
// user_id) backed by store for misses.
func NewMembershipCache(store MembershipStore, capacity int) *MembershipCache {
	if capacity <= 0 {
		capacity = 4096
	}
	c, _ := lru.New[string, []Membership](capacity)
	return &MembershipCache{store: store, lru: c}
}

// MembershipsForUser returns the cached membership set for userID, loading
// from the store on a miss.
func (c *MembershipCache) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	c.mu.RLock()
	if cached, ok := c.lru.Get(userID); ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	memberships, err := c.store.MembershipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(userID, memberships)
	c.mu.Unlock()

	return memberships, nil
}

// Invalidate drops a single user's cached membership set, used after a
// membership-changed control event for that user.
func (c *MembershipCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(userID)
}

// InvalidateAll drops the entire cache, used on a broad membership-changed
// event that does not name individual users.
func (c *MembershipCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// IsMember reports whether userID holds any membership in tenantID, and the
// associated role.
func IsMember(memberships []Membership, tenantID string) (Role, bool) {
	for _, m := range memberships {
		if m.TenantID == tenantID {
			return m.Role, true
		}
	}
	return "", false
}
