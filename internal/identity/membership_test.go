package identity

import (
	"context"
	"testing"
)

type fakeMembershipStore struct {
	calls       int
	memberships map[string][]Membership
}

func (f *fakeMembershipStore) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	f.calls++
	return f.memberships[userID], nil
}

func TestMembershipCacheMissThenHit(t *testing.T) {
	store := &fakeMembershipStore{memberships: map[string][]Membership{
		"user_1": {{UserID: "user_1", TenantID: "t_acme", Role: RoleAdmin}},
	}}
	cache := NewMembershipCache(store, 16)

	memberships, err := cache.MembershipsForUser(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("MembershipsForUser() returned %v", err)
	}
	if len(memberships) != 1 {
		t.Fatalf("MembershipsForUser() = %v, want one entry", memberships)
	}

	if _, err := cache.MembershipsForUser(context.Background(), "user_1"); err != nil {
		t.Fatalf("MembershipsForUser() on cache hit returned %v", err)
	}
	if store.calls != 1 {
		t.Errorf("store was called %d times, want exactly 1 (second lookup should hit the cache)", store.calls)
	}
}

func TestMembershipCacheInvalidate(t *testing.T) {
	store := &fakeMembershipStore{memberships: map[string][]Membership{
		"user_1": {{UserID: "user_1", TenantID: "t_acme", Role: RoleMember}},
	}}
	cache := NewMembershipCache(store, 16)

	_, _ = cache.MembershipsForUser(context.Background(), "user_1")
	cache.Invalidate("user_1")
	_, _ = cache.MembershipsForUser(context.Background(), "user_1")

	if store.calls != 2 {
		t.Errorf("store was called %d times, want 2 (Invalidate should force a reload)", store.calls)
	}
}

func TestMembershipCacheInvalidateAll(t *testing.T) {
	store := &fakeMembershipStore{memberships: map[string][]Membership{
		"user_1": {{UserID: "user_1", TenantID: "t_acme", Role: RoleMember}},
		"user_2": {{UserID: "user_2", TenantID: "t_acme", Role: RoleOwner}},
	}}
	cache := NewMembershipCache(store, 16)

	_, _ = cache.MembershipsForUser(context.Background(), "user_1")
	_, _ = cache.MembershipsForUser(context.Background(), "user_2")
	cache.InvalidateAll()
	_, _ = cache.MembershipsForUser(context.Background(), "user_1")

	if store.calls != 3 {
		t.Errorf("store was called %d times, want 3 (InvalidateAll should force every key to reload)", store.calls)
	}
}

func TestIsMember(t *testing.T) {
	memberships := []Membership{
		{UserID: "user_1", TenantID: "t_acme", Role: RoleAdmin},
		{UserID: "user_1", TenantID: "t_other", Role: RoleMember},
	}

	role, ok := IsMember(memberships, "t_acme")
	if !ok || role != RoleAdmin {
		t.Errorf("IsMember(t_acme) = (%q, %v), want (%q, true)", role, ok, RoleAdmin)
	}

	if _, ok := IsMember(memberships, "t_unknown"); ok {
		t.Error("IsMember(t_unknown) = true, want false")
	}
}
