package backend

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

type fakeObjectStore struct{ id int }

func TestFactoryResolveChecksGuard(t *testing.T) {
	guard := NewGuard(func(string) map[string]bool { return map[string]bool{"s3": true} })
	factory := NewFactory(guard, 16)

	calls := 0
	factory.Register(routing.ResourceObjectStore, routing.BackendS3, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		calls++
		return &fakeObjectStore{id: calls}, nil
	})

	forbiddenRoute := routing.ResourceRoute{
		ID: "r1", ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendFilesystem,
		UpdatedAt: time.Now(),
	}
	if _, err := factory.Resolve(context.Background(), forbiddenRoute, identity.ModeSaaS); err == nil {
		t.Fatal("Resolve() for a forbidden backend_type should fail before reaching any constructor")
	}
	if calls != 0 {
		t.Errorf("constructor was called %d times, want 0 (guard should short-circuit)", calls)
	}
}

func TestFactoryResolveCachesByRouteAndUpdatedAt(t *testing.T) {
	guard := NewGuard(func(string) map[string]bool { return map[string]bool{"s3": true} })
	factory := NewFactory(guard, 16)

	calls := 0
	factory.Register(routing.ResourceObjectStore, routing.BackendS3, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		calls++
		return &fakeObjectStore{id: calls}, nil
	})

	route := routing.ResourceRoute{
		ID: "r1", ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendS3,
		UpdatedAt: time.Unix(1000, 0),
	}

	first, err := factory.Resolve(context.Background(), route, identity.ModeSaaS)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	second, err := factory.Resolve(context.Background(), route, identity.ModeSaaS)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if first != second {
		t.Error("Resolve() for the same (route.id, route.updated_at) should return the cached adapter instance")
	}
	if calls != 1 {
		t.Errorf("constructor was called %d times, want 1", calls)
	}

	route.UpdatedAt = time.Unix(2000, 0)
	third, err := factory.Resolve(context.Background(), route, identity.ModeSaaS)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if third == first {
		t.Error("Resolve() after a route update should not return the stale cached adapter")
	}
	if calls != 2 {
		t.Errorf("constructor was called %d times after the route changed, want 2", calls)
	}
}

func TestFactoryResolveMissingConstructor(t *testing.T) {
	guard := NewGuard(func(string) map[string]bool { return map[string]bool{"s3": true} })
	factory := NewFactory(guard, 16)

	route := routing.ResourceRoute{
		ID: "r1", ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendS3,
		UpdatedAt: time.Now(),
	}
	if _, err := factory.Resolve(context.Background(), route, identity.ModeSaaS); err == nil {
		t.Fatal("Resolve() with no constructor registered for (kind, backend_type) should fail")
	}
}

func TestTenantPrefix(t *testing.T) {
	ctx := identity.RequestContext{TenantID: "t_acme", Env: identity.EnvDev}
	if got, want := TenantPrefix(ctx), "t_acme/dev/"; got != want {
		t.Errorf("TenantPrefix() = %q, want %q", got, want)
	}
}
