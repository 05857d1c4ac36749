package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// fakeStore is an in-memory Store used to exercise Registry without a
// database, mirroring the fake-dependency style of
// applications/system/registry_test.go's mockDeps/testService in this
// lineage.
type fakeStore struct {
	mu     sync.Mutex
	routes map[string]ResourceRoute
}

func newFakeStore(routes ...ResourceRoute) *fakeStore {
	s := &fakeStore{routes: make(map[string]ResourceRoute)}
	for _, r := range routes {
		s.routes[r.ID] = r
	}
	return s
}

func (s *fakeStore) Upsert(ctx context.Context, route ResourceRoute) (ResourceRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if route.ID == "" {
		route.ID = string(route.ResourceKind) + "/" + route.TenantID + "/" + route.Env + "/" + route.ProjectID
	}
	s.routes[route.ID] = route
	return route, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (ResourceRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route, ok := s.routes[id]
	if !ok {
		return ResourceRoute{}, errs.NotFound(string(ResourceRoutingRegistry), id)
	}
	return route, nil
}

func (s *fakeStore) List(ctx context.Context, filters ListFilters) ([]ResourceRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ResourceRoute
	for _, r := range s.routes {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[id]; !ok {
		return errs.NotFound(string(ResourceRoutingRegistry), id)
	}
	delete(s.routes, id)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	emitted []string
}

func (f *fakeSink) EmitRouteChanged(ctx context.Context, route ResourceRoute, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, action+":"+route.ID)
	return nil
}

func exactRoute() ResourceRoute {
	return ResourceRoute{
		ID: "exact", ResourceKind: ResourceObjectStore,
		TenantID: "t_acme", Env: "dev", ProjectID: "proj_1",
		BackendType: BackendS3,
	}
}

func tenantDefaultRoute() ResourceRoute {
	return ResourceRoute{
		ID: "tenant_default", ResourceKind: ResourceObjectStore,
		TenantID: "t_acme", Env: "dev", ProjectID: "",
		BackendType: BackendGCS,
	}
}

func globalDefaultRoute() ResourceRoute {
	return ResourceRoute{
		ID: "global_default", ResourceKind: ResourceObjectStore,
		TenantID: identity.SystemTenant, Env: "dev", ProjectID: "",
		BackendType: BackendFirestore,
	}
}

func TestRegistryResolvePrecedence(t *testing.T) {
	store := newFakeStore(exactRoute(), tenantDefaultRoute(), globalDefaultRoute())
	registry := NewRegistry(store, nil, nil)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned %v", err)
	}

	// Exact (kind, tenant, env, project) wins over every other tier.
	ctx := identity.RequestContext{TenantID: "t_acme", Env: "dev", ProjectID: "proj_1"}
	route, err := registry.Resolve(ResourceObjectStore, ctx)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if route.ID != "exact" {
		t.Errorf("Resolve() = %q, want the exact-scope route", route.ID)
	}

	// A different project_id for the same tenant/env falls back to the
	// tenant/env default.
	ctx.ProjectID = "proj_other"
	route, err = registry.Resolve(ResourceObjectStore, ctx)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if route.ID != "tenant_default" {
		t.Errorf("Resolve() = %q, want the tenant/env default route", route.ID)
	}

	// An unknown tenant falls all the way back to the global (t_system) default.
	ctx = identity.RequestContext{TenantID: "t_unknown", Env: "dev", ProjectID: "whatever"}
	route, err = registry.Resolve(ResourceObjectStore, ctx)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if route.ID != "global_default" {
		t.Errorf("Resolve() = %q, want the global default route", route.ID)
	}
}

func TestRegistryResolveMissingRoute(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry(store, nil, nil)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned %v", err)
	}

	ctx := identity.RequestContext{TenantID: "t_acme", Env: "dev", ProjectID: "proj_1"}
	if _, err := registry.Resolve(ResourceObjectStore, ctx); err == nil {
		t.Fatal("Resolve() with no matching route at any tier should return missing_route")
	}
}

func TestRegistryResolveBaseline(t *testing.T) {
	baseline := ResourceRoute{
		ID: "baseline", ResourceKind: ResourceEventStream,
		TenantID: identity.SystemTenant, Env: string(identity.EnvDev), ProjectID: "",
		BackendType: BackendPostgres,
	}
	store := newFakeStore(baseline)
	registry := NewRegistry(store, nil, nil)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned %v", err)
	}

	route, err := registry.ResolveBaseline(ResourceEventStream)
	if err != nil {
		t.Fatalf("ResolveBaseline() returned %v", err)
	}
	if route.ID != "baseline" {
		t.Errorf("ResolveBaseline() = %q, want %q", route.ID, "baseline")
	}

	if _, err := registry.ResolveBaseline(ResourceTabularStore); err == nil {
		t.Fatal("ResolveBaseline() for an unconfigured kind should fail")
	}
}

func TestRegistryUpsertAndDeleteUpdateMirror(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	registry := NewRegistry(store, sink, nil)

	route := ResourceRoute{
		ResourceKind: ResourceMemoryStore, TenantID: "t_acme", Env: "dev", ProjectID: "proj_1",
		BackendType: BackendRedis,
	}
	saved, err := registry.UpsertRoute(context.Background(), route)
	if err != nil {
		t.Fatalf("UpsertRoute() returned %v", err)
	}

	if _, ok := registry.GetRoute(saved.ID); !ok {
		t.Fatal("GetRoute() should find the route immediately after UpsertRoute")
	}

	ctx := identity.RequestContext{TenantID: "t_acme", Env: "dev", ProjectID: "proj_1"}
	if _, err := registry.Resolve(ResourceMemoryStore, ctx); err != nil {
		t.Errorf("Resolve() after UpsertRoute returned %v, want the route to be immediately resolvable", err)
	}

	if err := registry.DeleteRoute(context.Background(), saved.ID); err != nil {
		t.Fatalf("DeleteRoute() returned %v", err)
	}
	if _, ok := registry.GetRoute(saved.ID); ok {
		t.Error("GetRoute() should not find the route after DeleteRoute")
	}
	if _, err := registry.Resolve(ResourceMemoryStore, ctx); err == nil {
		t.Error("Resolve() after DeleteRoute should no longer find the route")
	}

	if len(sink.emitted) != 2 {
		t.Errorf("sink recorded %d events, want 2 (one upsert, one delete)", len(sink.emitted))
	}
}

func TestRegistryDeleteUnknownRoute(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry(store, nil, nil)
	if err := registry.DeleteRoute(context.Background(), "missing"); err == nil {
		t.Fatal("DeleteRoute() for an unknown id should fail")
	}
}
