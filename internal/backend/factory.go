package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/platform/metrics"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// Constructor builds an adapter instance from a resolved route's config.
// The returned value is one of the capability interfaces in capability.go;
// callers type-assert to the contract they need.
type Constructor func(ctx context.Context, route routing.ResourceRoute) (any, error)

// cacheKey is (route.id, route.updated_at): a route change produces a new
// key, so resolving after an update never returns a stale adapter without
// needing an explicit invalidation call (spec §4.3).
type cacheKey struct {
	routeID   string
	updatedAt int64
}

// Factory resolves a ResourceRoute into a typed adapter, enforcing the
// backend-class guard and caching instances per (route.id, route.updated_at).
// Grounded on the ServiceRegistry map-of-factories shape in
// applications/system/registry.go, generalized from name-keyed service
// factories into (resource_kind, backend_type)-keyed adapter constructors,
// plus an LRU result cache the teacher's registry does not need (it
// constructs each service exactly once at boot; this resolves per request).
type Factory struct {
	mu           sync.Mutex
	constructors map[routing.ResourceKind]map[routing.BackendType]Constructor
	guard        *Guard
	cache        *lru.Cache[cacheKey, any]
}

// NewFactory builds a Factory whose adapter cache holds up to cacheSize
// live instances.
func NewFactory(guard *Guard, cacheSize int) *Factory {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, _ := lru.New[cacheKey, any](cacheSize)
	return &Factory{
		constructors: make(map[routing.ResourceKind]map[routing.BackendType]Constructor),
		guard:        guard,
		cache:        cache,
	}
}

// Register binds a Constructor for (kind, backendType). The composition
// root (cmd/appserver's registerAdapters) calls this explicitly at boot for
// every pair the deployment supports.
func (f *Factory) Register(kind routing.ResourceKind, backendType routing.BackendType, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.constructors[kind] == nil {
		f.constructors[kind] = make(map[routing.BackendType]Constructor)
	}
	f.constructors[kind][backendType] = ctor
}

// Resolve builds (or returns the cached) adapter for route, after checking
// the backend-class guard for mode.
func (f *Factory) Resolve(ctx context.Context, route routing.ResourceRoute, mode identity.Mode) (any, error) {
	start := time.Now()
	if err := f.guard.Check(route, mode); err != nil {
		return nil, err
	}

	key := cacheKey{routeID: route.ID, updatedAt: route.UpdatedAt.UnixNano()}
	if cached, ok := f.cache.Get(key); ok {
		metrics.ObserveAdapterResolve(string(route.ResourceKind), string(route.BackendType), true, time.Since(start))
		return cached, nil
	}

	f.mu.Lock()
	byBackend := f.constructors[route.ResourceKind]
	var ctor Constructor
	if byBackend != nil {
		ctor = byBackend[route.BackendType]
	}
	f.mu.Unlock()

	if ctor == nil {
		return nil, errs.Wrap(errs.CodeBackendUnavailable, 500,
			fmt.Sprintf("no adapter registered for %s/%s", route.ResourceKind, route.BackendType), nil)
	}

	adapter, err := ctor(ctx, route)
	if err != nil {
		return nil, errs.BackendUnavailable(string(route.ResourceKind), err)
	}

	f.cache.Add(key, adapter)
	metrics.ObserveAdapterResolve(string(route.ResourceKind), string(route.BackendType), false, time.Since(start))
	return adapter, nil
}

// TenantPrefix builds the tenant/env key prefix ObjectStore adapters must
// have applied to every key they touch (spec §4.3: "adapters cannot bypass
// the prefix").
func TenantPrefix(ctx identity.RequestContext) string {
	return fmt.Sprintf("%s/%s/", ctx.TenantID, ctx.Env)
}
