package routing

import (
	"context"
	"sync"
	"time"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/platform/metrics"
)

// Sink receives the side effects of a route mutation: a ROUTE_CHANGED
// stream event and an audit entry (spec §4.2). Defined here rather than
// importing internal/events/internal/audit directly, to avoid a dependency
// cycle (those packages themselves resolve their backend through routing).
type Sink interface {
	EmitRouteChanged(ctx context.Context, route ResourceRoute, action string) error
}

// Registry is the in-memory mirror of the routing table: the shared,
// concurrently-read mutable structure spec §5 names alongside the adapter
// cache and membership cache. It is the single-writer-guarding-a-map
// pattern from applications/system/registry.go's ServiceRegistry,
// generalized from a name-keyed service map into the four-tier scope-keyed
// route map the lookup algorithm needs.
//
// Registry does not talk to the database directly: Store is the durable
// source of truth, Registry is a read-through cache over it kept warm by
// Refresh and invalidated by any Upsert/Delete that goes through this type.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]ResourceRoute
	byScope map[scopeKey]ResourceRoute

	store  Store
	sink   Sink
	logger *logging.Logger
}

// NewRegistry builds a Registry over store, emitting side effects through
// sink. sink may be nil during startup bootstrap before the event/audit
// subsystems are wired.
func NewRegistry(store Store, sink Sink, logger *logging.Logger) *Registry {
	return &Registry{
		byID:    make(map[string]ResourceRoute),
		byScope: make(map[scopeKey]ResourceRoute),
		store:   store,
		sink:    sink,
		logger:  logger,
	}
}

// Refresh reloads the entire mirror from the durable store. Call on boot
// and after any external change (e.g. a peer process's mutation) is
// observed.
func (r *Registry) Refresh(ctx context.Context) error {
	routes, err := r.store.List(ctx, ListFilters{})
	if err != nil {
		return err
	}

	byID := make(map[string]ResourceRoute, len(routes))
	byScope := make(map[scopeKey]ResourceRoute, len(routes))
	for _, route := range routes {
		byID[route.ID] = route
		byScope[scopeKey{ResourceKind: route.ResourceKind, TenantID: route.TenantID, Env: route.Env, ProjectID: route.ProjectID}] = route
	}

	r.mu.Lock()
	r.byID = byID
	r.byScope = byScope
	r.mu.Unlock()
	return nil
}

// UpsertRoute creates or updates a route, writing through to the durable
// store, updating the mirror, and emitting ROUTE_CHANGED + audit (spec
// §4.2).
func (r *Registry) UpsertRoute(ctx context.Context, route ResourceRoute) (ResourceRoute, error) {
	if err := route.Validate(); err != nil {
		return ResourceRoute{}, errs.RouteInvalid(err)
	}

	saved, err := r.store.Upsert(ctx, route)
	if err != nil {
		return ResourceRoute{}, err
	}

	r.mu.Lock()
	r.byID[saved.ID] = saved
	r.byScope[scopeKey{ResourceKind: saved.ResourceKind, TenantID: saved.TenantID, Env: saved.Env, ProjectID: saved.ProjectID}] = saved
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.LogRouteChange(ctx, string(saved.ResourceKind), string(saved.PreviousBackendType), string(saved.BackendType), saved.SwitchRationale)
	}
	if r.sink != nil {
		if err := r.sink.EmitRouteChanged(ctx, saved, "upsert"); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// DeleteRoute soft-deletes a route and emits ROUTE_CHANGED + audit.
func (r *Registry) DeleteRoute(ctx context.Context, id string) error {
	r.mu.RLock()
	route, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return errs.NotFound(string(ResourceRoutingRegistry), id)
	}

	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.byID, id)
	delete(r.byScope, scopeKey{ResourceKind: route.ResourceKind, TenantID: route.TenantID, Env: route.Env, ProjectID: route.ProjectID})
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.EmitRouteChanged(ctx, route, "delete"); err != nil {
			return err
		}
	}
	return nil
}

// GetRoute returns a single route by id.
func (r *Registry) GetRoute(id string) (ResourceRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.byID[id]
	return route, ok
}

// ListRoutes returns every route in the mirror matching filters. Unlike
// Store.List, this never touches the database.
func (r *Registry) ListRoutes(filters ListFilters) []ResourceRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ResourceRoute
	for _, route := range r.byID {
		if filters.ResourceKind != "" && route.ResourceKind != filters.ResourceKind {
			continue
		}
		if filters.TenantID != "" && route.TenantID != filters.TenantID {
			continue
		}
		if filters.Env != "" && route.Env != filters.Env {
			continue
		}
		out = append(out, route)
	}
	return out
}

// Resolve implements the most-specific-wins lookup algorithm (spec §4.2):
//  1. exact (kind, tenant, env, project)
//  2. (kind, tenant, env, null project)
//  3. (kind, t_system, env, null project) — the global default
//  4. missing_route (503)
func (r *Registry) Resolve(kind ResourceKind, ctx identity.RequestContext) (ResourceRoute, error) {
	start := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if route, ok := r.byScope[scopeKey{ResourceKind: kind, TenantID: ctx.TenantID, Env: string(ctx.Env), ProjectID: ctx.ProjectID}]; ok {
		metrics.ObserveRouteResolution(string(kind), "exact", time.Since(start))
		return route, nil
	}
	if route, ok := r.byScope[scopeKey{ResourceKind: kind, TenantID: ctx.TenantID, Env: string(ctx.Env), ProjectID: ""}]; ok {
		metrics.ObserveRouteResolution(string(kind), "tenant_env", time.Since(start))
		return route, nil
	}
	if route, ok := r.byScope[scopeKey{ResourceKind: kind, TenantID: identity.SystemTenant, Env: string(ctx.Env), ProjectID: ""}]; ok {
		metrics.ObserveRouteResolution(string(kind), "baseline", time.Since(start))
		return route, nil
	}
	metrics.ObserveRouteResolution(string(kind), "missing", time.Since(start))
	return ResourceRoute{}, errs.MissingRoute(string(kind))
}

// ResolveBaseline resolves the (t_system, dev, null project) baseline route
// used by the startup validator (spec §4.4).
func (r *Registry) ResolveBaseline(kind ResourceKind) (ResourceRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.byScope[scopeKey{ResourceKind: kind, TenantID: identity.SystemTenant, Env: string(identity.EnvDev), ProjectID: ""}]
	if !ok {
		return ResourceRoute{}, errs.MissingRoute(string(kind))
	}
	return route, nil
}
