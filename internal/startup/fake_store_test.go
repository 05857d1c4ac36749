package startup

import (
	"context"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// fakeRoutingStore is a minimal in-memory routing.Store used to exercise
// the Validator without a database.
type fakeRoutingStore struct {
	routes map[string]routing.ResourceRoute
}

func newFakeRoutingStore(routes ...routing.ResourceRoute) *fakeRoutingStore {
	s := &fakeRoutingStore{routes: make(map[string]routing.ResourceRoute)}
	for _, r := range routes {
		s.routes[r.ID] = r
	}
	return s
}

func (s *fakeRoutingStore) Upsert(ctx context.Context, route routing.ResourceRoute) (routing.ResourceRoute, error) {
	s.routes[route.ID] = route
	return route, nil
}

func (s *fakeRoutingStore) Get(ctx context.Context, id string) (routing.ResourceRoute, error) {
	route, ok := s.routes[id]
	if !ok {
		return routing.ResourceRoute{}, errs.NotFound(string(routing.ResourceRoutingRegistry), id)
	}
	return route, nil
}

func (s *fakeRoutingStore) List(ctx context.Context, filters routing.ListFilters) ([]routing.ResourceRoute, error) {
	var out []routing.ResourceRoute
	for _, r := range s.routes {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeRoutingStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.routes[id]; !ok {
		return errs.NotFound(string(routing.ResourceRoutingRegistry), id)
	}
	delete(s.routes, id)
	return nil
}
