package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

func (s *Server) requireContext(w http.ResponseWriter, r *http.Request) (identity.RequestContext, bool) {
	rc, ok := requestContextFrom(r.Context())
	if !ok {
		errs.WriteHTTPError(w, errs.AuthMissingOrInvalid(nil))
		return identity.RequestContext{}, false
	}
	return rc, true
}

// routeMutationGates builds the gate chain every routing-registry write
// runs through (spec §4.8's canonical order for a durable-write endpoint).
func (s *Server) routeMutationGates(rc identity.RequestContext, supplied identity.IdentitySuppliedFields) *gate.Chain {
	chain := gate.NewChain(s.gateSink, s.logger)
	chain.Use("authenticated", gate.Authenticated(rc))
	chain.Use("tenant_membership", gate.TenantMembership(rc))
	chain.Use("identity_override", gate.IdentityOverride(rc, supplied))
	if s.rateLimit != nil {
		chain.Use("rate_limit", s.rateLimit.Gate(rc.TenantID))
	}
	return chain
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return
	}

	filters := routing.ListFilters{
		ResourceKind: routing.ResourceKind(r.URL.Query().Get("resource_kind")),
		TenantID:     rc.TenantID,
		Env:          string(rc.Env),
	}
	writeJSON(w, http.StatusOK, s.registry.ListRoutes(filters))
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireContext(w, r); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	route, ok := s.registry.GetRoute(id)
	if !ok {
		errs.WriteHTTPError(w, errs.NotFound(string(routing.ResourceRoutingRegistry), id))
		return
	}
	writeJSON(w, http.StatusOK, route)
}

type upsertRouteRequest struct {
	ResourceRoute   routing.ResourceRoute           `json:"route"`
	SuppliedFields  identity.IdentitySuppliedFields `json:"identity"`
	SwitchRationale string                          `json:"switch_rationale"`
}

func (s *Server) handleUpsertRoute(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return
	}

	var req upsertRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTPError(w, errs.New(errs.CodeContextMismatch, http.StatusBadRequest, "invalid request body"))
		return
	}

	if err := s.routeMutationGates(rc, req.SuppliedFields).Run(r.Context(), "routing.upsert_route"); err != nil {
		gate.BlockHTTP(w, err)
		return
	}

	route := req.ResourceRoute
	route.TenantID = rc.TenantID
	route.Env = string(rc.Env)
	route.SwitchRationale = req.SwitchRationale

	saved, err := s.registry.UpsertRoute(r.Context(), route)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return
	}

	if err := s.routeMutationGates(rc, identity.IdentitySuppliedFields{}).Run(r.Context(), "routing.delete_route"); err != nil {
		gate.BlockHTTP(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteRoute(r.Context(), id); err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
