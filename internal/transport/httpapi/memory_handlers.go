package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

func (s *Server) resolveMemory(w http.ResponseWriter, r *http.Request, action string) (backend.Memory, bool) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return nil, false
	}

	route, err := s.registry.Resolve(routing.ResourceMemoryStore, rc)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, false
	}

	chain := gate.NewChain(s.gateSink, s.logger)
	chain.Use("authenticated", gate.Authenticated(rc))
	chain.Use("tenant_membership", gate.TenantMembership(rc))
	chain.Use("backend_class", gate.BackendClass(s.guard, route, rc.Mode))
	if err := chain.Run(r.Context(), action); err != nil {
		gate.BlockHTTP(w, err)
		return nil, false
	}

	adapter, err := s.factory.Resolve(r.Context(), route, rc.Mode)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, false
	}
	mem, ok := adapter.(backend.Memory)
	if !ok {
		errs.WriteHTTPError(w, errs.BackendUnavailable(string(routing.ResourceMemoryStore), nil))
		return nil, false
	}
	return mem, true
}

type memorySetRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	TTL   int64           `json:"ttl_seconds"`
}

func (s *Server) handleMemorySet(w http.ResponseWriter, r *http.Request) {
	mem, ok := s.resolveMemory(w, r, "memory.set")
	if !ok {
		return
	}

	var req memorySetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTPError(w, errs.New(errs.CodeContextMismatch, http.StatusBadRequest, "invalid request body"))
		return
	}

	if err := mem.Set(r.Context(), req.Key, req.Value, req.TTL); err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	mem, ok := s.resolveMemory(w, r, "memory.get")
	if !ok {
		return
	}

	key := r.URL.Query().Get("key")
	value, found, err := mem.Get(r.Context(), key)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	if !found {
		errs.WriteHTTPError(w, errs.NotFound(string(routing.ResourceMemoryStore), key))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(value)
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	mem, ok := s.resolveMemory(w, r, "memory.delete")
	if !ok {
		return
	}
	if err := mem.Delete(r.Context(), r.URL.Query().Get("key")); err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
