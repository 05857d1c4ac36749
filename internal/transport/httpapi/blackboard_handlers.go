package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

func (s *Server) resolveBlackboard(w http.ResponseWriter, r *http.Request, action string) (backend.Blackboard, identity.RequestContext, bool) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return nil, rc, false
	}

	route, err := s.registry.Resolve(routing.ResourceBlackboardStore, rc)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, rc, false
	}

	chain := gate.NewChain(s.gateSink, s.logger)
	chain.Use("authenticated", gate.Authenticated(rc))
	chain.Use("tenant_membership", gate.TenantMembership(rc))
	chain.Use("backend_class", gate.BackendClass(s.guard, route, rc.Mode))
	if err := chain.Run(r.Context(), action); err != nil {
		gate.BlockHTTP(w, err)
		return nil, rc, false
	}

	adapter, err := s.factory.Resolve(r.Context(), route, rc.Mode)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, rc, false
	}
	bb, ok := adapter.(backend.Blackboard)
	if !ok {
		errs.WriteHTTPError(w, errs.BackendUnavailable(string(routing.ResourceBlackboardStore), nil))
		return nil, rc, false
	}
	return bb, rc, true
}

type blackboardWriteRequest struct {
	StreamKey       string          `json:"stream_key"`
	Key             string          `json:"key"`
	Value           json.RawMessage `json:"value"`
	ExpectedVersion *int64          `json:"expected_version"`
}

func (s *Server) handleBlackboardWrite(w http.ResponseWriter, r *http.Request) {
	bb, rc, ok := s.resolveBlackboard(w, r, "blackboard.write")
	if !ok {
		return
	}

	var req blackboardWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTPError(w, errs.New(errs.CodeContextMismatch, http.StatusBadRequest, "invalid request body"))
		return
	}

	version, err := bb.Write(r.Context(), req.StreamKey, req.Key, req.Value, req.ExpectedVersion, rc.ActorID)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (s *Server) handleBlackboardRead(w http.ResponseWriter, r *http.Request) {
	bb, _, ok := s.resolveBlackboard(w, r, "blackboard.read")
	if !ok {
		return
	}

	q := r.URL.Query()
	var version *int64
	if raw := q.Get("version"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			version = &parsed
		}
	}

	value, found, err := bb.Read(r.Context(), q.Get("stream_key"), q.Get("key"), version)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	if !found {
		errs.WriteHTTPError(w, errs.NotFound(string(routing.ResourceBlackboardStore), q.Get("key")))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(value)
}

func (s *Server) handleBlackboardKeys(w http.ResponseWriter, r *http.Request) {
	bb, _, ok := s.resolveBlackboard(w, r, "blackboard.list_keys")
	if !ok {
		return
	}
	keys, err := bb.ListKeys(r.Context(), r.URL.Query().Get("stream_key"))
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}
