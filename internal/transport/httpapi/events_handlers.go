package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// resolveEventStream resolves the route for resource_kind=event_stream
// under rc's scope and builds its backend.EventStream adapter, running the
// backend-class gate first (spec §4.3, §4.8).
func (s *Server) resolveEventStream(w http.ResponseWriter, r *http.Request) (backend.EventStream, bool) {
	rc, ok := s.requireContext(w, r)
	if !ok {
		return nil, false
	}

	route, err := s.registry.Resolve(routing.ResourceEventStream, rc)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, false
	}

	chain := gate.NewChain(s.gateSink, s.logger)
	chain.Use("authenticated", gate.Authenticated(rc))
	chain.Use("tenant_membership", gate.TenantMembership(rc))
	chain.Use("backend_class", gate.BackendClass(s.guard, route, rc.Mode))
	if err := chain.Run(r.Context(), "events.append"); err != nil {
		gate.BlockHTTP(w, err)
		return nil, false
	}

	adapter, err := s.factory.Resolve(r.Context(), route, rc.Mode)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return nil, false
	}
	stream, ok := adapter.(backend.EventStream)
	if !ok {
		errs.WriteHTTPError(w, errs.BackendUnavailable(string(routing.ResourceEventStream), nil))
		return nil, false
	}
	return stream, true
}

type appendEventRequest struct {
	StreamID       string          `json:"stream_id"`
	Envelope       json.RawMessage `json:"envelope"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (s *Server) handleEventsAppend(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.resolveEventStream(w, r)
	if !ok {
		return
	}

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTPError(w, errs.New(errs.CodeContextMismatch, http.StatusBadRequest, "invalid request body"))
		return
	}

	eventID, err := stream.Append(r.Context(), req.StreamID, req.Envelope, req.Payload, req.IdempotencyKey)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": eventID})
}

func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.resolveEventStream(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := stream.ListAfter(r.Context(), q.Get("stream_id"), q.Get("after_event_id"), limit)
	if err != nil {
		errs.WriteHTTPError(w, err)
		return
	}

	raw := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		raw = append(raw, json.RawMessage(rec))
	}
	writeJSON(w, http.StatusOK, raw)
}
