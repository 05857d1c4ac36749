package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-labs/engines-controlplane/internal/audit"
	"github.com/r3e-labs/engines-controlplane/internal/events"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// controlPlaneSink is the composition root's single implementation of both
// routing.Sink and gate.Sink: every ROUTE_CHANGED and SAFETY_DECISION is
// appended to the durable event log (so a consumer can subscribe to it like
// any other stream). ROUTE_CHANGED is also written into the tenant's audit
// chain as a tamper-evident record (spec §4.7); SAFETY_DECISION is not
// written to any audit chain.
//
// Defined in the composition root rather than in internal/routing or
// internal/gate themselves, since both of those packages deliberately avoid
// importing internal/events/internal/audit to prevent the dependency cycle
// those subsystems create by resolving their own storage through routing.
type controlPlaneSink struct {
	eventStore events.Store
	auditChain audit.Chain
}

func newControlPlaneSink(eventStore events.Store, auditChain audit.Chain) *controlPlaneSink {
	return &controlPlaneSink{eventStore: eventStore, auditChain: auditChain}
}

// EmitRouteChanged satisfies routing.Sink.
func (s *controlPlaneSink) EmitRouteChanged(ctx context.Context, route routing.ResourceRoute, action string) error {
	envelope := events.EventEnvelope{
		TenantID:      route.TenantID,
		Mode:          "",
		Env:           route.Env,
		ProjectID:     route.ProjectID,
		ActorID:       "routing_registry",
		ActorType:     events.ActorSystem,
		EventID:       uuid.NewString(),
		EventType:     events.EventRouteChanged,
		Timestamp:     time.Now().UTC(),
		Severity:      events.SeverityInfo,
		SchemaVersion: 1,
		StorageClass:  events.StorageOps,
	}

	payload, err := json.Marshal(map[string]any{
		"action":        action,
		"resource_kind": route.ResourceKind,
		"backend_type":  route.BackendType,
		"rationale":     route.SwitchRationale,
	})
	if err != nil {
		return err
	}

	streamID := events.StreamName(string(routing.ResourceRoutingRegistry), route.TenantID)
	if s.eventStore != nil {
		if _, err := s.eventStore.Append(ctx, streamID, envelope, payload); err != nil {
			return err
		}
	}
	if s.auditChain != nil {
		if _, err := s.auditChain.Append(ctx, route.TenantID, string(events.EventRouteChanged), payload); err != nil {
			return err
		}
	}
	return nil
}

// EmitSafetyDecision satisfies gate.Sink.
func (s *controlPlaneSink) EmitSafetyDecision(ctx context.Context, decision gate.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	envelope := events.EventEnvelope{
		ActorID:       "gate_chain",
		ActorType:     events.ActorSystem,
		EventID:       uuid.NewString(),
		EventType:     events.EventSafetyDecision,
		Timestamp:     time.Now().UTC(),
		Severity:      events.SeverityInfo,
		SchemaVersion: 1,
		StorageClass:  events.StorageOps,
	}
	if decision.Result == "blocked" {
		envelope.Severity = events.SeverityWarn
	}

	if s.eventStore != nil {
		if _, err := s.eventStore.Append(ctx, "safety_decisions", envelope, payload); err != nil {
			return err
		}
	}
	return nil
}
