// Package events implements the Event Envelope & Append-Only Stream Store
// (spec §4.5): a uniform, replayable, durable event log shared by every
// domain and infra stream in the system.
package events

import "time"

// ActorType classifies who produced an event (spec §3).
type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
	ActorTool   ActorType = "tool"
)

// Severity is the envelope's log-level-like classification.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// StorageClass routes an envelope to the stream tier it belongs in.
type StorageClass string

const (
	StorageOps    StorageClass = "ops"
	StorageAudit  StorageClass = "audit"
	StorageStream StorageClass = "stream"
	StorageCost   StorageClass = "cost"
	StorageMetric StorageClass = "metric"
)

// EventType enumerates the control-plane event kinds this system emits by
// itself; domain services may define additional event types freely, the
// envelope does not constrain EventType to this set.
type EventType string

const (
	EventRouteChanged    EventType = "ROUTE_CHANGED"
	EventSafetyDecision  EventType = "SAFETY_DECISION"
	EventAuthViolation   EventType = "auth_violation"
	EventAuditRetention  EventType = "AUDIT_RETENTION"
)

// EventEnvelope is carried by every persisted event (spec §3). It is never
// mutated after emission.
type EventEnvelope struct {
	TenantID  string `json:"tenant_id"`
	Mode      string `json:"mode"`
	Env       string `json:"env"`
	ProjectID string `json:"project_id"`
	AppID     string `json:"app_id,omitempty"`
	SurfaceID string `json:"surface_id,omitempty"`

	ActorID   string    `json:"actor_id"`
	ActorType ActorType `json:"actor_type"`

	ThreadID string `json:"thread_id,omitempty"`
	CanvasID string `json:"canvas_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	EventID   string `json:"event_id"`
	RequestID string `json:"request_id"`
	TraceID   string `json:"trace_id"`
	RunID     string `json:"run_id,omitempty"`
	StepID    string `json:"step_id,omitempty"`

	EventType     EventType    `json:"event_type"`
	Timestamp     time.Time    `json:"timestamp"`
	Severity      Severity     `json:"severity"`
	SchemaVersion int          `json:"schema_version"`
	StorageClass  StorageClass `json:"storage_class"`
	PIIFlags      []string     `json:"pii_flags,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate checks the envelope invariants from spec §3: required routing
// keys non-empty. event_id monotonicity is enforced by the store, not here.
func (e EventEnvelope) Validate() error {
	if e.TenantID == "" || e.Mode == "" || e.Env == "" || e.ProjectID == "" {
		return errRequiredRoutingKey
	}
	if e.ActorID == "" {
		return errRequiredRoutingKey
	}
	return nil
}

// StreamRecord is an EventEnvelope plus its domain payload and the
// deterministic prev_event_id link within its stream (spec §3).
type StreamRecord struct {
	Envelope     EventEnvelope   `json:"envelope"`
	Payload      []byte          `json:"payload"`
	PrevEventID  string          `json:"prev_event_id,omitempty"`
}

// StreamName builds the "{resource_kind}/{tenant_id}" name used by infra
// streams (spec §4.5); domain streams instead use a domain id directly
// (thread_id, canvas_id) and do not go through this helper.
func StreamName(resourceKind, tenantID string) string {
	return resourceKind + "/" + tenantID
}
