// Package routing implements the Routing Registry (spec §4.2): the single
// data-driven source of truth mapping (resource_kind, tenant_id, env,
// project_id) to the ResourceRoute naming which backend instance serves it.
package routing

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ResourceKind enumerates the capability contracts a route can resolve
// (spec §3, §4.3).
type ResourceKind string

const (
	ResourceObjectStore     ResourceKind = "object_store"
	ResourceEventStream     ResourceKind = "event_stream"
	ResourceTabularStore    ResourceKind = "tabular_store"
	ResourceMetricsStore    ResourceKind = "metrics_store"
	ResourceMemoryStore     ResourceKind = "memory_store"
	ResourceBlackboardStore ResourceKind = "blackboard_store"
	ResourceAnalyticsStore  ResourceKind = "analytics_store"
	ResourceRoutingRegistry ResourceKind = "routing_registry"
)

// BackendType names the concrete adapter implementation a route selects.
// The durable/forbidden split enforced by the backend-class guard lives in
// internal/backend, not here: the registry stores whatever backend_type a
// caller upserts, and only the guard decides whether resolving it is
// permitted for the current mode.
type BackendType string

const (
	BackendFirestore  BackendType = "firestore"
	BackendDynamoDB   BackendType = "dynamodb"
	BackendCosmos     BackendType = "cosmos"
	BackendS3         BackendType = "s3"
	BackendGCS        BackendType = "gcs"
	BackendAzureBlob  BackendType = "azureblob"
	BackendRedis      BackendType = "redis"
	BackendPostgres   BackendType = "postgres"
	BackendLanceDB    BackendType = "lancedb"
	BackendFilesystem BackendType = "filesystem"
	BackendInMemory   BackendType = "in_memory"
	BackendNoop       BackendType = "noop"
)

// ResourceRoute is the durable routing record (spec §3).
type ResourceRoute struct {
	ID           string       `db:"id" json:"id" validate:"required"`
	ResourceKind ResourceKind `db:"resource_kind" json:"resource_kind" validate:"required"`

	TenantID  string `db:"tenant_id" json:"tenant_id" validate:"required"`
	Env       string `db:"env" json:"env" validate:"required"`
	ProjectID string `db:"project_id" json:"project_id,omitempty"`
	SurfaceID string `db:"surface_id" json:"surface_id,omitempty"`

	BackendType BackendType    `db:"backend_type" json:"backend_type" validate:"required"`
	Config      map[string]any `db:"config" json:"config,omitempty"`

	Required bool   `db:"required" json:"required"`
	Tier     string `db:"tier" json:"tier,omitempty"`
	CostNotes    string `db:"cost_notes" json:"cost_notes,omitempty"`
	HealthStatus string `db:"health_status" json:"health_status,omitempty"`

	PreviousBackendType BackendType `db:"previous_backend_type" json:"previous_backend_type,omitempty"`
	LastSwitchTime      *time.Time  `db:"last_switch_time" json:"last_switch_time,omitempty"`
	SwitchRationale     string      `db:"switch_rationale" json:"switch_rationale,omitempty"`

	DeletedAt *time.Time `db:"deleted_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the struct-tag invariants above via go-playground/
// validator — every ResourceRoute must name its id, resource_kind,
// tenant_id, env, and backend_type before it reaches the durable store.
func (r ResourceRoute) Validate() error {
	if err := structValidator.Struct(r); err != nil {
		return err
	}
	return nil
}

// scopeKey is the lookup key used by both the durable store's WHERE clause
// and the in-memory mirror's map key: (resource_kind, tenant_id, env,
// project_id). project_id is empty for a tenant/env default row.
type scopeKey struct {
	ResourceKind ResourceKind
	TenantID     string
	Env          string
	ProjectID    string
}
