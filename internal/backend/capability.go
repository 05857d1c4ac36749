// Package backend turns a routing.ResourceRoute into a typed adapter
// instance, enforcing the backend-class guard and caching adapters per
// (route.id, route.updated_at) (spec §4.3).
package backend

import (
	"context"
	"io"
)

// ObjectStore is the capability contract for resource_kind=object_store.
// Keys are tenant/env-prefixed by the resolver before reaching the
// adapter: adapters never see or choose the prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix, cursor string) (keys []string, nextCursor string, err error)
	Delete(ctx context.Context, key string) error
}

// EventStream is the capability contract for resource_kind=event_stream.
type EventStream interface {
	Append(ctx context.Context, streamID string, envelope, payload []byte, idempotencyKey string) (eventID string, err error)
	ListAfter(ctx context.Context, streamID, afterEventID string, limit int) (records [][]byte, err error)
	Tail(ctx context.Context, streamID, cursor string) (<-chan []byte, error)
}

// Tabular is the capability contract for resource_kind=tabular_store.
type Tabular interface {
	Upsert(ctx context.Context, table, key string, record []byte) error
	Get(ctx context.Context, table, key string, version *int64) ([]byte, error)
	List(ctx context.Context, table, prefix, cursor string) (records [][]byte, nextCursor string, err error)
}

// Memory is the capability contract for resource_kind=memory_store.
type Memory interface {
	Set(ctx context.Context, key string, value []byte, ttl int64) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Blackboard is the capability contract for resource_kind=blackboard_store
// (versioned write/read, spec §4.6).
type Blackboard interface {
	Write(ctx context.Context, streamKey, key string, value []byte, expectedVersion *int64, actor string) (version int64, err error)
	Read(ctx context.Context, streamKey, key string, version *int64) (value []byte, found bool, err error)
	ListKeys(ctx context.Context, streamKey string) ([]string, error)
}

// AnalyticsStore is the capability contract for resource_kind=analytics_store.
type AnalyticsStore interface {
	Ingest(ctx context.Context, envelope, payload []byte) error
	Query(ctx context.Context, filters map[string]any, cursor string) (records [][]byte, nextCursor string, err error)
}
