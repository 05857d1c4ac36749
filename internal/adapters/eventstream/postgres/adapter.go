// Package postgres adapts internal/events.PostgresStore to the
// backend.EventStream capability contract, the form the adapter factory
// resolves resource_kind=event_stream routes to.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/r3e-labs/engines-controlplane/internal/events"
)

// Adapter implements backend.EventStream over an events.Store.
type Adapter struct {
	store events.Store
}

// New wraps an existing events.Store (typically *events.PostgresStore,
// already resolved for the route's backend_type/config by the caller).
func New(store events.Store) *Adapter {
	return &Adapter{store: store}
}

// Append satisfies backend.EventStream.Append, marshaling the wire
// envelope/idempotency key back into an events.EventEnvelope.
func (a *Adapter) Append(ctx context.Context, streamID string, envelope, payload []byte, idempotencyKey string) (string, error) {
	var env events.EventEnvelope
	if err := json.Unmarshal(envelope, &env); err != nil {
		return "", err
	}
	env.IdempotencyKey = idempotencyKey
	return a.store.Append(ctx, streamID, env, payload)
}

// ListAfter satisfies backend.EventStream.ListAfter, re-serializing each
// StreamRecord to the opaque []byte the capability contract deals in.
func (a *Adapter) ListAfter(ctx context.Context, streamID, afterEventID string, limit int) ([][]byte, error) {
	records, err := a.store.ListAfter(ctx, streamID, afterEventID, limit)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(records))
	for _, r := range records {
		encoded, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}

// Tail satisfies backend.EventStream.Tail.
func (a *Adapter) Tail(ctx context.Context, streamID, cursor string) (<-chan []byte, error) {
	records, unsubscribe, err := a.store.Tail(ctx, streamID, cursor)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer unsubscribe()
		for record := range records {
			encoded, err := json.Marshal(record)
			if err != nil {
				continue
			}
			select {
			case out <- encoded:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
