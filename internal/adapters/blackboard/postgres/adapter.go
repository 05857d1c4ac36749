// Package postgres adapts internal/blackboard.PostgresStore to the
// backend.Blackboard capability contract.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/r3e-labs/engines-controlplane/internal/blackboard"
)

// Adapter implements backend.Blackboard over a blackboard.Store.
type Adapter struct {
	store blackboard.Store
}

// New wraps an existing blackboard.Store.
func New(store blackboard.Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) Write(ctx context.Context, streamKey, key string, value []byte, expectedVersion *int64, actor string) (int64, error) {
	entry, err := a.store.Write(ctx, streamKey, key, value, expectedVersion, actor)
	if err != nil {
		return 0, err
	}
	return entry.Version, nil
}

func (a *Adapter) Read(ctx context.Context, streamKey, key string, version *int64) ([]byte, bool, error) {
	entry, found, err := a.store.Read(ctx, streamKey, key, version)
	if err != nil || !found {
		return nil, found, err
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, false, err
	}
	return encoded, true, nil
}

func (a *Adapter) ListKeys(ctx context.Context, streamKey string) ([]string, error) {
	return a.store.ListKeys(ctx, streamKey)
}
