// Package redisadapter implements the backend.Memory capability contract
// over go-redis, the durable-class adapter for resource_kind=memory_store
// (redis is in the durable allow-list defaults set by config.New, unlike
// an in-process map).
package redisadapter

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Adapter implements backend.Memory over a redis.Client.
type Adapter struct {
	client *redis.Client
}

// New builds an Adapter for a redis instance at addr.
func New(addr, password string, db int) *Adapter {
	return &Adapter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Set satisfies backend.Memory.Set. ttl is in seconds; zero means no
// expiry.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl int64) error {
	var expiry time.Duration
	if ttl > 0 {
		expiry = time.Duration(ttl) * time.Second
	}
	if err := a.client.Set(ctx, key, value, expiry).Err(); err != nil {
		return errs.BackendUnavailable("memory_store", err)
	}
	return nil
}

// Get satisfies backend.Memory.Get.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := a.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.BackendUnavailable("memory_store", err)
	}
	return value, true, nil
}

// Delete satisfies backend.Memory.Delete.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, key).Err(); err != nil {
		return errs.BackendUnavailable("memory_store", err)
	}
	return nil
}
