package main

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	analyticspg "github.com/r3e-labs/engines-controlplane/internal/adapters/analytics/postgres"
	blackboardpg "github.com/r3e-labs/engines-controlplane/internal/adapters/blackboard/postgres"
	eventstreampg "github.com/r3e-labs/engines-controlplane/internal/adapters/eventstream/postgres"
	"github.com/r3e-labs/engines-controlplane/internal/adapters/objectstore/azureblob"
	"github.com/r3e-labs/engines-controlplane/internal/adapters/objectstore/labfs"
	"github.com/r3e-labs/engines-controlplane/internal/adapters/memory/redisadapter"
	"github.com/r3e-labs/engines-controlplane/internal/adapters/tabular/postgres"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/blackboard"
	"github.com/r3e-labs/engines-controlplane/internal/events"
	"github.com/r3e-labs/engines-controlplane/internal/platform/config"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// registerAdapters binds every known (resource_kind, backend_type) pair to
// its Constructor, grounded on the self-registering service pattern in
// applications/system/registry.go — generalized here from an init()-time
// registration (the teacher's services are fixed at compile time) into an
// explicit call from the composition root, since the constructors close
// over already-built shared stores (eventStore, bbStore) rather than
// building a fresh connection per adapter.
func registerAdapters(
	factory *backend.Factory,
	eventStore events.Store,
	bbStore blackboard.Store,
	tabularAdapter *postgres.Adapter,
	analyticsAdapter *analyticspg.Adapter,
	cfg *config.Config,
) {
	factory.Register(routing.ResourceEventStream, routing.BackendPostgres, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		return eventstreampg.New(eventStore), nil
	})

	factory.Register(routing.ResourceBlackboardStore, routing.BackendPostgres, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		return blackboardpg.New(bbStore), nil
	})

	factory.Register(routing.ResourceTabularStore, routing.BackendPostgres, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		return tabularAdapter, nil
	})

	factory.Register(routing.ResourceAnalyticsStore, routing.BackendPostgres, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		return analyticsAdapter, nil
	})

	factory.Register(routing.ResourceMemoryStore, routing.BackendRedis, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		addr := stringConfig(route.Config, "addr", cfg.Redis.Addr)
		password := stringConfig(route.Config, "password", cfg.Redis.Password)
		db := cfg.Redis.DB
		return redisadapter.New(addr, password, db), nil
	})

	factory.Register(routing.ResourceObjectStore, routing.BackendAzureBlob, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		container := stringConfig(route.Config, "container", "")
		if container == "" {
			return nil, fmt.Errorf("azureblob route %s missing config.container", route.ID)
		}

		// A handful of client-level retries on Azure calls before an error
		// surfaces; backend.Factory itself calls each constructor once and
		// does not retry.
		clientOpts := azblob.ClientOptions{
			ClientOptions: policy.ClientOptions{
				Retry: policy.RetryOptions{MaxRetries: 3},
			},
		}

		// Two auth paths: a connection string (lab/dev, static credentials
		// in config) or the ambient Azure identity (saas/enterprise, no
		// secret ever stored in the routing table) when account_url is set
		// instead.
		if accountURL := stringConfig(route.Config, "account_url", ""); accountURL != "" {
			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("azureblob route %s: resolve default azure credential: %w", route.ID, err)
			}
			client, err := azblob.NewClient(accountURL, cred, &clientOpts)
			if err != nil {
				return nil, err
			}
			return azureblob.New(client, container), nil
		}

		connStr := stringConfig(route.Config, "connection_string", "")
		if connStr == "" {
			return nil, fmt.Errorf("azureblob route %s missing config.connection_string or config.account_url", route.ID)
		}
		client, err := azblob.NewClientFromConnectionString(connStr, &clientOpts)
		if err != nil {
			return nil, err
		}
		return azureblob.New(client, container), nil
	})

	factory.Register(routing.ResourceObjectStore, routing.BackendFilesystem, func(ctx context.Context, route routing.ResourceRoute) (any, error) {
		root := stringConfig(route.Config, "root", "./data/lab-object-store")
		return labfs.New(root)
	})
}

func stringConfig(cfg map[string]any, key, fallback string) string {
	if cfg == nil {
		return fallback
	}
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
