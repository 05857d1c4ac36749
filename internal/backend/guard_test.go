package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

func durableAllowList(mode string) map[string]bool {
	allowed := map[string]bool{"postgres": true, "s3": true, "redis": true}
	if mode == "lab" {
		allowed["filesystem"] = true
	}
	return allowed
}

func TestGuardForbidsNonDurableBackendsInSellableModes(t *testing.T) {
	guard := NewGuard(durableAllowList)

	forbidden := []routing.BackendType{
		routing.BackendFilesystem, routing.BackendInMemory, routing.BackendNoop,
		"local", "tmp", "localhost-dev",
	}
	for _, backendType := range forbidden {
		for _, mode := range []identity.Mode{identity.ModeSaaS, identity.ModeEnterprise} {
			route := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: backendType}
			assert.Error(t, guard.Check(route, mode), "backend_type=%q mode=%q", backendType, mode)
		}
	}
}

func TestGuardPermitsFilesystemOnlyInLabMode(t *testing.T) {
	guard := NewGuard(durableAllowList)
	route := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendFilesystem}

	assert.NoError(t, guard.Check(route, identity.ModeLab))
	assert.Error(t, guard.Check(route, identity.ModeSaaS))
}

func TestGuardEnforcesAllowList(t *testing.T) {
	guard := NewGuard(durableAllowList)
	route := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendDynamoDB}
	assert.Error(t, guard.Check(route, identity.ModeSaaS))

	allowedRoute := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendS3}
	assert.NoError(t, guard.Check(allowedRoute, identity.ModeSaaS))
}

func TestGuardWithNilAllowListPermitsAnyNonForbiddenBackend(t *testing.T) {
	guard := NewGuard(nil)
	route := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendDynamoDB}
	assert.NoError(t, guard.Check(route, identity.ModeSaaS))
}
