package startup

import (
	"context"
	"testing"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

func testLogger() *logging.Logger {
	return logging.New("startup-test", "error", "json")
}

func baselineRoute(kind routing.ResourceKind, backendType routing.BackendType) routing.ResourceRoute {
	return routing.ResourceRoute{
		ID: "baseline_" + string(kind), ResourceKind: kind,
		TenantID: identity.SystemTenant, Env: string(identity.EnvDev), ProjectID: "",
		BackendType: backendType,
	}
}

func durableAllowList(mode string) map[string]bool {
	return map[string]bool{"postgres": true, "s3": true, "redis": true}
}

func newTestRegistry(t *testing.T, routes ...routing.ResourceRoute) *routing.Registry {
	t.Helper()
	store := newFakeRoutingStore(routes...)
	registry := routing.NewRegistry(store, nil, nil)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned %v", err)
	}
	return registry
}

func TestValidatorPassesWhenEveryRequiredKindResolves(t *testing.T) {
	required := []routing.ResourceKind{routing.ResourceObjectStore, routing.ResourceEventStream}
	registry := newTestRegistry(t,
		baselineRoute(routing.ResourceObjectStore, routing.BackendS3),
		baselineRoute(routing.ResourceEventStream, routing.BackendPostgres),
	)
	guard := backend.NewGuard(durableAllowList)
	validator := NewValidator(registry, guard, identity.ModeSaaS, required, testLogger())

	if err := validator.Validate(context.Background()); err != nil {
		t.Errorf("Validate() returned %v, want nil", err)
	}
}

func TestValidatorFailsOnMissingBaselineRoute(t *testing.T) {
	required := []routing.ResourceKind{routing.ResourceObjectStore, routing.ResourceEventStream}
	registry := newTestRegistry(t, baselineRoute(routing.ResourceObjectStore, routing.BackendS3))
	guard := backend.NewGuard(durableAllowList)
	validator := NewValidator(registry, guard, identity.ModeSaaS, required, testLogger())

	if err := validator.Validate(context.Background()); err == nil {
		t.Fatal("Validate() should fail fast when a required resource_kind has no baseline route")
	}
}

func TestValidatorFailsOnForbiddenBackendClass(t *testing.T) {
	required := []routing.ResourceKind{routing.ResourceObjectStore}
	registry := newTestRegistry(t, baselineRoute(routing.ResourceObjectStore, routing.BackendFilesystem))
	guard := backend.NewGuard(durableAllowList)
	validator := NewValidator(registry, guard, identity.ModeSaaS, required, testLogger())

	if err := validator.Validate(context.Background()); err == nil {
		t.Fatal("Validate() should fail when the baseline route's backend_type is forbidden for this mode")
	}
}

func TestValidatorLabModePermitsFilesystem(t *testing.T) {
	required := []routing.ResourceKind{routing.ResourceObjectStore}
	registry := newTestRegistry(t, baselineRoute(routing.ResourceObjectStore, routing.BackendFilesystem))
	guard := backend.NewGuard(durableAllowList)
	validator := NewValidator(registry, guard, identity.ModeLab, required, testLogger())

	if err := validator.Validate(context.Background()); err != nil {
		t.Errorf("Validate() in lab mode with a filesystem baseline returned %v, want nil", err)
	}
}

func TestCheckRequestReusesGuard(t *testing.T) {
	registry := newTestRegistry(t)
	guard := backend.NewGuard(durableAllowList)
	validator := NewValidator(registry, guard, identity.ModeSaaS, nil, testLogger())

	forbidden := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendFilesystem}
	if err := validator.CheckRequest(forbidden); err == nil {
		t.Error("CheckRequest() for a forbidden backend_type should fail")
	}

	allowed := routing.ResourceRoute{ResourceKind: routing.ResourceObjectStore, BackendType: routing.BackendS3}
	if err := validator.CheckRequest(allowed); err != nil {
		t.Errorf("CheckRequest() for an allowed backend_type returned %v, want nil", err)
	}
}

func TestDefaultRequiredKindsExcludesRoutingRegistry(t *testing.T) {
	for _, kind := range DefaultRequiredKinds() {
		if kind == routing.ResourceRoutingRegistry {
			t.Error("DefaultRequiredKinds() should not name the routing registry itself")
		}
	}
}
