// Package startup implements the Startup Validator & Backend Class Guard
// (spec §4.4): a fail-fast pass over every resource_kind the control plane
// requires, run once before any router is mounted, and reusable as a
// per-request guard ahead of a resolve.
package startup

import (
	"context"
	"fmt"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// Validator checks that every required resource_kind has a resolvable
// baseline route whose backend_type passes the backend-class guard,
// grounded on applications/system/manager.go's ordered Start-with-rollback
// loop, generalized from "start a service" to "validate a route" — there is
// nothing to roll back here since validation has no side effects, so the
// fail-fast behavior is simply returning the first error instead of
// unwinding prior steps.
type Validator struct {
	registry *routing.Registry
	guard    *backend.Guard
	mode     identity.Mode
	required []routing.ResourceKind
	logger   *logging.Logger
}

// NewValidator builds a Validator. required lists every resource_kind this
// deployment must be able to resolve before it is safe to serve traffic.
func NewValidator(registry *routing.Registry, guard *backend.Guard, mode identity.Mode, required []routing.ResourceKind, logger *logging.Logger) *Validator {
	return &Validator{
		registry: registry,
		guard:    guard,
		mode:     mode,
		required: required,
		logger:   logger,
	}
}

// DefaultRequiredKinds is the resource_kind set cmd/appserver registers
// adapters for: routing itself is excluded since it is the mechanism
// doing the resolving, not a resolvable target.
func DefaultRequiredKinds() []routing.ResourceKind {
	return []routing.ResourceKind{
		routing.ResourceObjectStore,
		routing.ResourceEventStream,
		routing.ResourceTabularStore,
		routing.ResourceMemoryStore,
		routing.ResourceBlackboardStore,
		routing.ResourceAnalyticsStore,
	}
}

// Validate resolves the (t_system, dev, null project) baseline route for
// every required kind and runs it through the backend-class guard,
// returning the first failure it finds named by resource_kind (spec §4.4:
// "fail fast, naming the missing or invalid resource_kind").
func (v *Validator) Validate(ctx context.Context) error {
	for _, kind := range v.required {
		route, err := v.registry.ResolveBaseline(kind)
		if err != nil {
			if v.logger != nil {
				v.logger.LogStartupFailure(ctx, string(kind), err.Error())
			}
			return fmt.Errorf("startup validation failed for resource_kind %q: %w", kind, err)
		}

		if err := v.guard.Check(route, v.mode); err != nil {
			if v.logger != nil {
				v.logger.LogStartupFailure(ctx, string(kind), err.Error())
			}
			return fmt.Errorf("startup validation failed for resource_kind %q backend_type %q: %w", kind, route.BackendType, err)
		}
	}

	if v.logger != nil {
		v.logger.LogStartupSuccess(ctx, len(v.required))
	}
	return nil
}

// CheckRequest re-runs the backend-class guard for a single resolved route
// at request time, for use as a per-request guard ahead of a resolve (spec
// §4.4: "also available as a per-request guard").
func (v *Validator) CheckRequest(route routing.ResourceRoute) error {
	return v.guard.Check(route, v.mode)
}
