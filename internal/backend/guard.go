package backend

import (
	"strings"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// forbiddenBackendTypes are strictly forbidden in sellable modes
// (saas, enterprise, and the t_system tenant) regardless of the
// configured durable allow-list (spec §4.3).
var forbiddenBackendTypes = map[routing.BackendType]bool{
	routing.BackendFilesystem: true,
	routing.BackendInMemory:   true,
	routing.BackendNoop:       true,
	"local":                   true,
	"tmp":                     true,
}

func isLocalhostVariant(backendType routing.BackendType) bool {
	return strings.HasPrefix(strings.ToLower(string(backendType)), "localhost-")
}

// Guard enforces the backend-class guard: for any mode in {saas,
// enterprise} the resolved backend_type must belong to the durable class;
// filesystem/in_memory/noop/local/tmp/localhost-* are forbidden outright,
// and lab mode is the only mode permitted to use filesystem.
type Guard struct {
	allowedBackends func(mode string) map[string]bool
}

// NewGuard builds a Guard. allowedBackends mirrors
// internal/platform/config.Config.AllowedBackends.
func NewGuard(allowedBackends func(mode string) map[string]bool) *Guard {
	return &Guard{allowedBackends: allowedBackends}
}

// Check enforces the guard for a resolved route under the given mode,
// returning forbidden_backend_class (403) on violation.
func (g *Guard) Check(route routing.ResourceRoute, mode identity.Mode) error {
	backendType := route.BackendType

	if isLocalhostVariant(backendType) {
		return errs.ForbiddenBackendClass(string(route.ResourceKind), string(backendType), string(mode))
	}

	if forbiddenBackendTypes[backendType] {
		if backendType == routing.BackendFilesystem && mode == identity.ModeLab {
			return nil
		}
		return errs.ForbiddenBackendClass(string(route.ResourceKind), string(backendType), string(mode))
	}

	if g.allowedBackends == nil {
		return nil
	}
	allowed := g.allowedBackends(string(mode))
	if !allowed[string(backendType)] {
		return errs.ForbiddenBackendClass(string(route.ResourceKind), string(backendType), string(mode))
	}
	return nil
}
