package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
)

type ctxKey string

const ctxRequestContextKey ctxKey = "request_context"

// withRequestContext stores the resolved identity.RequestContext for
// handlers to retrieve with requestContextFrom, mirroring
// applications/httpapi/middleware_tenant.go's withTenantContext/
// tenantFromCtx pair, generalized from a bare tenant string to the full
// resolved RequestContext.
func withRequestContext(ctx context.Context, rc identity.RequestContext) context.Context {
	return context.WithValue(ctx, ctxRequestContextKey, rc)
}

func requestContextFrom(ctx context.Context) (identity.RequestContext, bool) {
	rc, ok := ctx.Value(ctxRequestContextKey).(identity.RequestContext)
	return rc, ok
}

// identityMiddleware resolves the request's identity via the configured
// Resolver (spec §4.1) before any handler runs, rejecting the request
// outright on failure rather than deferring to a per-handler gate: every
// endpoint in this service needs a valid RequestContext to do anything.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := s.resolver.Resolve(r)
		if err != nil {
			errs.WriteHTTPError(w, err)
			return
		}

		ctx := withRequestContext(r.Context(), rc)
		ctx = logging.WithTenantID(ctx, rc.TenantID)
		ctx = logging.WithRequestID(ctx, rc.RequestID)
		ctx = logging.WithTraceID(ctx, rc.TraceID)
		ctx = logging.WithActorID(ctx, rc.ActorID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogging records basic request metadata, grounded on
// applications/httpapi/middleware_audit.go's wrapWithAudit, generalized
// from the teacher's in-memory auditLog ring buffer to this service's
// structured logger since audit persistence here runs through the Audit
// Chain (internal/audit), not an in-process log.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			s.logger.WithContext(r.Context()).WithFields(map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request handled")
		}
	})
}
