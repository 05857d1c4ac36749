// Package httpapi mounts the control plane's HTTP surface (spec §6): the
// routing registry's CRUD endpoints, event append/tail, blackboard
// read/write, and memory get/set, all behind the identity resolver and gate
// chain.
//
// Grounded on applications/httpapi/server.go and router.go in this lineage:
// the Server-holds-a-chi.Router-and-a-routes()-method shape is taken
// directly from the chi-based example in the pack (chi is listed in the
// teacher's own go.mod though unused there), generalized from the teacher's
// net/http.ServeMux-based mountRoutes helper to chi's pattern/parameter
// routing since several endpoints here need path parameters the stdlib mux
// of the teacher's vintage did not support.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/r3e-labs/engines-controlplane/internal/audit"
	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/platform/metrics"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
	"github.com/r3e-labs/engines-controlplane/internal/startup"
)

// Server owns the HTTP surface's dependencies and route table.
type Server struct {
	router     chi.Router
	resolver   *identity.Resolver
	registry   *routing.Registry
	factory    *backend.Factory
	guard      *backend.Guard
	validator  *startup.Validator
	auditChain audit.Chain
	gateSink   gate.Sink
	logger     *logging.Logger
	rateLimit  *gate.RateLimiter
}

// Deps bundles Server's constructor dependencies, mirroring the wiring a
// composition root (cmd/appserver) assembles once at boot.
type Deps struct {
	Resolver   *identity.Resolver
	Registry   *routing.Registry
	Factory    *backend.Factory
	Guard      *backend.Guard
	Validator  *startup.Validator
	AuditChain audit.Chain
	GateSink   gate.Sink
	Logger     *logging.Logger
	RateLimit  *gate.RateLimiter
}

// New builds a Server and mounts every route.
func New(d Deps) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		resolver:   d.Resolver,
		registry:   d.Registry,
		factory:    d.Factory,
		guard:      d.Guard,
		validator:  d.Validator,
		auditChain: d.AuditChain,
		gateSink:   d.GateSink,
		logger:     d.Logger,
		rateLimit:  d.RateLimit,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(s.requestLogging)
	s.router.Use(s.identityMiddleware)

	s.router.Route("/routing/routes", func(r chi.Router) {
		r.Get("/", s.handleListRoutes)
		r.Post("/", s.handleUpsertRoute)
		r.Get("/{id}", s.handleGetRoute)
		r.Delete("/{id}", s.handleDeleteRoute)
	})

	s.router.Post("/events/append", s.handleEventsAppend)
	s.router.Get("/events/list", s.handleEventsList)

	s.router.Route("/blackboard", func(r chi.Router) {
		r.Post("/write", s.handleBlackboardWrite)
		r.Get("/read", s.handleBlackboardRead)
		r.Get("/keys", s.handleBlackboardKeys)
	})

	s.router.Route("/memory", func(r chi.Router) {
		r.Post("/set", s.handleMemorySet)
		r.Get("/get", s.handleMemoryGet)
		r.Delete("/delete", s.handleMemoryDelete)
	})

	s.router.Get("/sse/stream/{stream_id}", s.handleSSEStream)
	s.router.Get("/ws/stream/{stream_id}", s.handleWSStream)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.validator != nil {
		if err := s.validator.Validate(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
