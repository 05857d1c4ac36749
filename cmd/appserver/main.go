package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/r3e-labs/engines-controlplane/internal/adapters/analytics/postgres"
	tabularadapter "github.com/r3e-labs/engines-controlplane/internal/adapters/tabular/postgres"

	"github.com/r3e-labs/engines-controlplane/internal/audit"
	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/blackboard"
	"github.com/r3e-labs/engines-controlplane/internal/events"
	"github.com/r3e-labs/engines-controlplane/internal/gate"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/config"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/platform/schema"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
	"github.com/r3e-labs/engines-controlplane/internal/startup"
	"github.com/r3e-labs/engines-controlplane/internal/transport/httpapi"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	configPath := flag.String("config", "", "path to CONFIG_FILE (overrides CONFIG_FILE env)")
	deployMode := flag.String("mode", "saas", "deployment mode: saas, enterprise, or lab")
	deployEnv := flag.String("env", "dev", "deployment environment: dev, staging, or prod")
	flag.Parse()

	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		os.Setenv("CONFIG_FILE", trimmed)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	logger := logging.New("engines-controlplane", cfg.Logging.Level, cfg.Logging.Format)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dsn := resolveDSN(cfg)
	if dsn == "" {
		fatal("no database DSN configured: set DATABASE_DSN or database.dsn")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		fatal("connect to postgres: %v", err)
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	if version, dirty, err := schema.Migrate(dsn); err != nil {
		fatal("apply schema migrations: %v", err)
	} else if dirty {
		fatal("schema at version %d is dirty; resolve manually before starting", version)
	} else {
		logger.Infof("schema migrated to version %d", version)
	}

	mode := identity.Mode(strings.ToLower(strings.TrimSpace(*deployMode)))
	if !mode.Valid() {
		fatal("invalid -mode %q: must be saas, enterprise, or lab", *deployMode)
	}
	env := identity.NormalizeEnv(*deployEnv)

	routeStore := routing.NewPostgresStore(db)
	if err := routeStore.EnsureSchema(rootCtx); err != nil {
		fatal("ensure routing schema: %v", err)
	}

	eventStore := events.NewPostgresStore(db, dsn, logger)
	if err := eventStore.EnsureSchema(rootCtx); err != nil {
		fatal("ensure events schema: %v", err)
	}
	if err := eventStore.ListenAndServe(rootCtx); err != nil {
		fatal("subscribe event stream listener: %v", err)
	}

	bbStore := blackboard.NewPostgresStore(db)
	if err := bbStore.EnsureSchema(rootCtx); err != nil {
		fatal("ensure blackboard schema: %v", err)
	}

	auditChain := audit.NewPostgresChain(db)
	if err := auditChain.EnsureSchema(rootCtx); err != nil {
		fatal("ensure audit schema: %v", err)
	}

	membershipStore := identity.NewPostgresMembershipStore(db)
	if err := membershipStore.EnsureSchema(rootCtx); err != nil {
		fatal("ensure membership schema: %v", err)
	}

	tabularAdapter := tabularadapter.New(db)
	if err := tabularAdapter.EnsureSchema(rootCtx); err != nil {
		fatal("ensure tabular schema: %v", err)
	}

	analyticsAdapter := postgres.New(db)
	if err := analyticsAdapter.EnsureSchema(rootCtx); err != nil {
		fatal("ensure analytics schema: %v", err)
	}

	sink := newControlPlaneSink(eventStore, auditChain)

	registry := routing.NewRegistry(routeStore, sink, logger)
	if err := registry.Refresh(rootCtx); err != nil {
		fatal("load routing registry: %v", err)
	}

	guard := backend.NewGuard(cfg.AllowedBackends)
	factory := backend.NewFactory(guard, 512)

	registerAdapters(factory, eventStore, bbStore, tabularAdapter, analyticsAdapter, cfg)

	verifier := identity.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim)
	membershipCache := identity.NewMembershipCache(membershipStore, 8192)
	resolver := identity.NewResolver(env, verifier, membershipCache)

	validator := startup.NewValidator(registry, guard, mode, startup.DefaultRequiredKinds(), logger)
	if err := validator.Validate(rootCtx); err != nil {
		fatal("startup validation failed: %v", err)
	}

	sweeper := audit.NewRetentionSweeper(auditChain, logger, 90*24*time.Hour, func(ctx context.Context) ([]string, error) {
		return distinctTenantIDs(registry), nil
	})
	if err := sweeper.Start(rootCtx, "0 3 * * *"); err != nil {
		fatal("start audit retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	rateLimiter := gate.NewRateLimiter(50, 100)

	server := httpapi.New(httpapi.Deps{
		Resolver:   resolver,
		Registry:   registry,
		Factory:    factory,
		Guard:      guard,
		Validator:  validator,
		AuditChain: auditChain,
		GateSink:   sink,
		Logger:     logger,
		RateLimit:  rateLimiter,
	})

	listenAddr := determineAddr(*addr, cfg)
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server,
	}

	go func() {
		logger.Infof("engines control plane listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fatal("shutdown: %v", err)
	}
}

func distinctTenantIDs(registry *routing.Registry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, route := range registry.ListRoutes(routing.ListFilters{}) {
		if !seen[route.TenantID] {
			seen[route.TenantID] = true
			out = append(out, route.TenantID)
		}
	}
	return out
}

func resolveDSN(cfg *config.Config) string {
	if trimmed := strings.TrimSpace(cfg.Database.DSN); trimmed != "" {
		return trimmed
	}
	if cfg.Database.Host != "" && cfg.Database.Name != "" {
		return cfg.Database.ConnectionString()
	}
	return ""
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg.Server.Port != 0 {
		host := cfg.Server.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	}
	return ":8080"
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
