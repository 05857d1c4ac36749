// Package logging provides the control plane's structured logger: a
// logrus-backed wrapper that pulls identity fields (tenant, request, trace,
// actor) out of context and exposes domain-specific helpers for the events
// this system cares most about — route changes, gate decisions, audit
// appends, and backend-guard violations.
//
// This consolidates what used to be two separate logrus wrappers in the
// lineage this package descends from (infrastructure/logging and pkg/logger)
// into one.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	ctxTenantID  contextKey = "tenant_id"
	ctxRequestID contextKey = "request_id"
	ctxTraceID   contextKey = "trace_id"
	ctxActorID   contextKey = "actor_id"
)

// Logger wraps logrus.Logger with service-scoped, context-aware helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger with the given level ("debug"|"info"|"warn"|"error")
// and format ("json"|"text").
func New(service, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext builds an entry carrying every identity field the context
// carries (tenant_id, request_id, trace_id, actor_id), set by the identity
// resolver via WithTenantID/WithRequestID/WithTraceID/WithActorID.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v, ok := ctx.Value(ctxTenantID).(string); ok && v != "" {
		entry = entry.WithField("tenant_id", v)
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok && v != "" {
		entry = entry.WithField("request_id", v)
	}
	if v, ok := ctx.Value(ctxTraceID).(string); ok && v != "" {
		entry = entry.WithField("trace_id", v)
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok && v != "" {
		entry = entry.WithField("actor_id", v)
	}
	return entry
}

// WithTenantID returns a context carrying the tenant id for later logging.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxTenantID, tenantID)
}

// WithRequestID returns a context carrying the request id for later logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// WithTraceID returns a context carrying the trace id for later logging.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxTraceID, traceID)
}

// WithActorID returns a context carrying the actor id for later logging.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ctxActorID, actorID)
}

// LogRouteChange records a ResourceRoute upsert/delete (spec §4.2).
func (l *Logger) LogRouteChange(ctx context.Context, resourceKind, previousBackend, newBackend, rationale string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"resource_kind":     resourceKind,
		"previous_backend":  previousBackend,
		"new_backend":       newBackend,
		"switch_rationale":  rationale,
	}).Info("route changed")
}

// LogGateDecision records a SAFETY_DECISION (spec §4.8): every gate
// evaluation, pass or block, is logged alongside being emitted as an event.
func (l *Logger) LogGateDecision(ctx context.Context, gate, action, result, reason string) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"gate":   gate,
		"action": action,
		"result": result,
		"reason": reason,
	})
	if result == "blocked" {
		entry.Warn("gate decision")
		return
	}
	entry.Info("gate decision")
}

// LogAuditAppend records a successful append to the per-tenant audit chain.
func (l *Logger) LogAuditAppend(ctx context.Context, tenantID, eventType, hash string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"event_type": eventType,
		"hash":       hash,
	}).Info("audit entry appended")
}

// LogBackendGuardViolation records a forbidden_backend_class rejection.
func (l *Logger) LogBackendGuardViolation(ctx context.Context, resourceKind, backendType, mode string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"resource_kind": resourceKind,
		"backend_type":  backendType,
		"mode":          mode,
	}).Warn("backend class guard violation")
}

// LogStartupFailure records a resource_kind that failed startup validation
// (spec §4.4), naming the kind so the operator can fix the missing or
// invalid route without digging through logs.
func (l *Logger) LogStartupFailure(ctx context.Context, resourceKind, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"resource_kind": resourceKind,
		"reason":        reason,
	}).Error("startup validation failed")
}

// LogStartupSuccess records that every required resource_kind passed
// startup validation.
func (l *Logger) LogStartupSuccess(ctx context.Context, checkedCount int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"checked_count": checkedCount,
	}).Info("startup validation passed")
}

// LogDatabaseQuery records query timing/errors the way every store in this
// repository should.
func (l *Logger) LogDatabaseQuery(ctx context.Context, query string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query_duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("database query failed")
		return
	}
	entry.Debug("database query")
}
