// Package errs provides the control plane's unified error taxonomy: every
// error that can cross an HTTP boundary is a *ControlPlaneError carrying the
// dotted error_code from spec §7, the mapped HTTP status, and optional
// structured details (resource_kind, mismatches, gate, version numbers).
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
)

// Code is a dotted error_code in the "<domain>.<kind>" shape from spec §6/§7.
type Code string

const (
	CodeLegacyEnvForbidden   Code = "context.legacy_env_forbidden"
	CodeModeRequired         Code = "context.mode_required"
	CodeProjectRequired      Code = "context.project_required"
	CodeTenantInvalid        Code = "context.tenant_invalid"
	CodeContextMismatch      Code = "context.mismatch"
	CodeAuthMissingOrInvalid Code = "auth.missing_or_invalid"
	CodeTenantNotMember      Code = "auth.tenant_not_member"
	CodeIdentityOverride     Code = "auth.identity_override"
	CodeForbiddenBackend     Code = "forbidden_backend_class"
	CodeGateBlocked          Code = "gate.blocked"
	CodeNotFound             Code = "resource.not_found"
	CodeVersionConflict      Code = "blackboard.version_conflict"
	CodeCursorInvalid        Code = "stream.cursor_invalid"
	CodeVectorCursorInvalid  Code = "nexus.cursor_invalid"
	CodeStreamWriteFailed    Code = "stream.write_failed"
	CodeBackendUnavailable   Code = "backend.unavailable"
	CodeRequestTimeout       Code = "request.timeout"
	CodeRouteInvalid         Code = "routing.route_invalid"
)

// MissingRouteCode builds the per-resource-kind "<kind>.missing_route" code.
func MissingRouteCode(resourceKind string) Code {
	return Code(resourceKind + ".missing_route")
}

// ControlPlaneError is the single error type every boundary wraps errors in.
type ControlPlaneError struct {
	Code       Code
	HTTPStatus int
	Message    string
	Details    map[string]any
	Err        error
}

func (e *ControlPlaneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ControlPlaneError) Unwrap() error { return e.Err }

// WithDetail attaches a detail key used by the JSON envelope (resource_kind,
// mismatches, gate, expected_version, current_version, ...).
func (e *ControlPlaneError) WithDetail(key string, value any) *ControlPlaneError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New constructs a ControlPlaneError.
func New(code Code, status int, message string) *ControlPlaneError {
	return &ControlPlaneError{Code: code, HTTPStatus: status, Message: message}
}

// Wrap constructs a ControlPlaneError around an underlying cause.
func Wrap(code Code, status int, message string, err error) *ControlPlaneError {
	return &ControlPlaneError{Code: code, HTTPStatus: status, Message: message, Err: err}
}

// Constructors for the taxonomy in spec §7.

func LegacyEnvForbidden() *ControlPlaneError {
	return New(CodeLegacyEnvForbidden, http.StatusBadRequest, "X-Env header is forbidden")
}

func ModeRequired() *ControlPlaneError {
	return New(CodeModeRequired, http.StatusBadRequest, "X-Mode is required and must be saas, enterprise, or lab")
}

func ProjectRequired() *ControlPlaneError {
	return New(CodeProjectRequired, http.StatusBadRequest, "X-Project-Id is required")
}

func TenantInvalid(tenantID string) *ControlPlaneError {
	return New(CodeTenantInvalid, http.StatusBadRequest, "tenant_id is malformed").WithDetail("tenant_id", tenantID)
}

// RouteInvalid reports a ResourceRoute that failed struct-tag validation
// (missing id/resource_kind/tenant_id/env/backend_type).
func RouteInvalid(err error) *ControlPlaneError {
	return Wrap(CodeRouteInvalid, http.StatusBadRequest, "route failed validation", err)
}

// ContextMismatch reports one or more scope fields that disagree with the
// resolved RequestContext. status is 400 unless any mismatch is identity-bearing
// (in which case callers should use IdentityOverride instead).
func ContextMismatch(mismatches []Mismatch) *ControlPlaneError {
	return Wrap(CodeContextMismatch, http.StatusBadRequest, "request scope does not match resolved context", mismatchError(mismatches)).
		WithDetail("mismatches", mismatches)
}

// Mismatch describes a single field disagreement surfaced in an error body.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// mismatchError folds mismatches into a single error via AggregateMismatches,
// giving the wrapped ControlPlaneError an %v that names every disagreement
// instead of just the generic message, while WithDetail("mismatches", ...)
// keeps the structured slice for the JSON envelope.
func mismatchError(mismatches []Mismatch) error {
	causes := make([]error, len(mismatches))
	for i, m := range mismatches {
		causes[i] = fmt.Errorf("%s: expected %q, got %q", m.Field, m.Expected, m.Actual)
	}
	return AggregateMismatches(causes...)
}

func AuthMissingOrInvalid(err error) *ControlPlaneError {
	return Wrap(CodeAuthMissingOrInvalid, http.StatusUnauthorized, "missing or invalid authentication", err)
}

func TenantNotMember(tenantID string) *ControlPlaneError {
	return New(CodeTenantNotMember, http.StatusForbidden, "caller is not a member of the requested tenant").
		WithDetail("tenant_id", tenantID)
}

func IdentityOverride(mismatches []Mismatch) *ControlPlaneError {
	return Wrap(CodeIdentityOverride, http.StatusForbidden, "client-supplied identity fields override the server-derived context", mismatchError(mismatches)).
		WithDetail("mismatches", mismatches)
}

func ForbiddenBackendClass(resourceKind, backendType, mode string) *ControlPlaneError {
	return New(CodeForbiddenBackend, http.StatusForbidden, "backend class is not permitted in this mode").
		WithDetail("resource_kind", resourceKind).
		WithDetail("backend_type", backendType).
		WithDetail("mode", mode)
}

func GateBlocked(gate, reason string, status int) *ControlPlaneError {
	if status == 0 {
		status = http.StatusForbidden
	}
	return New(CodeGateBlocked, status, reason).WithDetail("gate", gate)
}

func NotFound(resourceKind, id string) *ControlPlaneError {
	return New(CodeNotFound, http.StatusNotFound, "resource not found").
		WithDetail("resource_kind", resourceKind).
		WithDetail("id", id)
}

func VersionConflict(expected, current int64) *ControlPlaneError {
	return New(CodeVersionConflict, http.StatusConflict, "version conflict").
		WithDetail("expected_version", expected).
		WithDetail("current_version", current)
}

func CursorInvalid(vector bool) *ControlPlaneError {
	code := CodeCursorInvalid
	if vector {
		code = CodeVectorCursorInvalid
	}
	return New(code, http.StatusGone, "cursor is invalid or unknown")
}

func StreamWriteFailed(err error) *ControlPlaneError {
	return Wrap(CodeStreamWriteFailed, http.StatusInternalServerError, "stream append failed, retry", err)
}

func BackendUnavailable(resourceKind string, err error) *ControlPlaneError {
	return Wrap(CodeBackendUnavailable, http.StatusInternalServerError, "backend operation failed", err).
		WithDetail("resource_kind", resourceKind)
}

func MissingRoute(resourceKind string) *ControlPlaneError {
	return New(MissingRouteCode(resourceKind), http.StatusServiceUnavailable, "no route resolves this resource kind").
		WithDetail("resource_kind", resourceKind)
}

func RequestTimeout() *ControlPlaneError {
	return New(CodeRequestTimeout, http.StatusGatewayTimeout, "request deadline exceeded")
}

// Envelope is the uniform JSON error body from spec §6.
type Envelope struct {
	ErrorCode    Code       `json:"error_code"`
	Message      string     `json:"message"`
	ResourceKind string     `json:"resource_kind,omitempty"`
	Mismatches   []Mismatch `json:"mismatches,omitempty"`
	Gate         string     `json:"gate,omitempty"`
}

// WriteHTTPError serializes err as the uniform envelope. Non-ControlPlaneError
// values are wrapped as an opaque 500.
func WriteHTTPError(w http.ResponseWriter, err error) {
	cpe := AsControlPlaneError(err)
	env := Envelope{ErrorCode: cpe.Code, Message: cpe.Message}
	if rk, ok := cpe.Details["resource_kind"].(string); ok {
		env.ResourceKind = rk
	}
	if gate, ok := cpe.Details["gate"].(string); ok {
		env.Gate = gate
	}
	if mm, ok := cpe.Details["mismatches"].([]Mismatch); ok {
		env.Mismatches = mm
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(cpe.HTTPStatus)
	_ = json.NewEncoder(w).Encode(env)
}

// AsControlPlaneError extracts (or synthesizes) a *ControlPlaneError for err.
func AsControlPlaneError(err error) *ControlPlaneError {
	var cpe *ControlPlaneError
	if errors.As(err, &cpe) {
		return cpe
	}
	return Wrap("internal.unexpected", http.StatusInternalServerError, "internal error", err)
}

// AggregateMismatches folds per-field mismatch errors produced during context
// validation into a single *hashicorp/go-multierror.Error for logging, while
// the HTTP-facing ContextMismatch/IdentityOverride constructors keep the
// structured []Mismatch slice for the JSON envelope.
func AggregateMismatches(errs ...error) error {
	var merr *multierror.Error
	for _, e := range errs {
		if e != nil {
			merr = multierror.Append(merr, e)
		}
	}
	return merr.ErrorOrNil()
}
