// Package gate implements the Gate Framework (spec §4.8): uniform
// pre-handler checks composed per action, each emitting a SAFETY_DECISION
// event whether it passes or blocks.
package gate

import (
	"context"
	"net/http"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/platform/metrics"
)

// Decision is the outcome of a single gate evaluation, used both to decide
// whether to continue the chain and to build the SAFETY_DECISION event.
type Decision struct {
	Gate   string
	Action string
	Result string // "pass" | "blocked"
	Reason string
}

// Sink receives every gate Decision, pass or block, as a SAFETY_DECISION
// event (spec §4.8). Defined narrowly here, mirroring routing.Sink, so this
// package does not need to import internal/events directly.
type Sink interface {
	EmitSafetyDecision(ctx context.Context, decision Decision) error
}

// Gate is a single pre-handler check. It returns a non-nil error (expected
// to be an *errs.ControlPlaneError) to block the action.
type Gate func(ctx context.Context, action string) error

// Chain runs an ordered sequence of Gates, stopping at the first failure,
// and emits a SAFETY_DECISION for every evaluation performed (spec §4.8).
type Chain struct {
	gates  []namedGate
	sink   Sink
	logger *logging.Logger
}

type namedGate struct {
	name string
	fn   Gate
}

// NewChain builds an empty Chain. sink may be nil to skip SAFETY_DECISION
// emission (e.g. during startup validation, before the event store exists).
func NewChain(sink Sink, logger *logging.Logger) *Chain {
	return &Chain{sink: sink, logger: logger}
}

// Use appends a named gate to the chain. Order matters: spec §4.8's
// canonical order is authenticated, tenant membership, context match,
// identity-override, backend-class, then domain-specific gates.
func (c *Chain) Use(name string, fn Gate) *Chain {
	c.gates = append(c.gates, namedGate{name: name, fn: fn})
	return c
}

// Run evaluates every gate in order for action, stopping at the first
// block. Every evaluation, pass or block, is logged and (if a sink is
// configured) emitted as a SAFETY_DECISION event.
func (c *Chain) Run(ctx context.Context, action string) error {
	for _, g := range c.gates {
		err := g.fn(ctx, action)

		decision := Decision{Gate: g.name, Action: action, Result: "pass"}
		if err != nil {
			decision.Result = "blocked"
			decision.Reason = err.Error()
		}

		if c.logger != nil {
			c.logger.LogGateDecision(ctx, decision.Gate, decision.Action, decision.Result, decision.Reason)
		}
		metrics.ObserveGateDecision(decision.Gate, decision.Action, decision.Result)
		if c.sink != nil {
			_ = c.sink.EmitSafetyDecision(ctx, decision)
		}

		if err != nil {
			cpe := errs.AsControlPlaneError(err)
			if cpe.Details == nil {
				cpe.Details = make(map[string]any)
			}
			cpe.Details["gate"] = g.name
			return cpe
		}
	}
	return nil
}

// BlockHTTP writes err (expected from Chain.Run) as the uniform error
// envelope, defaulting to 403 when the gate set no explicit status.
func BlockHTTP(w http.ResponseWriter, err error) {
	cpe := errs.AsControlPlaneError(err)
	if cpe.HTTPStatus == 0 {
		cpe.HTTPStatus = http.StatusForbidden
	}
	errs.WriteHTTPError(w, cpe)
}
