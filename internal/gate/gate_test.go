package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

type recordingSink struct {
	decisions []Decision
}

func (s *recordingSink) EmitSafetyDecision(ctx context.Context, decision Decision) error {
	s.decisions = append(s.decisions, decision)
	return nil
}

func TestChainRunAllPass(t *testing.T) {
	sink := &recordingSink{}
	chain := NewChain(sink, nil)
	calls := 0
	chain.Use("first", func(context.Context, string) error { calls++; return nil })
	chain.Use("second", func(context.Context, string) error { calls++; return nil })

	require.NoError(t, chain.Run(context.Background(), "test_action"))
	assert.Equal(t, 2, calls)
	require.Len(t, sink.decisions, 2)
	for _, d := range sink.decisions {
		assert.Equal(t, "pass", d.Result, "gate %q", d.Gate)
	}
}

func TestChainRunStopsAtFirstBlock(t *testing.T) {
	sink := &recordingSink{}
	chain := NewChain(sink, nil)
	thirdCalled := false
	chain.Use("first", func(context.Context, string) error { return nil })
	chain.Use("second", func(context.Context, string) error {
		return errs.GateBlocked("second", "blocked for test", 403)
	})
	chain.Use("third", func(context.Context, string) error { thirdCalled = true; return nil })

	err := chain.Run(context.Background(), "test_action")
	require.Error(t, err)
	assert.False(t, thirdCalled, "Run() should stop at the first blocking gate")
	require.Len(t, sink.decisions, 2)
	assert.Equal(t, "blocked", sink.decisions[1].Result)

	cpe := errs.AsControlPlaneError(err)
	assert.Equal(t, "second", cpe.Details["gate"])
}

func TestChainRunWithNilSink(t *testing.T) {
	chain := NewChain(nil, nil)
	chain.Use("only", func(context.Context, string) error { return nil })
	assert.NoError(t, chain.Run(context.Background(), "test_action"))
}

func TestChainRunWrapsPlainErrors(t *testing.T) {
	chain := NewChain(nil, nil)
	chain.Use("plain", func(context.Context, string) error { return errors.New("boom") })

	err := chain.Run(context.Background(), "test_action")
	require.Error(t, err)
	cpe := errs.AsControlPlaneError(err)
	assert.Equal(t, "plain", cpe.Details["gate"])
}
