package llmgateway

import (
	"context"
	"testing"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, budget float64, callCap, tokenCap float64) (*Gateway, *world.Ledger) {
	t.Helper()
	ledger := world.NewLedger()
	ledger.Spawn("alice", world.Balances{Scrip: 0, LLMDollarBudget: budget})
	rt := world.NewRateTracker(map[world.RateResource]world.RateLimit{
		world.RateLLMCalls:  {WindowSeconds: 60, MaxPerWindow: callCap},
		world.RateLLMTokens: {WindowSeconds: 60, MaxPerWindow: tokenCap},
	})
	gw := New(ledger, rt, NewEchoProvider(), nil)
	return gw, ledger
}

func TestGateway_SuccessfulCallDebitsBudget(t *testing.T) {
	gw, ledger := newTestGateway(t, 1.0, 10, 100000)
	before := ledger.Balance("alice").LLMDollarBudget

	res := gw.Call(context.Background(), "alice", "test-model",
		[]any{map[string]any{"role": "user", "content": "hello there"}}, nil)

	require.True(t, res.Success)
	after := ledger.Balance("alice").LLMDollarBudget
	assert.Less(t, after, before)
	assert.Greater(t, res.Cost, 0.0)
}

func TestGateway_RateLimitScenario(t *testing.T) {
	// Literal spec scenario: a caller exhausts its llm_call_rate window and
	// the next call is refused with a positive retry_after rather than
	// silently degrading.
	gw, _ := newTestGateway(t, 10.0, 2, 1000000)

	r1 := gw.Call(context.Background(), "alice", "m", []any{map[string]any{"role": "user", "content": "a"}}, nil)
	r2 := gw.Call(context.Background(), "alice", "m", []any{map[string]any{"role": "user", "content": "b"}}, nil)
	require.True(t, r1.Success)
	require.True(t, r2.Success)

	r3 := gw.Call(context.Background(), "alice", "m", []any{map[string]any{"role": "user", "content": "c"}}, nil)
	require.False(t, r3.Success)
	assert.Equal(t, string(kernelerr.CodeQuotaExceeded), r3.ErrorCode)
}

func TestGateway_BudgetExhaustionRefusesBeforeExternalCall(t *testing.T) {
	// Literal spec scenario: once llm_dollar_budget can't cover even the
	// pre-check reservation, calls are refused up front.
	gw, ledger := newTestGateway(t, 0.0000001, 10, 1000000)

	res := gw.Call(context.Background(), "alice", "m", []any{map[string]any{"role": "user", "content": "hi"}}, nil)
	require.False(t, res.Success)
	assert.Equal(t, string(kernelerr.CodeBudgetExhausted), res.ErrorCode)

	// Balance is untouched since the call never reached settlement.
	assert.InDelta(t, 0.0000001, ledger.Balance("alice").LLMDollarBudget, 1e-12)
}

func TestGateway_SettlementNeverDrivesBudgetNegative(t *testing.T) {
	gw, ledger := newTestGateway(t, 0.0005, 10, 1000000)

	res := gw.Call(context.Background(), "alice", "m",
		[]any{map[string]any{"role": "user", "content": "a longer message to raise estimated cost"}}, nil)
	require.True(t, res.Success)
	assert.GreaterOrEqual(t, ledger.Balance("alice").LLMDollarBudget, 0.0)
}

func TestGateway_PerPrincipalRateIndependence(t *testing.T) {
	gw, ledger := newTestGateway(t, 1.0, 1, 1000000)
	ledger.Spawn("bob", world.Balances{LLMDollarBudget: 1.0})

	r1 := gw.Call(context.Background(), "alice", "m", []any{map[string]any{"role": "user", "content": "a"}}, nil)
	require.True(t, r1.Success)

	r2 := gw.Call(context.Background(), "bob", "m", []any{map[string]any{"role": "user", "content": "b"}}, nil)
	require.True(t, r2.Success, "bob's own rate window must not be affected by alice's usage")
}
