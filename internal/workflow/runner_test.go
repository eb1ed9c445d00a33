package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/llmgateway"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/world"
)

func newTestGateway() *llmgateway.Gateway {
	ledger := world.NewLedger()
	ledger.Spawn("alice", world.Balances{LLMDollarBudget: 10})
	rt := world.NewRateTracker(map[world.RateResource]world.RateLimit{
		world.RateLLMCalls:  {WindowSeconds: 60, MaxPerWindow: 100},
		world.RateLLMTokens: {WindowSeconds: 60, MaxPerWindow: 100000},
	})
	return llmgateway.New(ledger, rt, llmgateway.NewEchoProvider(), nil)
}

func TestRunner_FlatStepsStopsAtFirstIntent(t *testing.T) {
	wf := Workflow{
		Name: "simple",
		Steps: []Step{
			{Name: "compute", Kind: StepCode, Expression: "10 + 5", ResultVar: "amount"},
			{
				Name:       "transfer",
				Kind:       StepCode,
				Expression: `{"kind": "noop", "reason": "placeholder"}`,
				EmitIntent: `{"kind": "transfer", "to": "bob", "amount": amount, "resource": "scrip"}`,
			},
			{Name: "never_reached", Kind: StepCode, Expression: "1", ResultVar: "unreached"},
		},
	}

	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))
	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, out.Intent)
	assert.Equal(t, dispatch.KindTransfer, out.Intent.Kind)
	assert.Equal(t, "bob", out.Intent.To)
	assert.Equal(t, float64(15), out.Intent.Amount)
	assert.Nil(t, r.Context["unreached"])
}

func TestRunner_RunIfSkipsStep(t *testing.T) {
	wf := Workflow{
		Steps: []Step{
			{Name: "set_flag", Kind: StepCode, Expression: "false", ResultVar: "should_run"},
			{Name: "guarded", Kind: StepCode, RunIf: "should_run", Expression: "1", ResultVar: "ran"},
		},
	}
	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))
	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Nil(t, r.Context["ran"])
}

func TestRunner_OnErrorSkipContinues(t *testing.T) {
	wf := Workflow{
		Steps: []Step{
			{Name: "bad", Kind: StepCode, Expression: "undefined_var + 1", OnError: OnErrorSkip},
			{Name: "good", Kind: StepCode, Expression: "42", ResultVar: "result"},
		},
	}
	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))
	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, float64(42), r.Context["result"])
}

func TestRunner_OnErrorFailStopsWorkflow(t *testing.T) {
	wf := Workflow{
		Steps: []Step{
			{Name: "bad", Kind: StepCode, Expression: "undefined_var + 1", OnError: OnErrorFail},
		},
	}
	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))
	_, err := r.Advance(context.Background(), "alice")
	require.Error(t, err)
}

func TestRunner_OnErrorRetryReturnsWithoutAdvancingCursorUntilRetriesExhausted(t *testing.T) {
	wf := Workflow{
		Steps: []Step{
			{Name: "flaky", Kind: StepCode, Expression: "undefined_var", OnError: OnErrorRetry, MaxRetries: 2},
		},
	}
	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))

	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, out.Done)

	out, err = r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, out.Done)

	_, err = r.Advance(context.Background(), "alice")
	require.Error(t, err)
}

func TestRunner_StateMachineAdvancesOneStateAtATime(t *testing.T) {
	wf := Workflow{
		Initial: "start",
		States: map[string]State{
			"start": {
				Steps:       []Step{{Name: "mark", Kind: StepCode, Expression: "true", ResultVar: "visited_start"}},
				Transitions: []Transition{{Condition: "visited_start", Next: "end"}},
			},
			"end": {
				Steps: []Step{{Name: "mark_end", Kind: StepCode, Expression: "true", ResultVar: "visited_end"}},
			},
		},
	}
	r := NewRunner(wf, newTestGateway(), logging.NewDefault("test"))

	// First call runs "start"'s steps and, finding them exhausted,
	// evaluates its transition in the same turn.
	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, out.Done)
	assert.Equal(t, "end", r.CurrentState)
	assert.Nil(t, r.Context["visited_end"])

	out, err = r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, true, r.Context["visited_end"])
}

func TestRunner_LLMStepRendersTemplateAndDebitsBudget(t *testing.T) {
	gw := newTestGateway()
	wf := Workflow{
		Steps: []Step{
			{Name: "ask", Kind: StepCode, Expression: `"world"`, ResultVar: "subject"},
			{Name: "greet", Kind: StepLLM, PromptTemplate: "hello {{.subject}}", ResultVar: "reply", Model: "echo-1"},
		},
	}
	r := NewRunner(wf, gw, logging.NewDefault("test"))
	out, err := r.Advance(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.NotEmpty(t, r.Context["reply"])
}
