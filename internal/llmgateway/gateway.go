package llmgateway

import (
	"context"
	"time"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/world"
)

// Usage mirrors the wire contract's usage object.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallResult is the full wire contract response.
type CallResult struct {
	Success   bool
	Content   string
	Usage     Usage
	Cost      float64
	ToolCalls []ToolCall
	Error     string
	ErrorCode string
}

// Gateway is the kernel syscall every capability-gated _syscall_llm call
// runs through.
type Gateway struct {
	Ledger      *world.Ledger
	RateTracker *world.RateTracker
	Provider    Provider
	metrics     *metrics.Metrics

	// EstimatedCostPerCall is charged as a pre-check reservation before the
	// provider call settles the real cost.
	EstimatedCostPerCall float64
}

// New builds a Gateway.
func New(ledger *world.Ledger, rateTracker *world.RateTracker, provider Provider, m *metrics.Metrics) *Gateway {
	return &Gateway{
		Ledger:               ledger,
		RateTracker:          rateTracker,
		Provider:             provider,
		metrics:              m,
		EstimatedCostPerCall: 0.0005,
	}
}

// Call is the caller-pays entry point invoked from the sandbox's
// _syscall_llm handle. callerID is the verified invoker (not spoofable).
func (g *Gateway) Call(ctx context.Context, callerID, model string, rawMessages []any, rawTools []any) CallResult {
	now := time.Now()

	if !g.RateTracker.Consume(callerID, world.RateLLMCalls, 1, now) {
		retry := g.RateTracker.RetryAfter(callerID, world.RateLLMCalls, now)
		g.recordOutcome(callerID, "rate_limited")
		return errorResult(kernelerr.QuotaExceeded(string(world.RateLLMCalls), retry))
	}

	req := Request{Model: model, Messages: toMessages(rawMessages), Tools: toTools(rawTools)}
	estimatedTokens := estimateTokens(req.Messages)
	if !g.RateTracker.Consume(callerID, world.RateLLMTokens, float64(estimatedTokens), now) {
		retry := g.RateTracker.RetryAfter(callerID, world.RateLLMTokens, now)
		g.recordOutcome(callerID, "rate_limited")
		return errorResult(kernelerr.QuotaExceeded(string(world.RateLLMTokens), retry))
	}

	// Budget pre-check: refuse before the external call if insufficient
	//.
	bal := g.Ledger.Balance(callerID)
	if bal.LLMDollarBudget < g.EstimatedCostPerCall {
		g.recordOutcome(callerID, "budget_exhausted")
		return errorResult(kernelerr.BudgetExhausted("llm_dollar_budget"))
	}
	reserved := g.Ledger.ClampDebit(callerID, world.ResourceLLMBudget, g.EstimatedCostPerCall)

	resp := g.Provider.Complete(ctx, req)

	// Settlement: actual cost replaces the estimate, clamped so budget
	// never goes negative.
	delta := resp.Cost - reserved
	if delta > 0 {
		g.Ledger.ClampDebit(callerID, world.ResourceLLMBudget, delta)
	} else if delta < 0 {
		g.Ledger.Credit(callerID, world.ResourceLLMBudget, -delta)
	}

	if g.metrics != nil {
		g.metrics.LLMSpendDollars.WithLabelValues(callerID).Add(resp.Cost)
	}
	g.recordOutcome(callerID, "success")

	return CallResult{
		Success: true,
		Content: resp.Content,
		Usage: Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
		},
		Cost:      resp.Cost,
		ToolCalls: resp.ToolCalls,
	}
}

func (g *Gateway) recordOutcome(callerID, outcome string) {
	if g.metrics != nil {
		g.metrics.LLMCallsTotal.WithLabelValues(callerID, outcome).Inc()
	}
}

func errorResult(err error) CallResult {
	ke, _ := kernelerr.As(err)
	return CallResult{Success: false, Error: err.Error(), ErrorCode: string(ke.Code)}
}

func toMessages(raw []any) []Message {
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		out = append(out, Message{Role: role, Content: content})
	}
	return out
}

func toTools(raw []any) []ToolSpec {
	out := make([]ToolSpec, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		params, _ := m["parameters"].(map[string]any)
		out = append(out, ToolSpec{Name: name, Description: desc, Parameters: params})
	}
	return out
}
