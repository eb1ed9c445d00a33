// Package llmgateway implements the capability-gated _syscall_llm kernel
// syscall: caller-pays billing
// against the ledger's llm_dollar_budget, metered against the rate
// tracker's llm_call_rate/llm_token_rate windows, talking to a pluggable
// Provider. No example repo in the pack vendors an LLM client SDK, so the
// Provider boundary is intentionally small and this package supplies only
// a local EchoProvider; a production deployment wires a real HTTP-backed
// provider behind the same interface (documented as a stdlib boundary in
// DESIGN.md — no ecosystem LLM client exists in the retrieved corpus).
package llmgateway

import "context"

// Message is one entry of the wire contract's messages[] array.
type Message struct {
	Role    string
	Content string
}

// ToolSpec is one entry of the wire contract's optional tools[] array.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one element of a provider response's tool_calls[].
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Request is what a Provider receives.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// ProviderResponse is what a Provider returns before gateway billing is applied.
type ProviderResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64 // dollars, as quoted by the provider
	ToolCalls        []ToolCall
	Err              error
}

// Provider talks to an external (or local mock) LLM backend.
type Provider interface {
	Complete(ctx context.Context, req Request) ProviderResponse
}

// EchoProvider is a deterministic local stand-in used for tests and
// offline development: it never calls out, and prices every call at a
// fixed per-token rate so budget-metering logic has something concrete to
// exercise.
type EchoProvider struct {
	DollarsPerToken float64
}

// NewEchoProvider returns an EchoProvider with a small default rate.
func NewEchoProvider() *EchoProvider {
	return &EchoProvider{DollarsPerToken: 0.000002}
}

func (p *EchoProvider) Complete(ctx context.Context, req Request) ProviderResponse {
	var last string
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	promptTokens := estimateTokens(req.Messages)
	completionTokens := estimateTokens([]Message{{Content: last}})
	total := promptTokens + completionTokens

	return ProviderResponse{
		Content:          "echo: " + last,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		Cost:             float64(total) * p.DollarsPerToken,
	}
}

func estimateTokens(messages []Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)/4 + 1
	}
	return n
}
