// Package workflow implements the ordered-steps-plus-state-machine runner
// that an agent's loop iteration drives. A workflow is attached
// to an agent artifact and advances at most one meaningful step per
// dispatcher turn, so that other loops are never starved by a long chain of
// internal bookkeeping.
//
// Expression evaluation (run_if guards, code-step bodies, state-transition
// conditions) is built on github.com/PaesslerAG/gval, the sibling project
// to github.com/PaesslerAG/jsonpath, generalized here from a one-off
// JSON-path helper into the workflow runner's full expression engine.
package workflow

import (
	"strings"

	"github.com/PaesslerAG/gval"
)

// StepKind distinguishes a code step from an LLM step.
type StepKind string

const (
	StepCode StepKind = "code"
	StepLLM  StepKind = "llm"
)

// OnError controls what the runner does when a step fails.
type OnError string

const (
	OnErrorRetry OnError = "retry"
	OnErrorSkip  OnError = "skip"
	OnErrorFail  OnError = "fail"
)

// Step is one code or LLM step in a workflow.
type Step struct {
	Name string   `yaml:"name" json:"name"`
	Kind StepKind `yaml:"kind" json:"kind"`

	// Code step: a gval expression evaluated against the shared context.
	// Its result is written back into context under ResultVar (if set),
	// the same as an LLM step's parsed response.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// LLM step: a Go template rendered against the context, sent as the
	// user message of a single _syscall_llm call. The parsed response is
	// written back into context under ResultVar.
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
	Model          string `yaml:"model,omitempty" json:"model,omitempty"`
	ResultVar      string `yaml:"result_var,omitempty" json:"result_var,omitempty"`

	// ResultPath, when set on an LLM step whose response carried a tool
	// call, is a JSONPath evaluated against that tool call's arguments
	// instead of storing the raw response text — lets a workflow pull one
	// structured field (e.g. "$.amount") out of a model's tool call rather
	// than re-parsing its whole response in a later code step.
	ResultPath string `yaml:"result_path,omitempty" json:"result_path,omitempty"`

	RunIf      string  `yaml:"run_if,omitempty" json:"run_if,omitempty"`
	OnError    OnError `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	MaxRetries int     `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// EmitIntent, when non-empty, is a gval expression evaluated after the
	// step runs; a non-nil, non-"noop" result becomes the intent the
	// runner publishes to the dispatcher and yields on.
	EmitIntent string `yaml:"emit_intent,omitempty" json:"emit_intent,omitempty"`
}

// Transition guards moving from one named state to another.
type Transition struct {
	Condition string `yaml:"condition" json:"condition"`
	Next      string `yaml:"next" json:"next"`
}

// State is a named node in the optional state machine.
type State struct {
	Steps       []Step       `yaml:"steps" json:"steps"`
	Transitions []Transition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// Workflow is the ordered-steps-plus-state-machine artifact content. When
// States is empty, Steps is run as one flat ordered list (no named state
// machine) — the common case for simple agents.
type Workflow struct {
	Name    string            `yaml:"name" json:"name"`
	Steps   []Step            `yaml:"steps,omitempty" json:"steps,omitempty"`
	States  map[string]State  `yaml:"states,omitempty" json:"states,omitempty"`
	Initial string            `yaml:"initial,omitempty" json:"initial,omitempty"`
}

// language is the gval dialect used for every expression in this package:
// full arithmetic/logic/string support plus the workflow-local builtins.
var language = gval.Full(contextBuiltins()...)

// selfKey is injected into every evaluation parameter map so expressions
// can pass the whole context to a builtin (e.g. has(_ctx, "some_field"))
// without gval needing a dedicated "root object" syntax.
const selfKey = "_ctx"

// Eval evaluates a gval expression against ctx, returning its raw result.
func Eval(expression string, ctx map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	ctx[selfKey] = ctx
	defer delete(ctx, selfKey)
	return language.Evaluate(expression, ctx)
}

// EvalBool evaluates expression and coerces the result to bool; an empty
// expression is treated as "always true".
func EvalBool(expression string, ctx map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	v, err := Eval(expression, ctx)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
