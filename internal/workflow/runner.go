package workflow

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/PaesslerAG/jsonpath"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/llmgateway"
	"github.com/emergentlabs/agentsim/internal/logging"
)

// Outcome is what one Runner.Advance call produced.
type Outcome struct {
	// Intent is non-nil once a step emits something other than noop; the
	// caller (the loop manager) is expected to dispatch it and, on its
	// next turn, call Advance again to continue the workflow.
	Intent *dispatch.Intent

	// StepName names whichever step last ran, for logging/observability.
	StepName string

	// Done reports whether the workflow (or current state, for a state
	// machine) has no more steps to run.
	Done bool
}

// Runner drives one Workflow instance for a single agent. It is not safe
// for concurrent use; the loop manager owns exactly one Runner per agent
// goroutine.
type Runner struct {
	wf  Workflow
	gw  *llmgateway.Gateway
	log *logging.Logger

	// Context is the shared key/value scratch space every step reads and
	// writes.
	Context map[string]any

	// CurrentState is the active named state when wf.States is non-empty.
	CurrentState string

	cursor map[string]int // per-state (or "" for flat) next-step index
	fails  map[string]int // per-step retry counter, keyed by state+step name
}

// NewRunner builds a Runner for wf, seeding the state machine's initial
// state (if any) and an empty shared context.
func NewRunner(wf Workflow, gw *llmgateway.Gateway, log *logging.Logger) *Runner {
	return &Runner{
		wf:           wf,
		gw:           gw,
		log:          log,
		Context:      map[string]any{},
		CurrentState: wf.Initial,
		cursor:       map[string]int{},
		fails:        map[string]int{},
	}
}

func (r *Runner) steps() []Step {
	if len(r.wf.States) == 0 {
		return r.wf.Steps
	}
	return r.wf.States[r.CurrentState].Steps
}

func (r *Runner) stateKey() string {
	if len(r.wf.States) == 0 {
		return ""
	}
	return r.CurrentState
}

// Advance runs steps starting at the current cursor until one emits a
// non-noop intent, a step fails past on_error handling, or the step list is
// exhausted (in which case, for a state machine, Advance evaluates
// transitions and moves to the next state but does not run any of its
// steps until the following call).
func (r *Runner) Advance(ctx context.Context, callerID string) (Outcome, error) {
	key := r.stateKey()
	steps := r.steps()

	for r.cursor[key] < len(steps) {
		idx := r.cursor[key]
		step := steps[idx]

		ok, err := EvalBool(step.RunIf, r.Context)
		if err != nil {
			return Outcome{}, fmt.Errorf("workflow: run_if for step %q: %w", step.Name, err)
		}
		if !ok {
			r.cursor[key]++
			continue
		}

		intent, runErr := r.runStep(ctx, callerID, step)
		if runErr != nil {
			switch step.OnError {
			case OnErrorSkip:
				r.log.WithContext(ctx).WithField("step", step.Name).WithField("error", runErr).Warn("workflow step failed, skipping")
				r.cursor[key]++
				continue
			case OnErrorRetry:
				failKey := key + "/" + step.Name
				r.fails[failKey]++
				if step.MaxRetries > 0 && r.fails[failKey] > step.MaxRetries {
					return Outcome{}, fmt.Errorf("workflow: step %q exceeded max_retries: %w", step.Name, runErr)
				}
				return Outcome{StepName: step.Name}, nil // caller re-invokes Advance next turn, same cursor
			default: // OnErrorFail, and the zero value
				return Outcome{}, fmt.Errorf("workflow: step %q failed: %w", step.Name, runErr)
			}
		}

		r.cursor[key]++
		if intent != nil && intent.Kind != dispatch.KindNoop {
			return Outcome{Intent: intent, StepName: step.Name}, nil
		}
	}

	if len(r.wf.States) == 0 {
		return Outcome{Done: true}, nil
	}
	return r.transition()
}

// transition evaluates the current state's guarded transitions in order and
// moves CurrentState to the first whose condition evaluates true. If none
// match, the workflow is considered Done.
func (r *Runner) transition() (Outcome, error) {
	state := r.wf.States[r.CurrentState]
	for _, t := range state.Transitions {
		ok, err := EvalBool(t.Condition, r.Context)
		if err != nil {
			return Outcome{}, fmt.Errorf("workflow: transition condition for state %q: %w", r.CurrentState, err)
		}
		if ok {
			r.CurrentState = t.Next
			r.cursor[r.CurrentState] = 0
			return Outcome{}, nil
		}
	}
	return Outcome{Done: true}, nil
}

func (r *Runner) runStep(ctx context.Context, callerID string, step Step) (*dispatch.Intent, error) {
	switch step.Kind {
	case StepLLM:
		return r.runLLMStep(ctx, callerID, step)
	default:
		return r.runCodeStep(step)
	}
}

func (r *Runner) runCodeStep(step Step) (*dispatch.Intent, error) {
	result, err := Eval(step.Expression, r.Context)
	if err != nil {
		return nil, err
	}
	if step.ResultVar != "" {
		r.Context[step.ResultVar] = result
	}
	return r.maybeEmitIntent(step)
}

func (r *Runner) runLLMStep(ctx context.Context, callerID string, step Step) (*dispatch.Intent, error) {
	prompt, err := renderTemplate(step.PromptTemplate, r.Context)
	if err != nil {
		return nil, err
	}
	messages := []any{map[string]any{"role": "user", "content": prompt}}
	result := r.gw.Call(ctx, callerID, step.Model, messages, nil)
	if !result.Success {
		return nil, fmt.Errorf("llm step: %s", result.Error)
	}
	if step.ResultVar != "" {
		r.Context[step.ResultVar] = extractResult(step, result)
	}
	return r.maybeEmitIntent(step)
}

// extractResult picks what an LLM step stores under ResultVar: the raw
// text response, unless the step declares a ResultPath and the response
// carried a tool call, in which case the path is evaluated against that
// tool call's structured arguments instead.
func extractResult(step Step, result llmgateway.CallResult) any {
	if step.ResultPath == "" || len(result.ToolCalls) == 0 {
		return result.Content
	}
	v, err := jsonpath.Get(step.ResultPath, map[string]any(result.ToolCalls[0].Arguments))
	if err != nil {
		return result.Content
	}
	return v
}

// maybeEmitIntent evaluates step.EmitIntent (if set) and expects it to
// produce a map[string]any shaped like dispatch.Intent's JSON form; this
// lets a workflow author build an intent out of values just computed by
// the step (e.g. "{kind: 'transfer', to: recipient, amount: amount}").
func (r *Runner) maybeEmitIntent(step Step) (*dispatch.Intent, error) {
	if step.EmitIntent == "" {
		return nil, nil
	}
	v, err := Eval(step.EmitIntent, r.Context)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	return IntentFromMap(m)
}

func renderTemplate(tmplSrc string, ctx map[string]any) (string, error) {
	tmpl, err := template.New("step").Parse(tmplSrc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
