// Package sandbox runs artifact code in an isolated goja JavaScript
// context with injected kernel_state/kernel_actions/caller_id/_syscall_llm
// handles. The capability/identity-isolation idea is adapted from
// Android-style service sandboxing to per-artifact-invocation JS
// isolation, with goja as the actual interpreter.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/llmgateway"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/world"
)

// Dispatching is the callback surface kernel_actions uses to re-enter the
// dispatcher, passing caller_id explicitly through the handle struct
// rather than relying on ambient task-local state.
// *dispatch.Dispatcher satisfies this structurally.
type Dispatching interface {
	Dispatch(ctx context.Context, in dispatch.Intent) dispatch.ActionResult
}

// StateReader is the read-only query surface kernel_state uses.
type StateReader interface {
	GetArtifact(id string) (*world.Artifact, error)
	Balance(principalID string) world.Balances
	ListByOwner(principalID string, includeDeleted bool) []*world.Artifact
}

// Sandbox executes artifact code for invoke intents.
type Sandbox struct {
	Dispatcher Dispatching
	State      StateReader
	LLM        *llmgateway.Gateway
	CPUMeter   *CPUMeter

	InvocationTimeout time.Duration
	log               *logging.Logger
}

// New builds a Sandbox. Field values are wired by the caller (cmd/kernel);
// Dispatcher is typically the same *dispatch.Dispatcher this Sandbox's
// Invoke method is handed to as a dispatch.Executor.
func New(d Dispatching, state StateReader, llm *llmgateway.Gateway, cpu *CPUMeter, timeout time.Duration, log *logging.Logger) *Sandbox {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sandbox{Dispatcher: d, State: state, LLM: llm, CPUMeter: cpu, InvocationTimeout: timeout, log: log}
}

// Invoke runs target's code, calling handle_request(caller, operation, args)
// if the script defines it (operation is "invoke", args is {method, args}),
// else run(args...) as a fallback. Satisfies dispatch.Executor structurally.
func (s *Sandbox) Invoke(ctx context.Context, callerID string, target *world.Artifact, method string, args []any) (*dispatch.InvokeOutcome, error) {
	if target == nil {
		return nil, kernelerr.NotFound("")
	}
	if target.Code == "" {
		return nil, kernelerr.RuntimeError(fmt.Errorf("artifact %s has no code", target.ID))
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	handles := newHandles(s, ctx, callerID, target)
	if err := vm.Set("kernel_state", handles.kernelState()); err != nil {
		return nil, kernelerr.RuntimeError(err)
	}
	if err := vm.Set("kernel_actions", handles.kernelActions()); err != nil {
		return nil, kernelerr.RuntimeError(err)
	}
	if err := vm.Set("caller_id", callerID); err != nil {
		return nil, kernelerr.RuntimeError(err)
	}
	if target.HasCapability(world.CapCallLLM) {
		if err := vm.Set("_syscall_llm", handles.syscallLLM()); err != nil {
			return nil, kernelerr.RuntimeError(err)
		}
	}

	timer := time.AfterFunc(s.InvocationTimeout, func() {
		vm.Interrupt(timeoutSentinel{})
	})
	defer timer.Stop()

	var cpuBefore time.Duration
	if s.CPUMeter != nil {
		cpuBefore = s.CPUMeter.Sample()
	}

	if _, err := vm.RunString(target.Code); err != nil {
		return nil, classifyScriptError(err, target.ID)
	}

	result, err := s.callEntryPoint(vm, method, args, callerID)
	if err != nil {
		return nil, classifyScriptError(err, target.ID)
	}

	consumed := map[string]float64{}
	if s.CPUMeter != nil {
		consumed[string(world.RateCPU)] = (s.CPUMeter.Sample() - cpuBefore).Seconds()
	}

	return &dispatch.InvokeOutcome{Data: result, ResourcesConsumed: consumed}, nil
}

// callEntryPoint prefers handle_request(caller, operation, args) — the
// artifact's own self-handled access control — and falls back to
// run(args...).
func (s *Sandbox) callEntryPoint(vm *goja.Runtime, method string, args []any, callerID string) (map[string]any, error) {
	global := vm.GlobalObject()

	if fn, ok := goja.AssertFunction(global.Get("handle_request")); ok {
		// Same (operation, args) shape the dispatcher hands access handlers.
		request := map[string]any{"method": method, "args": args}
		v, err := fn(goja.Undefined(), vm.ToValue(callerID), vm.ToValue(string(dispatch.KindInvoke)), vm.ToValue(request))
		if err != nil {
			return nil, err
		}
		return toResultMap(v)
	}

	if fn, ok := goja.AssertFunction(global.Get("run")); ok {
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = vm.ToValue(a)
		}
		v, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return nil, err
		}
		return toResultMap(v)
	}

	return nil, kernelerr.RuntimeError(fmt.Errorf("artifact defines neither handle_request nor run"))
}

// DefinesHandleRequest reports whether target's code defines a
// handle_request function, meaning the artifact gates its own access and
// the dispatcher must not also run an access_contract_id check for it.
// Running the script just to inspect its globals mirrors what Invoke does
// anyway; a script that fails to even parse/run is treated as not defining
// one, since Invoke itself will surface that failure when actually called.
func (s *Sandbox) DefinesHandleRequest(target *world.Artifact) bool {
	if target == nil || target.Code == "" {
		return false
	}
	vm := goja.New()
	if _, err := vm.RunString(target.Code); err != nil {
		return false
	}
	_, ok := goja.AssertFunction(vm.GlobalObject().Get("handle_request"))
	return ok
}

func toResultMap(v goja.Value) (map[string]any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	exported := v.Export()
	if m, ok := exported.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": exported}, nil
}

type timeoutSentinel struct{}

func classifyScriptError(err error, artifactID string) error {
	if _, ok := err.(*goja.InterruptedError); ok {
		return kernelerr.Timeout("invoke:" + artifactID)
	}
	if ie, ok := err.(*goja.Exception); ok {
		if v := ie.Value(); v != nil {
			if exported, ok := v.Export().(map[string]any); ok {
				if code, ok := exported["error_code"].(string); ok && code == string(kernelerr.CodeBudgetExhausted) {
					return kernelerr.BudgetExhausted("llm_dollar_budget")
				}
			}
		}
	}
	return kernelerr.RuntimeError(err)
}
