package sandbox

import (
	"context"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/world"
)

// handles binds one invocation's verified caller_id and context so every
// injected function closes over it instead of trusting anything the
// script passes in — this is the mechanism that makes caller_id
// unspoofable.
type handles struct {
	sb       *Sandbox
	ctx      context.Context
	callerID string
	target   *world.Artifact
}

func newHandles(sb *Sandbox, ctx context.Context, callerID string, target *world.Artifact) *handles {
	return &handles{sb: sb, ctx: ctx, callerID: callerID, target: target}
}

// kernelState builds the read-only query object.
func (h *handles) kernelState() map[string]any {
	return map[string]any{
		"get_balance": func(principalID, resource string) any {
			bal := h.sb.State.Balance(principalID)
			switch world.Resource(resource) {
			case world.ResourceScrip:
				return bal.Scrip
			case world.ResourceLLMBudget:
				return bal.LLMDollarBudget
			case world.ResourceDiskQuota:
				return bal.DiskQuota
			default:
				return nil
			}
		},
		"get_resource": func(principalID, resource string) any {
			bal := h.sb.State.Balance(principalID)
			switch world.Resource(resource) {
			case world.ResourceScrip:
				return bal.Scrip
			case world.ResourceLLMBudget:
				return bal.LLMDollarBudget
			case world.ResourceDiskQuota:
				return bal.DiskQuota
			default:
				return nil
			}
		},
		"get_artifact_metadata": func(id string) any {
			a, err := h.sb.State.GetArtifact(id)
			if err != nil {
				return nil
			}
			return a.Clone().Metadata
		},
		"read_artifact": func(id, claimedCallerID string) any {
			a, err := h.sb.State.GetArtifact(id)
			if err != nil {
				return map[string]any{"error": err.Error()}
			}
			clone := a.Clone()
			return map[string]any{
				"id":        clone.ID,
				"kind":      string(clone.Kind),
				"content":   clone.Content,
				"interface": clone.Interface,
				"deleted":   clone.Deleted,
			}
		},
		"list_artifacts_by_owner": func(principalID string, includeDeleted bool) any {
			artifacts := h.sb.State.ListByOwner(principalID, includeDeleted)
			ids := make([]string, 0, len(artifacts))
			for _, a := range artifacts {
				ids = append(ids, a.ID)
			}
			return ids
		},
		"get_pending_triggers": func() any {
			// Trigger visibility is exposed by internal/loopmanager's
			// queue, not the world state reader; artifacts that need it
			// query a trigger-registry artifact via invoke instead.
			return []string{}
		},
	}
}

// kernelActions builds the state-mutating object. Every call dispatches
// under h.callerID, never a caller-supplied id.
func (h *handles) kernelActions() map[string]any {
	return map[string]any{
		"write_artifact": func(id string, content string, kind string, metadata map[string]any) any {
			res := h.sb.Dispatcher.Dispatch(h.ctx, dispatch.Intent{
				Kind:         dispatch.KindWrite,
				PrincipalID:  h.callerID,
				ArtifactID:   id,
				Content:      []byte(content),
				ArtifactKind: world.Kind(kind),
				Interface:    &world.Interface{Description: "written by " + h.callerID, DataType: world.DataTypeData},
				Metadata:     metadata,
			})
			return actionResultToJS(res)
		},
		"transfer_scrip": func(to string, amount float64) any {
			res := h.sb.Dispatcher.Dispatch(h.ctx, dispatch.Intent{
				Kind:        dispatch.KindTransfer,
				PrincipalID: h.callerID,
				To:          to,
				Amount:      amount,
				Resource:    world.ResourceScrip,
			})
			return actionResultToJS(res)
		},
		"transfer_resource": func(to, resource string, amount float64) any {
			res := h.sb.Dispatcher.Dispatch(h.ctx, dispatch.Intent{
				Kind:        dispatch.KindTransfer,
				PrincipalID: h.callerID,
				To:          to,
				Amount:      amount,
				Resource:    world.Resource(resource),
			})
			return actionResultToJS(res)
		},
		"invoke": func(targetID, method string, args []any) any {
			res := h.sb.Dispatcher.Dispatch(h.ctx, dispatch.Intent{
				Kind:        dispatch.KindInvoke,
				PrincipalID: h.callerID,
				ArtifactID:  targetID,
				Method:      method,
				Args:        args,
			})
			return actionResultToJS(res)
		},
	}
}

// syscallLLM is only installed on the JS global when the running
// artifact holds can_call_llm.
func (h *handles) syscallLLM() func(model string, messages []any, tools []any) any {
	return func(model string, messages []any, tools []any) any {
		resp := h.sb.LLM.Call(h.ctx, h.callerID, model, messages, tools)
		return map[string]any{
			"success":     resp.Success,
			"content":     resp.Content,
			"usage":       resp.Usage,
			"cost":        resp.Cost,
			"tool_calls":  resp.ToolCalls,
			"error":       resp.Error,
			"error_code":  resp.ErrorCode,
		}
	}
}

func actionResultToJS(res dispatch.ActionResult) map[string]any {
	return map[string]any{
		"success":        res.Success,
		"message":        res.Message,
		"data":           res.Data,
		"error_code":     res.ErrorCode,
		"error_category": res.ErrorCategory,
		"retriable":      res.Retriable,
	}
}
