package dispatch

import "github.com/emergentlabs/agentsim/internal/world"

// logAndReturn appends exactly one event for this dispatch call and returns result unchanged.
func (d *Dispatcher) logAndReturn(in Intent, result ActionResult) ActionResult {
	eventType := world.EventAction
	if in.Kind == KindInvoke {
		if result.Success {
			eventType = world.EventInvokeSuccess
		} else {
			eventType = world.EventInvokeFailure
		}
	}

	data := map[string]any{
		"intent": intentSummary(in),
		"result": result,
	}
	d.EventLog.Append(eventType, in.PrincipalID, data)
	return result
}

// intentSummary captures the fields relevant for the event log without
// re-serializing byte slices verbatim (content can be large).
func intentSummary(in Intent) map[string]any {
	return map[string]any{
		"action_type":  string(in.Kind),
		"principal_id": in.PrincipalID,
		"artifact_id":  in.ArtifactID,
		"method":       in.Method,
		"to":           in.To,
		"amount":       in.Amount,
		"resource":     string(in.Resource),
		"query_type":   in.QueryType,
	}
}
