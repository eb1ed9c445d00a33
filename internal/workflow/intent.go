package workflow

import (
	"fmt"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/world"
)

// IntentFromMap converts the loosely-typed map a gval emit_intent
// expression (or a sandboxed artifact's returned "intent" field) produces
// into a dispatch.Intent. Only the fields a workflow author would
// realistically compute from context are populated; anything more exotic
// (write with a new interface, modify_system_prompt) is built by the
// sandbox code path instead, which has the full scripting surface.
func IntentFromMap(m map[string]any) (*dispatch.Intent, error) {
	kind, _ := m["kind"].(string)
	if kind == "" {
		return nil, fmt.Errorf("emit_intent: missing kind")
	}

	intent := &dispatch.Intent{Kind: dispatch.Kind(kind)}
	if v, ok := m["principal_id"].(string); ok {
		intent.PrincipalID = v
	}
	if v, ok := m["artifact_id"].(string); ok {
		intent.ArtifactID = v
	}
	if v, ok := m["method"].(string); ok {
		intent.Method = v
	}
	if v, ok := m["args"].([]any); ok {
		intent.Args = v
	}
	if v, ok := m["to"].(string); ok {
		intent.To = v
	}
	if v, ok := m["amount"].(float64); ok {
		intent.Amount = v
	}
	if v, ok := m["resource"].(string); ok {
		intent.Resource = world.Resource(v)
	}
	if v, ok := m["reason"].(string); ok {
		intent.Reason = v
	}
	if v, ok := m["updates"].(map[string]any); ok {
		intent.Updates = v
	}
	if v, ok := m["query_type"].(string); ok {
		intent.QueryType = v
	}
	if v, ok := m["filter"].(map[string]any); ok {
		intent.Filter = v
	}
	return intent, nil
}
