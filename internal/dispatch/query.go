package dispatch

import (
	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/world"
)

// Query types understood by the query intent "). Mint tasks
// and other genesis-contract-specific catalogues are exposed by those
// contracts' own invoke methods, not by the kernel's query intent, which
// only knows about the primitives it owns directly.
const (
	QueryArtifacts  = "artifacts"
	QueryBalances   = "balances"
	QueryArtifact   = "artifact"
)

func (d *Dispatcher) executeQuery(in Intent) ActionResult {
	switch in.QueryType {
	case QueryArtifacts:
		kind := world.Kind("")
		if k, ok := in.Filter["kind"].(string); ok {
			kind = world.Kind(k)
		}
		includeDeleted := in.IncludeDeleted
		artifacts := d.Store.List(kind, includeDeleted)
		ids := make([]string, 0, len(artifacts))
		for _, a := range artifacts {
			ids = append(ids, a.ID)
		}
		return Ok("query ok", map[string]any{"artifact_ids": ids, "count": len(ids)})

	case QueryArtifact:
		id, _ := in.Filter["artifact_id"].(string)
		a, err := d.Store.Get(id)
		if err != nil {
			return Fail(err)
		}
		return d.executeRead(a)

	case QueryBalances:
		principalID, _ := in.Filter["principal_id"].(string)
		if principalID == "" {
			principalID = in.PrincipalID
		}
		bal := d.Ledger.Balance(principalID)
		return Ok("query ok", map[string]any{
			"principal_id":      principalID,
			"scrip":             bal.Scrip,
			"llm_dollar_budget": bal.LLMDollarBudget,
			"disk_quota":        bal.DiskQuota,
		})

	default:
		return Fail(kernelerr.InvalidArgument("query_type", "unknown query type"))
	}
}
