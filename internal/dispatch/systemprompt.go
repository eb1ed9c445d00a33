package dispatch

import (
	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/world"
)

// executeModifySystemPrompt applies a structured edit to the caller's own
// prompt artifact under the size cap and immutable-prefix rule. The
// artifact's Content holds the prompt text; the first
// protected_prefix_chars characters can never change —
// append/prepend/replace_section/reset all operate only on the mutable
// suffix that follows it.
func (d *Dispatcher) executeModifySystemPrompt(in Intent, target *world.Artifact) ActionResult {
	if target.CreatedBy != in.PrincipalID {
		return Fail(kernelerr.NotAuthorized("only the owning principal may modify its own system prompt"))
	}

	current := string(target.Content)
	protectedLen := d.promptCfg.ProtectedPrefixChars
	if protectedLen > len(current) {
		protectedLen = len(current)
	}
	protected := current[:protectedLen]
	mutable := current[protectedLen:]

	var next string
	switch in.PromptOp {
	case OpAppend:
		next = protected + mutable + in.PromptArg
	case OpPrepend:
		next = protected + in.PromptArg + mutable
	case OpReplaceSection:
		next = protected + in.PromptArg
	case OpReset:
		next = protected
	default:
		return Fail(kernelerr.InvalidArgument("operation", "unknown system prompt operation"))
	}

	if d.promptCfg.MaxSizeBytes > 0 && len(next) > d.promptCfg.MaxSizeBytes {
		return Fail(kernelerr.InvalidArgument("content", "exceeds agent.system_prompt.max_size_bytes"))
	}

	if err := d.Store.Write(target.ID, []byte(next), "", nil, nil, nil); err != nil {
		return Fail(err)
	}
	return Ok("system prompt updated", map[string]any{"artifact_id": target.ID, "operation": string(in.PromptOp)})
}
