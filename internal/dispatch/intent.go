// Package dispatch implements the narrow waist: the single dispatch(intent)
// entry point every state mutation flows through.
package dispatch

import "github.com/emergentlabs/agentsim/internal/world"

// Kind is the closed set of nine intent kinds the dispatcher accepts.
type Kind string

const (
	KindRead               Kind = "read"
	KindWrite              Kind = "write"
	KindInvoke             Kind = "invoke"
	KindTransfer           Kind = "transfer"
	KindDelete             Kind = "delete"
	KindQuery              Kind = "query"
	KindNoop               Kind = "noop"
	KindUpdateMetadata     Kind = "update_metadata"
	KindModifySystemPrompt Kind = "modify_system_prompt"
)

// SystemPromptOp is the modify_system_prompt operation enum.
type SystemPromptOp string

const (
	OpAppend         SystemPromptOp = "append"
	OpPrepend        SystemPromptOp = "prepend"
	OpReplaceSection SystemPromptOp = "replace_section"
	OpReset          SystemPromptOp = "reset"
)

// reservedMetadataKeys are update_metadata keys the kernel blocks outright.
var reservedMetadataKeys = map[string]bool{
	"authorized_writer":    true,
	"authorized_principal": true,
}

// IsReservedMetadataKey reports whether key is kernel-reserved.
func IsReservedMetadataKey(key string) bool { return reservedMetadataKeys[key] }

// Intent is the single request shape dispatched through the narrow waist.
// Only the fields relevant to Kind are populated; the dispatcher validates
// shape per-kind in validate.go.
type Intent struct {
	Kind        Kind
	PrincipalID string

	// read, invoke, transfer(payer lookups), delete, update_metadata
	ArtifactID string

	// write
	Content      []byte
	ArtifactKind world.Kind
	Interface    *world.Interface
	Code         *string
	Metadata     map[string]any

	// write, creation only: the kernel never lets an update_metadata or a
	// write against an existing artifact change these, so a caller can't
	// silently escalate an artifact's own standing after the fact.
	AccessContractID string
	Capabilities     []world.Capability
	HasStanding      bool
	HasLoop          bool

	// invoke
	Method string
	Args   []any

	// transfer
	To       string
	Amount   float64
	Resource world.Resource

	// query
	QueryType      string
	Filter         map[string]any
	IncludeDeleted bool

	// noop
	Reason string

	// update_metadata
	Updates map[string]any

	// modify_system_prompt
	PromptOp  SystemPromptOp
	PromptArg string
}
