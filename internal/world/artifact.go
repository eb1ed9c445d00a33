// Package world holds the kernel's arena-and-index state containers:
// artifacts, the ID registry, the ledger, the rate tracker, the artifact
// store, and the event log. Everything cross-references by artifact_id
// string, never by pointer, per the arena+index design.
package world

import (
	"sync"
	"time"
)

// Kind is the discriminated tag every artifact carries.
type Kind string

const (
	KindData       Kind = "data"
	KindExecutable Kind = "executable"
	KindAgent      Kind = "agent"
	KindContract   Kind = "contract"
	KindTrigger    Kind = "trigger"
	KindWorkflow   Kind = "workflow"
	KindReflex     Kind = "reflex"
)

// DataType is the interface descriptor's dataType enum.
type DataType string

const (
	DataTypeData    DataType = "data"
	DataTypeService DataType = "service"
	DataTypeAgent   DataType = "agent"
	DataTypeContract DataType = "contract"
)

// Method describes one invocable operation on an executable artifact's
// interface. The full builder lives in internal/framework; this is the
// plain data shape the store and dispatcher read.
type Method struct {
	Name        string         `json:"name" yaml:"name"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Cost        int64          `json:"cost,omitempty" yaml:"cost,omitempty"`
	Errors      []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Interface is the required descriptor every artifact carries.
type Interface struct {
	Description   string   `json:"description" yaml:"description"`
	DataType      DataType `json:"data_type" yaml:"dataType"`
	Methods       []Method `json:"methods,omitempty" yaml:"methods,omitempty"`
	Linearization string   `json:"linearization,omitempty" yaml:"linearization,omitempty"`
	Examples      []string `json:"examples,omitempty" yaml:"examples,omitempty"`
	HasStanding   bool     `json:"has_standing,omitempty" yaml:"has_standing,omitempty"`
}

// Capability is a kernel-granted permission string, e.g. "can_call_llm".
type Capability string

const CapCallLLM Capability = "can_call_llm"

// Artifact is the universal entity.
type Artifact struct {
	ID        string
	Kind      Kind
	Content   []byte
	Code      string
	Interface Interface

	CreatedBy string // immutable after creation

	AccessContractID string
	Capabilities      map[Capability]bool
	HasStanding       bool
	HasLoop           bool
	Metadata          map[string]any

	Deleted   bool
	DeletedAt time.Time
	DeletedBy string

	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.RWMutex // guards Content/Code/Interface/Metadata mutation
}

// Clone returns a deep-enough copy safe to hand to a caller without
// exposing the live artifact's lock or backing arrays.
func (a *Artifact) Clone() *Artifact {
	a.mu.RLock()
	defer a.mu.RUnlock()

	content := make([]byte, len(a.Content))
	copy(content, a.Content)

	caps := make(map[Capability]bool, len(a.Capabilities))
	for k, v := range a.Capabilities {
		caps[k] = v
	}
	meta := make(map[string]any, len(a.Metadata))
	for k, v := range a.Metadata {
		meta[k] = v
	}
	methods := make([]Method, len(a.Interface.Methods))
	copy(methods, a.Interface.Methods)
	iface := a.Interface
	iface.Methods = methods

	return &Artifact{
		ID:               a.ID,
		Kind:             a.Kind,
		Content:          content,
		Code:             a.Code,
		Interface:        iface,
		CreatedBy:        a.CreatedBy,
		AccessContractID: a.AccessContractID,
		Capabilities:     caps,
		HasStanding:      a.HasStanding,
		HasLoop:          a.HasLoop,
		Metadata:         meta,
		Deleted:          a.Deleted,
		DeletedAt:        a.DeletedAt,
		DeletedBy:        a.DeletedBy,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// HasCapability reports whether the artifact holds cap.
func (a *Artifact) HasCapability(cap Capability) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Capabilities[cap]
}

// applyWrite mutates content/code/interface/metadata under the artifact's
// own lock; called only by the store's Write, after its tombstone check.
// No store-level lock is held during the call.
func (a *Artifact) applyWrite(content []byte, kind Kind, iface *Interface, code *string, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if content != nil {
		a.Content = content
	}
	if kind != "" {
		a.Kind = kind
	}
	if iface != nil {
		a.Interface = *iface
	}
	if code != nil {
		a.Code = *code
	}
	if metadata != nil {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			a.Metadata[k] = v
		}
	}
	a.UpdatedAt = time.Now()
}

// Validate checks the invariants that apply at construction time
// (interface required fields, methods required for executables,
// has_loop implies has_standing).
func (a *Artifact) Validate() error {
	if a.Interface.Description == "" {
		return errInvalidArtifact("interface.description is required")
	}
	if a.Interface.DataType == "" {
		return errInvalidArtifact("interface.dataType is required")
	}
	if a.Kind == KindExecutable && len(a.Interface.Methods) == 0 {
		return errInvalidArtifact("executable artifacts require interface.methods")
	}
	if a.HasLoop && !a.HasStanding {
		return errInvalidArtifact("has_loop requires has_standing")
	}
	return nil
}

type artifactValidationError struct{ msg string }

func (e *artifactValidationError) Error() string { return e.msg }

func errInvalidArtifact(msg string) error { return &artifactValidationError{msg: msg} }
