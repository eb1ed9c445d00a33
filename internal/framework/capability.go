package framework

import (
	"sync"

	"github.com/emergentlabs/agentsim/internal/world"
)

// CapabilitySet is a small grant/revoke/has map guarded by an RWMutex,
// adapted from an Android-style security-level capability set into this
// kernel's own grants (presently just can_call_llm, with room for future
// additions).
type CapabilitySet struct {
	mu     sync.RWMutex
	grants map[world.Capability]bool
}

// NewCapabilitySet builds a set with the given capabilities granted.
func NewCapabilitySet(caps ...world.Capability) *CapabilitySet {
	cs := &CapabilitySet{grants: make(map[world.Capability]bool)}
	for _, c := range caps {
		cs.grants[c] = true
	}
	return cs
}

func (cs *CapabilitySet) Grant(cap world.Capability) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.grants[cap] = true
}

func (cs *CapabilitySet) Revoke(cap world.Capability) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.grants, cap)
}

func (cs *CapabilitySet) Has(cap world.Capability) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.grants[cap]
}

func (cs *CapabilitySet) HasAll(caps ...world.Capability) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, c := range caps {
		if !cs.grants[c] {
			return false
		}
	}
	return true
}

func (cs *CapabilitySet) HasAny(caps ...world.Capability) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, c := range caps {
		if cs.grants[c] {
			return true
		}
	}
	return false
}

// List returns every currently granted capability.
func (cs *CapabilitySet) List() []world.Capability {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]world.Capability, 0, len(cs.grants))
	for c := range cs.grants {
		out = append(out, c)
	}
	return out
}

// ToMap materializes the set as the plain map an Artifact stores.
func (cs *CapabilitySet) ToMap() map[world.Capability]bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[world.Capability]bool, len(cs.grants))
	for c, v := range cs.grants {
		out[c] = v
	}
	return out
}

// A trigger cannot grant its callback any capability the trigger owner
// does not already hold. CapabilityDeniedError reports a
// violation of that rule or of a plain Has/HasAll check upstream.
type CapabilityDeniedError struct {
	Capability world.Capability
}

func (e *CapabilityDeniedError) Error() string {
	return "capability denied: " + string(e.Capability)
}

// EnsureSubsetOf verifies every capability in requested is already granted
// in owner, returning a CapabilityDeniedError for the first violation.
func EnsureSubsetOf(owner *CapabilitySet, requested []world.Capability) error {
	for _, c := range requested {
		if !owner.Has(c) {
			return &CapabilityDeniedError{Capability: c}
		}
	}
	return nil
}
