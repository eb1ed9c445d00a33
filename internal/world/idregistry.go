package world

import (
	"sync"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
)

// OwnerIndex distinguishes which container actually owns an id: the
// artifact store (every artifact, including principals) or, for quick
// lookup, the ledger entry for standing-bearing artifacts.
type OwnerIndex string

const (
	OwnerArtifactStore OwnerIndex = "artifact_store"
)

// idEntry is what the registry keeps for one id.
type idEntry struct {
	Kind       Kind
	OwnerIndex OwnerIndex
}

// IDRegistry enforces the single global namespace every artifact and
// principal id shares.
type IDRegistry struct {
	mu      sync.RWMutex
	entries map[string]idEntry
}

// NewIDRegistry constructs an empty registry.
func NewIDRegistry() *IDRegistry {
	return &IDRegistry{entries: make(map[string]idEntry)}
}

// Register claims id for kind/owner. Fails with kernelerr.IDCollision if
// the id is already registered, live or tombstoned — the registry itself
// never forgets an id, since tombstones remain readable.
func (r *IDRegistry) Register(id string, kind Kind, owner OwnerIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return kernelerr.IDCollision(id)
	}
	r.entries[id] = idEntry{Kind: kind, OwnerIndex: owner}
	return nil
}

// Lookup returns the kind and owner index registered for id.
func (r *IDRegistry) Lookup(id string) (Kind, OwnerIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.Kind, e.OwnerIndex, ok
}

// Exists reports whether id has ever been registered.
func (r *IDRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}
