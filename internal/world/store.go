package world

import (
	"sort"
	"sync"
	"time"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
)

// ArtifactStore owns every artifact by id — the arena in an arena+index
// model. Cross-references are always artifact_id strings resolved
// through this store, never pointers held outside it.
type ArtifactStore struct {
	registry *IDRegistry

	mu        sync.RWMutex
	artifacts map[string]*Artifact
	byOwner   map[string][]string // created_by -> artifact ids, insertion order
}

// NewArtifactStore constructs a store backed by registry for id uniqueness.
func NewArtifactStore(registry *IDRegistry) *ArtifactStore {
	return &ArtifactStore{
		registry:  registry,
		artifacts: make(map[string]*Artifact),
		byOwner:   make(map[string][]string),
	}
}

// Create registers and stores a brand-new artifact. Fails with
// id_collision if the id is already taken.
func (s *ArtifactStore) Create(a *Artifact) error {
	if err := a.Validate(); err != nil {
		return kernelerr.InvalidArgument("artifact", err.Error())
	}

	if err := s.registry.Register(a.ID, a.Kind, OwnerArtifactStore); err != nil {
		return err
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.ID] = a
	s.byOwner[a.CreatedBy] = append(s.byOwner[a.CreatedBy], a.ID)
	return nil
}

// Get returns the artifact for id, including tombstones.
func (s *ArtifactStore) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	a, ok := s.artifacts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, kernelerr.NotFound(id)
	}
	return a, nil
}

// Write applies a create-or-update write to an existing, non-deleted
// artifact. Deleted artifacts reject writes.
func (s *ArtifactStore) Write(id string, content []byte, kind Kind, iface *Interface, code *string, metadata map[string]any) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}
	a.mu.RLock()
	deleted := a.Deleted
	a.mu.RUnlock()
	if deleted {
		return kernelerr.Deleted(id)
	}
	a.applyWrite(content, kind, iface, code, metadata)
	return nil
}

// SoftDelete tombstones an artifact: last-writer-wins, never hard-deleted
// by the kernel.
func (s *ArtifactStore) SoftDelete(id, deletedBy string) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Deleted {
		return nil // idempotent
	}
	a.Deleted = true
	a.DeletedAt = time.Now()
	a.DeletedBy = deletedBy
	return nil
}

// ListByOwner returns the artifacts created_by principalID, in creation
// order, excluding tombstones unless includeDeleted is set.
func (s *ArtifactStore) ListByOwner(principalID string, includeDeleted bool) []*Artifact {
	s.mu.RLock()
	ids := append([]string(nil), s.byOwner[principalID]...)
	s.mu.RUnlock()

	out := make([]*Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(id)
		if err != nil {
			continue
		}
		a.mu.RLock()
		deleted := a.Deleted
		a.mu.RUnlock()
		if deleted && !includeDeleted {
			continue
		}
		out = append(out, a)
	}
	return out
}

// List returns every artifact of the given kind (empty kind means all),
// sorted by id, excluding tombstones unless includeDeleted is set.
func (s *ArtifactStore) List(kind Kind, includeDeleted bool) []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		if kind != "" && a.Kind != kind {
			continue
		}
		a.mu.RLock()
		deleted := a.Deleted
		a.mu.RUnlock()
		if deleted && !includeDeleted {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live (non-deleted) artifacts.
func (s *ArtifactStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.artifacts {
		a.mu.RLock()
		deleted := a.Deleted
		a.mu.RUnlock()
		if !deleted {
			n++
		}
	}
	return n
}
