package permission

import (
	"sync"

	"github.com/emergentlabs/agentsim/internal/config"
)

// Registry maps access_contract_id to its resolved AccessHandler. A
// missing handler falls back to the boot-time default_on_missing policy
// instead of a hard-coded allow or deny.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]AccessHandler
	fallback AccessHandler
}

// NewRegistry builds a registry whose fallback handler is chosen by
// defaultOnMissing ("allow" or "deny").
func NewRegistry(defaultOnMissing config.DefaultOnMissing) *Registry {
	var fallback AccessHandler
	if defaultOnMissing == config.DefaultAllow {
		fallback = OpenAccessHandler()
	} else {
		fallback = LockedDownHandler()
	}
	return &Registry{
		handlers: make(map[string]AccessHandler),
		fallback: fallback,
	}
}

// Register associates accessContractID (an artifact id) with a resolved
// handler. Only the built-in handlers are registered, as well-known
// entries at boot; artifact code is never registered here, so an
// access_contract_id naming any other artifact resolves to the fallback.
func (r *Registry) Register(accessContractID string, h AccessHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[accessContractID] = h
}

// Resolve returns the handler for accessContractID, or the boot-time
// fallback if accessContractID is empty or unregistered.
func (r *Registry) Resolve(accessContractID string) AccessHandler {
	if accessContractID == "" {
		return r.fallback
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[accessContractID]; ok {
		return h
	}
	return r.fallback
}
