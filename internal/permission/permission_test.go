package permission

import (
	"testing"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_FallsBackToDenyByDefault(t *testing.T) {
	r := NewRegistry(config.DefaultDeny)
	res := r.Resolve("").Check("alice", "write", nil)
	assert.False(t, res.Allowed)
}

func TestRegistry_FallsBackToAllowWhenConfigured(t *testing.T) {
	r := NewRegistry(config.DefaultAllow)
	res := r.Resolve("missing-contract").Check("alice", "write", nil)
	assert.True(t, res.Allowed)
}

func TestRegistry_RegisteredHandlerOverridesFallback(t *testing.T) {
	r := NewRegistry(config.DefaultDeny)
	r.Register("owner-only-x", OwnerOnlyHandler("alice"))

	allowed := r.Resolve("owner-only-x").Check("alice", "write", nil)
	assert.True(t, allowed.Allowed)

	denied := r.Resolve("owner-only-x").Check("bob", "write", nil)
	assert.False(t, denied.Allowed)
}

func TestReadOnlyHandler_AllowsReadsDeniesWrites(t *testing.T) {
	h := ReadOnlyHandler("alice")
	assert.True(t, h.Check("bob", "read", nil).Allowed)
	assert.True(t, h.Check("bob", "query", nil).Allowed)
	assert.False(t, h.Check("bob", "write", nil).Allowed)
	assert.True(t, h.Check("alice", "write", nil).Allowed)
}
