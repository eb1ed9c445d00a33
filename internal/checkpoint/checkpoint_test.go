package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergentlabs/agentsim/internal/world"
)

func TestAgentStateStore_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenAgentStateStore(filepath.Join(dir, "agents.db"), 3)
	require.NoError(t, err)
	defer store.Close()

	err = store.Put("agent1", AgentState{
		CurrentState:  "observing",
		WorkingMemory: map[string]any{"last_seen": "bob"},
		ActionCounts:  map[string]int64{"transfer": 2},
	})
	require.NoError(t, err)

	got, err := store.Get("agent1")
	require.NoError(t, err)
	assert.Equal(t, "observing", got.CurrentState)
	assert.Equal(t, "bob", got.WorkingMemory["last_seen"])
	assert.Equal(t, int64(2), got.ActionCounts["transfer"])
}

func TestAgentStateStore_TurnHistoryTruncatesToCap(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenAgentStateStore(filepath.Join(dir, "agents.db"), 2)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordTurn("agent1", map[string]any{"kind": "noop"}, map[string]any{"success": true}))
	}

	got, err := store.Get("agent1")
	require.NoError(t, err)
	assert.Len(t, got.TurnHistory, 2)
	assert.Equal(t, int64(5), got.ActionCounts["noop"])
}

func TestAgentStateStore_GetUnknownAgentReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenAgentStateStore(filepath.Join(dir, "agents.db"), 10)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get("never_seen")
	require.NoError(t, err)
	assert.Empty(t, got.CurrentState)
	assert.NotNil(t, got.WorkingMemory)
}

func TestSnapshot_BuildWriteLoadRoundTrip(t *testing.T) {
	registry := world.NewIDRegistry()
	artifactStore := world.NewArtifactStore(registry)
	ledger := world.NewLedger()
	ledger.Spawn("alice", world.Balances{Scrip: 42})

	require.NoError(t, artifactStore.Create(&world.Artifact{
		ID:        "data1",
		Kind:      world.KindData,
		CreatedBy: "alice",
		Interface: world.Interface{Description: "some data", DataType: world.DataTypeData},
	}))

	dir := t.TempDir()
	agentStateDir := filepath.Join(dir, "agents.db")
	agentStates, err := OpenAgentStateStore(agentStateDir, 10)
	require.NoError(t, err)
	defer agentStates.Close()
	require.NoError(t, agentStates.Put("alice", AgentState{CurrentState: "idle"}))

	snap, err := Build(1, "periodic", ledger, artifactStore, agentStates, 1.23)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Balances["alice"].Scrip)
	require.Len(t, snap.Artifacts, 1)

	checkpointDir := filepath.Join(dir, "checkpoints")
	store, err := NewStore(checkpointDir)
	require.NoError(t, err)

	path, err := store.Write(snap)
	require.NoError(t, err)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, loaded.Version)
	assert.Equal(t, int64(42), loaded.Balances["alice"].Scrip)
	require.Len(t, loaded.Artifacts, 1)
	assert.Equal(t, "data1", loaded.Artifacts[0].ID)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, path, latest)
}

func TestSnapshot_RestoreReplaysBalancesAndAgentStates(t *testing.T) {
	ledger := world.NewLedger()
	dir := t.TempDir()
	agentStates, err := OpenAgentStateStore(filepath.Join(dir, "agents.db"), 10)
	require.NoError(t, err)
	defer agentStates.Close()

	snap := Snapshot{
		Balances:    map[string]world.Balances{"bob": {Scrip: 99}},
		AgentStates: map[string]AgentState{"bob": {CurrentState: "restored"}},
	}
	require.NoError(t, Restore(snap, ledger, agentStates))

	assert.Equal(t, int64(99), ledger.Balance("bob").Scrip)
	got, err := agentStates.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "restored", got.CurrentState)
}
