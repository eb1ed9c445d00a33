package dispatch

import (
	"context"
	"testing"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/permission"
	"github.com/emergentlabs/agentsim/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *world.Ledger, *world.ArtifactStore) {
	t.Helper()
	registry := world.NewIDRegistry()
	store := world.NewArtifactStore(registry)
	ledger := world.NewLedger()
	rt := world.NewRateTracker(nil)
	evlog, err := world.NewEventLog(world.EventLogConfig{})
	require.NoError(t, err)
	perms := permission.NewRegistry(config.DefaultAllow)
	validator := NewArgumentValidator(config.ValidationNone, nil)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	d := New(store, ledger, rt, evlog, perms, validator, nil,
		config.ExecutorConfig{MaxInvokeDepth: 3},
		config.SystemPromptConfig{MaxSizeBytes: 1024, ProtectedPrefixChars: 8},
		logging.NewDefault("test"), m)
	return d, ledger, store
}

func TestDispatch_SimpleTransferScenario(t *testing.T) {
	d, ledger, _ := newTestDispatcher(t)
	ledger.Spawn("alice", world.Balances{Scrip: 100})
	ledger.Spawn("bob", world.Balances{Scrip: 0})

	res := d.Dispatch(context.Background(), Intent{
		Kind:        KindTransfer,
		PrincipalID: "alice",
		To:          "bob",
		Amount:      40,
		Resource:    world.ResourceScrip,
	})

	require.True(t, res.Success)
	assert.Equal(t, int64(60), ledger.Balance("alice").Scrip)
	assert.Equal(t, int64(40), ledger.Balance("bob").Scrip)
	newBalances, ok := res.Data["new_balances"].([]int64)
	require.True(t, ok)
	assert.Equal(t, []int64{60, 40}, newBalances)
}

func TestDispatch_TransferInsufficientFunds(t *testing.T) {
	d, ledger, _ := newTestDispatcher(t)
	ledger.Spawn("alice", world.Balances{Scrip: 100})
	ledger.Spawn("bob", world.Balances{Scrip: 0})

	res := d.Dispatch(context.Background(), Intent{
		Kind:        KindTransfer,
		PrincipalID: "alice",
		To:          "bob",
		Amount:      101,
		Resource:    world.ResourceScrip,
	})

	require.False(t, res.Success)
	assert.Equal(t, string(world.ResourceScrip), res.ErrorDetails["resource"])
	assert.False(t, res.Retriable)
}

func TestDispatch_WriteThenRead(t *testing.T) {
	d, ledger, _ := newTestDispatcher(t)
	ledger.Spawn("alice", world.Balances{DiskQuota: 1024})

	writeRes := d.Dispatch(context.Background(), Intent{
		Kind:        KindWrite,
		PrincipalID: "alice",
		ArtifactID:  "doc1",
		Content:     []byte("hello world"),
		ArtifactKind: world.KindData,
		Interface:   &world.Interface{Description: "a doc", DataType: world.DataTypeData},
	})
	require.True(t, writeRes.Success)

	readRes := d.Dispatch(context.Background(), Intent{
		Kind:        KindRead,
		PrincipalID: "bob",
		ArtifactID:  "doc1",
	})
	require.True(t, readRes.Success)
	assert.Equal(t, []byte("hello world"), readRes.Data["content"])
}

func TestDispatch_SoftDeleteObservability(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	require.True(t, d.Dispatch(context.Background(), Intent{
		Kind: KindWrite, PrincipalID: "alice", ArtifactID: "x",
		ArtifactKind: world.KindData,
		Interface:    &world.Interface{Description: "x", DataType: world.DataTypeData},
	}).Success)

	delRes := d.Dispatch(context.Background(), Intent{Kind: KindDelete, PrincipalID: "alice", ArtifactID: "x"})
	require.True(t, delRes.Success)

	readRes := d.Dispatch(context.Background(), Intent{Kind: KindRead, PrincipalID: "bob", ArtifactID: "x"})
	require.True(t, readRes.Success)
	assert.Equal(t, true, readRes.Data["deleted"])

	invokeRes := d.Dispatch(context.Background(), Intent{Kind: KindInvoke, PrincipalID: "bob", ArtifactID: "x", Method: "run"})
	require.False(t, invokeRes.Success)
	assert.Equal(t, string(kernelerr.CodeDeleted), invokeRes.ErrorCode)

	listRes := d.Dispatch(context.Background(), Intent{Kind: KindQuery, PrincipalID: "bob", QueryType: QueryArtifacts})
	require.True(t, listRes.Success)
	assert.Equal(t, 0, listRes.Data["count"])

	listAllRes := d.Dispatch(context.Background(), Intent{Kind: KindQuery, PrincipalID: "bob", QueryType: QueryArtifacts, IncludeDeleted: true})
	require.True(t, listAllRes.Success)
	assert.Equal(t, 1, listAllRes.Data["count"])
}

func TestDispatch_IDCollisionScenario(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	mk := func(id string) ActionResult {
		return d.Dispatch(context.Background(), Intent{
			Kind: KindWrite, PrincipalID: "alice", ArtifactID: id,
			ArtifactKind: world.KindData,
			Interface:    &world.Interface{Description: "x", DataType: world.DataTypeData},
		})
	}
	require.True(t, mk("foo").Success)

	// second "write" to the same id is an ordinary update, not a
	// collision — collisions are only visible by creating a *different*
	// kind of entity under an id already claimed in the registry, so we
	// exercise the registry directly here instead of through write-write.
	reg := world.NewIDRegistry()
	require.NoError(t, reg.Register("foo", world.KindData, world.OwnerArtifactStore))
	err := reg.Register("foo", world.KindAgent, world.OwnerArtifactStore)
	require.Error(t, err)
}

func TestDispatch_UpdateMetadataBlocksReservedKeys(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.True(t, d.Dispatch(context.Background(), Intent{
		Kind: KindWrite, PrincipalID: "alice", ArtifactID: "x",
		ArtifactKind: world.KindData,
		Interface:    &world.Interface{Description: "x", DataType: world.DataTypeData},
	}).Success)

	res := d.Dispatch(context.Background(), Intent{
		Kind: KindUpdateMetadata, PrincipalID: "alice", ArtifactID: "x",
		Updates: map[string]any{"authorized_writer": "mallory"},
	})
	require.False(t, res.Success)
}

func TestDispatch_NoopIsLoggedButMutatesNothing(t *testing.T) {
	d, _, store := newTestDispatcher(t)
	before := store.Count()

	res := d.Dispatch(context.Background(), Intent{Kind: KindNoop, PrincipalID: "alice", Reason: "waiting"})
	require.True(t, res.Success)
	assert.Equal(t, before, store.Count())
}
