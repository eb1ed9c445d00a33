package loopmanager

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/permission"
	"github.com/emergentlabs/agentsim/internal/world"
)

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *world.Ledger, *world.EventLog) {
	t.Helper()
	registry := world.NewIDRegistry()
	store := world.NewArtifactStore(registry)
	ledger := world.NewLedger()
	rt := world.NewRateTracker(nil)
	evlog, err := world.NewEventLog(world.EventLogConfig{})
	require.NoError(t, err)
	perms := permission.NewRegistry(config.DefaultAllow)
	validator := dispatch.NewArgumentValidator(config.ValidationNone, nil)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	d := dispatch.New(store, ledger, rt, evlog, perms, validator, nil,
		config.ExecutorConfig{MaxInvokeDepth: 3},
		config.SystemPromptConfig{MaxSizeBytes: 1024, ProtectedPrefixChars: 8},
		logging.NewDefault("test"), m)
	return d, ledger, evlog
}

func TestLoop_IteratesAndDispatchesDecidedIntent(t *testing.T) {
	d, ledger, evlog := newTestDispatcher(t)
	ledger.Spawn("agent1", world.Balances{Scrip: 10})
	ledger.Spawn("bob", world.Balances{Scrip: 0})

	calls := 0
	think := func(ctx context.Context, obs Observation) (*dispatch.Intent, error) {
		calls++
		if calls > 1 {
			return &dispatch.Intent{Kind: dispatch.KindNoop, Reason: "done"}, nil
		}
		return &dispatch.Intent{Kind: dispatch.KindTransfer, To: "bob", Amount: 5, Resource: world.ResourceScrip}, nil
	}

	loop := NewLoop("agent1", d, ledger, evlog, NewMemoryQueue(0), think, nil, 10*time.Millisecond, time.Second, logging.NewDefault("test"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	assert.Equal(t, int64(5), ledger.Balance("bob").Scrip)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestLoop_HibernatesOnBudgetExhaustionAndWakesOnTransfer(t *testing.T) {
	d, ledger, evlog := newTestDispatcher(t)
	ledger.Spawn("agent1", world.Balances{LLMDollarBudget: 0})
	ledger.Spawn("admin", world.Balances{LLMDollarBudget: 5})

	queue := NewMemoryQueue(0)
	thinkCalls := 0
	think := func(ctx context.Context, obs Observation) (*dispatch.Intent, error) {
		thinkCalls++
		return &dispatch.Intent{Kind: dispatch.KindNoop}, nil
	}
	wantsLLM := func() bool { return true }

	loop := NewLoop("agent1", d, ledger, evlog, queue, think, wantsLLM, 20*time.Millisecond, time.Second, logging.NewDefault("test"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// Give the loop time to observe the exhausted budget and freeze.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, thinkCalls)

	require.NoError(t, ledger.Transfer("admin", "agent1", world.ResourceLLMBudget, 1.0))

	// The loop should notice the replenished budget on its next poll and
	// resume calling think.
	require.Eventually(t, func() bool { return thinkCalls > 0 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestManager_StartAllAndStopAll(t *testing.T) {
	registry := world.NewIDRegistry()
	store := world.NewArtifactStore(registry)
	d, ledger, evlog := newTestDispatcher(t)
	ledger.Spawn("agent1", world.Balances{Scrip: 10})

	agent := &world.Artifact{
		ID:        "agent1",
		Kind:      world.KindAgent,
		Interface: world.Interface{Description: "an agent", DataType: world.DataTypeAgent},
		HasStanding: true,
		HasLoop:     true,
	}
	require.NoError(t, store.Create(agent))

	factory := func(a *world.Artifact) (ThinkFunc, WantsLLM) {
		return func(ctx context.Context, obs Observation) (*dispatch.Intent, error) {
			return &dispatch.Intent{Kind: dispatch.KindNoop}, nil
		}, nil
	}

	mgr := New(store, d, ledger, evlog, NewMemoryQueue(0), factory, 10*time.Millisecond, 200*time.Millisecond, logging.NewDefault("test"), nil)
	mgr.StartAll(context.Background())

	require.Eventually(t, func() bool { return len(mgr.Running()) == 1 }, time.Second, 10*time.Millisecond)

	mgr.StopAll()
	assert.Empty(t, mgr.Running())
}
