package loopmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/world"
)

// ThinkFactory builds the ThinkFunc and WantsLLM predicate for one agent
// artifact. cmd/kernel supplies the concrete factory (workflow-backed or
// sandbox-invoke-backed); loopmanager stays agnostic of which.
type ThinkFactory func(agent *world.Artifact) (ThinkFunc, WantsLLM)

// Manager owns the full set of running per-agent loops.
// Each loop is a goroutine pinned to one principal; the Manager's job is
// creation, pacing defaults, and clean shutdown.
type Manager struct {
	Store      *world.ArtifactStore
	Dispatcher *dispatch.Dispatcher
	Ledger     *world.Ledger
	EventLog   *world.EventLog
	Queue      TriggerQueue
	Factory    ThinkFactory
	Pace       time.Duration
	StopGrace  time.Duration
	log        *logging.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	loops map[string]loopHandle
}

type loopHandle struct {
	loop   *Loop
	cancel context.CancelFunc
}

// New builds a Manager. Queue defaults to an in-process memory queue if nil.
func New(store *world.ArtifactStore, d *dispatch.Dispatcher, ledger *world.Ledger, eventLog *world.EventLog, queue TriggerQueue, factory ThinkFactory, pace, stopGrace time.Duration, log *logging.Logger, m *metrics.Metrics) *Manager {
	if queue == nil {
		queue = NewMemoryQueue(0)
	}
	return &Manager{
		Store:      store,
		Dispatcher: d,
		Ledger:     ledger,
		EventLog:   eventLog,
		Queue:      queue,
		Factory:    factory,
		Pace:       pace,
		StopGrace:  stopGrace,
		log:        log,
		metrics:    m,
		loops:      make(map[string]loopHandle),
	}
}

// StartAll scans the artifact store for every has_loop agent and starts a
// loop for each (boot-time population); later-created agents are started
// via StartLoop as genesis/dispatch writes create them.
func (m *Manager) StartAll(ctx context.Context) {
	for _, a := range m.Store.List(world.KindAgent, false) {
		if a.HasLoop {
			m.StartLoop(ctx, a)
		}
	}
}

// StartLoop starts a loop for agent if one isn't already running.
func (m *Manager) StartLoop(ctx context.Context, agent *world.Artifact) error {
	if !agent.HasLoop {
		return fmt.Errorf("artifact %s does not have has_loop set", agent.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loops[agent.ID]; exists {
		return nil
	}

	think, wantsLLM := m.Factory(agent)
	loop := NewLoop(agent.ID, m.Dispatcher, m.Ledger, m.EventLog, m.Queue, think, wantsLLM, m.Pace, m.StopGrace, m.log, m.metrics)

	loopCtx, cancel := context.WithCancel(ctx)
	m.loops[agent.ID] = loopHandle{loop: loop, cancel: cancel}

	go loop.Run(loopCtx)
	return nil
}

// StopLoop cancels and stops one agent's loop, if running.
func (m *Manager) StopLoop(agentID string) {
	m.mu.Lock()
	h, ok := m.loops[agentID]
	if ok {
		delete(m.loops, agentID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	h.loop.Stop()
}

// StopAll cancels and stops every running loop, bounded by each loop's
// configured stop grace.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			m.StopLoop(agentID)
		}(id)
	}
	wg.Wait()
}

// Running reports the agent IDs with an active loop, for observability.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.loops))
	for id := range m.loops {
		out = append(out, id)
	}
	return out
}
