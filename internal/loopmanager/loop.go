package loopmanager

import (
	"context"
	"time"

	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/world"
)

// Observation is what the loop manager hands a ThinkFunc each iteration
//: a ledger/quota snapshot and the recent
// events relevant to the principal.
type Observation struct {
	AgentID      string
	Balances     world.Balances
	RecentEvents []world.Event
	Wakeup       *TriggerFire // non-nil when this iteration was driven by a trigger fire
}

// ThinkFunc implements the Think+Decide half of the OODA cycle: given an
// observation, it returns the Intent to Act on (nil/noop-kind means "do
// nothing this iteration"). It is supplied per-agent by whatever is
// actually driving the agent — a workflow.Runner, or a direct sandboxed
// "think" invocation — so loop.go stays decoupled from that choice.
type ThinkFunc func(ctx context.Context, obs Observation) (*dispatch.Intent, error)

// WantsLLM reports whether a ThinkFunc's next call is expected to need the
// LLM gateway; used by shouldHibernate to decide whether a depleted llm_dollar_budget
// should hibernate the loop.
type WantsLLM func() bool

// Loop drives one agent's OODA cycle until Stop is called or ctx is done.
type Loop struct {
	AgentID string

	dispatcher  *dispatch.Dispatcher
	ledger      *world.Ledger
	eventLog    *world.EventLog
	queue       TriggerQueue
	think       ThinkFunc
	wantsLLM    WantsLLM
	pace        time.Duration
	stopGrace   time.Duration
	log         *logging.Logger
	metrics     *metrics.Metrics

	stop   chan struct{}
	done   chan struct{}
	frozen bool
}

// NewLoop builds a Loop. pace is the idle delay between iterations when
// there is no wakeup to wait on; stopGrace bounds how long Stop waits for
// an in-flight iteration before returning.
func NewLoop(agentID string, d *dispatch.Dispatcher, ledger *world.Ledger, eventLog *world.EventLog, queue TriggerQueue, think ThinkFunc, wantsLLM WantsLLM, pace, stopGrace time.Duration, log *logging.Logger, m *metrics.Metrics) *Loop {
	if pace <= 0 {
		pace = time.Second
	}
	if stopGrace <= 0 {
		stopGrace = 8 * time.Second
	}
	return &Loop{
		AgentID:    agentID,
		dispatcher: d,
		ledger:     ledger,
		eventLog:   eventLog,
		queue:      queue,
		think:      think,
		wantsLLM:   wantsLLM,
		pace:       pace,
		stopGrace:  stopGrace,
		log:        log,
		metrics:    m,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run executes the OODA cycle until ctx is cancelled or Stop is called.
// Run is meant to be called in its own goroutine, one per loop.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		default:
		}

		if l.shouldHibernate() {
			if l.waitForWakeupOrBudget(ctx) {
				return
			}
			continue
		}

		l.iterate(ctx)

		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-time.After(l.pace):
		case fire := <-l.queueChannel(ctx):
			_ = fire
		}
	}
}

// queueChannel returns a channel that fires once a trigger wakes this
// agent, without blocking Run's pacing sleep; it's a best-effort peek, not
// a substitute for waitForWakeupOrBudget's blocking dequeue while frozen.
func (l *Loop) queueChannel(ctx context.Context) <-chan TriggerFire {
	ch := make(chan TriggerFire, 1)
	go func() {
		fire, ok := l.queue.Dequeue(ctx, l.AgentID)
		if ok {
			ch <- fire
		}
	}()
	return ch
}

func (l *Loop) shouldHibernate() bool {
	if l.wantsLLM == nil || !l.wantsLLM() {
		return false
	}
	return l.ledger.Balance(l.AgentID).LLMDollarBudget <= 0
}

// waitForWakeupOrBudget blocks until a trigger fires for this agent or the
// agent's budget becomes positive again (someone transferred funds in),
// emitting AGENT_FROZEN once on entry and AGENT_UNFROZEN on exit. Returns
// true if ctx/stop ended the wait instead.
func (l *Loop) waitForWakeupOrBudget(ctx context.Context) bool {
	if !l.frozen {
		l.frozen = true
		l.eventLog.Append(world.EventAgentFrozen, l.AgentID, map[string]any{"reason": "budget_exhausted"})
		if l.metrics != nil {
			l.metrics.LoopHibernations.WithLabelValues("budget_exhausted").Inc()
		}
	}

	pollCtx, cancel := context.WithTimeout(ctx, l.pace)
	defer cancel()

	fire, ok := l.queue.Dequeue(pollCtx, l.AgentID)
	if ok {
		l.unfreeze(fire.Reason)
		return false
	}

	select {
	case <-ctx.Done():
		return true
	case <-l.stop:
		return true
	default:
	}

	if l.ledger.Balance(l.AgentID).LLMDollarBudget > 0 {
		l.unfreeze("budget_replenished")
	}
	return false
}

func (l *Loop) unfreeze(reason string) {
	l.frozen = false
	l.eventLog.Append(world.EventAgentUnfrozen, l.AgentID, map[string]any{"reason": reason})
}

func (l *Loop) iterate(ctx context.Context) {
	obs := Observation{
		AgentID:  l.AgentID,
		Balances: l.ledger.Balance(l.AgentID),
	}
	if after := l.eventLog.NextSeq(); after > 20 {
		obs.RecentEvents = l.eventLog.Tail(after - 20)
	} else {
		obs.RecentEvents = l.eventLog.Tail(0)
	}

	intent, err := l.think(ctx, obs)
	if err != nil {
		if l.log != nil {
			l.log.WithContext(ctx).WithField("agent_id", l.AgentID).WithField("error", err).Warn("loop think step failed, continuing")
		}
		return
	}
	if l.metrics != nil {
		l.metrics.LoopIterations.WithLabelValues(l.AgentID).Inc()
	}
	if intent == nil || intent.Kind == dispatch.KindNoop {
		return
	}
	intent.PrincipalID = l.AgentID
	l.dispatcher.Dispatch(ctx, *intent)
}

// Stop requests the loop to exit and waits up to stopGrace for it to do so.
func (l *Loop) Stop() {
	close(l.stop)
	select {
	case <-l.done:
	case <-time.After(l.stopGrace):
	}
}
