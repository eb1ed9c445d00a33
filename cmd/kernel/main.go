// Command kernel boots the full simulation: the world containers, the
// dispatcher, the sandboxed executor, the genesis bootstrap manifest, the
// autonomous loop manager, and the operator HTTP surface, then runs until
// an interrupt or terminate signal asks it to shut down cleanly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/emergentlabs/agentsim/internal/checkpoint"
	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/genesis"
	"github.com/emergentlabs/agentsim/internal/httpapi"
	"github.com/emergentlabs/agentsim/internal/llmgateway"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/loopmanager"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/permission"
	"github.com/emergentlabs/agentsim/internal/sandbox"
	"github.com/emergentlabs/agentsim/internal/workflow"
	"github.com/emergentlabs/agentsim/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env overrides always apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Component: "kernel"})
	m := metrics.NewWithDefaultRegistry()

	if err := run(cfg, log, m); err != nil {
		log.WithError(err).Error("kernel exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logging.Logger, m *metrics.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- world containers -------------------------------------------------
	idRegistry := world.NewIDRegistry()
	store := world.NewArtifactStore(idRegistry)
	ledger := world.NewLedger()
	rateTracker := world.NewRateTracker(map[world.RateResource]world.RateLimit{
		world.RateLLMTokens: {WindowSeconds: cfg.RateLimiting.LLMTokenRate.WindowSeconds, MaxPerWindow: cfg.RateLimiting.LLMTokenRate.MaxPerWindow},
		world.RateLLMCalls:  {WindowSeconds: cfg.RateLimiting.LLMCallRate.WindowSeconds, MaxPerWindow: cfg.RateLimiting.LLMCallRate.MaxPerWindow},
		world.RateCPU:       {WindowSeconds: cfg.RateLimiting.CPURate.WindowSeconds, MaxPerWindow: cfg.RateLimiting.CPURate.MaxPerWindow},
	})

	eventLog, err := world.NewEventLog(world.EventLogConfig{Dir: cfg.Persistence.EventLogDir, BufferCap: 1000})
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventLog.Close()

	// --- permissions --------------------------------------------------
	permissions := permission.NewRegistry(cfg.Contracts.DefaultOnMissing)
	permissions.Register("builtin.open", permission.OpenAccessHandler())
	permissions.Register("builtin.locked", permission.LockedDownHandler())

	// --- LLM gateway ----------------------------------------------------
	gw := llmgateway.New(ledger, rateTracker, llmgateway.NewEchoProvider(), m)

	// --- sandboxed executor --------------------------------------------
	cpuMeter, err := sandbox.NewCPUMeter()
	if err != nil {
		return fmt.Errorf("init cpu meter: %w", err)
	}
	state := &stateAdapter{store: store, ledger: ledger}

	validator := dispatch.NewArgumentValidator(cfg.Executor.InterfaceValidation, func(msg string) {
		log.Warn("invoke argument validation: " + msg)
	})

	d := dispatch.New(store, ledger, rateTracker, eventLog, permissions, validator, nil, cfg.Executor, cfg.SystemPrompt, log, m)
	sb := sandbox.New(dispatchingFunc(d.Dispatch), state, gw, cpuMeter, cfg.Executor.InvocationTimeout, log)
	d.Executor = sb

	// --- genesis bootstrap ----------------------------------------------
	manifestDir := filepath.Dir(cfg.Genesis.ManifestPath)
	manifest, err := genesis.LoadManifest(cfg.Genesis.ManifestPath)
	if err != nil {
		return fmt.Errorf("load genesis manifest: %w", err)
	}
	loader := genesis.NewLoader(d, ledger, manifestDir, cfg.AlphaPrime, log)
	if err := loader.Apply(ctx, manifest); err != nil {
		return fmt.Errorf("apply genesis manifest: %w", err)
	}
	log.Info("genesis manifest applied")

	// --- triggers ---------------------------------------------------------
	queue := loopmanager.NewMemoryQueue(0)
	triggers := loopmanager.NewTriggerRegistry(queue, log)
	registerGenesisTriggers(triggers, store, log)
	triggers.Start()
	defer triggers.Stop()

	unsubscribe := bridgeEventsToTriggers(ctx, eventLog, triggers)
	defer unsubscribe()

	// --- autonomous loops -------------------------------------------------
	thinkFactory := newThinkFactory(sb, gw, log)
	lm := loopmanager.New(store, d, ledger, eventLog, queue, thinkFactory, time.Second, cfg.Timeouts.LoopStopGrace, log, m)
	lm.StartAll(ctx)
	defer lm.StopAll()

	// --- checkpointing ------------------------------------------------
	ckptStore, err := checkpoint.NewStore(cfg.Persistence.CheckpointDir)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	agentStates, err := checkpoint.OpenAgentStateStore(cfg.Persistence.BoltPath, 50)
	if err != nil {
		return fmt.Errorf("open agent state store: %w", err)
	}
	defer agentStates.Close()

	// --- HTTP surface -------------------------------------------------
	server := httpapi.NewServer(cfg.HTTP, eventLog, d, lm, log)
	server.SetReady(true)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.ListenAndServe(ctx, cfg.Timeouts.Shutdown) }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if err := writeShutdownCheckpoint(ckptStore, store, ledger); err != nil {
		log.WithError(err).Warn("shutdown checkpoint failed")
	}

	return nil
}

// dispatchingFunc adapts Dispatcher.Dispatch's method value to the
// sandbox's minimal Dispatching interface, so the sandbox package never
// has to import the concrete *dispatch.Dispatcher type.
type dispatchingFunc func(ctx context.Context, in dispatch.Intent) dispatch.ActionResult

func (f dispatchingFunc) Dispatch(ctx context.Context, in dispatch.Intent) dispatch.ActionResult {
	return f(ctx, in)
}

// stateAdapter bridges the artifact store and ledger into the read-only
// surface sandboxed code sees as kernel_state, translating the store's
// Get into the Sandbox's GetArtifact naming.
type stateAdapter struct {
	store  *world.ArtifactStore
	ledger *world.Ledger
}

func (s *stateAdapter) GetArtifact(id string) (*world.Artifact, error) {
	return s.store.Get(id)
}

func (s *stateAdapter) Balance(principalID string) world.Balances {
	return s.ledger.Balance(principalID)
}

func (s *stateAdapter) ListByOwner(principalID string, includeDeleted bool) []*world.Artifact {
	return s.store.ListByOwner(principalID, includeDeleted)
}

// registerGenesisTriggers scans the store for kind=trigger artifacts and
// registers each against the trigger registry; genesis's own manifest
// carries trigger.heartbeat as plain metadata rather than a dedicated
// schema, so this is where that metadata is interpreted into a
// loopmanager.TriggerSpec.
func registerGenesisTriggers(triggers *loopmanager.TriggerRegistry, store *world.ArtifactStore, log *logging.Logger) {
	for _, a := range store.List(world.KindTrigger, false) {
		targetID, _ := a.Metadata["target_id"].(string)
		kindRaw, _ := a.Metadata["trigger_kind"].(string)
		spec := loopmanager.TriggerSpec{
			ID:       a.ID,
			OwnerID:  a.CreatedBy,
			TargetID: targetID,
		}
		switch kindRaw {
		case "cron":
			spec.Kind = loopmanager.TriggerCron
			spec.CronExpr, _ = a.Metadata["cron_expr"].(string)
		case "event":
			spec.Kind = loopmanager.TriggerEvent
			if v, ok := a.Metadata["event_type"].(string); ok {
				spec.EventType = world.EventType(v)
			}
		default:
			continue
		}
		if err := triggers.Register(spec); err != nil {
			log.WithError(err).Warn("skipping trigger " + a.ID)
		}
	}
}

// bridgeEventsToTriggers forwards every appended event to the trigger
// registry's event-kind triggers; HandleEvent itself decides whether any
// registered trigger cares about a given event's type.
func bridgeEventsToTriggers(ctx context.Context, eventLog *world.EventLog, triggers *loopmanager.TriggerRegistry) func() {
	live, unsubscribe := eventLog.Subscribe()
	go func() {
		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				triggers.HandleEvent(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
	return unsubscribe
}

// newThinkFactory distinguishes a workflow-backed agent (metadata.workflow_id
// points at a kind=workflow artifact) from a sandbox-code-backed agent
// (the agent artifact's own Code is invoked directly each iteration) —
// loopmanager stays agnostic of which, per its own ThinkFactory doc.
func newThinkFactory(sb *sandbox.Sandbox, gw *llmgateway.Gateway, log *logging.Logger) loopmanager.ThinkFactory {
	return func(agent *world.Artifact) (loopmanager.ThinkFunc, loopmanager.WantsLLM) {
		if workflowID, ok := agent.Metadata["workflow_id"].(string); ok && workflowID != "" {
			return workflowThink(sb, gw, agent.ID, workflowID, log)
		}
		return sandboxThink(sb, agent.ID, log)
	}
}

// workflowThink drives one persistent workflow.Runner across iterations,
// advancing at most one step-chain per iteration and yielding on the
// first non-noop intent the run emits.
func workflowThink(sb *sandbox.Sandbox, gw *llmgateway.Gateway, agentID, workflowID string, log *logging.Logger) (loopmanager.ThinkFunc, loopmanager.WantsLLM) {
	var runner *workflow.Runner
	wantsLLM := false

	think := func(ctx context.Context, obs loopmanager.Observation) (*dispatch.Intent, error) {
		if runner == nil {
			wfArtifact, err := sb.State.GetArtifact(workflowID)
			if err != nil {
				return nil, err
			}
			var wf workflow.Workflow
			if err := json.Unmarshal(wfArtifact.Content, &wf); err != nil {
				return nil, fmt.Errorf("parse workflow %s: %w", workflowID, err)
			}
			runner = workflow.NewRunner(wf, gw, log)
		}

		runner.Context["balance_scrip"] = obs.Balances.Scrip
		runner.Context["llm_budget"] = obs.Balances.LLMDollarBudget

		outcome, err := runner.Advance(ctx, agentID)
		if err != nil {
			return nil, err
		}
		return outcome.Intent, nil
	}

	return think, func() bool { return wantsLLM }
}

// sandboxThink invokes the agent artifact's own code directly each
// iteration — for agents whose decision logic lives in sandboxed code
// rather than a declarative workflow document.
func sandboxThink(sb *sandbox.Sandbox, agentID string, log *logging.Logger) (loopmanager.ThinkFunc, loopmanager.WantsLLM) {
	think := func(ctx context.Context, obs loopmanager.Observation) (*dispatch.Intent, error) {
		target, err := sb.State.GetArtifact(agentID)
		if err != nil {
			return nil, err
		}
		if target.Code == "" {
			return nil, nil
		}
		outcome, err := sb.Invoke(ctx, agentID, target, "think", []any{obs.Balances.Scrip, obs.Balances.LLMDollarBudget})
		if err != nil {
			log.WithError(err).Debug("agent think invocation failed")
			return nil, nil
		}
		return intentFromOutcome(outcome)
	}
	return think, func() bool { return false }
}

func intentFromOutcome(outcome *dispatch.InvokeOutcome) (*dispatch.Intent, error) {
	if outcome == nil || outcome.Data == nil {
		return nil, nil
	}
	raw, ok := outcome.Data["intent"].(map[string]any)
	if !ok {
		return nil, nil
	}
	return workflow.IntentFromMap(raw)
}

func writeShutdownCheckpoint(store *checkpoint.Store, artifacts *world.ArtifactStore, ledger *world.Ledger) error {
	all := artifacts.List(world.KindData, true)
	all = append(all, artifacts.List(world.KindExecutable, true)...)
	all = append(all, artifacts.List(world.KindAgent, true)...)
	all = append(all, artifacts.List(world.KindContract, true)...)
	all = append(all, artifacts.List(world.KindTrigger, true)...)
	all = append(all, artifacts.List(world.KindWorkflow, true)...)
	all = append(all, artifacts.List(world.KindReflex, true)...)

	snap := checkpoint.Snapshot{
		Version:   1,
		Timestamp: time.Now(),
		Reason:    "shutdown",
		Balances:  ledger.AllBalances(),
		Artifacts: all,
	}
	_, err := store.Write(snap)
	return err
}
