package loopmanager

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/emergentlabs/agentsim/internal/framework"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/world"
)

// TriggerKind distinguishes the two artifact-level trigger shapes.
type TriggerKind string

const (
	TriggerEvent TriggerKind = "event"
	TriggerCron  TriggerKind = "cron"
)

// TriggerSpec is a trigger artifact's content: either an event filter or a
// cron expression, a target agent to wake, and the capability set the
// resulting callback invocation is allowed — which can never exceed the
// trigger owner's own grants.
type TriggerSpec struct {
	ID         string
	Kind       TriggerKind
	OwnerID    string
	TargetID   string
	EventType  world.EventType // TriggerEvent
	CronExpr   string          // TriggerCron
	Capabilities []world.Capability
}

// TriggerRegistry owns the cron scheduler and the set of live event-filter
// triggers, enqueuing fires onto a TriggerQueue rather than ever invoking an
// agent directly.
type TriggerRegistry struct {
	queue TriggerQueue
	cron  *cron.Cron
	log   *logging.Logger

	eventTriggers map[world.EventType][]TriggerSpec
	owners        map[string]*framework.CapabilitySet // trigger owner's capability set, by owner id
}

// NewTriggerRegistry builds a registry that enqueues fires onto queue.
func NewTriggerRegistry(queue TriggerQueue, log *logging.Logger) *TriggerRegistry {
	return &TriggerRegistry{
		queue:         queue,
		cron:          cron.New(),
		log:           log,
		eventTriggers: make(map[world.EventType][]TriggerSpec),
		owners:        make(map[string]*framework.CapabilitySet),
	}
}

// RegisterOwnerCapabilities records owner's capability set so triggers it
// registers can be checked against framework.EnsureSubsetOf.
func (r *TriggerRegistry) RegisterOwnerCapabilities(ownerID string, caps *framework.CapabilitySet) {
	r.owners[ownerID] = caps
}

// Register adds a trigger, validating that its granted capabilities are a
// subset of its owner's. For a cron trigger this also schedules
// the recurring job; for an event trigger it's indexed by event type.
func (r *TriggerRegistry) Register(spec TriggerSpec) error {
	if owner, ok := r.owners[spec.OwnerID]; ok {
		if err := framework.EnsureSubsetOf(owner, spec.Capabilities); err != nil {
			return err
		}
	}

	switch spec.Kind {
	case TriggerCron:
		_, err := r.cron.AddFunc(spec.CronExpr, func() {
			_ = r.queue.Enqueue(context.Background(), TriggerFire{
				AgentID:   spec.TargetID,
				TriggerID: spec.ID,
				Reason:    "cron:" + spec.CronExpr,
			})
		})
		return err
	case TriggerEvent:
		r.eventTriggers[spec.EventType] = append(r.eventTriggers[spec.EventType], spec)
	}
	return nil
}

// Start begins the cron scheduler. It does not block.
func (r *TriggerRegistry) Start() { r.cron.Start() }

// Stop halts the cron scheduler, waiting for any in-flight job.
func (r *TriggerRegistry) Stop() { <-r.cron.Stop().Done() }

// HandleEvent is called for every event the EventLog appends; it enqueues a
// fire for each registered event-filter trigger matching ev.Type, and
// returns immediately.
func (r *TriggerRegistry) HandleEvent(ctx context.Context, ev world.Event) {
	for _, spec := range r.eventTriggers[ev.Type] {
		if err := r.queue.Enqueue(ctx, TriggerFire{
			AgentID:   spec.TargetID,
			TriggerID: spec.ID,
			Reason:    "event:" + string(ev.Type),
			FiredAt:   time.Now(),
		}); err != nil && r.log != nil {
			r.log.WithContext(ctx).WithField("trigger", spec.ID).WithField("error", err).Warn("failed to enqueue trigger fire")
		}
	}
}
