package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/permission"
	"github.com/emergentlabs/agentsim/internal/world"
)

// depthKey is the context key carrying the current invocation depth,
// threaded explicitly through the context rather than relying on any
// ambient "current task" state.
type depthKey struct{}

func depthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey{}).(int); ok {
		return v
	}
	return 0
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// Executor runs a target artifact's code for an invoke intent. Sandbox
// implementations live in internal/sandbox and are wired in by the caller
// that constructs the Dispatcher — dispatch never imports sandbox, so the
// dependency only runs one way (sandbox -> dispatch) and there is no
// import cycle.
type Executor interface {
	Invoke(ctx context.Context, callerID string, target *world.Artifact, method string, args []any) (*InvokeOutcome, error)

	// DefinesHandleRequest reports whether target's code defines a
	// handle_request entry point, so the dispatcher knows the target
	// gates its own access instead of relying on its access_contract_id.
	DefinesHandleRequest(target *world.Artifact) bool
}

// InvokeOutcome is what a successful sandboxed invocation returns.
type InvokeOutcome struct {
	Data              map[string]any
	ResourcesConsumed map[string]float64
}

// Dispatcher is the narrow waist every state mutation flows through.
type Dispatcher struct {
	Store       *world.ArtifactStore
	Ledger      *world.Ledger
	RateTracker *world.RateTracker
	EventLog    *world.EventLog
	Permissions *permission.Registry
	Validator   *ArgumentValidator
	Executor    Executor

	maxInvokeDepth int
	promptCfg      config.SystemPromptConfig
	log            *logging.Logger
	metrics        *metrics.Metrics
}

// New builds a Dispatcher. executor may be nil until sandbox wiring is
// complete (invoke intents fail with runtime_error until then).
func New(
	store *world.ArtifactStore,
	ledger *world.Ledger,
	rateTracker *world.RateTracker,
	eventLog *world.EventLog,
	permissions *permission.Registry,
	validator *ArgumentValidator,
	executor Executor,
	cfg config.ExecutorConfig,
	promptCfg config.SystemPromptConfig,
	log *logging.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	maxDepth := cfg.MaxInvokeDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &Dispatcher{
		Store:          store,
		Ledger:         ledger,
		RateTracker:    rateTracker,
		EventLog:       eventLog,
		Permissions:    permissions,
		Validator:      validator,
		Executor:       executor,
		maxInvokeDepth: maxDepth,
		promptCfg:      promptCfg,
		log:            log,
		metrics:        m,
	}
}

// Dispatch is the single entry point every state mutation flows through.
// Every call gets its own correlation id, so a caller's logs and the
// resulting event-log entry can be tied together even when many agents'
// loops are dispatching concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, in Intent) ActionResult {
	ctx = logging.ContextWithTrace(ctx, uuid.NewString())
	result := d.dispatch(ctx, in)
	if d.metrics != nil {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		d.metrics.ActionsTotal.WithLabelValues(string(in.Kind), outcome).Inc()
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, in Intent) ActionResult {
	if d.log != nil {
		d.log.WithContext(ctx).WithField("principal_id", in.PrincipalID).Debug("dispatching " + string(in.Kind))
	}

	// (1) validate schema
	if err := ValidateIntentShape(in); err != nil {
		return d.logAndReturn(in, Fail(err))
	}

	// (2) look up target artifact, if the intent kind carries one
	var target *world.Artifact
	if id := targetArtifactID(in); id != "" {
		a, err := d.Store.Get(id)
		if err != nil {
			// write is the one kind that legitimately targets an id that
			// doesn't exist yet (create-with-caller-assigned-id); leave
			// target nil and let executeWrite's own lookup branch into
			// creation instead of hard-failing dispatch here.
			if in.Kind == KindWrite {
				ke, ok := kernelerr.As(err)
				if ok && ke.Code == kernelerr.CodeNotFound {
					target = nil
				} else {
					return d.logAndReturn(in, Fail(err))
				}
			} else {
				return d.logAndReturn(in, Fail(err))
			}
		} else {
			target = a
			if target.Deleted && in.Kind != KindRead && in.Kind != KindQuery {
				return d.logAndReturn(in, Fail(kernelerr.Deleted(id)))
			}
		}
	}

	// (3) permission check — an artifact that defines handle_request is
	// its own gate: it decides who may call it and how, inside its own
	// code, so the dispatcher skips the access-contract check entirely
	// for that target rather than layering a second gate in front of it.
	var perm permission.Result
	if in.Kind == KindInvoke && target != nil && d.Executor != nil && d.Executor.DefinesHandleRequest(target) {
		perm = permission.Allowed("target self-handles access via handle_request")
	} else {
		perm = d.checkPermission(in, target)
		if !perm.Allowed {
			return d.logAndReturn(in, Fail(kernelerr.NotAuthorized(perm.Reason)))
		}
	}

	// (4) meter cost against rate + budget
	payer := in.PrincipalID
	if perm.Payer != "" {
		payer = perm.Payer
	}
	if perm.Cost > 0 {
		if err := d.Ledger.Debit(payer, world.ResourceScrip, float64(perm.Cost)); err != nil {
			return d.logAndReturn(in, Fail(err))
		}
	}

	// (5) execute the effect
	result, resourcesConsumed := d.execute(ctx, in, target, perm)
	result.ChargedTo = payer
	if result.ResourcesConsumed == nil {
		result.ResourcesConsumed = resourcesConsumed
	}
	if perm.Cost > 0 {
		if result.ResourcesConsumed == nil {
			result.ResourcesConsumed = map[string]float64{}
		}
		result.ResourcesConsumed[string(world.ResourceScrip)] = float64(perm.Cost)
	}

	// (6) append exactly one event, (7) return
	return d.logAndReturn(in, result)
}

func targetArtifactID(in Intent) string {
	switch in.Kind {
	case KindRead, KindInvoke, KindDelete, KindUpdateMetadata:
		return in.ArtifactID
	case KindWrite:
		return in.ArtifactID // may be empty for create-with-generated-id callers that pre-assign ids
	case KindModifySystemPrompt:
		return in.ArtifactID
	default:
		return ""
	}
}

func (d *Dispatcher) checkPermission(in Intent, target *world.Artifact) permission.Result {
	if target == nil {
		// transfer/query/noop have no artifact target; these are
		// kernel-mechanism operations on the caller's own standing.
		return permission.Allowed("no artifact target")
	}
	handler := d.Permissions.Resolve(target.AccessContractID)
	args := map[string]any{
		"method": in.Method,
		"args":   in.Args,
	}
	return handler.Check(in.PrincipalID, string(in.Kind), args)
}

func (d *Dispatcher) execute(ctx context.Context, in Intent, target *world.Artifact, perm permission.Result) (ActionResult, map[string]float64) {
	switch in.Kind {
	case KindRead:
		return d.executeRead(target), nil
	case KindWrite:
		return d.executeWrite(in), nil
	case KindInvoke:
		return d.executeInvoke(ctx, in, target)
	case KindTransfer:
		return d.executeTransfer(in), nil
	case KindDelete:
		return d.executeDelete(in), nil
	case KindQuery:
		return d.executeQuery(in), nil
	case KindNoop:
		return Ok("noop", map[string]any{"reason": in.Reason}), nil
	case KindUpdateMetadata:
		return d.executeUpdateMetadata(in), nil
	case KindModifySystemPrompt:
		return d.executeModifySystemPrompt(in, target), nil
	default:
		return Fail(kernelerr.InvalidArgument("kind", "unknown intent kind")), nil
	}
}

func (d *Dispatcher) executeRead(target *world.Artifact) ActionResult {
	a := target.Clone()
	data := map[string]any{
		"id":        a.ID,
		"kind":      string(a.Kind),
		"content":   a.Content,
		"interface": a.Interface,
		"deleted":   a.Deleted,
	}
	if a.Deleted {
		data["deleted_at"] = a.DeletedAt
		data["deleted_by"] = a.DeletedBy
	}
	return Ok("read ok", data)
}

func (d *Dispatcher) executeWrite(in Intent) ActionResult {
	existing, err := d.Store.Get(in.ArtifactID)
	if err == nil {
		if existing.Deleted {
			return Fail(kernelerr.Deleted(in.ArtifactID))
		}
		if err := d.Store.Write(in.ArtifactID, in.Content, in.ArtifactKind, in.Interface, in.Code, in.Metadata); err != nil {
			return Fail(err)
		}
		return Ok("updated", map[string]any{"artifact_id": in.ArtifactID})
	}

	caps := map[world.Capability]bool{}
	for _, c := range in.Capabilities {
		caps[c] = true
	}

	a := &world.Artifact{
		ID:               in.ArtifactID,
		Kind:             in.ArtifactKind,
		Content:          in.Content,
		CreatedBy:        in.PrincipalID,
		AccessContractID: in.AccessContractID,
		Capabilities:     caps,
		HasStanding:      in.HasStanding,
		HasLoop:          in.HasLoop,
		Metadata:         in.Metadata,
	}
	if in.Interface != nil {
		a.Interface = *in.Interface
	}
	if in.Code != nil {
		a.Code = *in.Code
	}

	diskCost := float64(len(in.Content) + len(a.Code))
	if diskCost > 0 {
		if err := d.Ledger.Debit(in.PrincipalID, world.ResourceDiskQuota, diskCost); err != nil {
			return Fail(err)
		}
	}

	if err := d.Store.Create(a); err != nil {
		if diskCost > 0 {
			d.Ledger.Credit(in.PrincipalID, world.ResourceDiskQuota, diskCost)
		}
		return Fail(err)
	}
	return Ok("created", map[string]any{"artifact_id": a.ID})
}

func (d *Dispatcher) executeInvoke(ctx context.Context, in Intent, target *world.Artifact) (ActionResult, map[string]float64) {
	depth := depthFromContext(ctx)
	if depth+1 > d.maxInvokeDepth {
		return Fail(kernelerr.InvokeTooDeep(depth+1, d.maxInvokeDepth)), nil
	}
	if d.Executor == nil {
		return Fail(kernelerr.RuntimeError(errNoExecutor)), nil
	}

	nestedCtx := withDepth(ctx, depth+1)
	outcome, err := d.Executor.Invoke(nestedCtx, in.PrincipalID, target, in.Method, in.Args)
	if err != nil {
		return Fail(err), nil
	}
	return Ok("invoke ok", outcome.Data), outcome.ResourcesConsumed
}

func (d *Dispatcher) executeTransfer(in Intent) ActionResult {
	if err := d.Ledger.Transfer(in.PrincipalID, in.To, in.Resource, in.Amount); err != nil {
		return Fail(err)
	}
	fromBal := d.Ledger.Balance(in.PrincipalID)
	toBal := d.Ledger.Balance(in.To)
	newBalances := []int64{}
	if in.Resource == world.ResourceScrip {
		newBalances = []int64{fromBal.Scrip, toBal.Scrip}
	}
	return Ok("transfer ok", map[string]any{
		"from":         in.PrincipalID,
		"to":           in.To,
		"resource":     string(in.Resource),
		"amount":       in.Amount,
		"new_balances": newBalances,
	})
}

func (d *Dispatcher) executeDelete(in Intent) ActionResult {
	if err := d.Store.SoftDelete(in.ArtifactID, in.PrincipalID); err != nil {
		return Fail(err)
	}
	return Ok("deleted", map[string]any{"artifact_id": in.ArtifactID})
}

func (d *Dispatcher) executeUpdateMetadata(in Intent) ActionResult {
	for key := range in.Updates {
		if IsReservedMetadataKey(key) {
			return Fail(kernelerr.InvalidArgument(key, "reserved metadata key cannot be set by update_metadata"))
		}
	}
	if err := d.Store.Write(in.ArtifactID, nil, "", nil, nil, in.Updates); err != nil {
		return Fail(err)
	}
	return Ok("metadata updated", map[string]any{"artifact_id": in.ArtifactID})
}

var errNoExecutor = kernelerr.New(kernelerr.CodeRuntimeError, "no executor wired").WithDetail("component", "dispatcher")
