// Package engine implements governance proposal processing: the circle and
// role hierarchy, role assignments, the Integrative Decision-Making state
// machine, governance meetings and the application of approved proposals.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/governor/internal/authz"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/notify"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// SystemActor is the actor recorded for transitions made by the engine itself.
const SystemActor = "system"

// Stores are the persistence collaborators the engine writes through.
type Stores struct {
	Hierarchy store.HierarchyStore
	Proposals store.ProposalStore
	Meetings  store.MeetingStore
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// Policy is the actor-permission matrix. Default: authz.DefaultPolicy()
	Policy *authz.Policy

	// Publisher receives a notification after every committed change.
	// Default: notify.NopPublisher
	Publisher notify.Publisher

	// MaxConflictRetries bounds attempts after a concurrent modification.
	// Default: 4
	MaxConflictRetries uint

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// DeferApply leaves approved proposals for Applier.ApplyPending instead
	// of applying them as soon as they are approved.
	DeferApply bool
}

// Engine bundles the services sharing one set of stores.
type Engine struct {
	Hierarchy   *HierarchyService
	Assignments *AssignmentService
	Proposals   *ProposalService
	Meetings    *MeetingService
	Applier     *Applier
}

// New wires the services.
func New(stores Stores, opts Options) *Engine {
	c := &core{
		stores:    stores,
		policy:    opts.Policy,
		publisher: opts.Publisher,
		retries:   opts.MaxConflictRetries,
		clock:     opts.Clock,
	}
	if c.policy == nil {
		c.policy = authz.DefaultPolicy()
	}
	if c.publisher == nil {
		c.publisher = notify.NopPublisher{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	c.resolver = authz.NewResolver(stores.Hierarchy, stores.Meetings)

	applier := &Applier{core: c}
	proposals := &ProposalService{core: c, applier: applier, deferApply: opts.DeferApply}

	return &Engine{
		Hierarchy:   &HierarchyService{core: c},
		Assignments: &AssignmentService{core: c},
		Proposals:   proposals,
		Meetings:    &MeetingService{core: c, proposals: proposals},
		Applier:     applier,
	}
}

// core is the state shared by every service.
type core struct {
	stores    Stores
	policy    *authz.Policy
	resolver  *authz.Resolver
	publisher notify.Publisher
	retries   uint
	clock     func() time.Time
}

// now is truncated to microseconds so timestamps survive a database round trip.
func (c *core) now() time.Time {
	return c.clock().UTC().Truncate(time.Microsecond)
}

func (c *core) publish(ctx context.Context, n notify.Notification) {
	n.ID = models.NewID()
	if n.At.IsZero() {
		n.At = c.now()
	}
	c.publisher.Publish(ctx, n)
}

func (c *core) authorize(op string, action authz.Action, caps authz.Capacities) error {
	if !c.policy.Allows(action, caps) {
		return fail(op, ErrUnauthorizedActor, "")
	}
	return nil
}

// mutate runs fn in a hierarchy transaction for one organization.
func (c *core) mutate(ctx context.Context, orgID uuid.UUID, op, actorID string, fn func(m *mutator) error) error {
	ctx, span := startSpan(ctx, "hierarchy."+op, attribute.String("org_id", orgID.String()))
	err := c.stores.Hierarchy.Update(ctx, orgID, func(tx store.HierarchyTx) error {
		return fn(&mutator{ctx: ctx, tx: tx, orgID: orgID, op: op, actor: actorID, now: c.now()})
	})
	err = mapStoreError(op, err)
	endSpan(span, err)
	if err != nil {
		return err
	}

	telemetry.GetMetrics().HierarchyMutationsTotal.Add(ctx, 1, opAttr(op))
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

func opAttr(op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("op", op))
}
