package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/governor/internal/authz"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/notify"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// ProposalService runs the Integrative Decision-Making state machine.
//
// Every operation appends exactly one DecisionEvent and commits it with a
// compare-and-swap on the proposal version. A failed operation appends
// nothing. Operations carrying a RequestID that already appears in the
// history return the recorded event instead of appending again.
type ProposalService struct {
	*core
	applier    *Applier
	deferApply bool
}

// Result is the outcome of a proposal operation.
type Result struct {
	Proposal *models.Proposal
	Event    models.DecisionEvent

	// Replayed is set when the RequestID matched an earlier event and
	// nothing was appended.
	Replayed bool
}

// CreateProposalRequest creates a DRAFT proposal.
type CreateProposalRequest struct {
	CircleID   uuid.UUID
	Title      string
	Tension    models.Tension
	Type       models.ProposalType
	Mutation   *models.Mutation
	ProposerID string
	RequestID  string
}

func (r CreateProposalRequest) validate(op string) error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return fail(op, ErrValidation, "title is required")
	case strings.TrimSpace(r.Tension.Description) == "":
		return fail(op, ErrValidation, "tension description is required")
	case !r.Type.IsValid():
		return fail(op, ErrValidation, "unknown proposal type %q", r.Type)
	case strings.TrimSpace(r.ProposerID) == "":
		return fail(op, ErrValidation, "proposer id is required")
	}
	if err := r.Mutation.Validate(r.Type); err != nil {
		return wrap(op, ErrValidation, err)
	}
	return nil
}

// Create stores a new proposal in DRAFT with a PROPOSAL_CREATED event.
func (s *ProposalService) Create(ctx context.Context, req CreateProposalRequest) (*Result, error) {
	const op = "CreateProposal"

	if err := req.validate(op); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "proposal."+op, attribute.String("circle_id", req.CircleID.String()))
	res, err := s.create(ctx, op, req)
	endSpan(span, err)
	if err != nil {
		s.recordFailure(ctx, op, err)
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	telemetry.GetMetrics().ProposalsCreatedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", string(req.Type))))
	log.Info().
		Str("proposal_id", res.Proposal.ProposalID.String()).
		Str("circle_id", req.CircleID.String()).
		Str("type", string(req.Type)).
		Msg("Proposal created")
	s.publishEvent(ctx, res.Proposal, res.Event)

	return res, nil
}

func (s *ProposalService) create(ctx context.Context, op string, req CreateProposalRequest) (*Result, error) {
	c, err := s.stores.Hierarchy.GetCircle(ctx, req.CircleID)
	if errors.Is(err, store.ErrCircleNotFound) {
		return nil, fail(op, ErrCircleNotFound, "circle %s not found", req.CircleID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	caps, err := s.resolver.ResolveCircle(ctx, req.ProposerID, req.CircleID)
	if err != nil {
		return nil, wrap(op, ErrInternal, err)
	}
	caps[authz.CapacityProposer] = true
	if err := s.authorize(op, authz.ActionProposalCreate, caps); err != nil {
		return nil, err
	}

	if req.RequestID != "" {
		existing, err := s.stores.Proposals.List(ctx, store.ProposalFilter{CircleID: req.CircleID})
		if err != nil {
			return nil, mapStoreError(op, err)
		}
		for _, p := range existing {
			if ev, ok := p.FindEventByRequest(req.RequestID); ok && ev.ActorID == req.ProposerID {
				return &Result{Proposal: p, Event: *ev, Replayed: true}, nil
			}
		}
	}

	now := s.now()
	p := &models.Proposal{
		ProposalID: models.NewID(),
		OrgID:      c.OrgID,
		CircleID:   c.CircleID,
		Title:      req.Title,
		Tension:    req.Tension,
		Type:       req.Type,
		ProposerID: req.ProposerID,
		Status:     models.StatusDraft,
		Mutation:   req.Mutation.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ev := p.Append(models.DecisionEvent{
		EventID:    models.NewID(),
		ProposalID: p.ProposalID,
		Type:       models.EventProposalCreated,
		ActorID:    req.ProposerID,
		Content:    req.Title,
		RequestID:  req.RequestID,
		Timestamp:  now,
	})

	if err := s.stores.Proposals.Create(ctx, p); err != nil {
		return nil, mapStoreError(op, err)
	}
	return &Result{Proposal: p, Event: ev}, nil
}

// change describes one proposal operation for run.
type change struct {
	op         string
	proposalID uuid.UUID
	actorID    string
	requestID  string

	// apply checks authorization and preconditions against the freshly read
	// proposal, mutates it and returns the event to append. It runs once per
	// attempt and must not touch anything but p.
	apply func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error)
}

// run executes a change with conflict retries, then records metrics and
// publishes the appended event.
func (s *ProposalService) run(ctx context.Context, ch change) (*Result, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "proposal."+ch.op, attribute.String("proposal_id", ch.proposalID.String()))

	res, err := retryOnConflict(ctx, s.retries, ch.op, func() (*Result, error) {
		return s.attempt(ctx, ch)
	})
	endSpan(span, err)

	telemetry.GetMetrics().TransitionDuration.Record(ctx,
		float64(time.Since(start).Microseconds())/1000, opAttr(ch.op))

	if err != nil {
		s.recordFailure(ctx, ch.op, err)
		return nil, err
	}
	if res.Replayed {
		log.Debug().
			Str("proposal_id", ch.proposalID.String()).
			Str("request_id", ch.requestID).
			Msg("Request already recorded")
		return res, nil
	}

	telemetry.GetMetrics().TransitionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event_type", string(res.Event.Type))))

	ev := log.Info().
		Str("proposal_id", ch.proposalID.String()).
		Str("actor_id", ch.actorID).
		Str("event_type", string(res.Event.Type)).
		Int64("sequence", res.Event.Sequence)
	if res.Event.IsTransition() {
		ev = ev.Str("from", string(res.Event.FromStatus)).Str("to", string(res.Event.ToStatus))
	}
	ev.Msg("Decision event appended")

	s.publishEvent(ctx, res.Proposal, res.Event)
	return res, nil
}

func (s *ProposalService) recordFailure(ctx context.Context, op string, err error) {
	telemetry.GetMetrics().TransitionFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", string(KindOf(err))),
	))
	log.Debug().Err(err).Str("op", op).Msg("Proposal operation rejected")
}

func (s *ProposalService) attempt(ctx context.Context, ch change) (*Result, error) {
	p, err := s.stores.Proposals.Get(ctx, ch.proposalID)
	if errors.Is(err, store.ErrProposalNotFound) {
		// Indistinguishable from a permission failure.
		return nil, fail(ch.op, ErrUnauthorizedActor, "")
	}
	if err != nil {
		return nil, mapStoreError(ch.op, err)
	}

	if ev, ok := p.FindEventByRequest(ch.requestID); ok {
		if ev.ActorID != ch.actorID {
			return nil, fail(ch.op, ErrUnauthorizedActor, "")
		}
		return &Result{Proposal: p, Event: *ev, Replayed: true}, nil
	}

	caps, err := s.resolver.Resolve(ctx, ch.actorID, p)
	if err != nil {
		return nil, wrap(ch.op, ErrInternal, err)
	}

	expected := p.Version
	now := s.now()

	draft, err := ch.apply(p, caps, now)
	if err != nil {
		return nil, err
	}
	draft.EventID = models.NewID()
	draft.ProposalID = p.ProposalID
	draft.ActorID = ch.actorID
	draft.RequestID = ch.requestID
	draft.Timestamp = now
	ev := p.Append(draft)

	if err := models.VerifyStatus(p); err != nil {
		return nil, wrap(ch.op, ErrHistoryDiverged, err)
	}
	if err := s.stores.Proposals.Update(ctx, p, expected); err != nil {
		return nil, mapStoreError(ch.op, err)
	}
	return &Result{Proposal: p, Event: ev}, nil
}

func (c *core) publishEvent(ctx context.Context, p *models.Proposal, ev models.DecisionEvent) {
	c.publish(ctx, notify.Notification{
		Kind:       notify.KindDecisionEvent,
		OrgID:      p.OrgID,
		CircleID:   p.CircleID,
		ProposalID: p.ProposalID,
		Event:      &ev,
		Summary:    fmt.Sprintf("%s: %s", p.Title, ev.Type),
		At:         ev.Timestamp,
	})
}

// AdvanceRequest moves a proposal to another status.
type AdvanceRequest struct {
	ProposalID uuid.UUID
	ActorID    string
	To         models.ProposalStatus
	Content    string
	RequestID  string
}

// errDryRun rolls back the hierarchy transaction used to check a mutation.
var errDryRun = errors.New("dry run")

// Advance performs a guarded status transition. Moving to APPLIED is
// reserved for the Applier.
//
// OBJECTION_STAGE to INTEGRATION_STAGE and INTEGRATION_STAGE to APPROVED fail
// with ErrObjectionUnresolved while any objection is OPEN. Returning from
// OBJECTION_STAGE to AMEND_STAGE integrates every open objection. REJECTED
// requires at least one open objection. Approval checks that the proposal's
// mutation can be applied to the current hierarchy.
func (s *ProposalService) Advance(ctx context.Context, req AdvanceRequest) (*Result, error) {
	const op = "Advance"

	if !req.To.IsValid() {
		return nil, fail(op, ErrValidation, "unknown status %q", req.To)
	}
	if req.To == models.StatusApplied || req.To == models.StatusDraft {
		return nil, fail(op, ErrInvalidTransition, "%s cannot be requested", req.To)
	}

	res, err := s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			return s.transition(ctx, op, p, caps, req.To, req.Content, now)
		},
	})
	if err != nil {
		return nil, err
	}

	if !res.Replayed && req.To == models.StatusApproved && !s.deferApply {
		applied, err := s.applier.Apply(ctx, req.ProposalID)
		if err != nil {
			log.Error().Err(err).Str("proposal_id", req.ProposalID.String()).
				Msg("Approved proposal not applied, left for apply-pending")
		} else {
			res.Proposal = applied
		}
	}
	return res, nil
}

func (s *ProposalService) transition(ctx context.Context, op string, p *models.Proposal, caps authz.Capacities,
	to models.ProposalStatus, content string, now time.Time,
) (models.DecisionEvent, error) {
	if err := s.authorize(op, authz.TransitionAction(to), caps); err != nil {
		return models.DecisionEvent{}, err
	}

	from := p.Status
	if !from.CanTransitionTo(to) {
		return models.DecisionEvent{}, fail(op, ErrInvalidTransition, "%s -> %s", from, to)
	}

	open := p.OpenObjections()
	switch to {
	case models.StatusSubmitted:
		p.SubmittedAt = &now

	case models.StatusIntegrationStage:
		if len(open) > 0 {
			return models.DecisionEvent{}, fail(op, ErrObjectionUnresolved, "%d objection(s) still open", len(open))
		}

	case models.StatusApproved:
		if len(open) > 0 {
			return models.DecisionEvent{}, fail(op, ErrObjectionUnresolved, "%d objection(s) still open", len(open))
		}
		if err := s.checkMutation(ctx, op, p); err != nil {
			return models.DecisionEvent{}, err
		}

	case models.StatusRejected:
		if len(open) == 0 {
			return models.DecisionEvent{}, fail(op, ErrInvalidTransition, "rejection requires an open objection")
		}

	case models.StatusAmendStage:
		if from == models.StatusObjectionStage {
			for i := range p.Objections {
				o := &p.Objections[i]
				if o.Status != models.ObjectionOpen {
					continue
				}
				o.Status = models.ObjectionIntegrated
				o.ResolvedAt = &now
				o.ResolvedBy = SystemActor
				o.Resolution = "returned to amend stage"
			}
		}
	}

	return models.DecisionEvent{
		Type:       models.TransitionEventType(to),
		Content:    content,
		FromStatus: from,
		ToStatus:   to,
	}, nil
}

// checkMutation applies the proposal's mutation in a hierarchy transaction
// that is always rolled back.
func (s *ProposalService) checkMutation(ctx context.Context, op string, p *models.Proposal) error {
	err := s.stores.Hierarchy.Update(ctx, p.OrgID, func(tx store.HierarchyTx) error {
		m := &mutator{ctx: ctx, tx: tx, orgID: p.OrgID, op: op, actor: SystemActor, now: s.now()}
		if err := m.applyMutation(p); err != nil {
			return err
		}
		return errDryRun
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	if err == nil {
		return fail(op, ErrInternal, "mutation check committed")
	}
	return mapStoreError(op, err)
}

// Get returns a proposal.
func (s *ProposalService) Get(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	p, err := s.stores.Proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError("GetProposal", err)
	}
	return p, nil
}

// List returns proposals matching the filter.
func (s *ProposalService) List(ctx context.Context, filter store.ProposalFilter) ([]*models.Proposal, error) {
	ps, err := s.stores.Proposals.List(ctx, filter)
	if err != nil {
		return nil, mapStoreError("ListProposals", err)
	}
	return ps, nil
}

// VerifyHistory replays a proposal's decision history and fails with
// ErrHistoryDiverged if it disagrees with the stored status.
func (s *ProposalService) VerifyHistory(ctx context.Context, proposalID uuid.UUID) error {
	const op = "VerifyHistory"

	p, err := s.stores.Proposals.Get(ctx, proposalID)
	if err != nil {
		return mapStoreError(op, err)
	}
	if err := models.VerifyStatus(p); err != nil {
		return wrap(op, ErrHistoryDiverged, err)
	}
	return nil
}

// AuditFinding is a proposal whose history failed verification.
type AuditFinding struct {
	ProposalID uuid.UUID
	Status     models.ProposalStatus
	Err        error
}

// AuditReport summarizes an Audit run.
type AuditReport struct {
	Checked  int
	Findings []AuditFinding
}

// Audit verifies the history of every proposal matching the filter.
func (s *ProposalService) Audit(ctx context.Context, filter store.ProposalFilter) (*AuditReport, error) {
	ps, err := s.stores.Proposals.List(ctx, filter)
	if err != nil {
		return nil, mapStoreError("Audit", err)
	}

	report := &AuditReport{Checked: len(ps)}
	for _, p := range ps {
		if err := models.VerifyStatus(p); err != nil {
			report.Findings = append(report.Findings, AuditFinding{ProposalID: p.ProposalID, Status: p.Status, Err: err})
			log.Warn().Err(err).Str("proposal_id", p.ProposalID.String()).Msg("Decision history diverged")
		}
	}
	return report, nil
}
