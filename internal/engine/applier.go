package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// Applier is the only writer of the APPROVED to APPLIED transition.
//
// Application runs in two commits. The hierarchy transaction performs the
// mutation and records the proposal in the applied-mutations ledger; the
// proposal is then moved to APPLIED with a compare-and-swap. If the process
// stops between the two, the proposal stays APPROVED and the next Apply
// finds the ledger entry, skips the mutation and completes the transition.
type Applier struct {
	*core
}

type applyResult struct {
	proposal *models.Proposal
	event    models.DecisionEvent
	done     bool // already APPLIED before this call
}

// Apply performs the hierarchy change of an APPROVED proposal and moves it to
// APPLIED. Applying an APPLIED proposal returns it unchanged.
func (a *Applier) Apply(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	const op = "Apply"

	ctx, span := startSpan(ctx, "applier.apply", attribute.String("proposal_id", proposalID.String()))
	res, err := retryOnConflict(ctx, a.retries, op, func() (*applyResult, error) {
		return a.applyOnce(ctx, op, proposalID)
	})
	endSpan(span, err)

	if err != nil {
		telemetry.GetMetrics().MutationApplyErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", string(KindOf(err)))))
		log.Error().Err(err).Str("proposal_id", proposalID.String()).Msg("Failed to apply proposal")
		return nil, err
	}
	if res.done {
		return res.proposal, nil
	}

	telemetry.GetMetrics().MutationsAppliedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", string(res.proposal.Type))))
	log.Info().
		Str("proposal_id", proposalID.String()).
		Str("type", string(res.proposal.Type)).
		Msg("Proposal applied")
	a.publishEvent(ctx, res.proposal, res.event)

	return res.proposal, nil
}

func (a *Applier) applyOnce(ctx context.Context, op string, proposalID uuid.UUID) (*applyResult, error) {
	p, err := a.stores.Proposals.Get(ctx, proposalID)
	if errors.Is(err, store.ErrProposalNotFound) {
		return nil, fail(op, ErrProposalNotFound, "proposal %s not found", proposalID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	switch p.Status {
	case models.StatusApplied:
		return &applyResult{proposal: p, done: true}, nil
	case models.StatusApproved:
	default:
		return nil, fail(op, ErrInvalidTransition, "proposal is %s, not %s", p.Status, models.StatusApproved)
	}

	err = a.mutate(ctx, p.OrgID, op, SystemActor, func(m *mutator) error {
		applied, err := m.tx.IsMutationApplied(m.ctx, p.ProposalID)
		if err != nil {
			return mapStoreError(op, err)
		}
		if applied {
			return nil
		}
		if err := m.applyMutation(p); err != nil {
			return err
		}
		return mapStoreError(op, m.tx.RecordMutation(m.ctx, p.ProposalID))
	})
	if err != nil {
		return nil, err
	}

	expected := p.Version
	ev := p.Append(models.DecisionEvent{
		EventID:    models.NewID(),
		ProposalID: p.ProposalID,
		Type:       models.EventProposalApplied,
		ActorID:    SystemActor,
		Content:    describeMutation(p),
		FromStatus: models.StatusApproved,
		ToStatus:   models.StatusApplied,
		RequestID:  "apply:" + p.ProposalID.String(),
		Timestamp:  a.now(),
	})
	if err := models.VerifyStatus(p); err != nil {
		return nil, wrap(op, ErrHistoryDiverged, err)
	}
	if err := a.stores.Proposals.Update(ctx, p, expected); err != nil {
		return nil, mapStoreError(op, err)
	}
	return &applyResult{proposal: p, event: ev}, nil
}

func describeMutation(p *models.Proposal) string {
	m := p.Mutation
	switch {
	case m == nil:
		return "no structural change"
	case m.Role != nil:
		return fmt.Sprintf("role %s", m.Role.Op)
	case m.Circle != nil:
		return fmt.Sprintf("circle %s", m.Circle.Op)
	case m.Policy != nil:
		return "policy " + m.Policy.Title
	default:
		return "no structural change"
	}
}

// ApplyPending applies every APPROVED proposal. It returns the number
// applied and the joined errors of those that failed.
func (a *Applier) ApplyPending(ctx context.Context) (int, error) {
	pending, err := a.stores.Proposals.List(ctx, store.ProposalFilter{Status: models.StatusApproved})
	if err != nil {
		return 0, mapStoreError("ApplyPending", err)
	}

	var (
		applied int
		errs    []error
	)
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := a.Apply(ctx, p.ProposalID); err != nil {
			errs = append(errs, fmt.Errorf("proposal %s: %w", p.ProposalID, err))
			continue
		}
		applied++
	}

	log.Info().Int("pending", len(pending)).Int("applied", applied).Msg("Apply pending finished")
	return applied, errors.Join(errs...)
}
