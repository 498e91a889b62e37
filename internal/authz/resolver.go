package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
)

// AssignmentLister is the part of the hierarchy the resolver reads.
type AssignmentLister interface {
	ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error)
}

// MeetingLister is the part of the meeting store the resolver reads.
type MeetingLister interface {
	ListByCircle(ctx context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error)
}

// Resolver derives an actor's capacities from role assignments and, for a
// proposal, the open meetings carrying it on their agenda. It never validates
// identities; the actor id is taken as already authenticated.
type Resolver struct {
	assignments AssignmentLister
	meetings    MeetingLister
}

// NewResolver creates a resolver. meetings may be nil.
func NewResolver(assignments AssignmentLister, meetings MeetingLister) *Resolver {
	return &Resolver{assignments: assignments, meetings: meetings}
}

var specialCapacity = map[models.SpecialRoleType]Capacity{
	models.SpecialRoleCircleLead:  CapacityCircleLead,
	models.SpecialRoleFacilitator: CapacityFacilitator,
	models.SpecialRoleSecretary:   CapacitySecretary,
	models.SpecialRoleCircleRep:   CapacityCircleRep,
}

// ResolveCircle returns the capacities actorID holds in a circle through its
// active role assignments.
func (r *Resolver) ResolveCircle(ctx context.Context, actorID string, circleID uuid.UUID) (Capacities, error) {
	caps := Capacities{}
	if actorID == "" {
		return caps, nil
	}
	caps[CapacityPartner] = true

	assignments, err := r.assignments.ListCircleAssignments(ctx, circleID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	for _, a := range assignments {
		if a.PartnerID != actorID {
			continue
		}
		caps[CapacityCircleMember] = true
		if c, ok := specialCapacity[a.SpecialType]; ok {
			caps[c] = true
		}
	}

	return caps, nil
}

// Resolve returns the capacities actorID holds relative to a proposal. The
// facilitator and secretary of an open meeting act as such only for the
// proposals on that meeting's agenda.
func (r *Resolver) Resolve(ctx context.Context, actorID string, p *models.Proposal) (Capacities, error) {
	caps, err := r.ResolveCircle(ctx, actorID, p.CircleID)
	if err != nil {
		return nil, err
	}
	if actorID == "" {
		return caps, nil
	}
	if p.ProposerID == actorID {
		caps[CapacityProposer] = true
	}

	if r.meetings == nil {
		return caps, nil
	}

	meetings, err := r.meetings.ListByCircle(ctx, p.CircleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	for _, m := range meetings {
		if !m.Status.IsOpen() {
			continue
		}
		if _, ok := m.ItemFor(p.ProposalID); !ok {
			continue
		}
		if m.FacilitatorID == actorID {
			caps[CapacityFacilitator] = true
		}
		if m.SecretaryID == actorID {
			caps[CapacitySecretary] = true
		}
	}

	return caps, nil
}
