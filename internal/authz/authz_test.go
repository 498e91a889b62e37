package authz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		action   Action
		held     Capacities
		expected bool
	}{
		{
			name:     "facilitator advances to clarification",
			action:   TransitionAction(models.StatusClarificationStage),
			held:     NewCapacities(CapacityFacilitator, CapacityPartner),
			expected: true,
		},
		{
			name:     "proposer cannot advance to clarification",
			action:   TransitionAction(models.StatusClarificationStage),
			held:     NewCapacities(CapacityProposer, CapacityPartner),
			expected: false,
		},
		{
			name:     "proposer submits",
			action:   TransitionAction(models.StatusSubmitted),
			held:     NewCapacities(CapacityProposer),
			expected: true,
		},
		{
			name:     "facilitator cannot withdraw",
			action:   TransitionAction(models.StatusWithdrawn),
			held:     NewCapacities(CapacityFacilitator),
			expected: false,
		},
		{
			name:     "any partner creates proposals",
			action:   ActionProposalCreate,
			held:     NewCapacities(CapacityPartner),
			expected: true,
		},
		{
			name:     "only proposer amends",
			action:   ActionAmendmentAdd,
			held:     NewCapacities(CapacityPartner, CapacityCircleMember),
			expected: false,
		},
		{
			name:     "nobody applies",
			action:   TransitionAction(models.StatusApplied),
			held:     NewCapacities(knownCapacities...),
			expected: false,
		},
		{
			name:     "empty capacities are denied",
			action:   ActionReactionAdd,
			held:     Capacities{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, p.Allows(tt.action, tt.held))
		})
	}
}

func TestDefaultPolicyIsolation(t *testing.T) {
	a := DefaultPolicy()
	a.rules[ActionProposalCreate] = []Capacity{CapacityCircleLead}

	b := DefaultPolicy()
	require.Equal(t, []Capacity{CapacityPartner}, b.Allowed(ActionProposalCreate))
}

func TestParsePolicy(t *testing.T) {
	t.Run("overrides merge over defaults", func(t *testing.T) {
		doc := `
rules:
  "transition:PROPOSAL_STAGE": [facilitator, circle_lead]
  proposal.create: [circle_member]
`
		p, err := ParsePolicy(strings.NewReader(doc))
		require.NoError(t, err)

		require.True(t, p.Allows(TransitionAction(models.StatusProposalStage), NewCapacities(CapacityCircleLead)))
		require.False(t, p.Allows(ActionProposalCreate, NewCapacities(CapacityPartner)))
		require.True(t, p.Allows(ActionProposalCreate, NewCapacities(CapacityCircleMember)))
		require.True(t, p.Allows(TransitionAction(models.StatusClarificationStage), NewCapacities(CapacityFacilitator)))
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := ParsePolicy(strings.NewReader("rules:\n  \"transition:APPLIED\": [facilitator]\n"))
		require.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("unknown capacity", func(t *testing.T) {
		_, err := ParsePolicy(strings.NewReader("rules:\n  reaction.add: [janitor]\n"))
		require.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParsePolicy(strings.NewReader("rulez: {}\n"))
		require.Error(t, err)
	})

	t.Run("empty document yields defaults", func(t *testing.T) {
		p, err := ParsePolicy(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, DefaultPolicy().Actions(), p.Actions())
	})

	t.Run("marshal round trips", func(t *testing.T) {
		data, err := DefaultPolicy().Marshal()
		require.NoError(t, err)

		p, err := ParsePolicy(strings.NewReader(string(data)))
		require.NoError(t, err)
		require.Equal(t, DefaultPolicy().Allowed(ActionObjectionIntegrate), p.Allowed(ActionObjectionIntegrate))
	})
}

type fakeAssignments []*models.RoleAssignment

func (f fakeAssignments) ListCircleAssignments(_ context.Context, circleID uuid.UUID, _ bool) ([]*models.RoleAssignment, error) {
	var out []*models.RoleAssignment
	for _, a := range f {
		if a.CircleID == circleID && a.IsActive() {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeMeetings []*models.GovernanceMeeting

func (f fakeMeetings) ListByCircle(_ context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error) {
	var out []*models.GovernanceMeeting
	for _, m := range f {
		if m.CircleID == circleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	circleID := models.NewID()
	now := time.Now()
	ended := now

	assignments := fakeAssignments{
		{CircleID: circleID, PartnerID: "fran", SpecialType: models.SpecialRoleFacilitator},
		{CircleID: circleID, PartnerID: "dev"},
		{CircleID: circleID, PartnerID: "old", SpecialType: models.SpecialRoleCircleLead, EndedAt: &ended},
	}
	onAgenda := &models.Proposal{ProposalID: models.NewID(), CircleID: circleID, ProposerID: "dev"}
	offAgenda := &models.Proposal{ProposalID: models.NewID(), CircleID: circleID, ProposerID: "dev"}
	meetings := fakeMeetings{
		{
			CircleID: circleID, Status: models.MeetingInProgress, FacilitatorID: "guest", SecretaryID: "sam",
			Agenda: []models.AgendaItem{{ProposalID: onAgenda.ProposalID}},
		},
		{
			CircleID: circleID, Status: models.MeetingCompleted, FacilitatorID: "former",
			Agenda: []models.AgendaItem{{ProposalID: onAgenda.ProposalID}},
		},
	}
	r := NewResolver(assignments, meetings)

	t.Run("special assignment grants capacity", func(t *testing.T) {
		caps, err := r.ResolveCircle(ctx, "fran", circleID)
		require.NoError(t, err)
		require.Equal(t, []Capacity{CapacityCircleMember, CapacityFacilitator, CapacityPartner}, caps.List())
	})

	t.Run("closed assignment grants nothing", func(t *testing.T) {
		caps, err := r.ResolveCircle(ctx, "old", circleID)
		require.NoError(t, err)
		require.Equal(t, []Capacity{CapacityPartner}, caps.List())
	})

	t.Run("open meeting officers act on their agenda", func(t *testing.T) {
		caps, err := r.Resolve(ctx, "guest", onAgenda)
		require.NoError(t, err)
		require.True(t, caps.Has(CapacityFacilitator))

		caps, err = r.Resolve(ctx, "sam", onAgenda)
		require.NoError(t, err)
		require.True(t, caps.Has(CapacitySecretary))

		caps, err = r.Resolve(ctx, "former", onAgenda)
		require.NoError(t, err)
		require.False(t, caps.Has(CapacityFacilitator))
	})

	t.Run("meeting officers hold nothing outside their agenda", func(t *testing.T) {
		caps, err := r.Resolve(ctx, "guest", offAgenda)
		require.NoError(t, err)
		require.False(t, caps.Has(CapacityFacilitator))

		caps, err = r.ResolveCircle(ctx, "guest", circleID)
		require.NoError(t, err)
		require.Equal(t, []Capacity{CapacityPartner}, caps.List())
	})

	t.Run("proposer", func(t *testing.T) {
		p := &models.Proposal{CircleID: circleID, ProposerID: "dev"}
		caps, err := r.Resolve(ctx, "dev", p)
		require.NoError(t, err)
		require.True(t, caps.Has(CapacityProposer))
		require.True(t, caps.Has(CapacityCircleMember))
	})

	t.Run("anonymous actor holds nothing", func(t *testing.T) {
		caps, err := r.Resolve(ctx, "", &models.Proposal{CircleID: circleID})
		require.NoError(t, err)
		require.Empty(t, caps)
	})
}
