package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/governor/internal/models"
)

func TestApplier_ApplyPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DeferApply: true})

	p := f.createProposal(t, models.ProposalTypeCircleStructureChange, newCircleMutation("Operations"))
	p = f.advanceTo(t, p.ProposalID, models.StatusApproved)
	require.Equal(t, models.StatusApproved, p.Status)

	tree, err := f.eng.Hierarchy.Tree(ctx, f.child.CircleID)
	require.NoError(t, err)
	require.Empty(t, tree.SubCircles, "nothing changes until applied")

	applied, err := f.eng.Applier.ApplyPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	applied, err = f.eng.Applier.ApplyPending(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)

	stored, err := f.eng.Proposals.Get(ctx, p.ProposalID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApplied, stored.Status)

	again, err := f.eng.Applier.Apply(ctx, p.ProposalID)
	require.NoError(t, err)
	require.Equal(t, stored.Version, again.Version, "applying twice is a no-op")
}

func TestApplier_RecoversAfterPartialApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DeferApply: true})

	p := f.createProposal(t, models.ProposalTypeCircleStructureChange, newCircleMutation("Operations"))
	p = f.advanceTo(t, p.ProposalID, models.StatusApproved)

	// The hierarchy commit lands but the process stops before the proposal
	// moves to APPLIED.
	err := f.eng.Applier.mutate(ctx, p.OrgID, "Apply", SystemActor, func(m *mutator) error {
		if err := m.applyMutation(p); err != nil {
			return err
		}
		return m.tx.RecordMutation(m.ctx, p.ProposalID)
	})
	require.NoError(t, err)

	res, err := f.eng.Applier.Apply(ctx, p.ProposalID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApplied, res.Status)

	tree, err := f.eng.Hierarchy.Tree(ctx, f.child.CircleID)
	require.NoError(t, err)
	require.Len(t, tree.SubCircles, 1, "the mutation is not repeated")
	require.NoError(t, f.eng.Hierarchy.Check(ctx, f.org.OrgID))
}

func TestApplier_RejectsUndecided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	p := f.createProposal(t, models.ProposalTypeProcessOptimization, nil)

	_, err := f.eng.Applier.Apply(ctx, p.ProposalID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.eng.Applier.Apply(ctx, models.NewID())
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestApplier_RoleMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	mut := &models.Mutation{Role: &models.RoleChange{
		Op:               models.OpCreate,
		Name:             "Release Manager",
		Purpose:          "Ship releases",
		Accountabilities: []string{"Cutting releases"},
		Domains:          []models.Domain{{Name: "release pipeline", ControlType: models.DomainControlExclusive}},
	}}
	p := f.createProposal(t, models.ProposalTypeRoleModification, mut)
	p = f.advanceTo(t, p.ProposalID, models.StatusApproved)
	require.Equal(t, models.StatusApplied, p.Status)

	roles, err := f.eng.Hierarchy.ListRoles(ctx, f.child.CircleID)
	require.NoError(t, err)
	require.Len(t, roles, len(models.SpecialRoleTypes)+1)
}
