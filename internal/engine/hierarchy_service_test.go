package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

func TestHierarchyService_Bootstrap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	org, err := f.eng.Hierarchy.GetOrganization(ctx, f.org.OrgID)
	require.NoError(t, err)
	require.Equal(t, f.root.CircleID, org.RootCircleID)

	roles, err := f.eng.Hierarchy.ListRoles(ctx, f.root.CircleID)
	require.NoError(t, err)
	require.Len(t, roles, len(models.SpecialRoleTypes))
	for _, r := range roles {
		require.True(t, r.IsSpecial())
	}

	_, err = f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{OrgID: f.org.OrgID, Name: "Second root"})
	require.ErrorIs(t, err, ErrStructural)

	_, _, err = f.eng.Hierarchy.Bootstrap(ctx, BootstrapRequest{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestHierarchyService_CreateCircle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	t.Run("unknown parent", func(t *testing.T) {
		missing := models.NewID()
		_, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &missing, Name: "Orphan"})
		require.ErrorIs(t, err, ErrParentNotFound)
		require.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("name required", func(t *testing.T) {
		_, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &f.root.CircleID})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("links parent and child", func(t *testing.T) {
		c, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &f.child.CircleID, Name: "Design"})
		require.NoError(t, err)
		require.Equal(t, f.org.OrgID, c.OrgID)

		parent, err := f.eng.Hierarchy.GetCircle(ctx, f.child.CircleID)
		require.NoError(t, err)
		require.Contains(t, parent.ChildIDs, c.CircleID)

		chain, err := f.eng.Hierarchy.Ancestors(ctx, c.CircleID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		require.Equal(t, f.root.CircleID, chain[1].CircleID)
	})
}

func TestHierarchyService_MoveCircle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	a, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &f.child.CircleID, Name: "A"})
	require.NoError(t, err)
	b, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &a.CircleID, Name: "B"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		circle   uuid.UUID
		parent   uuid.UUID
		expected error
	}{
		{"onto itself", a.CircleID, a.CircleID, ErrCycleViolation},
		{"under its child", a.CircleID, b.CircleID, ErrCycleViolation},
		{"under its grandchild", f.child.CircleID, b.CircleID, ErrCycleViolation},
		{"root", f.root.CircleID, a.CircleID, ErrCycleViolation},
		{"unknown parent", a.CircleID, models.NewID(), ErrParentNotFound},
		{"unknown circle", models.NewID(), a.CircleID, ErrCircleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Hierarchy.MoveCircle(ctx, tt.circle, tt.parent, "admin")
			require.ErrorIs(t, err, tt.expected)
		})
	}

	t.Run("valid move", func(t *testing.T) {
		moved, err := f.eng.Hierarchy.MoveCircle(ctx, b.CircleID, f.root.CircleID, "admin")
		require.NoError(t, err)
		require.Equal(t, f.root.CircleID, *moved.ParentID)

		oldParent, err := f.eng.Hierarchy.GetCircle(ctx, a.CircleID)
		require.NoError(t, err)
		require.NotContains(t, oldParent.ChildIDs, b.CircleID)
	})

	require.NoError(t, f.eng.Hierarchy.Check(ctx, f.org.OrgID))
}

// Random moves never produce a cycle: every circle keeps a bounded path to the root.
func TestHierarchyService_RandomMovesStayAcyclic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	rng := rand.New(rand.NewPCG(1, 2))

	ids := []uuid.UUID{f.child.CircleID}
	for i := range 12 {
		parent := ids[rng.IntN(len(ids))]
		c, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &parent, Name: fmt.Sprintf("c%d", i)})
		require.NoError(t, err)
		ids = append(ids, c.CircleID)
	}

	for range 200 {
		c := ids[rng.IntN(len(ids))]
		p := ids[rng.IntN(len(ids))]
		_, err := f.eng.Hierarchy.MoveCircle(ctx, c, p, "admin")
		if err != nil {
			require.ErrorIs(t, err, ErrCycleViolation)
		}
	}

	circles, err := f.eng.Hierarchy.ListCircles(ctx, f.org.OrgID)
	require.NoError(t, err)
	for _, c := range circles {
		chain, err := f.eng.Hierarchy.Ancestors(ctx, c.CircleID)
		require.NoError(t, err)
		require.LessOrEqual(t, len(chain), len(circles))
		if !c.IsRoot() {
			require.Equal(t, f.root.CircleID, chain[len(chain)-1].CircleID)
		}
	}
	require.NoError(t, f.eng.Hierarchy.Check(ctx, f.org.OrgID))
}

func TestHierarchyService_DeleteCircle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	t.Run("root", func(t *testing.T) {
		require.ErrorIs(t, f.eng.Hierarchy.DeleteCircle(ctx, f.root.CircleID, "admin"), ErrStructural)
	})

	t.Run("active assignments", func(t *testing.T) {
		err := f.eng.Hierarchy.DeleteCircle(ctx, f.child.CircleID, "admin")
		require.ErrorIs(t, err, ErrHasActiveRoleAssignments)
		_, err = f.eng.Hierarchy.GetCircle(ctx, f.child.CircleID)
		require.NoError(t, err)
	})

	t.Run("empty circle", func(t *testing.T) {
		c, err := f.eng.Hierarchy.CreateCircle(ctx, CreateCircleRequest{ParentID: &f.root.CircleID, Name: "Temp"})
		require.NoError(t, err)
		require.NoError(t, f.eng.Hierarchy.DeleteCircle(ctx, c.CircleID, "admin"))

		_, err = f.eng.Hierarchy.GetCircle(ctx, c.CircleID)
		require.ErrorIs(t, err, ErrCircleNotFound)
		roles, err := f.eng.Hierarchy.ListRoles(ctx, c.CircleID)
		require.NoError(t, err)
		require.Empty(t, roles)
	})

	t.Run("cascade through an applied proposal", func(t *testing.T) {
		res, err := f.eng.Proposals.Create(ctx, CreateProposalRequest{
			CircleID:   f.root.CircleID,
			Title:      "Dissolve product",
			Tension:    models.Tension{Description: "Product is done"},
			Type:       models.ProposalTypeCircleStructureChange,
			Mutation:   &models.Mutation{Circle: &models.CircleChange{Op: models.OpDelete, CircleID: &f.child.CircleID}},
			ProposerID: proposer,
		})
		require.NoError(t, err)

		facilitatorRole := f.specialRole(t, f.root.CircleID, models.SpecialRoleFacilitator)
		_, err = f.eng.Assignments.AssignRole(ctx, facilitatorRole, facilitator, "admin")
		require.NoError(t, err)

		p := f.advanceTo(t, res.Proposal.ProposalID, models.StatusApproved)
		require.Equal(t, models.StatusApplied, p.Status)

		_, err = f.eng.Hierarchy.GetCircle(ctx, f.child.CircleID)
		require.ErrorIs(t, err, ErrCircleNotFound)

		closed, err := f.stores.Hierarchy.ListCircleAssignments(ctx, f.child.CircleID, false)
		require.NoError(t, err)
		for _, a := range closed {
			require.False(t, a.IsActive())
			require.Equal(t, models.EndReasonRoleDeleted, a.EndReason)
		}
		require.NoError(t, f.eng.Hierarchy.Check(ctx, f.org.OrgID))
	})
}

func TestHierarchyService_Roles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	t.Run("validation", func(t *testing.T) {
		_, err := f.eng.Hierarchy.CreateRole(ctx, CreateRoleRequest{CircleID: f.child.CircleID, Name: "Scribe"})
		require.ErrorIs(t, err, ErrValidation)
		_, err = f.eng.Hierarchy.CreateRole(ctx, CreateRoleRequest{CircleID: models.NewID(), Name: "Scribe", Accountabilities: []string{"Write"}})
		require.ErrorIs(t, err, ErrCircleNotFound)
	})

	t.Run("exclusive domains", func(t *testing.T) {
		_, err := f.eng.Hierarchy.CreateRole(ctx, CreateRoleRequest{
			CircleID: f.child.CircleID, Name: "Release Manager", Accountabilities: []string{"Ship releases"},
			Domains: []models.Domain{{Name: "Release pipeline"}},
		})
		require.NoError(t, err)

		_, err = f.eng.Hierarchy.CreateRole(ctx, CreateRoleRequest{
			CircleID: f.child.CircleID, Name: "Build Cop", Accountabilities: []string{"Fix builds"},
			Domains: []models.Domain{{Name: "release PIPELINE", ControlType: models.DomainControlShared}},
		})
		require.ErrorIs(t, err, ErrDomainConflict)
		require.Equal(t, KindStructuralViolation, KindOf(err))
	})

	t.Run("special roles are fixed", func(t *testing.T) {
		lead := f.specialRole(t, f.child.CircleID, models.SpecialRoleCircleLead)
		require.ErrorIs(t, f.eng.Hierarchy.DeleteRole(ctx, lead, "admin"), ErrSpecialRoleViolation)
		_, err := f.eng.Hierarchy.UpdateRole(ctx, lead, RoleUpdate{Purpose: "Rule"}, "admin")
		require.ErrorIs(t, err, ErrSpecialRoleViolation)
	})

	t.Run("delete closes assignments", func(t *testing.T) {
		r, err := f.eng.Hierarchy.CreateRole(ctx, CreateRoleRequest{
			CircleID: f.child.CircleID, Name: "Scribe", Accountabilities: []string{"Take notes"},
		})
		require.NoError(t, err)
		a, err := f.eng.Assignments.AssignRole(ctx, r.RoleID, partner, "admin")
		require.NoError(t, err)

		updated, err := f.eng.Hierarchy.UpdateRole(ctx, r.RoleID, RoleUpdate{Purpose: "Keep records"}, "admin")
		require.NoError(t, err)
		require.Equal(t, "Keep records", updated.Purpose)

		require.NoError(t, f.eng.Hierarchy.DeleteRole(ctx, r.RoleID, "admin"))
		_, err = f.eng.Hierarchy.GetRole(ctx, r.RoleID)
		require.ErrorIs(t, err, ErrRoleNotFound)

		closed, err := f.eng.Assignments.GetAssignment(ctx, a.AssignmentID)
		require.NoError(t, err)
		require.Equal(t, models.EndReasonRoleDeleted, closed.EndReason)
	})
}

func TestAssignmentService_SpecialRoleUniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	rng := rand.New(rand.NewPCG(7, 11))

	partners := []string{"alice", "bob", "carol", "dave"}
	var roleIDs []uuid.UUID
	for _, st := range models.SpecialRoleTypes {
		roleIDs = append(roleIDs, f.specialRole(t, f.child.CircleID, st))
	}

	for i := range 100 {
		roleID := roleIDs[rng.IntN(len(roleIDs))]
		if rng.IntN(3) == 0 {
			active, err := f.eng.Assignments.ListAssignments(ctx, roleID, true)
			require.NoError(t, err)
			if len(active) > 0 {
				_, err := f.eng.Assignments.RevokeAssignment(ctx, active[0].AssignmentID, "admin")
				require.NoError(t, err)
			}
		} else {
			_, err := f.eng.Assignments.AssignRole(ctx, roleID, partners[rng.IntN(len(partners))], "admin")
			require.NoError(t, err)
		}

		require.NoError(t, f.eng.Hierarchy.Check(ctx, f.org.OrgID), "after step %d", i)
		for _, id := range roleIDs {
			active, err := f.eng.Assignments.ListAssignments(ctx, id, true)
			require.NoError(t, err)
			require.LessOrEqual(t, len(active), 1)
		}
	}
}

func TestAssignmentService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	facilitatorRole := f.specialRole(t, f.child.CircleID, models.SpecialRoleFacilitator)

	t.Run("supersedes special role holder", func(t *testing.T) {
		before, err := f.eng.Assignments.ListAssignments(ctx, facilitatorRole, true)
		require.NoError(t, err)
		require.Len(t, before, 1)

		next, err := f.eng.Assignments.AssignRole(ctx, facilitatorRole, "sam", "admin")
		require.NoError(t, err)

		prev, err := f.eng.Assignments.GetAssignment(ctx, before[0].AssignmentID)
		require.NoError(t, err)
		require.Equal(t, models.EndReasonSuperseded, prev.EndReason)

		holder, ok, err := f.eng.Assignments.Holder(ctx, f.child.CircleID, models.SpecialRoleFacilitator)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, next.PartnerID, holder)

		history, err := f.eng.Assignments.ListAssignments(ctx, facilitatorRole, false)
		require.NoError(t, err)
		require.Len(t, history, 2)
	})

	t.Run("same partner is a no-op", func(t *testing.T) {
		first, err := f.eng.Assignments.AssignRole(ctx, facilitatorRole, "sam", "admin")
		require.NoError(t, err)
		again, err := f.eng.Assignments.AssignRole(ctx, facilitatorRole, "sam", "admin")
		require.NoError(t, err)
		require.Equal(t, first.AssignmentID, again.AssignmentID)
	})

	t.Run("revoke", func(t *testing.T) {
		active, err := f.eng.Assignments.ListAssignments(ctx, facilitatorRole, true)
		require.NoError(t, err)

		revoked, err := f.eng.Assignments.RevokeAssignment(ctx, active[0].AssignmentID, "admin")
		require.NoError(t, err)
		require.False(t, revoked.IsActive())
		require.Equal(t, models.EndReasonRevoked, revoked.EndReason)

		_, err = f.eng.Assignments.RevokeAssignment(ctx, active[0].AssignmentID, "admin")
		require.ErrorIs(t, err, ErrAssignmentClosed)

		_, err = f.eng.Assignments.RevokeAssignment(ctx, models.NewID(), "admin")
		require.ErrorIs(t, err, ErrAssignmentNotFound)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := f.eng.Assignments.AssignRole(ctx, models.NewID(), "sam", "admin")
		require.ErrorIs(t, err, ErrRoleNotFound)
		_, err = f.eng.Assignments.AssignRole(ctx, facilitatorRole, "", "admin")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("store rejects a second active holder", func(t *testing.T) {
		err := f.stores.Hierarchy.Update(ctx, f.org.OrgID, func(tx store.HierarchyTx) error {
			for _, p := range []string{"x", "y"} {
				if err := tx.PutAssignment(ctx, &models.RoleAssignment{
					AssignmentID: models.NewID(), RoleID: facilitatorRole, CircleID: f.child.CircleID,
					SpecialType: models.SpecialRoleFacilitator, PartnerID: p,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		require.ErrorIs(t, mapStoreError("test", err), ErrSpecialRoleViolation)
	})
}
