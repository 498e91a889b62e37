package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

func newTestOrg(t *testing.T, st *HierarchyStore) (*models.Organization, *models.Circle) {
	t.Helper()
	ctx := context.Background()

	org := &models.Organization{OrgID: models.NewID(), Name: "Acme", CreatedAt: time.Now()}
	require.NoError(t, st.CreateOrganization(ctx, org))

	root := &models.Circle{CircleID: models.NewID(), OrgID: org.OrgID, Name: "General", CreatedAt: time.Now()}
	err := st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
		if err := tx.PutCircle(ctx, root); err != nil {
			return err
		}
		org.RootCircleID = root.CircleID
		return tx.PutOrganization(ctx, org)
	})
	require.NoError(t, err)

	return org, root
}

func TestHierarchyStore_CreateOrganization(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()

		org := &models.Organization{OrgID: models.NewID(), Name: "Acme"}
		require.NoError(t, st.CreateOrganization(ctx, org))

		got, err := st.GetOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "Acme", got.Name)
		require.False(t, got.HasRoot())
	})

	t.Run("duplicate returns error", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()

		org := &models.Organization{OrgID: models.NewID(), Name: "Acme"}
		require.NoError(t, st.CreateOrganization(ctx, org))
		require.ErrorIs(t, st.CreateOrganization(ctx, org), store.ErrOrganizationAlreadyExists)
	})

	t.Run("unknown organization", func(t *testing.T) {
		st := NewHierarchyStore()
		_, err := st.GetOrganization(context.Background(), uuid.New())
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)

		err = st.Update(context.Background(), uuid.New(), func(tx store.HierarchyTx) error { return nil })
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestHierarchyStore_Update(t *testing.T) {
	t.Run("commit makes writes visible", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		org, root := newTestOrg(t, st)

		got, err := st.GetCircle(ctx, root.CircleID)
		require.NoError(t, err)
		require.Equal(t, "General", got.Name)

		gotOrg, err := st.GetOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, root.CircleID, gotOrg.RootCircleID)
	})

	t.Run("failed callback discards writes", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		org, root := newTestOrg(t, st)

		boom := errors.New("boom")
		role := &models.Role{RoleID: models.NewID(), CircleID: root.CircleID, Name: "Dev"}
		err := st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			require.NoError(t, tx.PutRole(ctx, role))

			// visible inside the transaction
			_, err := tx.GetRole(ctx, role.RoleID)
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.GetRole(ctx, role.RoleID)
		require.ErrorIs(t, err, store.ErrRoleNotFound)
	})

	t.Run("delete removes from index", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		org, root := newTestOrg(t, st)

		child := &models.Circle{CircleID: models.NewID(), OrgID: org.OrgID, ParentID: &root.CircleID, Name: "Dev"}
		require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			return tx.PutCircle(ctx, child)
		}))
		_, err := st.GetCircle(ctx, child.CircleID)
		require.NoError(t, err)

		require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			return tx.DeleteCircle(ctx, child.CircleID)
		}))
		_, err = st.GetCircle(ctx, child.CircleID)
		require.ErrorIs(t, err, store.ErrCircleNotFound)
	})

	t.Run("returned entities are copies", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		_, root := newTestOrg(t, st)

		got, err := st.GetCircle(ctx, root.CircleID)
		require.NoError(t, err)
		got.Name = "changed"
		got.ChildIDs = append(got.ChildIDs, uuid.New())

		again, err := st.GetCircle(ctx, root.CircleID)
		require.NoError(t, err)
		require.Equal(t, "General", again.Name)
		require.Empty(t, again.ChildIDs)
	})

	t.Run("readers see all or nothing", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		org, root := newTestOrg(t, st)

		var (
			wg     sync.WaitGroup
			misses atomic.Int64
		)
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c, err := st.GetCircle(ctx, root.CircleID)
				if err != nil {
					misses.Add(1)
					continue
				}
				// every role a published circle lists must resolve
				for _, id := range c.RoleIDs {
					if _, err := st.GetRole(ctx, id); err != nil {
						misses.Add(1)
					}
				}
			}
		}()

		for i := 0; i < 50; i++ {
			require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
				c, err := tx.GetCircle(ctx, root.CircleID)
				if err != nil {
					return err
				}
				role := &models.Role{RoleID: models.NewID(), CircleID: c.CircleID, Name: "r"}
				if err := tx.PutRole(ctx, role); err != nil {
					return err
				}
				c.AddRole(role.RoleID)
				return tx.PutCircle(ctx, c)
			}))
		}
		close(stop)
		wg.Wait()
		require.Zero(t, misses.Load())

		roles, err := st.ListRoles(ctx, root.CircleID)
		require.NoError(t, err)
		require.Len(t, roles, 50)
	})
}

func TestHierarchyStore_Assignments(t *testing.T) {
	t.Run("special role allows one active assignment per circle", func(t *testing.T) {
		st := NewHierarchyStore()
		ctx := context.Background()
		org, root := newTestOrg(t, st)

		role := &models.Role{RoleID: models.NewID(), CircleID: root.CircleID, Name: "Facilitator", SpecialType: models.SpecialRoleFacilitator}
		first := &models.RoleAssignment{
			AssignmentID: models.NewID(), RoleID: role.RoleID, CircleID: root.CircleID,
			SpecialType: models.SpecialRoleFacilitator, PartnerID: "alice", AssignedAt: time.Now(),
		}
		require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			if err := tx.PutRole(ctx, role); err != nil {
				return err
			}
			return tx.PutAssignment(ctx, first)
		}))

		second := &models.RoleAssignment{
			AssignmentID: models.NewID(), RoleID: role.RoleID, CircleID: root.CircleID,
			SpecialType: models.SpecialRoleFacilitator, PartnerID: "bob", AssignedAt: time.Now(),
		}
		err := st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			return tx.PutAssignment(ctx, second)
		})
		require.ErrorIs(t, err, store.ErrSpecialRoleTaken)

		// closing the first in the same transaction lets the second in
		require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			first.Close("admin", models.EndReasonSuperseded, time.Now())
			if err := tx.PutAssignment(ctx, first); err != nil {
				return err
			}
			return tx.PutAssignment(ctx, second)
		}))

		active, err := st.ListAssignments(ctx, role.RoleID, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "bob", active[0].PartnerID)

		all, err := st.ListCircleAssignments(ctx, root.CircleID, false)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})
}

func TestHierarchyStore_RecordMutation(t *testing.T) {
	st := NewHierarchyStore()
	ctx := context.Background()
	org, _ := newTestOrg(t, st)

	proposalID := models.NewID()
	applied, err := st.IsMutationApplied(ctx, proposalID)
	require.NoError(t, err)
	require.False(t, applied)

	require.NoError(t, st.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
		return tx.RecordMutation(ctx, proposalID)
	}))

	applied, err = st.IsMutationApplied(ctx, proposalID)
	require.NoError(t, err)
	require.True(t, applied)
}
