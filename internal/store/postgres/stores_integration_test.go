//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Stores, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &Config{
		ConnString:  fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		AutoMigrate: true,
	}

	stores, err := Open(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		stores.Close()
		_ = container.Terminate(ctx)
	}

	return stores, cleanup
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	stores, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Microsecond)
	org := &models.Organization{OrgID: models.NewID(), Name: "Acme", CreatedAt: now, UpdatedAt: now}
	root := &models.Circle{
		CircleID:         models.NewID(),
		OrgID:            org.OrgID,
		Name:             "General",
		Accountabilities: []string{"Everything"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, stores.Pool))
	})

	t.Run("hierarchy update commits atomically", func(t *testing.T) {
		require.NoError(t, stores.Hierarchy.CreateOrganization(ctx, org))
		require.ErrorIs(t, stores.Hierarchy.CreateOrganization(ctx, org), store.ErrOrganizationAlreadyExists)

		err := stores.Hierarchy.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			if err := tx.PutCircle(ctx, root); err != nil {
				return err
			}
			org.RootCircleID = root.CircleID
			return tx.PutOrganization(ctx, org)
		})
		require.NoError(t, err)

		got, err := stores.Hierarchy.GetCircle(ctx, root.CircleID)
		require.NoError(t, err)
		require.Equal(t, []string{"Everything"}, got.Accountabilities)
		require.Nil(t, got.ParentID)

		gotOrg, err := stores.Hierarchy.GetOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, root.CircleID, gotOrg.RootCircleID)
	})

	t.Run("special role assignment is unique while active", func(t *testing.T) {
		role := &models.Role{
			RoleID: models.NewID(), CircleID: root.CircleID, OrgID: org.OrgID,
			Name: "Facilitator", SpecialType: models.SpecialRoleFacilitator, CreatedAt: now, UpdatedAt: now,
		}
		first := &models.RoleAssignment{
			AssignmentID: models.NewID(), RoleID: role.RoleID, CircleID: root.CircleID,
			SpecialType: models.SpecialRoleFacilitator, PartnerID: "alice", AssignedAt: now,
		}
		require.NoError(t, stores.Hierarchy.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			if err := tx.PutRole(ctx, role); err != nil {
				return err
			}
			return tx.PutAssignment(ctx, first)
		}))

		second := &models.RoleAssignment{
			AssignmentID: models.NewID(), RoleID: role.RoleID, CircleID: root.CircleID,
			SpecialType: models.SpecialRoleFacilitator, PartnerID: "bob", AssignedAt: now,
		}
		err := stores.Hierarchy.Update(ctx, org.OrgID, func(tx store.HierarchyTx) error {
			return tx.PutAssignment(ctx, second)
		})
		require.ErrorIs(t, err, store.ErrSpecialRoleTaken)

		active, err := stores.Hierarchy.ListAssignments(ctx, role.RoleID, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "alice", active[0].PartnerID)
	})

	t.Run("proposal history is append only", func(t *testing.T) {
		p := &models.Proposal{
			ProposalID: models.NewID(), OrgID: org.OrgID, CircleID: root.CircleID,
			Title: "Weekly sync", Type: models.ProposalTypeProcessOptimization,
			ProposerID: "alice", Status: models.StatusDraft, CreatedAt: now,
		}
		p.Append(models.DecisionEvent{
			EventID: models.NewID(), ProposalID: p.ProposalID, Type: models.EventProposalCreated,
			ActorID: "alice", Content: "created", Timestamp: now,
		})
		require.NoError(t, stores.Proposals.Create(ctx, p))

		p.Append(models.DecisionEvent{
			EventID: models.NewID(), ProposalID: p.ProposalID, Type: models.EventProposalSubmitted,
			ActorID: "alice", FromStatus: models.StatusDraft, ToStatus: models.StatusSubmitted, Timestamp: now,
		})
		require.NoError(t, stores.Proposals.Update(ctx, p, 1))
		require.ErrorIs(t, stores.Proposals.Update(ctx, p, 1), store.ErrVersionConflict)

		got, err := stores.Proposals.Get(ctx, p.ProposalID)
		require.NoError(t, err)
		require.Equal(t, models.StatusSubmitted, got.Status)
		require.EqualValues(t, 2, got.Version)
		require.Len(t, got.History, 2)
		require.NoError(t, models.VerifyStatus(got))

		got.History[0].Content = "rewritten"
		require.ErrorIs(t, stores.Proposals.Update(ctx, got, got.Version), store.ErrHistoryRewrite)

		_, err = stores.Pool.Exec(ctx, `DELETE FROM decision_events WHERE proposal_id = $1`, p.ProposalID)
		require.ErrorIs(t, mapPostgresError(err), store.ErrHistoryRewrite)
	})

	t.Run("reservations", func(t *testing.T) {
		meeting := func() *models.GovernanceMeeting {
			return &models.GovernanceMeeting{
				MeetingID: models.NewID(), OrgID: org.OrgID, CircleID: root.CircleID,
				ScheduledAt: now.Add(time.Hour), Status: models.MeetingScheduled,
				CurrentItem: models.NoCurrentItem, CreatedAt: now, UpdatedAt: now,
			}
		}
		a, b := meeting(), meeting()
		require.NoError(t, stores.Meetings.Create(ctx, a))
		require.NoError(t, stores.Meetings.Create(ctx, b))

		proposalID := models.NewID()
		require.NoError(t, stores.Meetings.ReserveProposal(ctx, proposalID, a.MeetingID))
		require.NoError(t, stores.Meetings.ReserveProposal(ctx, proposalID, a.MeetingID))
		require.ErrorIs(t, stores.Meetings.ReserveProposal(ctx, proposalID, b.MeetingID), store.ErrProposalReserved)

		a.Status = models.MeetingCancelled
		require.NoError(t, stores.Meetings.Update(ctx, a, 1))
		require.NoError(t, stores.Meetings.ReserveProposal(ctx, proposalID, b.MeetingID))

		holder, ok, err := stores.Meetings.ReservationFor(ctx, proposalID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, b.MeetingID, holder)

		list, err := stores.Meetings.ListByCircle(ctx, root.CircleID)
		require.NoError(t, err)
		require.Len(t, list, 2)
	})
}
