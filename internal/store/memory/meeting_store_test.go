package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

func scheduledMeeting() *models.GovernanceMeeting {
	return &models.GovernanceMeeting{
		MeetingID:   models.NewID(),
		OrgID:       models.NewID(),
		CircleID:    models.NewID(),
		ScheduledAt: time.Now().Add(time.Hour),
		Status:      models.MeetingScheduled,
		CurrentItem: models.NoCurrentItem,
		CreatedAt:   time.Now(),
	}
}

func TestMeetingStore_CreateUpdate(t *testing.T) {
	st := NewMeetingStore()
	ctx := context.Background()

	m := scheduledMeeting()
	require.NoError(t, st.Create(ctx, m))
	require.ErrorIs(t, st.Create(ctx, m), store.ErrMeetingAlreadyExists)

	got, err := st.Get(ctx, m.MeetingID)
	require.NoError(t, err)
	got.Status = models.MeetingInProgress
	require.NoError(t, st.Update(ctx, got, 1))
	require.EqualValues(t, 2, got.Version)

	stale := m.Clone()
	stale.Status = models.MeetingCancelled
	require.ErrorIs(t, st.Update(ctx, stale, 1), store.ErrVersionConflict)

	list, err := st.ListByCircle(ctx, m.CircleID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, models.MeetingInProgress, list[0].Status)

	_, err = st.Get(ctx, models.NewID())
	require.ErrorIs(t, err, store.ErrMeetingNotFound)
}

func TestMeetingStore_Reservations(t *testing.T) {
	t.Run("one open meeting per proposal", func(t *testing.T) {
		st := NewMeetingStore()
		ctx := context.Background()

		a, b := scheduledMeeting(), scheduledMeeting()
		require.NoError(t, st.Create(ctx, a))
		require.NoError(t, st.Create(ctx, b))

		proposalID := models.NewID()
		require.NoError(t, st.ReserveProposal(ctx, proposalID, a.MeetingID))
		require.NoError(t, st.ReserveProposal(ctx, proposalID, a.MeetingID))
		require.ErrorIs(t, st.ReserveProposal(ctx, proposalID, b.MeetingID), store.ErrProposalReserved)

		holder, ok, err := st.ReservationFor(ctx, proposalID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, a.MeetingID, holder)

		// releasing by a non-holder is ignored
		require.NoError(t, st.ReleaseProposal(ctx, proposalID, b.MeetingID))
		_, ok, err = st.ReservationFor(ctx, proposalID)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, st.ReleaseProposal(ctx, proposalID, a.MeetingID))
		require.NoError(t, st.ReserveProposal(ctx, proposalID, b.MeetingID))
	})

	t.Run("closed meeting reservation is stale", func(t *testing.T) {
		st := NewMeetingStore()
		ctx := context.Background()

		a, b := scheduledMeeting(), scheduledMeeting()
		require.NoError(t, st.Create(ctx, a))
		require.NoError(t, st.Create(ctx, b))

		proposalID := models.NewID()
		require.NoError(t, st.ReserveProposal(ctx, proposalID, a.MeetingID))

		a.Status = models.MeetingCompleted
		require.NoError(t, st.Update(ctx, a, 1))

		_, ok, err := st.ReservationFor(ctx, proposalID)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, st.ReserveProposal(ctx, proposalID, b.MeetingID))
	})

	t.Run("concurrent reservations have one winner", func(t *testing.T) {
		st := NewMeetingStore()
		ctx := context.Background()

		proposalID := models.NewID()
		meetings := make([]*models.GovernanceMeeting, 8)
		for i := range meetings {
			meetings[i] = scheduledMeeting()
			require.NoError(t, st.Create(ctx, meetings[i]))
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for _, m := range meetings {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := st.ReserveProposal(ctx, proposalID, m.MeetingID); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})
}
