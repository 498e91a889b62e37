package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// MeetingStore implements store.MeetingStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type MeetingStore struct {
	mu sync.RWMutex

	meetings     map[uuid.UUID]*models.GovernanceMeeting // meeting_id -> GovernanceMeeting
	reservations map[uuid.UUID]uuid.UUID                 // proposal_id -> meeting_id
}

// NewMeetingStore creates a new in-memory meeting store.
func NewMeetingStore() *MeetingStore {
	return &MeetingStore{
		meetings:     make(map[uuid.UUID]*models.GovernanceMeeting),
		reservations: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create stores a new meeting with Version 1.
func (s *MeetingStore) Create(ctx context.Context, m *models.GovernanceMeeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meetings[m.MeetingID]; exists {
		return store.ErrMeetingAlreadyExists
	}

	m.Version = 1
	s.meetings[m.MeetingID] = m.Clone()

	return nil
}

// Get retrieves a meeting by ID.
func (s *MeetingStore) Get(ctx context.Context, meetingID uuid.UUID) (*models.GovernanceMeeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.meetings[meetingID]
	if !exists {
		return nil, store.ErrMeetingNotFound
	}

	return m.Clone(), nil
}

// ListByCircle returns a circle's meetings ordered by scheduled time.
func (s *MeetingStore) ListByCircle(ctx context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.GovernanceMeeting
	for _, m := range s.meetings {
		if m.CircleID == circleID {
			result = append(result, m.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *models.GovernanceMeeting) int {
		if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
			return c
		}
		return compareIDs(a.MeetingID, b.MeetingID)
	})

	return result, nil
}

// Update replaces a meeting if its stored version equals expectedVersion.
func (s *MeetingStore) Update(ctx context.Context, m *models.GovernanceMeeting, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.meetings[m.MeetingID]
	if !exists {
		return store.ErrMeetingNotFound
	}
	if existing.Version != expectedVersion {
		return store.ErrVersionConflict
	}

	m.Version = expectedVersion + 1
	s.meetings[m.MeetingID] = m.Clone()

	return nil
}

// ReserveProposal records that a proposal is on a meeting's agenda.
func (s *MeetingStore) ReserveProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holder, exists := s.reservations[proposalID]
	if exists && holder != meetingID {
		// Reservations held by meetings that have since closed are stale.
		if m, ok := s.meetings[holder]; ok && m.Status.IsOpen() {
			return store.ErrProposalReserved
		}
	}

	s.reservations[proposalID] = meetingID

	return nil
}

// ReleaseProposal drops the reservation if meetingID holds it.
func (s *MeetingStore) ReleaseProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, exists := s.reservations[proposalID]; exists && holder == meetingID {
		delete(s.reservations, proposalID)
	}

	return nil
}

// ReservationFor returns the meeting currently holding a proposal.
func (s *MeetingStore) ReservationFor(ctx context.Context, proposalID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holder, exists := s.reservations[proposalID]
	if !exists {
		return uuid.Nil, false, nil
	}
	if m, ok := s.meetings[holder]; !ok || !m.Status.IsOpen() {
		return uuid.Nil, false, nil
	}

	return holder, true, nil
}
