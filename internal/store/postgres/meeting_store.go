package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// MeetingStore implements store.MeetingStore using PostgreSQL.
type MeetingStore struct {
	pool *pgxpool.Pool
}

var _ store.MeetingStore = (*MeetingStore)(nil)

// NewMeetingStore creates a new PostgreSQL-backed meeting store.
func NewMeetingStore(pool *pgxpool.Pool) *MeetingStore {
	return &MeetingStore{pool: pool}
}

// Create stores a new meeting with Version 1.
func (s *MeetingStore) Create(ctx context.Context, m *models.GovernanceMeeting) error {
	m.Version = 1
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (meeting_id, org_id, circle_id, status, scheduled_at, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.MeetingID, m.OrgID, m.CircleID, string(m.Status), m.ScheduledAt, m.Version, m, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		m.Version = 0
		return mapPostgresError(err)
	}

	log.Debug().
		Str("meeting_id", m.MeetingID.String()).
		Str("circle_id", m.CircleID.String()).
		Msg("Created meeting")

	return nil
}

// Get retrieves a meeting by ID.
func (s *MeetingStore) Get(ctx context.Context, meetingID uuid.UUID) (*models.GovernanceMeeting, error) {
	var (
		m       models.GovernanceMeeting
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT document, version FROM meetings WHERE meeting_id = $1`, meetingID).
		Scan(&m, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMeetingNotFound
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	m.Version = version
	return &m, nil
}

// ListByCircle returns a circle's meetings ordered by scheduled time.
func (s *MeetingStore) ListByCircle(ctx context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document, version FROM meetings
		WHERE circle_id = $1
		ORDER BY scheduled_at, meeting_id
	`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var result []*models.GovernanceMeeting
	for rows.Next() {
		var (
			m       models.GovernanceMeeting
			version int64
		)
		if err := rows.Scan(&m, &version); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		m.Version = version
		result = append(result, &m)
	}
	return result, rows.Err()
}

// Update replaces a meeting if its stored version equals expectedVersion.
func (s *MeetingStore) Update(ctx context.Context, m *models.GovernanceMeeting, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings SET status = $3, scheduled_at = $4, version = version + 1, document = $5, updated_at = $6
		WHERE meeting_id = $1 AND version = $2
	`, m.MeetingID, expectedVersion, string(m.Status), m.ScheduledAt, m, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM meetings WHERE meeting_id = $1)`, m.MeetingID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check meeting: %w", err)
		}
		if !exists {
			return store.ErrMeetingNotFound
		}
		return store.ErrVersionConflict
	}

	m.Version = expectedVersion + 1
	return nil
}

// ReserveProposal takes the reservation unless an open meeting other than
// meetingID holds it.
func (s *MeetingStore) ReserveProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO agenda_reservations (proposal_id, meeting_id, reserved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (proposal_id) DO UPDATE SET
			meeting_id = EXCLUDED.meeting_id,
			reserved_at = EXCLUDED.reserved_at
		WHERE agenda_reservations.meeting_id = EXCLUDED.meeting_id
			OR NOT EXISTS (
				SELECT 1 FROM meetings m
				WHERE m.meeting_id = agenda_reservations.meeting_id
					AND m.status IN ('SCHEDULED', 'IN_PROGRESS')
			)
	`, proposalID, meetingID)
	if err != nil {
		return fmt.Errorf("failed to reserve proposal: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProposalReserved
	}
	return nil
}

// ReleaseProposal drops the reservation if meetingID holds it.
func (s *MeetingStore) ReleaseProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM agenda_reservations WHERE proposal_id = $1 AND meeting_id = $2
	`, proposalID, meetingID)
	if err != nil {
		return fmt.Errorf("failed to release proposal: %w", mapPostgresError(err))
	}
	return nil
}

// ReservationFor returns the open meeting holding a proposal.
func (s *MeetingStore) ReservationFor(ctx context.Context, proposalID uuid.UUID) (uuid.UUID, bool, error) {
	var meetingID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT r.meeting_id FROM agenda_reservations r
		JOIN meetings m ON m.meeting_id = r.meeting_id
		WHERE r.proposal_id = $1 AND m.status IN ('SCHEDULED', 'IN_PROGRESS')
	`, proposalID).Scan(&meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to get reservation: %w", err)
	}
	return meetingID, true, nil
}
