package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ProposalStore implements store.ProposalStore using PostgreSQL. The proposal
// body is a JSONB document; decision events are rows in decision_events,
// which triggers make append-only.
type ProposalStore struct {
	pool *pgxpool.Pool
}

var _ store.ProposalStore = (*ProposalStore)(nil)

// NewProposalStore creates a new PostgreSQL-backed proposal store.
// It shares the connection pool with other stores.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// document returns the proposal without its history, which is stored as rows.
func document(p *models.Proposal) *models.Proposal {
	doc := p.Clone()
	doc.History = nil
	return doc
}

// Create stores a new proposal with Version 1.
func (s *ProposalStore) Create(ctx context.Context, p *models.Proposal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	p.Version = 1
	_, err = tx.Exec(ctx, `
		INSERT INTO proposals (proposal_id, org_id, circle_id, status, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ProposalID, p.OrgID, p.CircleID, string(p.Status), p.Version, document(p), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		p.Version = 0
		return mapPostgresError(err)
	}

	if err := insertEvents(ctx, tx, p.History); err != nil {
		p.Version = 0
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		p.Version = 0
		return fmt.Errorf("failed to commit proposal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("proposal_id", p.ProposalID.String()).
		Str("circle_id", p.CircleID.String()).
		Msg("Created proposal")

	return nil
}

// Get retrieves a proposal and its full decision history.
func (s *ProposalStore) Get(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	var (
		doc     models.Proposal
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT document, version FROM proposals WHERE proposal_id = $1`, proposalID).
		Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	history, err := loadEvents(ctx, s.pool, proposalID)
	if err != nil {
		return nil, err
	}

	doc.Version = version
	doc.History = history
	return &doc, nil
}

// List returns proposals matching the filter ordered by creation time.
func (s *ProposalStore) List(ctx context.Context, filter store.ProposalFilter) ([]*models.Proposal, error) {
	var (
		where []string
		args  []any
	)
	if filter.OrgID != uuid.Nil {
		args = append(args, filter.OrgID)
		where = append(where, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if filter.CircleID != uuid.Nil {
		args = append(args, filter.CircleID)
		where = append(where, fmt.Sprintf("circle_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT proposal_id FROM proposals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, proposal_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan proposal ids: %w", err)
	}

	result := make([]*models.Proposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// Update replaces the proposal document if the stored version equals
// expectedVersion, then appends any new decision events.
func (s *ProposalStore) Update(ctx context.Context, p *models.Proposal, expectedVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	tag, err := tx.Exec(ctx, `
		UPDATE proposals SET status = $3, version = version + 1, document = $4, updated_at = $5
		WHERE proposal_id = $1 AND version = $2
	`, p.ProposalID, expectedVersion, string(p.Status), document(p), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM proposals WHERE proposal_id = $1)`, p.ProposalID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check proposal: %w", err)
		}
		if !exists {
			return store.ErrProposalNotFound
		}
		return store.ErrVersionConflict
	}

	stored, err := loadEvents(ctx, tx, p.ProposalID)
	if err != nil {
		return err
	}
	if !models.IsPrefixOf(stored, p.History) {
		return store.ErrHistoryRewrite
	}
	if err := insertEvents(ctx, tx, p.History[len(stored):]); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit proposal: %w", mapPostgresError(err))
	}

	p.Version = expectedVersion + 1
	return nil
}

func loadEvents(ctx context.Context, q querier, proposalID uuid.UUID) ([]models.DecisionEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT event_id, proposal_id, sequence, event_type, actor_id, content,
			from_status, to_status, request_id, occurred_at
		FROM decision_events
		WHERE proposal_id = $1
		ORDER BY sequence
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load decision events: %w", err)
	}
	defer rows.Close()

	var events []models.DecisionEvent
	for rows.Next() {
		var (
			ev           models.DecisionEvent
			evType       string
			fromSt, toSt string
		)
		if err := rows.Scan(&ev.EventID, &ev.ProposalID, &ev.Sequence, &evType, &ev.ActorID, &ev.Content,
			&fromSt, &toSt, &ev.RequestID, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision event: %w", err)
		}
		ev.Type = models.DecisionEventType(evType)
		ev.FromStatus = models.ProposalStatus(fromSt)
		ev.ToStatus = models.ProposalStatus(toSt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []models.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO decision_events (
				proposal_id, sequence, event_id, event_type, actor_id, content,
				from_status, to_status, request_id, occurred_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, ev.ProposalID, ev.Sequence, ev.EventID, string(ev.Type), ev.ActorID, ev.Content,
			string(ev.FromStatus), string(ev.ToStatus), ev.RequestID, ev.Timestamp)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append decision events: %w", mapPostgresError(err))
	}
	return nil
}
