package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ProposalStore implements store.ProposalStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type ProposalStore struct {
	mu sync.RWMutex

	proposals map[uuid.UUID]*models.Proposal // proposal_id -> Proposal
}

// NewProposalStore creates a new in-memory proposal store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		proposals: make(map[uuid.UUID]*models.Proposal),
	}
}

// Create stores a new proposal with Version 1.
func (s *ProposalStore) Create(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.proposals[p.ProposalID]; exists {
		return store.ErrProposalAlreadyExists
	}

	p.Version = 1
	s.proposals[p.ProposalID] = p.Clone()

	return nil
}

// Get retrieves a proposal by ID.
func (s *ProposalStore) Get(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.proposals[proposalID]
	if !exists {
		return nil, store.ErrProposalNotFound
	}

	return p.Clone(), nil
}

// List returns proposals matching the filter ordered by creation time.
func (s *ProposalStore) List(ctx context.Context, filter store.ProposalFilter) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Proposal
	for _, p := range s.proposals {
		if filter.OrgID != uuid.Nil && p.OrgID != filter.OrgID {
			continue
		}
		if filter.CircleID != uuid.Nil && p.CircleID != filter.CircleID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		result = append(result, p.Clone())
	}

	slices.SortFunc(result, func(a, b *models.Proposal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ProposalID, b.ProposalID)
	})

	return result, nil
}

// Update replaces a proposal if its stored version equals expectedVersion.
func (s *ProposalStore) Update(ctx context.Context, p *models.Proposal, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.proposals[p.ProposalID]
	if !exists {
		return store.ErrProposalNotFound
	}
	if existing.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	if !models.IsPrefixOf(existing.History, p.History) {
		return store.ErrHistoryRewrite
	}

	p.Version = expectedVersion + 1
	s.proposals[p.ProposalID] = p.Clone()

	return nil
}
