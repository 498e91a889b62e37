package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrCircleNotFound            = errors.New("circle not found")
	ErrRoleNotFound              = errors.New("role not found")
	ErrAssignmentNotFound        = errors.New("role assignment not found")
	ErrProposalNotFound          = errors.New("proposal not found")
	ErrProposalAlreadyExists     = errors.New("proposal already exists")
	ErrMeetingNotFound           = errors.New("meeting not found")
	ErrMeetingAlreadyExists      = errors.New("meeting already exists")

	// ErrVersionConflict is returned by compare-and-swap updates when the
	// stored version no longer matches the expected version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrHistoryRewrite is returned when an update would modify or drop
	// decision events that were already persisted.
	ErrHistoryRewrite = errors.New("decision history is append-only")

	// ErrProposalReserved is returned when a proposal is already on the
	// agenda of another meeting.
	ErrProposalReserved = errors.New("proposal is reserved by another meeting")

	// ErrSpecialRoleTaken is returned when a write would leave two active
	// assignments for the same special role type in a circle.
	ErrSpecialRoleTaken = errors.New("special role already has an active assignment")
)

// HierarchyReader is the read side of the hierarchy arena.
type HierarchyReader interface {
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)

	GetCircle(ctx context.Context, circleID uuid.UUID) (*models.Circle, error)
	ListCircles(ctx context.Context, orgID uuid.UUID) ([]*models.Circle, error)

	GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error)
	ListRoles(ctx context.Context, circleID uuid.UUID) ([]*models.Role, error)

	GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.RoleAssignment, error)
	// ListAssignments returns assignments for a role, optionally only active ones.
	ListAssignments(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error)
	// ListCircleAssignments returns assignments for every role in a circle.
	ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error)

	// IsMutationApplied reports whether the hierarchy mutation of a proposal was committed.
	IsMutationApplied(ctx context.Context, proposalID uuid.UUID) (bool, error)
}

// HierarchyTx is a read-modify-write view of one organization's hierarchy.
// Writes become visible to readers only when the transaction commits.
type HierarchyTx interface {
	HierarchyReader

	PutOrganization(ctx context.Context, org *models.Organization) error
	PutCircle(ctx context.Context, circle *models.Circle) error
	DeleteCircle(ctx context.Context, circleID uuid.UUID) error
	PutRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, roleID uuid.UUID) error
	PutAssignment(ctx context.Context, assignment *models.RoleAssignment) error

	// RecordMutation adds the proposal to the applied-mutations ledger.
	RecordMutation(ctx context.Context, proposalID uuid.UUID) error
}

// HierarchyStore holds organizations, circles, roles and role assignments.
// Structural writes are serialized per organization; reads never block on them.
type HierarchyStore interface {
	HierarchyReader

	// CreateOrganization stores a new, empty organization.
	// Returns ErrOrganizationAlreadyExists if the id is taken.
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// Update runs fn with exclusive write access to the organization's
	// hierarchy and commits its writes atomically when fn returns nil.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, orgID uuid.UUID, fn func(tx HierarchyTx) error) error
}

// ProposalFilter narrows ListProposals results. Zero values match everything.
type ProposalFilter struct {
	OrgID    uuid.UUID
	CircleID uuid.UUID
	Status   models.ProposalStatus
}

// ProposalStore persists proposals with an append-only decision history.
type ProposalStore interface {
	// Create stores a new proposal with Version 1.
	Create(ctx context.Context, p *models.Proposal) error

	// Get returns a copy of the proposal. Returns ErrProposalNotFound if absent.
	Get(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error)

	List(ctx context.Context, filter ProposalFilter) ([]*models.Proposal, error)

	// Update replaces the proposal if the stored version equals
	// expectedVersion and sets p.Version to expectedVersion+1.
	// Returns ErrVersionConflict on a version mismatch and ErrHistoryRewrite
	// if the stored history is not a prefix of p.History.
	Update(ctx context.Context, p *models.Proposal, expectedVersion int64) error
}

// MeetingStore persists governance meetings and agenda reservations.
type MeetingStore interface {
	Create(ctx context.Context, m *models.GovernanceMeeting) error
	Get(ctx context.Context, meetingID uuid.UUID) (*models.GovernanceMeeting, error)
	ListByCircle(ctx context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error)

	// Update is a compare-and-swap on Version, as ProposalStore.Update.
	Update(ctx context.Context, m *models.GovernanceMeeting, expectedVersion int64) error

	// ReserveProposal atomically records that a proposal is on a meeting's
	// agenda. Reserving again for the same meeting is a no-op.
	// Returns ErrProposalReserved if another meeting holds the proposal.
	ReserveProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error

	// ReleaseProposal drops the reservation if it is held by meetingID.
	ReleaseProposal(ctx context.Context, proposalID, meetingID uuid.UUID) error

	// ReservationFor returns the meeting holding the proposal, if any.
	ReservationFor(ctx context.Context, proposalID uuid.UUID) (uuid.UUID, bool, error)
}
