package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// arena is an immutable snapshot of one organization's hierarchy.
// Entities reachable from a published arena are never modified; writers
// fork the maps and store fresh copies.
type arena struct {
	org         *models.Organization
	circles     map[uuid.UUID]*models.Circle
	roles       map[uuid.UUID]*models.Role
	assignments map[uuid.UUID]*models.RoleAssignment
	applied     map[uuid.UUID]time.Time // proposal_id -> applied_at
}

func newArena(org *models.Organization) *arena {
	return &arena{
		org:         org,
		circles:     make(map[uuid.UUID]*models.Circle),
		roles:       make(map[uuid.UUID]*models.Role),
		assignments: make(map[uuid.UUID]*models.RoleAssignment),
		applied:     make(map[uuid.UUID]time.Time),
	}
}

func (a *arena) fork() *arena {
	return &arena{
		org:         a.org,
		circles:     maps.Clone(a.circles),
		roles:       maps.Clone(a.roles),
		assignments: maps.Clone(a.assignments),
		applied:     maps.Clone(a.applied),
	}
}

type orgState struct {
	writeMu sync.Mutex // single writer per organization
	current atomic.Pointer[arena]
}

// HierarchyStore implements store.HierarchyStore using in-memory storage.
// Each organization's hierarchy is a copy-on-write arena: a writer works on a
// fork and publishes it atomically, so readers never observe a partial update.
type HierarchyStore struct {
	mu sync.RWMutex

	orgs          map[uuid.UUID]*orgState // org_id -> state
	circleOrg     map[uuid.UUID]uuid.UUID // circle_id -> org_id
	roleOrg       map[uuid.UUID]uuid.UUID // role_id -> org_id
	assignmentOrg map[uuid.UUID]uuid.UUID // assignment_id -> org_id
	appliedOrg    map[uuid.UUID]uuid.UUID // proposal_id -> org_id
}

// NewHierarchyStore creates a new in-memory hierarchy store.
func NewHierarchyStore() *HierarchyStore {
	return &HierarchyStore{
		orgs:          make(map[uuid.UUID]*orgState),
		circleOrg:     make(map[uuid.UUID]uuid.UUID),
		roleOrg:       make(map[uuid.UUID]uuid.UUID),
		assignmentOrg: make(map[uuid.UUID]uuid.UUID),
		appliedOrg:    make(map[uuid.UUID]uuid.UUID),
	}
}

// CreateOrganization stores a new organization with an empty hierarchy.
func (s *HierarchyStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	clone := *org
	st := &orgState{}
	st.current.Store(newArena(&clone))
	s.orgs[org.OrgID] = st

	return nil
}

// Update runs fn against a fork of the organization's arena and publishes
// the fork if fn succeeds.
func (s *HierarchyStore) Update(ctx context.Context, orgID uuid.UUID, fn func(tx store.HierarchyTx) error) error {
	s.mu.RLock()
	st, exists := s.orgs[orgID]
	s.mu.RUnlock()
	if !exists {
		return store.ErrOrganizationNotFound
	}

	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &hierarchyTx{
		a:       st.current.Load().fork(),
		put:     make(map[uuid.UUID]indexKind),
		deleted: make(map[uuid.UUID]indexKind),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// New ids are indexed before the arena is published and removed ids
	// after, so any id reachable from a visible arena resolves.
	s.mu.Lock()
	for id, kind := range tx.put {
		s.index(kind)[id] = orgID
	}
	s.mu.Unlock()

	st.current.Store(tx.a)

	s.mu.Lock()
	for id, kind := range tx.deleted {
		delete(s.index(kind), id)
	}
	s.mu.Unlock()

	return nil
}

type indexKind int

const (
	circleIndex indexKind = iota
	roleIndex
	assignmentIndex
	appliedIndex
)

func (s *HierarchyStore) index(kind indexKind) map[uuid.UUID]uuid.UUID {
	switch kind {
	case circleIndex:
		return s.circleOrg
	case roleIndex:
		return s.roleOrg
	case assignmentIndex:
		return s.assignmentOrg
	default:
		return s.appliedOrg
	}
}

// snapshot returns the current arena for an indexed entity.
func (s *HierarchyStore) snapshot(index map[uuid.UUID]uuid.UUID, id uuid.UUID) (*arena, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := index[id]
	if !exists {
		return nil, false
	}
	st, exists := s.orgs[orgID]
	if !exists {
		return nil, false
	}
	return st.current.Load(), true
}

func (s *HierarchyStore) orgSnapshot(orgID uuid.UUID) (*arena, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.orgs[orgID]
	if !exists {
		return nil, false
	}
	return st.current.Load(), true
}

// GetOrganization retrieves an organization by ID.
func (s *HierarchyStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	a, ok := s.orgSnapshot(orgID)
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	return a.getOrganization()
}

// ListOrganizations returns every organization ordered by creation time.
func (s *HierarchyStore) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Organization, 0, len(s.orgs))
	for _, st := range s.orgs {
		clone := *st.current.Load().org
		result = append(result, &clone)
	}
	slices.SortFunc(result, func(a, b *models.Organization) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// GetCircle retrieves a circle by ID.
func (s *HierarchyStore) GetCircle(ctx context.Context, circleID uuid.UUID) (*models.Circle, error) {
	a, ok := s.snapshot(s.circleOrg, circleID)
	if !ok {
		return nil, store.ErrCircleNotFound
	}
	return a.getCircle(circleID)
}

// ListCircles returns all circles of an organization.
func (s *HierarchyStore) ListCircles(ctx context.Context, orgID uuid.UUID) ([]*models.Circle, error) {
	a, ok := s.orgSnapshot(orgID)
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	return a.listCircles(), nil
}

// GetRole retrieves a role by ID.
func (s *HierarchyStore) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	a, ok := s.snapshot(s.roleOrg, roleID)
	if !ok {
		return nil, store.ErrRoleNotFound
	}
	return a.getRole(roleID)
}

// ListRoles returns the roles of a circle.
func (s *HierarchyStore) ListRoles(ctx context.Context, circleID uuid.UUID) ([]*models.Role, error) {
	a, ok := s.snapshot(s.circleOrg, circleID)
	if !ok {
		return nil, store.ErrCircleNotFound
	}
	return a.listRoles(circleID)
}

// GetAssignment retrieves a role assignment by ID.
func (s *HierarchyStore) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.RoleAssignment, error) {
	a, ok := s.snapshot(s.assignmentOrg, assignmentID)
	if !ok {
		return nil, store.ErrAssignmentNotFound
	}
	return a.getAssignment(assignmentID)
}

// ListAssignments returns assignments for a role.
func (s *HierarchyStore) ListAssignments(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	a, ok := s.snapshot(s.roleOrg, roleID)
	if !ok {
		return nil, store.ErrRoleNotFound
	}
	return a.listAssignments(func(as *models.RoleAssignment) bool { return as.RoleID == roleID }, activeOnly), nil
}

// ListCircleAssignments returns assignments for every role in a circle.
func (s *HierarchyStore) ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	a, ok := s.snapshot(s.circleOrg, circleID)
	if !ok {
		return nil, store.ErrCircleNotFound
	}
	return a.listAssignments(func(as *models.RoleAssignment) bool { return as.CircleID == circleID }, activeOnly), nil
}

// IsMutationApplied reports whether a proposal's mutation was committed.
func (s *HierarchyStore) IsMutationApplied(ctx context.Context, proposalID uuid.UUID) (bool, error) {
	a, ok := s.snapshot(s.appliedOrg, proposalID)
	if !ok {
		return false, nil
	}
	_, applied := a.applied[proposalID]
	return applied, nil
}

// arena reads, shared by the store and transactions

func (a *arena) getOrganization() (*models.Organization, error) {
	clone := *a.org
	return &clone, nil
}

func (a *arena) getCircle(id uuid.UUID) (*models.Circle, error) {
	c, exists := a.circles[id]
	if !exists {
		return nil, store.ErrCircleNotFound
	}
	return c.Clone(), nil
}

func (a *arena) listCircles() []*models.Circle {
	result := make([]*models.Circle, 0, len(a.circles))
	for _, c := range a.circles {
		result = append(result, c.Clone())
	}
	slices.SortFunc(result, func(x, y *models.Circle) int {
		return cmp.Or(x.CreatedAt.Compare(y.CreatedAt), compareIDs(x.CircleID, y.CircleID))
	})
	return result
}

func (a *arena) getRole(id uuid.UUID) (*models.Role, error) {
	r, exists := a.roles[id]
	if !exists {
		return nil, store.ErrRoleNotFound
	}
	return r.Clone(), nil
}

func (a *arena) listRoles(circleID uuid.UUID) ([]*models.Role, error) {
	if _, exists := a.circles[circleID]; !exists {
		return nil, store.ErrCircleNotFound
	}
	var result []*models.Role
	for _, r := range a.roles {
		if r.CircleID == circleID {
			result = append(result, r.Clone())
		}
	}
	slices.SortFunc(result, func(x, y *models.Role) int {
		return cmp.Or(x.CreatedAt.Compare(y.CreatedAt), compareIDs(x.RoleID, y.RoleID))
	})
	return result, nil
}

func (a *arena) getAssignment(id uuid.UUID) (*models.RoleAssignment, error) {
	as, exists := a.assignments[id]
	if !exists {
		return nil, store.ErrAssignmentNotFound
	}
	return as.Clone(), nil
}

func (a *arena) listAssignments(match func(*models.RoleAssignment) bool, activeOnly bool) []*models.RoleAssignment {
	var result []*models.RoleAssignment
	for _, as := range a.assignments {
		if !match(as) || (activeOnly && !as.IsActive()) {
			continue
		}
		result = append(result, as.Clone())
	}
	slices.SortFunc(result, func(x, y *models.RoleAssignment) int {
		return cmp.Or(x.AssignedAt.Compare(y.AssignedAt), compareIDs(x.AssignmentID, y.AssignmentID))
	})
	return result
}

func compareIDs(a, b uuid.UUID) int {
	return cmp.Compare(a.String(), b.String())
}

// hierarchyTx is the working copy handed to HierarchyStore.Update callbacks.
type hierarchyTx struct {
	a       *arena
	put     map[uuid.UUID]indexKind
	deleted map[uuid.UUID]indexKind
}

var _ store.HierarchyTx = (*hierarchyTx)(nil)

func (tx *hierarchyTx) touch(id uuid.UUID, kind indexKind) {
	delete(tx.deleted, id)
	tx.put[id] = kind
}

func (tx *hierarchyTx) drop(id uuid.UUID, kind indexKind) {
	delete(tx.put, id)
	tx.deleted[id] = kind
}

func (tx *hierarchyTx) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	if tx.a.org.OrgID != orgID {
		return nil, store.ErrOrganizationNotFound
	}
	return tx.a.getOrganization()
}

func (tx *hierarchyTx) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	org, _ := tx.a.getOrganization()
	return []*models.Organization{org}, nil
}

func (tx *hierarchyTx) GetCircle(ctx context.Context, circleID uuid.UUID) (*models.Circle, error) {
	return tx.a.getCircle(circleID)
}

func (tx *hierarchyTx) ListCircles(ctx context.Context, orgID uuid.UUID) ([]*models.Circle, error) {
	if tx.a.org.OrgID != orgID {
		return nil, store.ErrOrganizationNotFound
	}
	return tx.a.listCircles(), nil
}

func (tx *hierarchyTx) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	return tx.a.getRole(roleID)
}

func (tx *hierarchyTx) ListRoles(ctx context.Context, circleID uuid.UUID) ([]*models.Role, error) {
	return tx.a.listRoles(circleID)
}

func (tx *hierarchyTx) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.RoleAssignment, error) {
	return tx.a.getAssignment(assignmentID)
}

func (tx *hierarchyTx) ListAssignments(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	if _, exists := tx.a.roles[roleID]; !exists {
		return nil, store.ErrRoleNotFound
	}
	return tx.a.listAssignments(func(as *models.RoleAssignment) bool { return as.RoleID == roleID }, activeOnly), nil
}

func (tx *hierarchyTx) ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	if _, exists := tx.a.circles[circleID]; !exists {
		return nil, store.ErrCircleNotFound
	}
	return tx.a.listAssignments(func(as *models.RoleAssignment) bool { return as.CircleID == circleID }, activeOnly), nil
}

func (tx *hierarchyTx) IsMutationApplied(ctx context.Context, proposalID uuid.UUID) (bool, error) {
	_, applied := tx.a.applied[proposalID]
	return applied, nil
}

func (tx *hierarchyTx) PutOrganization(ctx context.Context, org *models.Organization) error {
	if tx.a.org.OrgID != org.OrgID {
		return store.ErrOrganizationNotFound
	}
	clone := *org
	tx.a.org = &clone
	return nil
}

func (tx *hierarchyTx) PutCircle(ctx context.Context, circle *models.Circle) error {
	tx.a.circles[circle.CircleID] = circle.Clone()
	tx.touch(circle.CircleID, circleIndex)
	return nil
}

func (tx *hierarchyTx) DeleteCircle(ctx context.Context, circleID uuid.UUID) error {
	if _, exists := tx.a.circles[circleID]; !exists {
		return store.ErrCircleNotFound
	}
	delete(tx.a.circles, circleID)
	tx.drop(circleID, circleIndex)
	return nil
}

func (tx *hierarchyTx) PutRole(ctx context.Context, role *models.Role) error {
	tx.a.roles[role.RoleID] = role.Clone()
	tx.touch(role.RoleID, roleIndex)
	return nil
}

func (tx *hierarchyTx) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	if _, exists := tx.a.roles[roleID]; !exists {
		return store.ErrRoleNotFound
	}
	delete(tx.a.roles, roleID)
	tx.drop(roleID, roleIndex)
	return nil
}

// PutAssignment stores an assignment. Active special-role assignments are
// unique per (circle, special role type), as the postgres partial index.
func (tx *hierarchyTx) PutAssignment(ctx context.Context, assignment *models.RoleAssignment) error {
	if assignment.IsActive() && assignment.SpecialType != models.SpecialRoleNone {
		for id, other := range tx.a.assignments {
			if id != assignment.AssignmentID && other.IsActive() &&
				other.CircleID == assignment.CircleID && other.SpecialType == assignment.SpecialType {
				return store.ErrSpecialRoleTaken
			}
		}
	}
	tx.a.assignments[assignment.AssignmentID] = assignment.Clone()
	tx.touch(assignment.AssignmentID, assignmentIndex)
	return nil
}

func (tx *hierarchyTx) RecordMutation(ctx context.Context, proposalID uuid.UUID) error {
	tx.a.applied[proposalID] = time.Now()
	tx.touch(proposalID, appliedIndex)
	return nil
}
