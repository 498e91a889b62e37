package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HierarchyStore implements store.HierarchyStore using PostgreSQL.
// Writers serialize on the organization row with SELECT ... FOR UPDATE.
type HierarchyStore struct {
	hierarchyReader
	pool *pgxpool.Pool
}

var _ store.HierarchyStore = (*HierarchyStore)(nil)

// NewHierarchyStore creates a new PostgreSQL-backed hierarchy store.
func NewHierarchyStore(pool *pgxpool.Pool) *HierarchyStore {
	return &HierarchyStore{
		hierarchyReader: hierarchyReader{q: pool},
		pool:            pool,
	}
}

// CreateOrganization inserts a new organization.
func (s *HierarchyStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (org_id, name, root_circle_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.OrgID, org.Name, nullableID(org.RootCircleID), org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Update runs fn inside a transaction holding the organization's row lock.
func (s *HierarchyStore) Update(ctx context.Context, orgID uuid.UUID, fn func(tx store.HierarchyTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT org_id FROM organizations WHERE org_id = $1 FOR UPDATE`, orgID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to lock organization: %w", mapPostgresError(err))
	}

	if err := fn(&hierarchyTx{hierarchyReader: hierarchyReader{q: tx}, orgID: orgID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit hierarchy update: %w", mapPostgresError(err))
	}

	return nil
}

// hierarchyReader holds the queries shared by the store and its transactions.
type hierarchyReader struct {
	q querier
}

const organizationColumns = `org_id, name, COALESCE(root_circle_id::text, ''), created_at, updated_at`

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org  models.Organization
		root string
	)
	if err := row.Scan(&org.OrgID, &org.Name, &root, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	if root != "" {
		id, err := uuid.Parse(root)
		if err != nil {
			return nil, fmt.Errorf("invalid root circle id: %w", err)
		}
		org.RootCircleID = id
	}
	return &org, nil
}

func (r hierarchyReader) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := scanOrganization(r.q.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE org_id = $1`, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (r hierarchyReader) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	rows, err := r.q.Query(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY created_at, org_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

const circleColumns = `circle_id, org_id, parent_id::text, name, purpose,
	COALESCE(accountabilities, '[]'::jsonb), child_ids::text[], role_ids::text[],
	COALESCE(policies, '[]'::jsonb), created_at, updated_at`

func scanCircle(row pgx.Row) (*models.Circle, error) {
	var (
		c                 models.Circle
		parent            *string
		childIDs, roleIDs []string
	)
	err := row.Scan(&c.CircleID, &c.OrgID, &parent, &c.Name, &c.Purpose,
		&c.Accountabilities, &childIDs, &roleIDs, &c.Policies, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		id, err := uuid.Parse(*parent)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id: %w", err)
		}
		c.ParentID = &id
	}
	if c.ChildIDs, err = parseIDs(childIDs); err != nil {
		return nil, err
	}
	if c.RoleIDs, err = parseIDs(roleIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r hierarchyReader) GetCircle(ctx context.Context, circleID uuid.UUID) (*models.Circle, error) {
	c, err := scanCircle(r.q.QueryRow(ctx, `SELECT `+circleColumns+` FROM circles WHERE circle_id = $1`, circleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCircleNotFound
		}
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return c, nil
}

func (r hierarchyReader) ListCircles(ctx context.Context, orgID uuid.UUID) ([]*models.Circle, error) {
	if _, err := r.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx,
		`SELECT `+circleColumns+` FROM circles WHERE org_id = $1 ORDER BY created_at, circle_id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	var result []*models.Circle
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const roleColumns = `role_id, circle_id, org_id, name, purpose,
	COALESCE(accountabilities, '[]'::jsonb), COALESCE(domains, '[]'::jsonb),
	special_type, created_at, updated_at`

func scanRole(row pgx.Row) (*models.Role, error) {
	var (
		role    models.Role
		special string
	)
	err := row.Scan(&role.RoleID, &role.CircleID, &role.OrgID, &role.Name, &role.Purpose,
		&role.Accountabilities, &role.Domains, &special, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	role.SpecialType = models.SpecialRoleType(special)
	return &role, nil
}

func (r hierarchyReader) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	role, err := scanRole(r.q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1`, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (r hierarchyReader) ListRoles(ctx context.Context, circleID uuid.UUID) ([]*models.Role, error) {
	if err := r.circleExists(ctx, circleID); err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE circle_id = $1 ORDER BY created_at, role_id`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var result []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

const assignmentColumns = `assignment_id, role_id, circle_id, special_type, partner_id,
	assigned_by, assigned_at, ended_at, ended_by, end_reason`

func scanAssignment(row pgx.Row) (*models.RoleAssignment, error) {
	var (
		a       models.RoleAssignment
		special string
	)
	err := row.Scan(&a.AssignmentID, &a.RoleID, &a.CircleID, &special, &a.PartnerID,
		&a.AssignedBy, &a.AssignedAt, &a.EndedAt, &a.EndedBy, &a.EndReason)
	if err != nil {
		return nil, err
	}
	a.SpecialType = models.SpecialRoleType(special)
	return &a, nil
}

func (r hierarchyReader) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.RoleAssignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE assignment_id = $1`, assignmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}
	return a, nil
}

func (r hierarchyReader) ListAssignments(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE role_id = $1)`, roleID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !exists {
		return nil, store.ErrRoleNotFound
	}
	return r.listAssignments(ctx, "role_id", roleID, activeOnly)
}

func (r hierarchyReader) ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	if err := r.circleExists(ctx, circleID); err != nil {
		return nil, err
	}
	return r.listAssignments(ctx, "circle_id", circleID, activeOnly)
}

// listAssignments filters on column, which is always a constant from this file.
func (r hierarchyReader) listAssignments(ctx context.Context, column string, id uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM role_assignments WHERE ` + column + ` = $1`
	if activeOnly {
		query += ` AND ended_at IS NULL`
	}
	query += ` ORDER BY assigned_at, assignment_id`

	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r hierarchyReader) IsMutationApplied(ctx context.Context, proposalID uuid.UUID) (bool, error) {
	var applied bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM applied_mutations WHERE proposal_id = $1)`, proposalID).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("failed to check applied mutation: %w", err)
	}
	return applied, nil
}

func (r hierarchyReader) circleExists(ctx context.Context, circleID uuid.UUID) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM circles WHERE circle_id = $1)`, circleID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check circle: %w", err)
	}
	if !exists {
		return store.ErrCircleNotFound
	}
	return nil
}

// hierarchyTx implements store.HierarchyTx on an open transaction.
type hierarchyTx struct {
	hierarchyReader
	orgID uuid.UUID
}

var _ store.HierarchyTx = (*hierarchyTx)(nil)

func (tx *hierarchyTx) PutOrganization(ctx context.Context, org *models.Organization) error {
	if org.OrgID != tx.orgID {
		return store.ErrOrganizationNotFound
	}
	_, err := tx.q.Exec(ctx, `
		UPDATE organizations SET name = $2, root_circle_id = $3, updated_at = $4
		WHERE org_id = $1
	`, org.OrgID, org.Name, nullableID(org.RootCircleID), org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}
	return nil
}

func (tx *hierarchyTx) PutCircle(ctx context.Context, c *models.Circle) error {
	var parent *string
	if c.ParentID != nil {
		s := c.ParentID.String()
		parent = &s
	}
	_, err := tx.q.Exec(ctx, `
		INSERT INTO circles (
			circle_id, org_id, parent_id, name, purpose, accountabilities,
			child_ids, role_ids, policies, created_at, updated_at
		) VALUES ($1, $2, $3::uuid, $4, $5, $6, $7::text[]::uuid[], $8::text[]::uuid[], $9, $10, $11)
		ON CONFLICT (circle_id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			name = EXCLUDED.name,
			purpose = EXCLUDED.purpose,
			accountabilities = EXCLUDED.accountabilities,
			child_ids = EXCLUDED.child_ids,
			role_ids = EXCLUDED.role_ids,
			policies = EXCLUDED.policies,
			updated_at = EXCLUDED.updated_at
	`, c.CircleID, tx.orgID, parent, c.Name, c.Purpose, nonNil(c.Accountabilities),
		idStrings(c.ChildIDs), idStrings(c.RoleIDs), nonNil(c.Policies), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put circle: %w", mapPostgresError(err))
	}
	return nil
}

func (tx *hierarchyTx) DeleteCircle(ctx context.Context, circleID uuid.UUID) error {
	tag, err := tx.q.Exec(ctx, `DELETE FROM circles WHERE circle_id = $1 AND org_id = $2`, circleID, tx.orgID)
	if err != nil {
		return fmt.Errorf("failed to delete circle: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCircleNotFound
	}
	return nil
}

func (tx *hierarchyTx) PutRole(ctx context.Context, role *models.Role) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO roles (
			role_id, circle_id, org_id, name, purpose, accountabilities, domains,
			special_type, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (role_id) DO UPDATE SET
			circle_id = EXCLUDED.circle_id,
			name = EXCLUDED.name,
			purpose = EXCLUDED.purpose,
			accountabilities = EXCLUDED.accountabilities,
			domains = EXCLUDED.domains,
			special_type = EXCLUDED.special_type,
			updated_at = EXCLUDED.updated_at
	`, role.RoleID, role.CircleID, tx.orgID, role.Name, role.Purpose, nonNil(role.Accountabilities),
		nonNil(role.Domains), string(role.SpecialType), role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put role: %w", mapPostgresError(err))
	}
	return nil
}

func (tx *hierarchyTx) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	tag, err := tx.q.Exec(ctx, `DELETE FROM roles WHERE role_id = $1 AND org_id = $2`, roleID, tx.orgID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRoleNotFound
	}
	return nil
}

func (tx *hierarchyTx) PutAssignment(ctx context.Context, a *models.RoleAssignment) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO role_assignments (
			assignment_id, role_id, circle_id, org_id, special_type, partner_id,
			assigned_by, assigned_at, ended_at, ended_by, end_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (assignment_id) DO UPDATE SET
			role_id = EXCLUDED.role_id,
			circle_id = EXCLUDED.circle_id,
			special_type = EXCLUDED.special_type,
			ended_at = EXCLUDED.ended_at,
			ended_by = EXCLUDED.ended_by,
			end_reason = EXCLUDED.end_reason
	`, a.AssignmentID, a.RoleID, a.CircleID, tx.orgID, string(a.SpecialType), a.PartnerID,
		a.AssignedBy, a.AssignedAt, a.EndedAt, a.EndedBy, a.EndReason)
	if err != nil {
		return fmt.Errorf("failed to put role assignment: %w", mapPostgresError(err))
	}
	return nil
}

func (tx *hierarchyTx) RecordMutation(ctx context.Context, proposalID uuid.UUID) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO applied_mutations (proposal_id, org_id, applied_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id) DO NOTHING
	`, proposalID, tx.orgID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record applied mutation: %w", mapPostgresError(err))
	}
	return nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", v, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// nonNil keeps JSONB columns from being written as SQL NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
