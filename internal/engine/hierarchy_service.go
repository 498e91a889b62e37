package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/notify"
	"github.com/wolfeidau/governor/internal/store"
)

// HierarchyService manages organizations, circles and roles outside the
// proposal process: administrative bootstrap and direct CRUD.
type HierarchyService struct {
	*core
}

// BootstrapRequest creates an organization with its root circle.
type BootstrapRequest struct {
	OrgName          string
	RootName         string
	RootPurpose      string
	Accountabilities []string
	ActorID          string
}

// Bootstrap creates an organization and its root circle.
func (s *HierarchyService) Bootstrap(ctx context.Context, req BootstrapRequest) (*models.Organization, *models.Circle, error) {
	const op = "Bootstrap"

	if strings.TrimSpace(req.OrgName) == "" {
		return nil, nil, fail(op, ErrValidation, "organization name is required")
	}
	attrs := CircleAttrs{Name: req.RootName, Purpose: req.RootPurpose, Accountabilities: req.Accountabilities}
	if attrs.Name == "" {
		attrs.Name = req.OrgName
	}

	now := s.now()
	org := &models.Organization{
		OrgID:     models.NewID(),
		Name:      req.OrgName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stores.Hierarchy.CreateOrganization(ctx, org); err != nil {
		return nil, nil, mapStoreError(op, err)
	}

	var root *models.Circle
	err := s.mutate(ctx, org.OrgID, op, req.ActorID, func(m *mutator) error {
		var err error
		root, err = m.createRoot(attrs)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	org.RootCircleID = root.CircleID

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("root_circle_id", root.CircleID.String()).
		Msg("Organization bootstrapped")

	s.publishHierarchy(ctx, root, "organization bootstrapped")

	return org, root, nil
}

func (s *HierarchyService) publishHierarchy(ctx context.Context, c *models.Circle, summary string) {
	s.publish(ctx, notify.Notification{
		Kind:     notify.KindHierarchy,
		OrgID:    c.OrgID,
		CircleID: c.CircleID,
		Summary:  summary,
	})
}

// orgOfCircle resolves the organization owning a circle.
func (s *HierarchyService) orgOfCircle(ctx context.Context, op string, circleID uuid.UUID, missing *Error) (uuid.UUID, error) {
	c, err := s.stores.Hierarchy.GetCircle(ctx, circleID)
	if errors.Is(err, store.ErrCircleNotFound) {
		return uuid.Nil, fail(op, missing, "%s: %s", missing.Message, circleID)
	}
	if err != nil {
		return uuid.Nil, mapStoreError(op, err)
	}
	return c.OrgID, nil
}

// CreateCircleRequest creates a circle. Without a ParentID the circle is the
// organization's root, which is only allowed while the organization has none.
type CreateCircleRequest struct {
	OrgID            uuid.UUID
	ParentID         *uuid.UUID
	Name             string
	Purpose          string
	Accountabilities []string
	ActorID          string
}

// CreateCircle creates a circle with its special roles.
func (s *HierarchyService) CreateCircle(ctx context.Context, req CreateCircleRequest) (*models.Circle, error) {
	const op = "CreateCircle"

	attrs := CircleAttrs{Name: req.Name, Purpose: req.Purpose, Accountabilities: req.Accountabilities}
	if err := validateCircleAttrs(op, attrs); err != nil {
		return nil, err
	}

	orgID := req.OrgID
	if req.ParentID != nil {
		parentOrg, err := s.orgOfCircle(ctx, op, *req.ParentID, ErrParentNotFound)
		if err != nil {
			return nil, err
		}
		if orgID != uuid.Nil && orgID != parentOrg {
			return nil, fail(op, ErrParentNotFound, "parent %s belongs to another organization", *req.ParentID)
		}
		orgID = parentOrg
	}
	if orgID == uuid.Nil {
		return nil, fail(op, ErrValidation, "organization id or parent id is required")
	}

	var c *models.Circle
	err := s.mutate(ctx, orgID, op, req.ActorID, func(m *mutator) error {
		var err error
		if req.ParentID == nil {
			c, err = m.createRoot(attrs)
		} else {
			c, err = m.createCircle(*req.ParentID, attrs)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("circle_id", c.CircleID.String()).Str("name", c.Name).Msg("Circle created")
	s.publishHierarchy(ctx, c, "circle created")
	return c, nil
}

// UpdateCircle changes a circle's attributes.
func (s *HierarchyService) UpdateCircle(ctx context.Context, circleID uuid.UUID, u CircleUpdate, actorID string) (*models.Circle, error) {
	const op = "UpdateCircle"

	orgID, err := s.orgOfCircle(ctx, op, circleID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}

	var c *models.Circle
	err = s.mutate(ctx, orgID, op, actorID, func(m *mutator) error {
		var err error
		c, err = m.updateCircle(circleID, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishHierarchy(ctx, c, "circle updated")
	return c, nil
}

// MoveCircle re-parents a circle. Moving a circle under itself or one of its
// descendants fails with ErrCycleViolation and leaves the hierarchy unchanged.
func (s *HierarchyService) MoveCircle(ctx context.Context, circleID, newParentID uuid.UUID, actorID string) (*models.Circle, error) {
	const op = "MoveCircle"

	orgID, err := s.orgOfCircle(ctx, op, circleID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}

	var c *models.Circle
	err = s.mutate(ctx, orgID, op, actorID, func(m *mutator) error {
		var err error
		c, err = m.moveCircle(circleID, newParentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("circle_id", circleID.String()).
		Str("parent_id", newParentID.String()).
		Msg("Circle moved")
	s.publishHierarchy(ctx, c, "circle moved")
	return c, nil
}

// DeleteCircle removes an empty circle. Cascading deletes are only performed
// by applying an approved CIRCLE_STRUCTURE_CHANGE proposal.
func (s *HierarchyService) DeleteCircle(ctx context.Context, circleID uuid.UUID, actorID string) error {
	const op = "DeleteCircle"

	orgID, err := s.orgOfCircle(ctx, op, circleID, ErrCircleNotFound)
	if err != nil {
		return err
	}

	err = s.mutate(ctx, orgID, op, actorID, func(m *mutator) error {
		return m.deleteCircle(circleID, false)
	})
	if err != nil {
		return err
	}

	log.Info().Str("circle_id", circleID.String()).Msg("Circle deleted")
	s.publish(ctx, notify.Notification{Kind: notify.KindHierarchy, OrgID: orgID, CircleID: circleID, Summary: "circle deleted"})
	return nil
}

// GetOrganization returns an organization.
func (s *HierarchyService) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.stores.Hierarchy.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, mapStoreError("GetOrganization", err)
	}
	return org, nil
}

// ListOrganizations returns every organization.
func (s *HierarchyService) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	orgs, err := s.stores.Hierarchy.ListOrganizations(ctx)
	if err != nil {
		return nil, mapStoreError("ListOrganizations", err)
	}
	return orgs, nil
}

// GetCircle returns a circle.
func (s *HierarchyService) GetCircle(ctx context.Context, circleID uuid.UUID) (*models.Circle, error) {
	c, err := s.stores.Hierarchy.GetCircle(ctx, circleID)
	if err != nil {
		return nil, mapStoreError("GetCircle", err)
	}
	return c, nil
}

// ListCircles returns an organization's circles.
func (s *HierarchyService) ListCircles(ctx context.Context, orgID uuid.UUID) ([]*models.Circle, error) {
	circles, err := s.stores.Hierarchy.ListCircles(ctx, orgID)
	if err != nil {
		return nil, mapStoreError("ListCircles", err)
	}
	return circles, nil
}

// Ancestors returns the chain from a circle's parent up to the root.
func (s *HierarchyService) Ancestors(ctx context.Context, circleID uuid.UUID) ([]*models.Circle, error) {
	const op = "Ancestors"

	c, err := s.stores.Hierarchy.GetCircle(ctx, circleID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	circles, err := s.stores.Hierarchy.ListCircles(ctx, c.OrgID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	return walkAncestors(op, c, indexCircles(circles))
}

func indexCircles(circles []*models.Circle) map[uuid.UUID]*models.Circle {
	byID := make(map[uuid.UUID]*models.Circle, len(circles))
	for _, c := range circles {
		byID[c.CircleID] = c
	}
	return byID
}

// Tree returns a circle with its roles and sub-circles, recursively.
func (s *HierarchyService) Tree(ctx context.Context, circleID uuid.UUID) (*models.CircleTree, error) {
	const op = "Tree"

	c, err := s.stores.Hierarchy.GetCircle(ctx, circleID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	circles, err := s.stores.Hierarchy.ListCircles(ctx, c.OrgID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	byID := indexCircles(circles)

	var build func(c *models.Circle, depth int) (*models.CircleTree, error)
	build = func(c *models.Circle, depth int) (*models.CircleTree, error) {
		if depth > len(byID) {
			return nil, fail(op, ErrCycleViolation, "circle %s is its own descendant", c.CircleID)
		}
		roles, err := s.stores.Hierarchy.ListRoles(ctx, c.CircleID)
		if err != nil {
			return nil, mapStoreError(op, err)
		}
		node := &models.CircleTree{Circle: c, Roles: roles}
		for _, childID := range c.ChildIDs {
			child, ok := byID[childID]
			if !ok {
				continue
			}
			sub, err := build(child, depth+1)
			if err != nil {
				return nil, err
			}
			node.SubCircles = append(node.SubCircles, sub)
		}
		return node, nil
	}

	return build(byID[c.CircleID], 0)
}

// CreateRoleRequest creates an ordinary role in a circle.
type CreateRoleRequest struct {
	CircleID         uuid.UUID
	Name             string
	Purpose          string
	Accountabilities []string
	Domains          []models.Domain
	ActorID          string
}

// CreateRole creates a role. The role needs a name and at least one accountability.
func (s *HierarchyService) CreateRole(ctx context.Context, req CreateRoleRequest) (*models.Role, error) {
	const op = "CreateRole"

	attrs := RoleAttrs{Name: req.Name, Purpose: req.Purpose, Accountabilities: req.Accountabilities, Domains: req.Domains}
	if _, err := validateRoleAttrs(op, attrs); err != nil {
		return nil, err
	}

	orgID, err := s.orgOfCircle(ctx, op, req.CircleID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}

	var r *models.Role
	err = s.mutate(ctx, orgID, op, req.ActorID, func(m *mutator) error {
		var err error
		r, err = m.createRole(req.CircleID, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("role_id", r.RoleID.String()).Str("circle_id", r.CircleID.String()).Msg("Role created")
	s.publish(ctx, notify.Notification{Kind: notify.KindHierarchy, OrgID: orgID, CircleID: r.CircleID, Summary: "role created"})
	return r, nil
}

func (s *HierarchyService) orgOfRole(ctx context.Context, op string, roleID uuid.UUID) (*models.Role, error) {
	r, err := s.stores.Hierarchy.GetRole(ctx, roleID)
	if errors.Is(err, store.ErrRoleNotFound) {
		return nil, fail(op, ErrRoleNotFound, "role %s not found", roleID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	return r, nil
}

// UpdateRole changes an ordinary role. Special roles are fixed.
func (s *HierarchyService) UpdateRole(ctx context.Context, roleID uuid.UUID, u RoleUpdate, actorID string) (*models.Role, error) {
	const op = "UpdateRole"

	current, err := s.orgOfRole(ctx, op, roleID)
	if err != nil {
		return nil, err
	}

	var r *models.Role
	err = s.mutate(ctx, current.OrgID, op, actorID, func(m *mutator) error {
		var err error
		r, err = m.updateRole(roleID, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Notification{Kind: notify.KindHierarchy, OrgID: r.OrgID, CircleID: r.CircleID, Summary: "role updated"})
	return r, nil
}

// DeleteRole removes an ordinary role and closes its active assignments.
func (s *HierarchyService) DeleteRole(ctx context.Context, roleID uuid.UUID, actorID string) error {
	const op = "DeleteRole"

	r, err := s.orgOfRole(ctx, op, roleID)
	if err != nil {
		return err
	}

	err = s.mutate(ctx, r.OrgID, op, actorID, func(m *mutator) error {
		return m.deleteRole(roleID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("role_id", roleID.String()).Msg("Role deleted")
	s.publish(ctx, notify.Notification{Kind: notify.KindHierarchy, OrgID: r.OrgID, CircleID: r.CircleID, Summary: "role deleted"})
	return nil
}

// GetRole returns a role.
func (s *HierarchyService) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	r, err := s.stores.Hierarchy.GetRole(ctx, roleID)
	if err != nil {
		return nil, mapStoreError("GetRole", err)
	}
	return r, nil
}

// ListRoles returns the roles of a circle.
func (s *HierarchyService) ListRoles(ctx context.Context, circleID uuid.UUID) ([]*models.Role, error) {
	roles, err := s.stores.Hierarchy.ListRoles(ctx, circleID)
	if err != nil {
		return nil, mapStoreError("ListRoles", err)
	}
	return roles, nil
}

// Check verifies the structural invariants of an organization's hierarchy:
// a single root, parent and child links that agree, every circle reaching
// the root, and at most one active assignment per special role type in a
// circle. All violations found are returned together.
func (s *HierarchyService) Check(ctx context.Context, orgID uuid.UUID) error {
	const op = "Check"

	org, err := s.stores.Hierarchy.GetOrganization(ctx, orgID)
	if err != nil {
		return mapStoreError(op, err)
	}
	circles, err := s.stores.Hierarchy.ListCircles(ctx, orgID)
	if err != nil {
		return mapStoreError(op, err)
	}
	byID := indexCircles(circles)

	var problems []error
	var roots []uuid.UUID
	for _, c := range circles {
		if c.IsRoot() {
			roots = append(roots, c.CircleID)
			continue
		}
		if _, err := walkAncestors(op, c, byID); err != nil {
			problems = append(problems, err)
			continue
		}
		if parent := byID[*c.ParentID]; !slices.Contains(parent.ChildIDs, c.CircleID) {
			problems = append(problems, fmt.Errorf("circle %s missing from children of %s", c.CircleID, parent.CircleID))
		}
		for _, childID := range c.ChildIDs {
			child, ok := byID[childID]
			if !ok || child.ParentID == nil || *child.ParentID != c.CircleID {
				problems = append(problems, fmt.Errorf("circle %s lists %s as a child", c.CircleID, childID))
			}
		}

		if err := s.checkSpecialRoles(ctx, c.CircleID); err != nil {
			problems = append(problems, err)
		}
	}

	for _, rootID := range roots {
		if err := s.checkSpecialRoles(ctx, rootID); err != nil {
			problems = append(problems, err)
		}
	}
	switch {
	case len(circles) == 0 && !org.HasRoot():
	case len(roots) != 1:
		problems = append(problems, fmt.Errorf("organization has %d root circles", len(roots)))
	case roots[0] != org.RootCircleID:
		problems = append(problems, fmt.Errorf("root circle %s is not the organization root %s", roots[0], org.RootCircleID))
	}

	if len(problems) > 0 {
		return wrap(op, ErrStructural, errors.Join(problems...))
	}
	return nil
}

func (s *HierarchyService) checkSpecialRoles(ctx context.Context, circleID uuid.UUID) error {
	active, err := s.stores.Hierarchy.ListCircleAssignments(ctx, circleID, true)
	if err != nil {
		return err
	}
	seen := map[models.SpecialRoleType]bool{}
	for _, a := range active {
		if a.SpecialType == models.SpecialRoleNone {
			continue
		}
		if seen[a.SpecialType] {
			return fmt.Errorf("circle %s has more than one active %s", circleID, a.SpecialType)
		}
		seen[a.SpecialType] = true
	}
	return nil
}
