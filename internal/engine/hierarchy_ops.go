package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// CircleAttrs are the editable attributes of a circle.
type CircleAttrs struct {
	Name             string
	Purpose          string
	Accountabilities []string
}

// RoleAttrs are the editable attributes of a role.
type RoleAttrs struct {
	Name             string
	Purpose          string
	Accountabilities []string
	Domains          []models.Domain
}

// mutator applies structural changes inside one hierarchy transaction. Every
// method leaves the transaction consistent or returns an error, in which
// case the whole transaction is discarded.
type mutator struct {
	ctx   context.Context
	tx    store.HierarchyTx
	orgID uuid.UUID
	op    string
	actor string
	now   time.Time
}

func (m *mutator) organization() (*models.Organization, error) {
	org, err := m.tx.GetOrganization(m.ctx, m.orgID)
	if err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return org, nil
}

// circle reads a circle that must belong to the transaction's organization.
func (m *mutator) circle(id uuid.UUID, missing *Error) (*models.Circle, error) {
	c, err := m.tx.GetCircle(m.ctx, id)
	if errors.Is(err, store.ErrCircleNotFound) || (err == nil && c.OrgID != m.orgID) {
		return nil, fail(m.op, missing, "%s: %s", missing.Message, id)
	}
	if err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return c, nil
}

func (m *mutator) role(id uuid.UUID) (*models.Role, error) {
	r, err := m.tx.GetRole(m.ctx, id)
	if errors.Is(err, store.ErrRoleNotFound) || (err == nil && r.OrgID != m.orgID) {
		return nil, fail(m.op, ErrRoleNotFound, "role %s not found", id)
	}
	if err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return r, nil
}

func (m *mutator) put(c *models.Circle) error {
	c.UpdatedAt = m.now
	return mapStoreError(m.op, m.tx.PutCircle(m.ctx, c))
}

func validateCircleAttrs(op string, attrs CircleAttrs) error {
	if strings.TrimSpace(attrs.Name) == "" {
		return fail(op, ErrValidation, "circle name is required")
	}
	return nil
}

// newCircle builds a circle with its four special roles and stores both.
func (m *mutator) newCircle(parentID *uuid.UUID, attrs CircleAttrs) (*models.Circle, error) {
	if err := validateCircleAttrs(m.op, attrs); err != nil {
		return nil, err
	}

	c := &models.Circle{
		CircleID:         models.NewID(),
		OrgID:            m.orgID,
		ParentID:         parentID,
		Name:             attrs.Name,
		Purpose:          attrs.Purpose,
		Accountabilities: slices.Clone(attrs.Accountabilities),
		CreatedAt:        m.now,
	}

	for _, t := range models.SpecialRoleTypes {
		r := &models.Role{
			RoleID:      models.NewID(),
			CircleID:    c.CircleID,
			OrgID:       m.orgID,
			Name:        t.DisplayName(),
			SpecialType: t,
			CreatedAt:   m.now,
			UpdatedAt:   m.now,
		}
		c.AddRole(r.RoleID)
		if err := m.tx.PutRole(m.ctx, r); err != nil {
			return nil, mapStoreError(m.op, err)
		}
	}

	if err := m.put(c); err != nil {
		return nil, err
	}
	return c, nil
}

// createRoot creates the organization's single root circle.
func (m *mutator) createRoot(attrs CircleAttrs) (*models.Circle, error) {
	org, err := m.organization()
	if err != nil {
		return nil, err
	}
	if org.HasRoot() {
		return nil, fail(m.op, ErrStructural, "organization %s already has a root circle", org.OrgID)
	}

	root, err := m.newCircle(nil, attrs)
	if err != nil {
		return nil, err
	}

	org.RootCircleID = root.CircleID
	org.UpdatedAt = m.now
	if err := m.tx.PutOrganization(m.ctx, org); err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return root, nil
}

func (m *mutator) createCircle(parentID uuid.UUID, attrs CircleAttrs) (*models.Circle, error) {
	parent, err := m.circle(parentID, ErrParentNotFound)
	if err != nil {
		return nil, err
	}

	c, err := m.newCircle(&parent.CircleID, attrs)
	if err != nil {
		return nil, err
	}

	parent.AddChild(c.CircleID)
	if err := m.put(parent); err != nil {
		return nil, err
	}
	return c, nil
}

// CircleUpdate changes circle attributes. Empty fields are left unchanged.
type CircleUpdate struct {
	Name             string
	Purpose          string
	Accountabilities []string
}

func (m *mutator) updateCircle(id uuid.UUID, u CircleUpdate) (*models.Circle, error) {
	c, err := m.circle(id, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}
	if u.Name != "" {
		c.Name = u.Name
	}
	if u.Purpose != "" {
		c.Purpose = u.Purpose
	}
	if u.Accountabilities != nil {
		c.Accountabilities = slices.Clone(u.Accountabilities)
	}
	if err := m.put(c); err != nil {
		return nil, err
	}
	return c, nil
}

// moveCircle re-parents a circle. The new parent's ancestor chain is walked
// up to the root; finding the moved circle on it would close a cycle.
func (m *mutator) moveCircle(id, newParentID uuid.UUID) (*models.Circle, error) {
	c, err := m.circle(id, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}
	if newParentID == id {
		return nil, fail(m.op, ErrCycleViolation, "circle %s cannot be its own parent", id)
	}

	newParent, err := m.circle(newParentID, ErrParentNotFound)
	if err != nil {
		return nil, err
	}

	ancestors, err := m.ancestors(newParent)
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		if a.CircleID == id {
			return nil, fail(m.op, ErrCycleViolation, "circle %s is a descendant of %s", newParentID, id)
		}
	}

	if c.IsRoot() {
		return nil, fail(m.op, ErrStructural, "the root circle cannot be moved")
	}
	if *c.ParentID == newParentID {
		return c, nil
	}

	oldParent, err := m.circle(*c.ParentID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}
	oldParent.RemoveChild(id)
	if err := m.put(oldParent); err != nil {
		return nil, err
	}

	newParent.AddChild(id)
	if err := m.put(newParent); err != nil {
		return nil, err
	}

	c.ParentID = &newParent.CircleID
	if err := m.put(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ancestors returns the chain from c's parent up to the root. The walk is
// bounded by the number of circles so a corrupted hierarchy cannot loop.
func (m *mutator) ancestors(c *models.Circle) ([]*models.Circle, error) {
	circles, err := m.tx.ListCircles(m.ctx, m.orgID)
	if err != nil {
		return nil, mapStoreError(m.op, err)
	}
	byID := make(map[uuid.UUID]*models.Circle, len(circles))
	for _, v := range circles {
		byID[v.CircleID] = v
	}
	return walkAncestors(m.op, c, byID)
}

func walkAncestors(op string, c *models.Circle, byID map[uuid.UUID]*models.Circle) ([]*models.Circle, error) {
	var chain []*models.Circle
	cur := c
	for cur.ParentID != nil {
		if len(chain) >= len(byID) {
			return nil, fail(op, ErrCycleViolation, "circle %s has no path to the root", c.CircleID)
		}
		parent, ok := byID[*cur.ParentID]
		if !ok {
			return nil, fail(op, ErrParentNotFound, "parent %s of circle %s not found", *cur.ParentID, cur.CircleID)
		}
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}

// deleteCircle removes a circle. Without cascade the circle must have no
// sub-circles and no active role assignments.
func (m *mutator) deleteCircle(id uuid.UUID, cascade bool) error {
	c, err := m.circle(id, ErrCircleNotFound)
	if err != nil {
		return err
	}
	if c.IsRoot() {
		return fail(m.op, ErrStructural, "the root circle cannot be deleted")
	}

	if !cascade {
		if len(c.ChildIDs) > 0 {
			return fail(m.op, ErrStructural, "circle %s has %d sub-circles", id, len(c.ChildIDs))
		}
		active, err := m.tx.ListCircleAssignments(m.ctx, id, true)
		if err != nil {
			return mapStoreError(m.op, err)
		}
		if len(active) > 0 {
			return fail(m.op, ErrHasActiveRoleAssignments, "circle %s has %d active role assignments", id, len(active))
		}
	}

	if err := m.removeSubtree(c); err != nil {
		return err
	}

	parent, err := m.circle(*c.ParentID, ErrCircleNotFound)
	if err != nil {
		return err
	}
	parent.RemoveChild(id)
	return m.put(parent)
}

func (m *mutator) removeSubtree(c *models.Circle) error {
	for _, childID := range c.ChildIDs {
		child, err := m.circle(childID, ErrCircleNotFound)
		if err != nil {
			return err
		}
		if err := m.removeSubtree(child); err != nil {
			return err
		}
	}

	for _, roleID := range c.RoleIDs {
		if err := m.closeAssignments(roleID, models.EndReasonRoleDeleted); err != nil {
			return err
		}
		if err := m.tx.DeleteRole(m.ctx, roleID); err != nil && !errors.Is(err, store.ErrRoleNotFound) {
			return mapStoreError(m.op, err)
		}
	}

	return mapStoreError(m.op, m.tx.DeleteCircle(m.ctx, c.CircleID))
}

// splitCircle creates a sub-circle of id that takes over the listed roles
// together with their assignments.
func (m *mutator) splitCircle(id uuid.UUID, attrs CircleAttrs, roleIDs []uuid.UUID) (*models.Circle, error) {
	child, err := m.createCircle(id, attrs)
	if err != nil {
		if errors.Is(err, ErrParentNotFound) {
			return nil, fail(m.op, ErrCircleNotFound, "circle %s not found", id)
		}
		return nil, err
	}

	source, err := m.circle(id, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}

	for _, roleID := range roleIDs {
		r, err := m.role(roleID)
		if err != nil {
			return nil, err
		}
		if r.CircleID != id {
			return nil, fail(m.op, ErrStructural, "role %s does not belong to circle %s", roleID, id)
		}
		if r.IsSpecial() {
			return nil, fail(m.op, ErrSpecialRoleViolation, "special role %s cannot move to another circle", roleID)
		}

		r.CircleID = child.CircleID
		r.UpdatedAt = m.now
		if err := m.tx.PutRole(m.ctx, r); err != nil {
			return nil, mapStoreError(m.op, err)
		}
		source.RemoveRole(roleID)
		child.AddRole(roleID)

		assignments, err := m.tx.ListAssignments(m.ctx, roleID, false)
		if err != nil {
			return nil, mapStoreError(m.op, err)
		}
		for _, a := range assignments {
			a.CircleID = child.CircleID
			if err := m.tx.PutAssignment(m.ctx, a); err != nil {
				return nil, mapStoreError(m.op, err)
			}
		}
	}

	if err := m.put(source); err != nil {
		return nil, err
	}
	if err := m.put(child); err != nil {
		return nil, err
	}
	return child, nil
}

func validateRoleAttrs(op string, attrs RoleAttrs) ([]models.Domain, error) {
	if strings.TrimSpace(attrs.Name) == "" {
		return nil, fail(op, ErrValidation, "role name is required")
	}
	if len(attrs.Accountabilities) == 0 {
		return nil, fail(op, ErrValidation, "role needs at least one accountability")
	}
	domains := slices.Clone(attrs.Domains)
	for i := range domains {
		if strings.TrimSpace(domains[i].Name) == "" {
			return nil, fail(op, ErrValidation, "domain name is required")
		}
		if domains[i].ControlType == "" {
			domains[i].ControlType = models.DomainControlExclusive
		}
		if !domains[i].ControlType.IsValid() {
			return nil, fail(op, ErrValidation, "unknown domain control type %q", domains[i].ControlType)
		}
	}
	return domains, nil
}

// checkDomains rejects a domain that another role in the circle holds when
// either side claims it exclusively.
func (m *mutator) checkDomains(circleID, roleID uuid.UUID, domains []models.Domain) error {
	roles, err := m.tx.ListRoles(m.ctx, circleID)
	if err != nil {
		return mapStoreError(m.op, err)
	}
	for _, d := range domains {
		for _, other := range roles {
			if other.RoleID == roleID {
				continue
			}
			for _, od := range other.Domains {
				if !strings.EqualFold(d.Name, od.Name) {
					continue
				}
				if d.ControlType == models.DomainControlExclusive || od.ControlType == models.DomainControlExclusive {
					return fail(m.op, ErrDomainConflict, "domain %q is already held by role %q", d.Name, other.Name)
				}
			}
		}
	}
	return nil
}

func (m *mutator) createRole(circleID uuid.UUID, attrs RoleAttrs) (*models.Role, error) {
	domains, err := validateRoleAttrs(m.op, attrs)
	if err != nil {
		return nil, err
	}

	c, err := m.circle(circleID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}

	r := &models.Role{
		RoleID:           models.NewID(),
		CircleID:         circleID,
		OrgID:            m.orgID,
		Name:             attrs.Name,
		Purpose:          attrs.Purpose,
		Accountabilities: slices.Clone(attrs.Accountabilities),
		Domains:          domains,
		CreatedAt:        m.now,
		UpdatedAt:        m.now,
	}
	if err := m.checkDomains(circleID, r.RoleID, r.Domains); err != nil {
		return nil, err
	}
	if err := m.tx.PutRole(m.ctx, r); err != nil {
		return nil, mapStoreError(m.op, err)
	}

	c.AddRole(r.RoleID)
	if err := m.put(c); err != nil {
		return nil, err
	}
	return r, nil
}

// RoleUpdate changes role attributes. Empty fields are left unchanged.
type RoleUpdate struct {
	Name             string
	Purpose          string
	Accountabilities []string
	Domains          []models.Domain
}

func (m *mutator) updateRole(id uuid.UUID, u RoleUpdate) (*models.Role, error) {
	r, err := m.role(id)
	if err != nil {
		return nil, err
	}
	if r.IsSpecial() {
		return nil, fail(m.op, ErrSpecialRoleViolation, "special role %s cannot be modified", id)
	}

	attrs := RoleAttrs{Name: r.Name, Purpose: r.Purpose, Accountabilities: r.Accountabilities, Domains: r.Domains}
	if u.Name != "" {
		attrs.Name = u.Name
	}
	if u.Purpose != "" {
		attrs.Purpose = u.Purpose
	}
	if u.Accountabilities != nil {
		attrs.Accountabilities = u.Accountabilities
	}
	if u.Domains != nil {
		attrs.Domains = u.Domains
	}

	domains, err := validateRoleAttrs(m.op, attrs)
	if err != nil {
		return nil, err
	}
	if err := m.checkDomains(r.CircleID, r.RoleID, domains); err != nil {
		return nil, err
	}

	r.Name = attrs.Name
	r.Purpose = attrs.Purpose
	r.Accountabilities = slices.Clone(attrs.Accountabilities)
	r.Domains = domains
	r.UpdatedAt = m.now
	if err := m.tx.PutRole(m.ctx, r); err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return r, nil
}

func (m *mutator) deleteRole(id uuid.UUID) error {
	r, err := m.role(id)
	if err != nil {
		return err
	}
	if r.IsSpecial() {
		return fail(m.op, ErrSpecialRoleViolation, "special role %s cannot be deleted", id)
	}

	if err := m.closeAssignments(id, models.EndReasonRoleDeleted); err != nil {
		return err
	}
	if err := m.tx.DeleteRole(m.ctx, id); err != nil {
		return mapStoreError(m.op, err)
	}

	c, err := m.circle(r.CircleID, ErrCircleNotFound)
	if err != nil {
		return err
	}
	c.RemoveRole(id)
	return m.put(c)
}

func (m *mutator) closeAssignments(roleID uuid.UUID, reason string) error {
	active, err := m.tx.ListAssignments(m.ctx, roleID, true)
	if errors.Is(err, store.ErrRoleNotFound) {
		return nil
	}
	if err != nil {
		return mapStoreError(m.op, err)
	}
	for _, a := range active {
		a.Close(m.actor, reason, m.now)
		if err := m.tx.PutAssignment(m.ctx, a); err != nil {
			return mapStoreError(m.op, err)
		}
	}
	return nil
}

func (m *mutator) attachPolicy(circleID, proposalID uuid.UUID, title, body string) (*models.Policy, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fail(m.op, ErrValidation, "policy title is required")
	}
	c, err := m.circle(circleID, ErrCircleNotFound)
	if err != nil {
		return nil, err
	}
	p := models.Policy{
		PolicyID:   models.NewID(),
		ProposalID: proposalID,
		Title:      title,
		Body:       body,
		CreatedAt:  m.now,
	}
	c.Policies = append(c.Policies, p)
	if err := m.put(c); err != nil {
		return nil, err
	}
	return &p, nil
}

// assignRole links a partner to a role. A special role keeps a single
// active assignment: the previous one is closed as superseded in the same
// transaction. Assigning a partner who already holds the role is a no-op.
func (m *mutator) assignRole(roleID uuid.UUID, partnerID string) (*models.RoleAssignment, []*models.RoleAssignment, error) {
	if strings.TrimSpace(partnerID) == "" {
		return nil, nil, fail(m.op, ErrValidation, "partner id is required")
	}

	r, err := m.role(roleID)
	if err != nil {
		return nil, nil, err
	}

	active, err := m.tx.ListAssignments(m.ctx, roleID, true)
	if err != nil {
		return nil, nil, mapStoreError(m.op, err)
	}
	for _, a := range active {
		if a.PartnerID == partnerID {
			return a, nil, nil
		}
	}

	var superseded []*models.RoleAssignment
	if r.IsSpecial() {
		for _, a := range active {
			a.Close(m.actor, models.EndReasonSuperseded, m.now)
			if err := m.tx.PutAssignment(m.ctx, a); err != nil {
				return nil, nil, mapStoreError(m.op, err)
			}
			superseded = append(superseded, a)
		}
	}

	a := &models.RoleAssignment{
		AssignmentID: models.NewID(),
		RoleID:       roleID,
		CircleID:     r.CircleID,
		SpecialType:  r.SpecialType,
		PartnerID:    partnerID,
		AssignedBy:   m.actor,
		AssignedAt:   m.now,
	}
	if err := m.tx.PutAssignment(m.ctx, a); err != nil {
		return nil, nil, mapStoreError(m.op, err)
	}
	return a, superseded, nil
}

func (m *mutator) revokeAssignment(id uuid.UUID) (*models.RoleAssignment, error) {
	a, err := m.tx.GetAssignment(m.ctx, id)
	if errors.Is(err, store.ErrAssignmentNotFound) {
		return nil, fail(m.op, ErrAssignmentNotFound, "role assignment %s not found", id)
	}
	if err != nil {
		return nil, mapStoreError(m.op, err)
	}
	if _, err := m.circle(a.CircleID, ErrAssignmentNotFound); err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, fail(m.op, ErrAssignmentClosed, "role assignment %s ended at %s", id, a.EndedAt.Format(time.RFC3339))
	}

	a.Close(m.actor, models.EndReasonRevoked, m.now)
	if err := m.tx.PutAssignment(m.ctx, a); err != nil {
		return nil, mapStoreError(m.op, err)
	}
	return a, nil
}

// applyMutation performs the hierarchy change carried by an approved proposal.
func (m *mutator) applyMutation(p *models.Proposal) error {
	if err := p.Mutation.Validate(p.Type); err != nil {
		return wrap(m.op, ErrValidation, err)
	}

	mut := p.Mutation
	switch p.Type {
	case models.ProposalTypeProcessOptimization:
		return nil

	case models.ProposalTypeRoleModification:
		rc := mut.Role
		switch rc.Op {
		case models.OpCreate:
			circleID := p.CircleID
			if rc.CircleID != nil {
				circleID = *rc.CircleID
			}
			_, err := m.createRole(circleID, RoleAttrs{
				Name: rc.Name, Purpose: rc.Purpose, Accountabilities: rc.Accountabilities, Domains: rc.Domains,
			})
			return err
		case models.OpUpdate:
			_, err := m.updateRole(*rc.RoleID, RoleUpdate{
				Name: rc.Name, Purpose: rc.Purpose, Accountabilities: rc.Accountabilities, Domains: rc.Domains,
			})
			return err
		case models.OpDelete:
			return m.deleteRole(*rc.RoleID)
		}

	case models.ProposalTypeCircleStructureChange:
		cc := mut.Circle
		attrs := CircleAttrs{Name: cc.Name, Purpose: cc.Purpose, Accountabilities: cc.Accountabilities}
		switch cc.Op {
		case models.OpCreate:
			parentID := p.CircleID
			if cc.ParentID != nil {
				parentID = *cc.ParentID
			}
			_, err := m.createCircle(parentID, attrs)
			return err
		case models.OpUpdate:
			_, err := m.updateCircle(*cc.CircleID, CircleUpdate(attrs))
			return err
		case models.OpMove:
			_, err := m.moveCircle(*cc.CircleID, *cc.ParentID)
			return err
		case models.OpSplit:
			_, err := m.splitCircle(*cc.CircleID, attrs, cc.RoleIDs)
			return err
		case models.OpDelete:
			return m.deleteCircle(*cc.CircleID, true)
		}

	case models.ProposalTypePolicyAdjustment:
		circleID := p.CircleID
		if mut.Policy.CircleID != nil {
			circleID = *mut.Policy.CircleID
		}
		_, err := m.attachPolicy(circleID, p.ProposalID, mut.Policy.Title, mut.Policy.Body)
		return err
	}

	return fail(m.op, ErrValidation, "unsupported mutation for %s", p.Type)
}
