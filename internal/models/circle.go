package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Circle is a node in the governance hierarchy. Parent and child relations are
// held as ids so that the hierarchy can be stored as an arena keyed by id.
type Circle struct {
	CircleID         uuid.UUID   `json:"circle_id"`
	OrgID            uuid.UUID   `json:"org_id"`
	ParentID         *uuid.UUID  `json:"parent_id,omitempty"` // nil for the root circle
	Name             string      `json:"name"`
	Purpose          string      `json:"purpose"`
	Accountabilities []string    `json:"accountabilities"`
	ChildIDs         []uuid.UUID `json:"child_ids"`
	RoleIDs          []uuid.UUID `json:"role_ids"`
	Policies         []Policy    `json:"policies"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Policy is an opaque governance policy attached to a circle by an applied
// POLICY_ADJUSTMENT proposal.
type Policy struct {
	PolicyID   uuid.UUID `json:"policy_id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsRoot returns true if the circle has no parent.
func (c *Circle) IsRoot() bool {
	return c.ParentID == nil
}

// Clone returns a deep copy of the circle.
func (c *Circle) Clone() *Circle {
	clone := *c
	if c.ParentID != nil {
		parent := *c.ParentID
		clone.ParentID = &parent
	}
	clone.Accountabilities = slices.Clone(c.Accountabilities)
	clone.ChildIDs = slices.Clone(c.ChildIDs)
	clone.RoleIDs = slices.Clone(c.RoleIDs)
	clone.Policies = slices.Clone(c.Policies)
	return &clone
}

// AddChild records a child circle id, ignoring duplicates.
func (c *Circle) AddChild(id uuid.UUID) {
	if !slices.Contains(c.ChildIDs, id) {
		c.ChildIDs = append(c.ChildIDs, id)
	}
}

// RemoveChild drops a child circle id.
func (c *Circle) RemoveChild(id uuid.UUID) {
	c.ChildIDs = slices.DeleteFunc(c.ChildIDs, func(v uuid.UUID) bool { return v == id })
}

// AddRole records a role id, ignoring duplicates.
func (c *Circle) AddRole(id uuid.UUID) {
	if !slices.Contains(c.RoleIDs, id) {
		c.RoleIDs = append(c.RoleIDs, id)
	}
}

// RemoveRole drops a role id.
func (c *Circle) RemoveRole(id uuid.UUID) {
	c.RoleIDs = slices.DeleteFunc(c.RoleIDs, func(v uuid.UUID) bool { return v == id })
}

// CircleTree is a recursive read view of a circle, its roles and sub-circles.
type CircleTree struct {
	Circle     *Circle       `json:"circle"`
	Roles      []*Role       `json:"roles"`
	SubCircles []*CircleTree `json:"sub_circles"`
}
