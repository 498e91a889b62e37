package models

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// ChangeOp names the operation a mutation performs.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
	OpMove   ChangeOp = "move"
	OpSplit  ChangeOp = "split"
)

// Mutation is the hierarchy change an approved proposal carries. Exactly one
// member is set, matching the proposal type.
type Mutation struct {
	Role   *RoleChange   `json:"role,omitempty"`
	Circle *CircleChange `json:"circle,omitempty"`
	Policy *PolicyChange `json:"policy,omitempty"`
}

// RoleChange creates, edits or removes a role.
type RoleChange struct {
	Op               ChangeOp   `json:"op"`
	RoleID           *uuid.UUID `json:"role_id,omitempty"`   // update, delete
	CircleID         *uuid.UUID `json:"circle_id,omitempty"` // create; defaults to the proposal circle
	Name             string     `json:"name,omitempty"`
	Purpose          string     `json:"purpose,omitempty"`
	Accountabilities []string   `json:"accountabilities,omitempty"`
	Domains          []Domain   `json:"domains,omitempty"`
}

// CircleChange restructures circles.
//
//	create: new circle under ParentID (defaults to the proposal circle)
//	update: rename or re-purpose CircleID
//	move:   re-parent CircleID under ParentID
//	split:  new circle under CircleID that takes over RoleIDs
//	delete: cascading delete of CircleID
type CircleChange struct {
	Op               ChangeOp    `json:"op"`
	CircleID         *uuid.UUID  `json:"circle_id,omitempty"`
	ParentID         *uuid.UUID  `json:"parent_id,omitempty"`
	Name             string      `json:"name,omitempty"`
	Purpose          string      `json:"purpose,omitempty"`
	Accountabilities []string    `json:"accountabilities,omitempty"`
	RoleIDs          []uuid.UUID `json:"role_ids,omitempty"`
}

// PolicyChange attaches an opaque policy to a circle.
type PolicyChange struct {
	CircleID *uuid.UUID `json:"circle_id,omitempty"` // defaults to the proposal circle
	Title    string     `json:"title"`
	Body     string     `json:"body"`
}

// ErrInvalidMutation is returned when a mutation does not fit its proposal type.
var ErrInvalidMutation = errors.New("invalid mutation")

// Validate checks that the mutation is well formed for the proposal type.
func (m *Mutation) Validate(t ProposalType) error {
	switch t {
	case ProposalTypeProcessOptimization:
		if m != nil && (m.Role != nil || m.Circle != nil || m.Policy != nil) {
			return fmt.Errorf("%w: %s proposals carry no structural change", ErrInvalidMutation, t)
		}
		return nil
	case ProposalTypeRoleModification:
		if m == nil || m.Role == nil || m.Circle != nil || m.Policy != nil {
			return fmt.Errorf("%w: %s requires a role change", ErrInvalidMutation, t)
		}
		return m.Role.validate()
	case ProposalTypeCircleStructureChange:
		if m == nil || m.Circle == nil || m.Role != nil || m.Policy != nil {
			return fmt.Errorf("%w: %s requires a circle change", ErrInvalidMutation, t)
		}
		return m.Circle.validate()
	case ProposalTypePolicyAdjustment:
		if m == nil || m.Policy == nil || m.Role != nil || m.Circle != nil {
			return fmt.Errorf("%w: %s requires a policy change", ErrInvalidMutation, t)
		}
		if m.Policy.Title == "" {
			return fmt.Errorf("%w: policy title is required", ErrInvalidMutation)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown proposal type %q", ErrInvalidMutation, t)
	}
}

func (c *RoleChange) validate() error {
	switch c.Op {
	case OpCreate:
		if c.Name == "" {
			return fmt.Errorf("%w: role name is required", ErrInvalidMutation)
		}
		if len(c.Accountabilities) == 0 {
			return fmt.Errorf("%w: role needs at least one accountability", ErrInvalidMutation)
		}
	case OpUpdate:
		if c.RoleID == nil {
			return fmt.Errorf("%w: role id is required for update", ErrInvalidMutation)
		}
	case OpDelete:
		if c.RoleID == nil {
			return fmt.Errorf("%w: role id is required for delete", ErrInvalidMutation)
		}
	default:
		return fmt.Errorf("%w: unsupported role op %q", ErrInvalidMutation, c.Op)
	}
	for _, d := range c.Domains {
		if d.Name == "" {
			return fmt.Errorf("%w: domain name is required", ErrInvalidMutation)
		}
	}
	return nil
}

func (c *CircleChange) validate() error {
	switch c.Op {
	case OpCreate:
		if c.Name == "" {
			return fmt.Errorf("%w: circle name is required", ErrInvalidMutation)
		}
	case OpUpdate, OpDelete:
		if c.CircleID == nil {
			return fmt.Errorf("%w: circle id is required for %s", ErrInvalidMutation, c.Op)
		}
	case OpMove:
		if c.CircleID == nil || c.ParentID == nil {
			return fmt.Errorf("%w: move needs circle id and parent id", ErrInvalidMutation)
		}
	case OpSplit:
		if c.CircleID == nil || c.Name == "" {
			return fmt.Errorf("%w: split needs circle id and a name for the new circle", ErrInvalidMutation)
		}
	default:
		return fmt.Errorf("%w: unsupported circle op %q", ErrInvalidMutation, c.Op)
	}
	return nil
}

// Clone returns a deep copy of the mutation; nil stays nil.
func (m *Mutation) Clone() *Mutation {
	if m == nil {
		return nil
	}
	clone := &Mutation{}
	if m.Role != nil {
		r := *m.Role
		r.RoleID = cloneID(m.Role.RoleID)
		r.CircleID = cloneID(m.Role.CircleID)
		r.Accountabilities = slices.Clone(m.Role.Accountabilities)
		r.Domains = slices.Clone(m.Role.Domains)
		clone.Role = &r
	}
	if m.Circle != nil {
		c := *m.Circle
		c.CircleID = cloneID(m.Circle.CircleID)
		c.ParentID = cloneID(m.Circle.ParentID)
		c.Accountabilities = slices.Clone(m.Circle.Accountabilities)
		c.RoleIDs = slices.Clone(m.Circle.RoleIDs)
		clone.Circle = &c
	}
	if m.Policy != nil {
		p := *m.Policy
		p.CircleID = cloneID(m.Policy.CircleID)
		clone.Policy = &p
	}
	return clone
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
