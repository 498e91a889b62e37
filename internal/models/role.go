package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SpecialRoleType identifies a role with a fixed governance function.
// The zero value marks an ordinary role.
type SpecialRoleType string

const (
	SpecialRoleNone        SpecialRoleType = ""
	SpecialRoleCircleLead  SpecialRoleType = "CIRCLE_LEAD"
	SpecialRoleFacilitator SpecialRoleType = "FACILITATOR"
	SpecialRoleSecretary   SpecialRoleType = "SECRETARY"
	SpecialRoleCircleRep   SpecialRoleType = "CIRCLE_REP"
)

// SpecialRoleTypes lists every special role, in the order they are created for a new circle.
var SpecialRoleTypes = []SpecialRoleType{
	SpecialRoleCircleLead,
	SpecialRoleFacilitator,
	SpecialRoleSecretary,
	SpecialRoleCircleRep,
}

// IsValid returns true for the none value and each known special role type.
func (t SpecialRoleType) IsValid() bool {
	return t == SpecialRoleNone || slices.Contains(SpecialRoleTypes, t)
}

// DisplayName is the default role name used when a circle is created.
func (t SpecialRoleType) DisplayName() string {
	switch t {
	case SpecialRoleCircleLead:
		return "Circle Lead"
	case SpecialRoleFacilitator:
		return "Facilitator"
	case SpecialRoleSecretary:
		return "Secretary"
	case SpecialRoleCircleRep:
		return "Circle Rep"
	default:
		return ""
	}
}

// DomainControlType describes how a role controls a domain.
type DomainControlType string

const (
	DomainControlExclusive DomainControlType = "EXCLUSIVE"
	DomainControlShared    DomainControlType = "SHARED"
	DomainControlAdvisory  DomainControlType = "ADVISORY"
)

// IsValid returns true for known control types.
func (t DomainControlType) IsValid() bool {
	switch t {
	case DomainControlExclusive, DomainControlShared, DomainControlAdvisory:
		return true
	default:
		return false
	}
}

// Domain names an area a role controls.
type Domain struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ControlType DomainControlType `json:"control_type"`
}

// Role belongs to exactly one circle. Deleting the circle deletes its roles.
type Role struct {
	RoleID           uuid.UUID       `json:"role_id"`
	CircleID         uuid.UUID       `json:"circle_id"`
	OrgID            uuid.UUID       `json:"org_id"`
	Name             string          `json:"name"`
	Purpose          string          `json:"purpose"`
	Accountabilities []string        `json:"accountabilities"`
	Domains          []Domain        `json:"domains"`
	SpecialType      SpecialRoleType `json:"special_type,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsSpecial returns true for CIRCLE_LEAD, FACILITATOR, SECRETARY and CIRCLE_REP roles.
func (r *Role) IsSpecial() bool {
	return r.SpecialType != SpecialRoleNone
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	clone := *r
	clone.Accountabilities = slices.Clone(r.Accountabilities)
	clone.Domains = slices.Clone(r.Domains)
	return &clone
}

// Assignment end reasons.
const (
	EndReasonRevoked     = "revoked"
	EndReasonSuperseded  = "superseded"
	EndReasonRoleDeleted = "role_deleted"
)

// RoleAssignment links a role to a partner. Assignments are closed rather
// than deleted so the history is retained for audit.
type RoleAssignment struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	RoleID       uuid.UUID       `json:"role_id"`
	CircleID     uuid.UUID       `json:"circle_id"`
	SpecialType  SpecialRoleType `json:"special_type,omitempty"` // copied from the role at assignment time
	PartnerID    string          `json:"partner_id"`
	AssignedBy   string          `json:"assigned_by"`
	AssignedAt   time.Time       `json:"assigned_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	EndedBy      string          `json:"ended_by,omitempty"`
	EndReason    string          `json:"end_reason,omitempty"`
}

// IsActive returns true while the assignment has not been closed.
func (a *RoleAssignment) IsActive() bool {
	return a.EndedAt == nil
}

// Close ends the assignment.
func (a *RoleAssignment) Close(by, reason string, at time.Time) {
	a.EndedAt = &at
	a.EndedBy = by
	a.EndReason = reason
}

// Clone returns a copy of the assignment.
func (a *RoleAssignment) Clone() *RoleAssignment {
	clone := *a
	if a.EndedAt != nil {
		ended := *a.EndedAt
		clone.EndedAt = &ended
	}
	return &clone
}
