package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents the root of a governance hierarchy.
// Each organization owns exactly one root circle, created at bootstrap.
type Organization struct {
	OrgID        uuid.UUID `json:"org_id"` // UUIDv7
	Name         string    `json:"name"`
	RootCircleID uuid.UUID `json:"root_circle_id"` // uuid.Nil until the root circle exists
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRoot returns true once the organization's root circle has been created.
func (o *Organization) HasRoot() bool {
	return o.RootCircleID != uuid.Nil
}

// NewID returns a new time-ordered identifier.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
