package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/notify"
	"github.com/wolfeidau/governor/internal/store"
)

// AssignmentService links partners to roles.
type AssignmentService struct {
	*core
}

// AssignRole assigns a partner to a role. For a special role any current
// holder is superseded in the same transaction, so a circle never has two
// active holders of the same special role.
func (s *AssignmentService) AssignRole(ctx context.Context, roleID uuid.UUID, partnerID, assignerID string) (*models.RoleAssignment, error) {
	const op = "AssignRole"

	r, err := s.stores.Hierarchy.GetRole(ctx, roleID)
	if errors.Is(err, store.ErrRoleNotFound) {
		return nil, fail(op, ErrRoleNotFound, "role %s not found", roleID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	var (
		a          *models.RoleAssignment
		superseded []*models.RoleAssignment
	)
	err = s.mutate(ctx, r.OrgID, op, assignerID, func(m *mutator) error {
		var err error
		a, superseded, err = m.assignRole(roleID, partnerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, prev := range superseded {
		log.Info().
			Str("assignment_id", prev.AssignmentID.String()).
			Str("partner_id", prev.PartnerID).
			Msg("Assignment superseded")
	}
	log.Info().
		Str("assignment_id", a.AssignmentID.String()).
		Str("role_id", roleID.String()).
		Str("partner_id", a.PartnerID).
		Msg("Role assigned")

	s.publish(ctx, notify.Notification{
		Kind:     notify.KindHierarchy,
		OrgID:    r.OrgID,
		CircleID: r.CircleID,
		Summary:  "role " + r.Name + " assigned to " + a.PartnerID,
	})
	return a, nil
}

// RevokeAssignment closes an active assignment.
func (s *AssignmentService) RevokeAssignment(ctx context.Context, assignmentID uuid.UUID, revokerID string) (*models.RoleAssignment, error) {
	const op = "RevokeAssignment"

	current, err := s.stores.Hierarchy.GetAssignment(ctx, assignmentID)
	if errors.Is(err, store.ErrAssignmentNotFound) {
		return nil, fail(op, ErrAssignmentNotFound, "role assignment %s not found", assignmentID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	c, err := s.stores.Hierarchy.GetCircle(ctx, current.CircleID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	var a *models.RoleAssignment
	err = s.mutate(ctx, c.OrgID, op, revokerID, func(m *mutator) error {
		var err error
		a, err = m.revokeAssignment(assignmentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("assignment_id", assignmentID.String()).Msg("Assignment revoked")
	s.publish(ctx, notify.Notification{
		Kind:     notify.KindHierarchy,
		OrgID:    c.OrgID,
		CircleID: c.CircleID,
		Summary:  "assignment revoked for " + a.PartnerID,
	})
	return a, nil
}

// GetAssignment returns a role assignment.
func (s *AssignmentService) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.RoleAssignment, error) {
	a, err := s.stores.Hierarchy.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, mapStoreError("GetAssignment", err)
	}
	return a, nil
}

// ListAssignments returns the assignments of a role, newest last.
func (s *AssignmentService) ListAssignments(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	as, err := s.stores.Hierarchy.ListAssignments(ctx, roleID, activeOnly)
	if err != nil {
		return nil, mapStoreError("ListAssignments", err)
	}
	return as, nil
}

// ListCircleAssignments returns the assignments of every role in a circle.
func (s *AssignmentService) ListCircleAssignments(ctx context.Context, circleID uuid.UUID, activeOnly bool) ([]*models.RoleAssignment, error) {
	as, err := s.stores.Hierarchy.ListCircleAssignments(ctx, circleID, activeOnly)
	if err != nil {
		return nil, mapStoreError("ListCircleAssignments", err)
	}
	return as, nil
}

// Holder returns the partner holding a special role in a circle, if any.
func (s *AssignmentService) Holder(ctx context.Context, circleID uuid.UUID, t models.SpecialRoleType) (string, bool, error) {
	return holderOf(ctx, s.stores.Hierarchy, circleID, t)
}

func holderOf(ctx context.Context, h store.HierarchyReader, circleID uuid.UUID, t models.SpecialRoleType) (string, bool, error) {
	active, err := h.ListCircleAssignments(ctx, circleID, true)
	if err != nil {
		return "", false, mapStoreError("Holder", err)
	}
	for _, a := range active {
		if a.SpecialType == t {
			return a.PartnerID, true, nil
		}
	}
	return "", false, nil
}
