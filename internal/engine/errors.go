package engine

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// Kind classifies an engine failure for callers.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindNotFound               Kind = "not_found"
	KindUnauthorized           Kind = "unauthorized"
	KindInvalidTransition      Kind = "invalid_transition"
	KindStructuralViolation    Kind = "structural_violation"
	KindConcurrentModification Kind = "concurrent_modification"
	KindInternal               Kind = "internal"
)

// Error is the typed result every engine operation fails with.
type Error struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the exported sentinels work
// with errors.Is regardless of the operation or message attached.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func sentinel(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation = sentinel(KindValidation, "validation_failed", "validation failed")

	ErrOrganizationNotFound = sentinel(KindNotFound, "organization_not_found", "organization not found")
	ErrCircleNotFound       = sentinel(KindNotFound, "circle_not_found", "circle not found")
	ErrParentNotFound       = sentinel(KindNotFound, "parent_not_found", "parent circle not found")
	ErrRoleNotFound         = sentinel(KindNotFound, "role_not_found", "role not found")
	ErrAssignmentNotFound   = sentinel(KindNotFound, "assignment_not_found", "role assignment not found")
	ErrMeetingNotFound      = sentinel(KindNotFound, "meeting_not_found", "meeting not found")
	ErrProposalNotFound     = sentinel(KindNotFound, "proposal_not_found", "proposal not found")
	ErrQuestionNotFound     = sentinel(KindNotFound, "question_not_found", "question not found")
	ErrObjectionNotFound    = sentinel(KindNotFound, "objection_not_found", "objection not found")

	// ErrUnauthorizedActor is also returned for unknown proposals on mutating
	// operations so that callers cannot probe for existence.
	ErrUnauthorizedActor = sentinel(KindUnauthorized, "unauthorized_actor", "actor is not permitted to perform this action")

	ErrInvalidTransition   = sentinel(KindInvalidTransition, "invalid_transition", "transition not allowed from current status")
	ErrObjectionUnresolved = sentinel(KindInvalidTransition, "objection_unresolved", "proposal has unresolved objections")
	ErrWrongStage          = sentinel(KindInvalidTransition, "wrong_stage", "action not allowed in current stage")
	ErrObjectionClosed     = sentinel(KindInvalidTransition, "objection_closed", "objection is already resolved")
	ErrAlreadyAnswered     = sentinel(KindInvalidTransition, "question_answered", "question is already answered")
	ErrMeetingNotOpen      = sentinel(KindInvalidTransition, "meeting_not_open", "meeting is not open")
	ErrMeetingNotStarted   = sentinel(KindInvalidTransition, "meeting_not_started", "meeting is not in progress")
	ErrAlreadyStarted      = sentinel(KindInvalidTransition, "already_started", "meeting has already started")
	ErrNoCurrentItem       = sentinel(KindInvalidTransition, "no_current_item", "meeting has no current agenda item")
	ErrAgendaLocked        = sentinel(KindInvalidTransition, "agenda_locked", "agenda can only change before the meeting starts")
	ErrMeetingIncomplete   = sentinel(KindInvalidTransition, "meeting_incomplete", "agenda items are still pending")
	ErrAssignmentClosed    = sentinel(KindInvalidTransition, "assignment_closed", "role assignment is already closed")

	ErrCycleViolation              = sentinel(KindStructuralViolation, "cycle_violation", "circle would become its own ancestor")
	ErrHasActiveRoleAssignments    = sentinel(KindStructuralViolation, "has_active_role_assignments", "circle has active role assignments")
	ErrProposalAlreadyOnOpenAgenda = sentinel(KindStructuralViolation, "proposal_already_on_open_agenda", "proposal is on another open meeting agenda")
	ErrSpecialRoleViolation        = sentinel(KindStructuralViolation, "special_role_violation", "special role constraint violated")
	ErrDomainConflict              = sentinel(KindStructuralViolation, "domain_conflict", "exclusive domain is already held in this circle")
	ErrStructural                  = sentinel(KindStructuralViolation, "structural_violation", "hierarchy constraint violated")

	ErrConcurrentModification = sentinel(KindConcurrentModification, "concurrent_modification", "entity was modified concurrently, retry with fresh state")

	ErrHistoryDiverged = sentinel(KindInternal, "history_diverged", "decision history diverged from status")
	ErrInternal        = sentinel(KindInternal, "internal", "internal error")
)

// fail returns a copy of the sentinel bound to an operation with a message.
func fail(op string, base *Error, format string, args ...any) *Error {
	e := *base
	e.Op = op
	if format != "" {
		e.Message = fmt.Sprintf(format, args...)
	}
	return &e
}

// wrap returns a copy of the sentinel bound to an operation and a cause.
func wrap(op string, base *Error, err error) *Error {
	e := *base
	e.Op = op
	e.Err = err
	return &e
}

// KindOf returns the kind of an engine error, KindInternal for anything else
// and the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// mapStoreError converts store sentinels into the engine taxonomy. Errors
// already classified pass through untouched.
func mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return wrap(op, ErrConcurrentModification, err)
	case errors.Is(err, store.ErrSpecialRoleTaken):
		return wrap(op, ErrSpecialRoleViolation, err)
	case errors.Is(err, store.ErrProposalReserved):
		return wrap(op, ErrProposalAlreadyOnOpenAgenda, err)
	case errors.Is(err, store.ErrOrganizationNotFound):
		return wrap(op, ErrOrganizationNotFound, err)
	case errors.Is(err, store.ErrCircleNotFound):
		return wrap(op, ErrCircleNotFound, err)
	case errors.Is(err, store.ErrRoleNotFound):
		return wrap(op, ErrRoleNotFound, err)
	case errors.Is(err, store.ErrAssignmentNotFound):
		return wrap(op, ErrAssignmentNotFound, err)
	case errors.Is(err, store.ErrMeetingNotFound):
		return wrap(op, ErrMeetingNotFound, err)
	case errors.Is(err, store.ErrProposalNotFound):
		return wrap(op, ErrProposalNotFound, err)
	case errors.Is(err, store.ErrHistoryRewrite), errors.Is(err, models.ErrHistoryDiverged):
		return wrap(op, ErrHistoryDiverged, err)
	case errors.Is(err, models.ErrInvalidMutation):
		return wrap(op, ErrValidation, err)
	default:
		return wrap(op, ErrInternal, err)
	}
}
