package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/notify"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// MeetingService sequences governance meetings. The meeting state
// (SCHEDULED, IN_PROGRESS, COMPLETED, CANCELLED) and each agenda item's state
// are separate machines joined by the meeting's current item pointer.
//
// Proposals are driven through the ProposalService, so every stage change
// made from a meeting is authorized and recorded like any other.
type MeetingService struct {
	*core
	proposals *ProposalService
}

// ScheduleRequest schedules a meeting for a circle.
type ScheduleRequest struct {
	CircleID    uuid.UUID
	ScheduledAt time.Time
	Duration    time.Duration

	// FacilitatorID and SecretaryID default to the circle's current
	// FACILITATOR and SECRETARY role holders. When set they must be those
	// holders.
	FacilitatorID string
	SecretaryID   string

	Participants []string
	ActorID      string
}

// Schedule creates a SCHEDULED meeting with an empty agenda.
func (s *MeetingService) Schedule(ctx context.Context, req ScheduleRequest) (*models.GovernanceMeeting, error) {
	const op = "ScheduleMeeting"

	if req.Duration <= 0 {
		return nil, fail(op, ErrValidation, "duration must be positive")
	}
	if req.ScheduledAt.IsZero() {
		return nil, fail(op, ErrValidation, "scheduled time is required")
	}

	c, err := s.stores.Hierarchy.GetCircle(ctx, req.CircleID)
	if errors.Is(err, store.ErrCircleNotFound) {
		return nil, fail(op, ErrCircleNotFound, "circle %s not found", req.CircleID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	facilitator, err := s.officer(ctx, op, c.CircleID, models.SpecialRoleFacilitator, req.FacilitatorID)
	if err != nil {
		return nil, err
	}
	secretary, err := s.officer(ctx, op, c.CircleID, models.SpecialRoleSecretary, req.SecretaryID)
	if err != nil {
		return nil, err
	}

	var participants []string
	for _, id := range req.Participants {
		if id != "" && !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}

	now := s.now()
	m := &models.GovernanceMeeting{
		MeetingID:     models.NewID(),
		OrgID:         c.OrgID,
		CircleID:      c.CircleID,
		ScheduledAt:   req.ScheduledAt.UTC(),
		Duration:      req.Duration,
		Status:        models.MeetingScheduled,
		FacilitatorID: facilitator,
		SecretaryID:   secretary,
		Participants:  participants,
		CurrentItem:   models.NoCurrentItem,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.stores.Meetings.Create(ctx, m); err != nil {
		return nil, mapStoreError(op, err)
	}

	log.Info().
		Str("meeting_id", m.MeetingID.String()).
		Str("circle_id", c.CircleID.String()).
		Time("scheduled_at", m.ScheduledAt).
		Msg("Meeting scheduled")
	s.publishMeeting(ctx, m, "meeting scheduled")

	return m, nil
}

// officer returns the holder of a special role, refusing a requested
// partner who does not hold it.
func (s *MeetingService) officer(ctx context.Context, op string, circleID uuid.UUID, t models.SpecialRoleType, requested string) (string, error) {
	holder, _, err := holderOf(ctx, s.stores.Hierarchy, circleID, t)
	if err != nil {
		return "", err
	}
	if requested != "" && requested != holder {
		return "", fail(op, ErrUnauthorizedActor, "%s does not hold the %s role", requested, t)
	}
	return holder, nil
}

func (s *MeetingService) publishMeeting(ctx context.Context, m *models.GovernanceMeeting, summary string) {
	s.publish(ctx, notify.Notification{
		Kind:      notify.KindMeeting,
		OrgID:     m.OrgID,
		CircleID:  m.CircleID,
		MeetingID: m.MeetingID,
		Summary:   summary,
	})
}

// update applies fn to a fresh copy of the meeting and commits it with a
// compare-and-swap, retrying on conflict. fn returns false to skip the write.
func (s *MeetingService) update(ctx context.Context, op string, meetingID uuid.UUID,
	fn func(m *models.GovernanceMeeting, now time.Time) (bool, error),
) (*models.GovernanceMeeting, error) {
	ctx, span := startSpan(ctx, "meeting."+op, attribute.String("meeting_id", meetingID.String()))
	m, err := retryOnConflict(ctx, s.retries, op, func() (*models.GovernanceMeeting, error) {
		m, err := s.get(ctx, op, meetingID)
		if err != nil {
			return nil, err
		}

		expected := m.Version
		now := s.now()
		changed, err := fn(m, now)
		if err != nil || !changed {
			return m, err
		}

		m.UpdatedAt = now
		if err := s.stores.Meetings.Update(ctx, m, expected); err != nil {
			return nil, mapStoreError(op, err)
		}
		return m, nil
	})
	endSpan(span, err)
	return m, err
}

func (s *MeetingService) get(ctx context.Context, op string, meetingID uuid.UUID) (*models.GovernanceMeeting, error) {
	m, err := s.stores.Meetings.Get(ctx, meetingID)
	if errors.Is(err, store.ErrMeetingNotFound) {
		return nil, fail(op, ErrMeetingNotFound, "meeting %s not found", meetingID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	return m, nil
}

func requireOpen(op string, m *models.GovernanceMeeting) error {
	if !m.Status.IsOpen() {
		return fail(op, ErrMeetingNotOpen, "meeting is %s", m.Status)
	}
	return nil
}

func requireInProgress(op string, m *models.GovernanceMeeting) error {
	switch m.Status {
	case models.MeetingInProgress:
		return nil
	case models.MeetingScheduled:
		return fail(op, ErrMeetingNotStarted, "meeting has not started")
	default:
		return fail(op, ErrMeetingNotOpen, "meeting is %s", m.Status)
	}
}

// AddAgendaItem puts a proposal on an open meeting's agenda. A proposal can be
// on at most one open meeting's agenda; adding it to a second one fails with
// ErrProposalAlreadyOnOpenAgenda. Adding the same proposal twice is a no-op.
func (s *MeetingService) AddAgendaItem(ctx context.Context, meetingID, proposalID uuid.UUID) (*models.GovernanceMeeting, error) {
	const op = "AddAgendaItem"

	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		if _, ok := m.ItemFor(proposalID); ok {
			return false, nil
		}

		p, err := s.stores.Proposals.Get(ctx, proposalID)
		if errors.Is(err, store.ErrProposalNotFound) {
			return false, fail(op, ErrProposalNotFound, "proposal %s not found", proposalID)
		}
		if err != nil {
			return false, mapStoreError(op, err)
		}
		switch {
		case p.CircleID != m.CircleID:
			return false, fail(op, ErrValidation, "proposal %s belongs to another circle", proposalID)
		case p.Status == models.StatusDraft:
			return false, fail(op, ErrInvalidTransition, "proposal %s has not been submitted", proposalID)
		case !p.Status.IsPreApproval():
			return false, fail(op, ErrInvalidTransition, "proposal %s is already %s", proposalID, p.Status)
		}

		if err := s.stores.Meetings.ReserveProposal(ctx, proposalID, m.MeetingID); err != nil {
			return false, mapStoreError(op, err)
		}

		m.Agenda = append(m.Agenda, models.AgendaItem{
			ItemID:     models.NewID(),
			ProposalID: proposalID,
			Title:      p.Title,
			Status:     models.AgendaItemPending,
		})
		m.Renumber()
		if m.Status == models.MeetingInProgress && m.CurrentItem == models.NoCurrentItem {
			m.AdvancePointer()
		}
		return true, nil
	})
	if err != nil {
		s.releaseUnlisted(ctx, meetingID, proposalID)
		return nil, err
	}

	log.Info().
		Str("meeting_id", meetingID.String()).
		Str("proposal_id", proposalID.String()).
		Msg("Agenda item added")
	return m, nil
}

// releaseUnlisted drops a reservation taken by a failed AddAgendaItem unless
// the proposal made it onto the stored agenda.
func (s *MeetingService) releaseUnlisted(ctx context.Context, meetingID, proposalID uuid.UUID) {
	holder, ok, err := s.stores.Meetings.ReservationFor(ctx, proposalID)
	if err != nil || !ok || holder != meetingID {
		return
	}
	m, err := s.stores.Meetings.Get(ctx, meetingID)
	if err != nil {
		return
	}
	if _, listed := m.ItemFor(proposalID); !listed {
		s.release(ctx, meetingID, proposalID)
	}
}

func (s *MeetingService) release(ctx context.Context, meetingID, proposalID uuid.UUID) {
	if err := s.stores.Meetings.ReleaseProposal(ctx, proposalID, meetingID); err != nil {
		log.Warn().Err(err).
			Str("meeting_id", meetingID.String()).
			Str("proposal_id", proposalID.String()).
			Msg("Failed to release agenda reservation")
	}
}

// RemoveAgendaItem takes a proposal off a SCHEDULED meeting's agenda.
func (s *MeetingService) RemoveAgendaItem(ctx context.Context, meetingID, proposalID uuid.UUID) (*models.GovernanceMeeting, error) {
	const op = "RemoveAgendaItem"

	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		if m.Status != models.MeetingScheduled {
			return false, fail(op, ErrAgendaLocked, "meeting is %s", m.Status)
		}
		n := len(m.Agenda)
		m.Agenda = slices.DeleteFunc(m.Agenda, func(item models.AgendaItem) bool { return item.ProposalID == proposalID })
		if len(m.Agenda) == n {
			return false, fail(op, ErrProposalNotFound, "proposal %s is not on the agenda", proposalID)
		}
		m.Renumber()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.release(ctx, meetingID, proposalID)
	return m, nil
}

// ReorderAgenda sets the agenda order of a SCHEDULED meeting. The ids must be
// a permutation of the proposals on the agenda.
func (s *MeetingService) ReorderAgenda(ctx context.Context, meetingID uuid.UUID, proposalIDs []uuid.UUID) (*models.GovernanceMeeting, error) {
	const op = "ReorderAgenda"

	return s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		if m.Status != models.MeetingScheduled {
			return false, fail(op, ErrAgendaLocked, "agenda order is fixed once the meeting starts")
		}
		if len(proposalIDs) != len(m.Agenda) {
			return false, fail(op, ErrValidation, "expected %d proposals, got %d", len(m.Agenda), len(proposalIDs))
		}

		reordered := make([]models.AgendaItem, 0, len(m.Agenda))
		for _, id := range proposalIDs {
			item, ok := m.ItemFor(id)
			if !ok {
				return false, fail(op, ErrValidation, "proposal %s is not on the agenda", id)
			}
			if slices.ContainsFunc(reordered, func(v models.AgendaItem) bool { return v.ProposalID == id }) {
				return false, fail(op, ErrValidation, "proposal %s listed twice", id)
			}
			reordered = append(reordered, *item)
		}
		m.Agenda = reordered
		m.Renumber()
		return true, nil
	})
}

// Start moves a SCHEDULED meeting to IN_PROGRESS and points at the first item.
func (s *MeetingService) Start(ctx context.Context, meetingID uuid.UUID, actorID string) (*models.GovernanceMeeting, error) {
	const op = "StartMeeting"

	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, now time.Time) (bool, error) {
		switch m.Status {
		case models.MeetingScheduled:
		case models.MeetingInProgress, models.MeetingCompleted:
			return false, fail(op, ErrAlreadyStarted, "meeting is %s", m.Status)
		default:
			return false, fail(op, ErrMeetingNotOpen, "meeting is %s", m.Status)
		}
		m.Status = models.MeetingInProgress
		m.StartedAt = &now
		m.CurrentItem = models.NoCurrentItem
		m.AdvancePointer()
		m.Record.RecordAttendance(actorID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().OpenMeetings.Add(ctx, 1)
	log.Info().
		Str("meeting_id", meetingID.String()).
		Str("actor_id", actorID).
		Int("agenda_items", len(m.Agenda)).
		Msg("Meeting started")
	s.publishMeeting(ctx, m, "meeting started")
	return m, nil
}

// AdvanceItemRequest advances the proposal under the agenda pointer.
type AdvanceItemRequest struct {
	MeetingID uuid.UUID
	ActorID   string
	Content   string

	// RequestID makes the call idempotent: repeating it returns the first
	// result instead of advancing again, even after the pointer has moved on.
	RequestID string
}

// AgendaResult is the outcome of processing the current agenda item.
type AgendaResult struct {
	Meeting  *models.GovernanceMeeting
	Proposal *models.Proposal

	// Event is the appended decision event, nil when the proposal was
	// already decided.
	Event *models.DecisionEvent

	// Settled is set when the item was completed and the pointer moved on.
	Settled bool
}

// AdvanceCurrentItem moves the current item's proposal one stage forward.
// Once the proposal is decided (APPROVED, WITHDRAWN or REJECTED) the item is
// completed, its outcome recorded and the pointer moved to the next item.
//
// Without a RequestID the id passed to the proposal is derived from the
// meeting, the item, the proposal version observed and the target status.
// That collapses concurrent calls made against the same version into one
// transition, but a sequential repeat sees the new version and advances
// again. Callers that retry must supply a RequestID.
func (s *MeetingService) AdvanceCurrentItem(ctx context.Context, req AdvanceItemRequest) (*AgendaResult, error) {
	const op = "AdvanceCurrentItem"

	m, err := s.get(ctx, op, req.MeetingID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(op, m); err != nil {
		return nil, err
	}

	var requestID string
	if req.RequestID != "" {
		requestID = fmt.Sprintf("meeting:%s:%s", m.MeetingID, req.RequestID)
		res, ok, err := s.replay(ctx, op, m, requestID, req)
		if err != nil || ok {
			return res, err
		}
	}
	item, ok := m.Current()
	if !ok {
		return nil, fail(op, ErrNoCurrentItem, "")
	}
	itemID := item.ItemID

	p, err := s.stores.Proposals.Get(ctx, item.ProposalID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	res := &AgendaResult{Proposal: p}
	if !p.Status.IsDecided() {
		next, ok := p.Status.Next()
		if !ok {
			return nil, fail(op, ErrInvalidTransition, "proposal is %s", p.Status)
		}
		advanced, err := s.proposals.Advance(ctx, AdvanceRequest{
			ProposalID: p.ProposalID,
			ActorID:    req.ActorID,
			To:         next,
			Content:    req.Content,
			RequestID:  cmp.Or(requestID, fmt.Sprintf("meeting:%s:item:%s:v%d:%s", m.MeetingID, itemID, p.Version, next)),
		})
		if err != nil {
			return nil, err
		}
		res.Proposal = advanced.Proposal
		res.Event = &advanced.Event
	}

	if !res.Proposal.Status.IsDecided() {
		res.Meeting = m
		return res, nil
	}

	settled, err := s.settle(ctx, op, req.MeetingID, itemID, res.Proposal, models.AgendaItemCompleted, req.Content)
	if err != nil {
		return nil, err
	}
	res.Meeting = settled
	res.Settled = true
	return res, nil
}

// replay looks for an earlier transition made under requestID on any agenda
// proposal. A found transition is returned as is, settling its item first if
// the earlier call stopped before doing so.
func (s *MeetingService) replay(ctx context.Context, op string, m *models.GovernanceMeeting,
	requestID string, req AdvanceItemRequest,
) (*AgendaResult, bool, error) {
	for _, item := range m.Agenda {
		p, err := s.stores.Proposals.Get(ctx, item.ProposalID)
		if err != nil {
			return nil, false, mapStoreError(op, err)
		}
		ev, ok := p.FindEventByRequest(requestID)
		if !ok {
			continue
		}
		if ev.ActorID != req.ActorID {
			return nil, false, fail(op, ErrUnauthorizedActor, "")
		}

		res := &AgendaResult{Meeting: m, Proposal: p, Event: ev}
		if p.Status.IsDecided() {
			settled, err := s.settle(ctx, op, m.MeetingID, item.ItemID, p, models.AgendaItemCompleted, req.Content)
			if err != nil {
				return nil, false, err
			}
			res.Meeting = settled
			res.Settled = true
		}
		return res, true, nil
	}
	return nil, false, nil
}

// settle marks an item completed or deferred, records the outcome and moves
// the pointer on if it was on the item.
func (s *MeetingService) settle(ctx context.Context, op string, meetingID, itemID uuid.UUID,
	p *models.Proposal, to models.AgendaItemStatus, notes string,
) (*models.GovernanceMeeting, error) {
	var changed bool
	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, now time.Time) (bool, error) {
		changed = false
		i := slices.IndexFunc(m.Agenda, func(item models.AgendaItem) bool { return item.ItemID == itemID })
		if i < 0 {
			return false, fail(op, ErrNoCurrentItem, "agenda item %s was removed", itemID)
		}
		if m.Agenda[i].Status.IsSettled() {
			return false, nil
		}

		m.Agenda[i].Status = to
		outcome := models.OutcomeFor(p.Status)
		if to == models.AgendaItemDeferred {
			outcome = models.OutcomeDeferred
		}
		m.Record.RecordOutcome(models.ProposalOutcome{
			ProposalID:  p.ProposalID,
			FinalStatus: p.Status,
			Outcome:     outcome,
			Notes:       notes,
			ProcessedAt: now,
		})
		if m.CurrentItem == i {
			m.AdvancePointer()
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}

	s.release(ctx, meetingID, p.ProposalID)
	telemetry.GetMetrics().AgendaItemsSettledTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", string(to))))
	log.Info().
		Str("meeting_id", meetingID.String()).
		Str("proposal_id", p.ProposalID.String()).
		Str("item_status", string(to)).
		Str("proposal_status", string(p.Status)).
		Msg("Agenda item settled")
	s.publishMeeting(ctx, m, fmt.Sprintf("%s %s", p.Title, to))
	return m, nil
}

// DeferCurrentItem defers the current item without deciding its proposal and
// frees the proposal for another meeting.
func (s *MeetingService) DeferCurrentItem(ctx context.Context, meetingID uuid.UUID, actorID, notes string) (*models.GovernanceMeeting, error) {
	const op = "DeferCurrentItem"

	m, err := s.get(ctx, op, meetingID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(op, m); err != nil {
		return nil, err
	}
	item, ok := m.Current()
	if !ok {
		return nil, fail(op, ErrNoCurrentItem, "")
	}

	p, err := s.stores.Proposals.Get(ctx, item.ProposalID)
	if err != nil {
		return nil, mapStoreError(op, err)
	}

	log.Debug().Str("actor_id", actorID).Str("proposal_id", p.ProposalID.String()).Msg("Deferring agenda item")
	return s.settle(ctx, op, meetingID, item.ItemID, p, models.AgendaItemDeferred, notes)
}

// Complete closes an IN_PROGRESS meeting once every item is completed or deferred.
func (s *MeetingService) Complete(ctx context.Context, meetingID uuid.UUID, actorID, closingNotes string) (*models.GovernanceMeeting, error) {
	const op = "CompleteMeeting"

	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, now time.Time) (bool, error) {
		if err := requireInProgress(op, m); err != nil {
			return false, err
		}
		if !m.AllSettled() {
			return false, fail(op, ErrMeetingIncomplete, "agenda items remain unprocessed")
		}
		m.Status = models.MeetingCompleted
		m.EndedAt = &now
		m.CurrentItem = models.NoCurrentItem
		m.Record.ClosingNotes = closingNotes
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.releaseAll(ctx, m)
	telemetry.GetMetrics().OpenMeetings.Add(ctx, -1)
	log.Info().
		Str("meeting_id", meetingID.String()).
		Str("actor_id", actorID).
		Int("outcomes", len(m.Record.Outcomes)).
		Msg("Meeting completed")
	s.publishMeeting(ctx, m, "meeting completed")
	return m, nil
}

// Cancel closes an open meeting without processing the rest of its agenda.
func (s *MeetingService) Cancel(ctx context.Context, meetingID uuid.UUID, actorID, reason string) (*models.GovernanceMeeting, error) {
	const op = "CancelMeeting"

	var wasInProgress bool
	m, err := s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, now time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		wasInProgress = m.Status == models.MeetingInProgress
		m.Status = models.MeetingCancelled
		m.EndedAt = &now
		m.CurrentItem = models.NoCurrentItem
		m.Record.ClosingNotes = reason
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.releaseAll(ctx, m)
	if wasInProgress {
		telemetry.GetMetrics().OpenMeetings.Add(ctx, -1)
	}
	log.Info().Str("meeting_id", meetingID.String()).Str("actor_id", actorID).Msg("Meeting cancelled")
	s.publishMeeting(ctx, m, "meeting cancelled")
	return m, nil
}

func (s *MeetingService) releaseAll(ctx context.Context, m *models.GovernanceMeeting) {
	for _, item := range m.Agenda {
		s.release(ctx, m.MeetingID, item.ProposalID)
	}
}

// RecordAttendance adds partners to the meeting record.
func (s *MeetingService) RecordAttendance(ctx context.Context, meetingID uuid.UUID, partnerIDs ...string) (*models.GovernanceMeeting, error) {
	const op = "RecordAttendance"

	return s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		m.Record.RecordAttendance(partnerIDs...)
		return true, nil
	})
}

// RecordCheckIn stores the check-in round notes.
func (s *MeetingService) RecordCheckIn(ctx context.Context, meetingID uuid.UUID, notes string) (*models.GovernanceMeeting, error) {
	const op = "RecordCheckIn"

	return s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		m.Record.CheckInNotes = notes
		return true, nil
	})
}

// AddNotes appends to the meeting's additional notes.
func (s *MeetingService) AddNotes(ctx context.Context, meetingID uuid.UUID, notes string) (*models.GovernanceMeeting, error) {
	const op = "AddNotes"

	if notes == "" {
		return nil, fail(op, ErrValidation, "notes are required")
	}
	return s.update(ctx, op, meetingID, func(m *models.GovernanceMeeting, _ time.Time) (bool, error) {
		if err := requireOpen(op, m); err != nil {
			return false, err
		}
		m.Record.AddNotes(notes)
		return true, nil
	})
}

// Summary renders the meeting record.
func (s *MeetingService) Summary(ctx context.Context, meetingID uuid.UUID) (string, error) {
	m, err := s.get(ctx, "MeetingSummary", meetingID)
	if err != nil {
		return "", err
	}
	return m.Record.Summary(), nil
}

// Get returns a meeting.
func (s *MeetingService) Get(ctx context.Context, meetingID uuid.UUID) (*models.GovernanceMeeting, error) {
	return s.get(ctx, "GetMeeting", meetingID)
}

// List returns a circle's meetings in schedule order.
func (s *MeetingService) List(ctx context.Context, circleID uuid.UUID) ([]*models.GovernanceMeeting, error) {
	ms, err := s.stores.Meetings.ListByCircle(ctx, circleID)
	if err != nil {
		return nil, mapStoreError("ListMeetings", err)
	}
	return ms, nil
}
