package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the meeting-level state. Meetings only move forward.
type MeetingStatus string

const (
	MeetingScheduled  MeetingStatus = "SCHEDULED"
	MeetingInProgress MeetingStatus = "IN_PROGRESS"
	MeetingCompleted  MeetingStatus = "COMPLETED"
	MeetingCancelled  MeetingStatus = "CANCELLED"
)

// IsOpen returns true for SCHEDULED and IN_PROGRESS meetings.
func (s MeetingStatus) IsOpen() bool {
	return s == MeetingScheduled || s == MeetingInProgress
}

// AgendaItemStatus is the item-level state, separate from the meeting state.
type AgendaItemStatus string

const (
	AgendaItemPending    AgendaItemStatus = "PENDING"
	AgendaItemInProgress AgendaItemStatus = "IN_PROGRESS"
	AgendaItemCompleted  AgendaItemStatus = "COMPLETED"
	AgendaItemDeferred   AgendaItemStatus = "DEFERRED"
)

// IsSettled returns true once the item needs no more processing in this meeting.
func (s AgendaItemStatus) IsSettled() bool {
	return s == AgendaItemCompleted || s == AgendaItemDeferred
}

// AgendaItem references exactly one proposal.
type AgendaItem struct {
	ItemID     uuid.UUID        `json:"item_id"`
	ProposalID uuid.UUID        `json:"proposal_id"`
	Title      string           `json:"title"`
	OrderIndex int              `json:"order_index"` // dense, starting at 0
	Status     AgendaItemStatus `json:"status"`
}

// Outcome labels recorded per processed proposal.
const (
	OutcomeApproved  = "Approved"
	OutcomeWithdrawn = "Withdrawn"
	OutcomeRejected  = "Rejected"
	OutcomeDeferred  = "Deferred"
)

// OutcomeFor returns the outcome label for a decided proposal status.
func OutcomeFor(s ProposalStatus) string {
	switch s {
	case StatusApproved, StatusApplied:
		return OutcomeApproved
	case StatusWithdrawn:
		return OutcomeWithdrawn
	case StatusRejected:
		return OutcomeRejected
	default:
		return OutcomeDeferred
	}
}

// ProposalOutcome records how an agenda item ended.
type ProposalOutcome struct {
	ProposalID  uuid.UUID      `json:"proposal_id"`
	FinalStatus ProposalStatus `json:"final_status"`
	Outcome     string         `json:"outcome"`
	Notes       string         `json:"notes,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// MeetingRecord is the secretary's record of a meeting.
type MeetingRecord struct {
	CheckInNotes    string            `json:"check_in_notes,omitempty"`
	AdditionalNotes string            `json:"additional_notes,omitempty"`
	ClosingNotes    string            `json:"closing_notes,omitempty"`
	Attendees       []string          `json:"attendees"`
	Outcomes        []ProposalOutcome `json:"outcomes"`
}

// RecordOutcome stores the outcome for a proposal, replacing an earlier one.
func (r *MeetingRecord) RecordOutcome(o ProposalOutcome) {
	r.Outcomes = slices.DeleteFunc(r.Outcomes, func(v ProposalOutcome) bool { return v.ProposalID == o.ProposalID })
	r.Outcomes = append(r.Outcomes, o)
}

// RecordAttendance adds attendees, ignoring duplicates.
func (r *MeetingRecord) RecordAttendance(partnerIDs ...string) {
	for _, id := range partnerIDs {
		if id != "" && !slices.Contains(r.Attendees, id) {
			r.Attendees = append(r.Attendees, id)
		}
	}
}

// AddNotes appends free-form notes.
func (r *MeetingRecord) AddNotes(notes string) {
	if r.AdditionalNotes == "" {
		r.AdditionalNotes = notes
		return
	}
	r.AdditionalNotes += "\n" + notes
}

// Summary renders a plain-text summary of the record.
func (r *MeetingRecord) Summary() string {
	var b strings.Builder
	b.WriteString("=== Meeting Summary ===\n\n")
	fmt.Fprintf(&b, "Attendees: %d\n\n", len(r.Attendees))
	if r.CheckInNotes != "" {
		fmt.Fprintf(&b, "Check-in:\n%s\n\n", r.CheckInNotes)
	}
	if len(r.Outcomes) > 0 {
		b.WriteString("Proposals processed:\n")
		counts := map[string]int{}
		var labels []string
		for _, o := range r.Outcomes {
			fmt.Fprintf(&b, "- %s: %s\n", o.ProposalID, o.Outcome)
			if counts[o.Outcome] == 0 {
				labels = append(labels, o.Outcome)
			}
			counts[o.Outcome]++
		}
		b.WriteString("\nTotals:")
		for _, l := range labels {
			fmt.Fprintf(&b, " %s(%d)", l, counts[l])
		}
		b.WriteString("\n\n")
	}
	if r.AdditionalNotes != "" {
		fmt.Fprintf(&b, "Notes:\n%s\n\n", r.AdditionalNotes)
	}
	if r.ClosingNotes != "" {
		fmt.Fprintf(&b, "Closing:\n%s\n", r.ClosingNotes)
	}
	return b.String()
}

// NoCurrentItem is the agenda pointer value when no item is being processed.
const NoCurrentItem = -1

// GovernanceMeeting sequences an agenda of proposals for one circle.
type GovernanceMeeting struct {
	MeetingID     uuid.UUID     `json:"meeting_id"`
	OrgID         uuid.UUID     `json:"org_id"`
	CircleID      uuid.UUID     `json:"circle_id"`
	ScheduledAt   time.Time     `json:"scheduled_at"`
	Duration      time.Duration `json:"duration"`
	Status        MeetingStatus `json:"status"`
	FacilitatorID string        `json:"facilitator_id,omitempty"`
	SecretaryID   string        `json:"secretary_id,omitempty"`
	Participants  []string      `json:"participants"`
	Agenda        []AgendaItem  `json:"agenda"`
	CurrentItem   int           `json:"current_item"` // index into Agenda or NoCurrentItem
	Record        MeetingRecord `json:"record"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Current returns the item under the agenda pointer.
func (m *GovernanceMeeting) Current() (*AgendaItem, bool) {
	if m.CurrentItem < 0 || m.CurrentItem >= len(m.Agenda) {
		return nil, false
	}
	return &m.Agenda[m.CurrentItem], true
}

// ItemFor returns the agenda item referencing a proposal.
func (m *GovernanceMeeting) ItemFor(proposalID uuid.UUID) (*AgendaItem, bool) {
	for i := range m.Agenda {
		if m.Agenda[i].ProposalID == proposalID {
			return &m.Agenda[i], true
		}
	}
	return nil, false
}

// AdvancePointer moves the agenda pointer to the next unsettled item and
// marks it in progress. It returns false when the agenda is exhausted.
func (m *GovernanceMeeting) AdvancePointer() bool {
	for i := m.CurrentItem + 1; i < len(m.Agenda); i++ {
		if !m.Agenda[i].Status.IsSettled() {
			m.CurrentItem = i
			m.Agenda[i].Status = AgendaItemInProgress
			return true
		}
	}
	m.CurrentItem = NoCurrentItem
	return false
}

// AllSettled returns true when every agenda item is completed or deferred.
func (m *GovernanceMeeting) AllSettled() bool {
	for _, item := range m.Agenda {
		if !item.Status.IsSettled() {
			return false
		}
	}
	return true
}

// Renumber rewrites order indexes so they are dense in agenda order.
func (m *GovernanceMeeting) Renumber() {
	for i := range m.Agenda {
		m.Agenda[i].OrderIndex = i
	}
}

// Clone returns a deep copy of the meeting.
func (m *GovernanceMeeting) Clone() *GovernanceMeeting {
	clone := *m
	clone.Participants = slices.Clone(m.Participants)
	clone.Agenda = slices.Clone(m.Agenda)
	clone.Record.Attendees = slices.Clone(m.Record.Attendees)
	clone.Record.Outcomes = slices.Clone(m.Record.Outcomes)
	if m.StartedAt != nil {
		at := *m.StartedAt
		clone.StartedAt = &at
	}
	if m.EndedAt != nil {
		at := *m.EndedAt
		clone.EndedAt = &at
	}
	return &clone
}
