package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func agenda(n int) *GovernanceMeeting {
	m := &GovernanceMeeting{Status: MeetingInProgress, CurrentItem: NoCurrentItem}
	for range n {
		m.Agenda = append(m.Agenda, AgendaItem{ItemID: NewID(), ProposalID: NewID(), Status: AgendaItemPending})
	}
	m.Renumber()
	return m
}

func TestGovernanceMeeting_AdvancePointer(t *testing.T) {
	m := agenda(3)
	m.Agenda[1].Status = AgendaItemDeferred

	require.True(t, m.AdvancePointer())
	require.Equal(t, 0, m.CurrentItem)
	require.Equal(t, AgendaItemInProgress, m.Agenda[0].Status)

	m.Agenda[0].Status = AgendaItemCompleted
	require.True(t, m.AdvancePointer())
	require.Equal(t, 2, m.CurrentItem, "settled items are skipped")

	m.Agenda[2].Status = AgendaItemCompleted
	require.False(t, m.AdvancePointer())
	require.Equal(t, NoCurrentItem, m.CurrentItem)
	_, ok := m.Current()
	require.False(t, ok)
	require.True(t, m.AllSettled())

	empty := agenda(0)
	require.False(t, empty.AdvancePointer())
	require.True(t, empty.AllSettled())
}

func TestGovernanceMeeting_Clone(t *testing.T) {
	m := agenda(2)
	m.Record.RecordAttendance("pat")
	clone := m.Clone()
	clone.Agenda[0].Title = "changed"
	clone.Record.Attendees[0] = "sam"

	require.Empty(t, m.Agenda[0].Title)
	require.Equal(t, "pat", m.Record.Attendees[0])

	item, ok := m.ItemFor(m.Agenda[1].ProposalID)
	require.True(t, ok)
	require.Equal(t, 1, item.OrderIndex)
}

func TestMeetingRecord(t *testing.T) {
	var r MeetingRecord
	r.RecordAttendance("pat", "", "quinn", "pat")
	require.Equal(t, []string{"pat", "quinn"}, r.Attendees)

	id := NewID()
	r.RecordOutcome(ProposalOutcome{ProposalID: id, Outcome: OutcomeDeferred})
	r.RecordOutcome(ProposalOutcome{ProposalID: id, Outcome: OutcomeApproved})
	r.RecordOutcome(ProposalOutcome{ProposalID: NewID(), Outcome: OutcomeRejected})
	require.Len(t, r.Outcomes, 2, "a later outcome replaces an earlier one")

	r.AddNotes("first")
	r.AddNotes("second")
	require.Equal(t, "first\nsecond", r.AdditionalNotes)

	summary := r.Summary()
	require.Contains(t, summary, "Attendees: 2")
	require.Contains(t, summary, "Totals: Approved(1) Rejected(1)")
	require.Contains(t, summary, "first\nsecond")
}

func TestOutcomeFor(t *testing.T) {
	require.Equal(t, OutcomeApproved, OutcomeFor(StatusApplied))
	require.Equal(t, OutcomeWithdrawn, OutcomeFor(StatusWithdrawn))
	require.Equal(t, OutcomeRejected, OutcomeFor(StatusRejected))
	require.Equal(t, OutcomeDeferred, OutcomeFor(StatusReactionStage))
}
