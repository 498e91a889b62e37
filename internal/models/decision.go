package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DecisionEventType classifies an entry in a proposal's decision history.
type DecisionEventType string

const (
	EventProposalCreated     DecisionEventType = "PROPOSAL_CREATED"
	EventProposalSubmitted   DecisionEventType = "PROPOSAL_SUBMITTED"
	EventStageChanged        DecisionEventType = "STAGE_CHANGED"
	EventQuestionAsked       DecisionEventType = "QUESTION_ASKED"
	EventQuestionAnswered    DecisionEventType = "QUESTION_ANSWERED"
	EventReactionAdded       DecisionEventType = "REACTION_ADDED"
	EventProposalAmended     DecisionEventType = "PROPOSAL_AMENDED"
	EventObjectionRaised     DecisionEventType = "OBJECTION_RAISED"
	EventObjectionIntegrated DecisionEventType = "OBJECTION_INTEGRATED"
	EventObjectionWithdrawn  DecisionEventType = "OBJECTION_WITHDRAWN"
	EventProposalApproved    DecisionEventType = "PROPOSAL_APPROVED"
	EventProposalApplied     DecisionEventType = "PROPOSAL_APPLIED"
	EventProposalWithdrawn   DecisionEventType = "PROPOSAL_WITHDRAWN"
	EventProposalRejected    DecisionEventType = "PROPOSAL_REJECTED"
)

// TransitionEventType returns the event type recorded when a proposal moves to status.
func TransitionEventType(to ProposalStatus) DecisionEventType {
	switch to {
	case StatusSubmitted:
		return EventProposalSubmitted
	case StatusApproved:
		return EventProposalApproved
	case StatusApplied:
		return EventProposalApplied
	case StatusWithdrawn:
		return EventProposalWithdrawn
	case StatusRejected:
		return EventProposalRejected
	default:
		return EventStageChanged
	}
}

// DecisionEvent is an immutable entry in a proposal's decision history.
// Events that change status carry FromStatus and ToStatus.
type DecisionEvent struct {
	EventID    uuid.UUID         `json:"event_id"`
	ProposalID uuid.UUID         `json:"proposal_id"`
	Sequence   int64             `json:"sequence"` // 1-based, dense
	Type       DecisionEventType `json:"event_type"`
	ActorID    string            `json:"actor_id,omitempty"`
	Content    string            `json:"content"`
	FromStatus ProposalStatus    `json:"from_status,omitempty"`
	ToStatus   ProposalStatus    `json:"to_status,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// IsTransition returns true if the event changed the proposal status.
func (e DecisionEvent) IsTransition() bool {
	return e.ToStatus != ""
}

// ErrHistoryDiverged is returned when a decision history cannot be replayed.
var ErrHistoryDiverged = errors.New("decision history diverged")

// ReplayStatus derives a proposal status by replaying its decision history
// from DRAFT. It fails if the history is not dense or contains a transition
// that is not legal from the replayed status.
func ReplayStatus(history []DecisionEvent) (ProposalStatus, error) {
	status := StatusDraft
	for i, ev := range history {
		if ev.Sequence != int64(i)+1 {
			return "", fmt.Errorf("%w: event %d has sequence %d", ErrHistoryDiverged, i+1, ev.Sequence)
		}
		if !ev.IsTransition() {
			continue
		}
		if ev.FromStatus != status {
			return "", fmt.Errorf("%w: event %d moves from %s but replayed status is %s",
				ErrHistoryDiverged, ev.Sequence, ev.FromStatus, status)
		}
		if !status.CanTransitionTo(ev.ToStatus) {
			return "", fmt.Errorf("%w: event %d moves %s -> %s",
				ErrHistoryDiverged, ev.Sequence, status, ev.ToStatus)
		}
		status = ev.ToStatus
	}
	return status, nil
}

// VerifyStatus checks that the denormalized status matches the replayed history.
func VerifyStatus(p *Proposal) error {
	replayed, err := ReplayStatus(p.History)
	if err != nil {
		return err
	}
	if replayed != p.Status {
		return fmt.Errorf("%w: status is %s but history replays to %s", ErrHistoryDiverged, p.Status, replayed)
	}
	return nil
}

// IsPrefixOf reports whether history a is an unmodified prefix of history b.
func IsPrefixOf(a, b []DecisionEvent) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i].EventID != b[i].EventID || a[i].Sequence != b[i].Sequence ||
			a[i].Type != b[i].Type || a[i].ToStatus != b[i].ToStatus || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}
