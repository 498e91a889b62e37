package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Tension is the gap between current and desired state that motivates a proposal.
type Tension struct {
	Description  string   `json:"description"`
	CurrentState string   `json:"current_state"`
	DesiredState string   `json:"desired_state"`
	Examples     []string `json:"examples"`
	Context      string   `json:"context,omitempty"`
}

// Question is a clarifying question asked during CLARIFICATION_STAGE.
type Question struct {
	QuestionID uuid.UUID  `json:"question_id"`
	AskerID    string     `json:"asker_id"`
	Text       string     `json:"text"`
	Answer     string     `json:"answer,omitempty"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// IsAnswered returns true once the proposer has answered the question.
func (q *Question) IsAnswered() bool {
	return q.AnsweredAt != nil
}

// Reaction is a partner's reaction recorded during REACTION_STAGE.
type Reaction struct {
	ReactionID uuid.UUID `json:"reaction_id"`
	ReactorID  string    `json:"reactor_id"`
	Content    string    `json:"content"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Amendment is a change the proposer accepted during AMEND_STAGE or INTEGRATION_STAGE.
type Amendment struct {
	AmendmentID uuid.UUID `json:"amendment_id"`
	AuthorID    string    `json:"author_id"`
	Description string    `json:"description"`
	Reason      string    `json:"reason,omitempty"`
	Mutation    *Mutation `json:"mutation,omitempty"` // replaces the proposal mutation when set
	CreatedAt   time.Time `json:"created_at"`
}

// ObjectionStatus is the sub-state of a single objection.
type ObjectionStatus string

const (
	ObjectionOpen       ObjectionStatus = "OPEN"
	ObjectionIntegrated ObjectionStatus = "INTEGRATED"
	ObjectionWithdrawn  ObjectionStatus = "WITHDRAWN"
)

// IsTerminal returns true for INTEGRATED and WITHDRAWN.
func (s ObjectionStatus) IsTerminal() bool {
	return s == ObjectionIntegrated || s == ObjectionWithdrawn
}

// ObjectionCriteria captures the tests an objection must pass to be valid.
type ObjectionCriteria struct {
	ReducesCapability      bool `json:"reduces_capability"`
	LimitsAccountability   bool `json:"limits_accountability"`
	ProblemNotExistWithout bool `json:"problem_not_exist_without"`
	CausesHarm             bool `json:"causes_harm"`
}

// IsValid returns true if at least one criterion holds.
func (c ObjectionCriteria) IsValid() bool {
	return c.ReducesCapability || c.LimitsAccountability || c.ProblemNotExistWithout || c.CausesHarm
}

// Objection is raised during OBJECTION_STAGE and must reach a terminal
// sub-state before the proposal can move to INTEGRATION_STAGE.
type Objection struct {
	ObjectionID uuid.UUID         `json:"objection_id"`
	ObjectorID  string            `json:"objector_id"`
	Reasoning   string            `json:"reasoning"`
	Criteria    ObjectionCriteria `json:"criteria"`
	Status      ObjectionStatus   `json:"status"`
	RaisedAt    time.Time         `json:"raised_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy  string            `json:"resolved_by,omitempty"`
	Resolution  string            `json:"resolution,omitempty"`
}

// Proposal is a suggested governance change moving through the IDM process.
// Status is a denormalized copy of the status implied by History.
type Proposal struct {
	ProposalID  uuid.UUID       `json:"proposal_id"`
	OrgID       uuid.UUID       `json:"org_id"`
	CircleID    uuid.UUID       `json:"circle_id"`
	Title       string          `json:"title"`
	Tension     Tension         `json:"tension"`
	Type        ProposalType    `json:"proposal_type"`
	ProposerID  string          `json:"proposer_id"`
	Status      ProposalStatus  `json:"status"`
	Mutation    *Mutation       `json:"mutation,omitempty"`
	Questions   []Question      `json:"questions"`
	Reactions   []Reaction      `json:"reactions"`
	Amendments  []Amendment     `json:"amendments"`
	Objections  []Objection     `json:"objections"`
	History     []DecisionEvent `json:"decision_history"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OpenObjections returns the objections still in the OPEN sub-state.
func (p *Proposal) OpenObjections() []Objection {
	var open []Objection
	for _, o := range p.Objections {
		if o.Status == ObjectionOpen {
			open = append(open, o)
		}
	}
	return open
}

// FindEventByRequest returns the recorded event for a request id, if any.
func (p *Proposal) FindEventByRequest(requestID string) (*DecisionEvent, bool) {
	if requestID == "" {
		return nil, false
	}
	for i := range p.History {
		if p.History[i].RequestID == requestID {
			ev := p.History[i]
			return &ev, true
		}
	}
	return nil, false
}

// LastEvent returns the most recent decision event.
func (p *Proposal) LastEvent() (DecisionEvent, bool) {
	if len(p.History) == 0 {
		return DecisionEvent{}, false
	}
	return p.History[len(p.History)-1], true
}

// Append adds an event to the history, assigning its sequence number, and
// applies any status change it carries.
func (p *Proposal) Append(ev DecisionEvent) DecisionEvent {
	ev.Sequence = int64(len(p.History)) + 1
	p.History = append(p.History, ev)
	if ev.IsTransition() {
		p.Status = ev.ToStatus
	}
	p.UpdatedAt = ev.Timestamp
	return ev
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	clone := *p
	clone.Tension.Examples = slices.Clone(p.Tension.Examples)
	clone.Mutation = p.Mutation.Clone()
	clone.Questions = slices.Clone(p.Questions)
	for i := range clone.Questions {
		if p.Questions[i].AnsweredAt != nil {
			at := *p.Questions[i].AnsweredAt
			clone.Questions[i].AnsweredAt = &at
		}
	}
	clone.Reactions = slices.Clone(p.Reactions)
	clone.Amendments = slices.Clone(p.Amendments)
	for i := range clone.Amendments {
		clone.Amendments[i].Mutation = p.Amendments[i].Mutation.Clone()
	}
	clone.Objections = slices.Clone(p.Objections)
	for i := range clone.Objections {
		if p.Objections[i].ResolvedAt != nil {
			at := *p.Objections[i].ResolvedAt
			clone.Objections[i].ResolvedAt = &at
		}
	}
	clone.History = slices.Clone(p.History)
	if p.SubmittedAt != nil {
		at := *p.SubmittedAt
		clone.SubmittedAt = &at
	}
	return &clone
}
