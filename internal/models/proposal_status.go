package models

import "slices"

// ProposalStatus is the position of a proposal in the Integrative
// Decision-Making process.
type ProposalStatus string

const (
	StatusDraft              ProposalStatus = "DRAFT"
	StatusSubmitted          ProposalStatus = "SUBMITTED"
	StatusProposalStage      ProposalStatus = "PROPOSAL_STAGE"
	StatusClarificationStage ProposalStatus = "CLARIFICATION_STAGE"
	StatusReactionStage      ProposalStatus = "REACTION_STAGE"
	StatusAmendStage         ProposalStatus = "AMEND_STAGE"
	StatusObjectionStage     ProposalStatus = "OBJECTION_STAGE"
	StatusIntegrationStage   ProposalStatus = "INTEGRATION_STAGE"
	StatusApproved           ProposalStatus = "APPROVED"
	StatusApplied            ProposalStatus = "APPLIED"
	StatusWithdrawn          ProposalStatus = "WITHDRAWN"
	StatusRejected           ProposalStatus = "REJECTED"
)

// stageOrder is the forward path every proposal follows.
var stageOrder = []ProposalStatus{
	StatusDraft,
	StatusSubmitted,
	StatusProposalStage,
	StatusClarificationStage,
	StatusReactionStage,
	StatusAmendStage,
	StatusObjectionStage,
	StatusIntegrationStage,
	StatusApproved,
	StatusApplied,
}

// validTransitions defines allowed state transitions.
// Key is current state, value is list of allowed next states.
var validTransitions = map[ProposalStatus][]ProposalStatus{
	StatusDraft:              {StatusSubmitted, StatusWithdrawn},
	StatusSubmitted:          {StatusProposalStage, StatusWithdrawn},
	StatusProposalStage:      {StatusClarificationStage, StatusWithdrawn},
	StatusClarificationStage: {StatusReactionStage, StatusWithdrawn},
	StatusReactionStage:      {StatusAmendStage, StatusWithdrawn},
	StatusAmendStage:         {StatusObjectionStage, StatusWithdrawn},
	StatusObjectionStage:     {StatusIntegrationStage, StatusAmendStage, StatusRejected, StatusWithdrawn},
	StatusIntegrationStage:   {StatusApproved, StatusWithdrawn},
	StatusApproved:           {StatusApplied},
	StatusApplied:            {}, // Terminal state
	StatusWithdrawn:          {}, // Terminal state
	StatusRejected:           {}, // Terminal state
}

// IsValid returns true if the status is a known proposal status.
func (s ProposalStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if transition to the target status is allowed.
func (s ProposalStatus) CanTransitionTo(target ProposalStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	return slices.Contains(allowed, target)
}

// Next returns the following status on the forward path.
func (s ProposalStatus) Next() (ProposalStatus, bool) {
	i := slices.Index(stageOrder, s)
	if i < 0 || i == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[i+1], true
}

// IsFinal returns true once the proposal can no longer change: APPLIED,
// WITHDRAWN or REJECTED.
func (s ProposalStatus) IsFinal() bool {
	return s == StatusApplied || s == StatusWithdrawn || s == StatusRejected
}

// IsDecided returns true once the IDM cycle has ended, including APPROVED.
func (s ProposalStatus) IsDecided() bool {
	return s == StatusApproved || s.IsFinal()
}

// IsPreApproval returns true for every status before APPROVED on the forward path.
func (s ProposalStatus) IsPreApproval() bool {
	i := slices.Index(stageOrder, s)
	return i >= 0 && i < slices.Index(stageOrder, StatusApproved)
}

// ProposalType determines how an approved proposal mutates the hierarchy.
type ProposalType string

const (
	ProposalTypeRoleModification      ProposalType = "ROLE_MODIFICATION"
	ProposalTypePolicyAdjustment      ProposalType = "POLICY_ADJUSTMENT"
	ProposalTypeCircleStructureChange ProposalType = "CIRCLE_STRUCTURE_CHANGE"
	ProposalTypeProcessOptimization   ProposalType = "PROCESS_OPTIMIZATION"
)

// IsValid returns true for known proposal types.
func (t ProposalType) IsValid() bool {
	switch t {
	case ProposalTypeRoleModification, ProposalTypePolicyAdjustment,
		ProposalTypeCircleStructureChange, ProposalTypeProcessOptimization:
		return true
	default:
		return false
	}
}
