package authz

import (
	"maps"
	"slices"

	"github.com/wolfeidau/governor/internal/models"
)

// Capacity is a standing an actor holds relative to a proposal.
type Capacity string

const (
	CapacityProposer     Capacity = "proposer"
	CapacityFacilitator  Capacity = "facilitator"
	CapacitySecretary    Capacity = "secretary"
	CapacityCircleLead   Capacity = "circle_lead"
	CapacityCircleRep    Capacity = "circle_rep"
	CapacityCircleMember Capacity = "circle_member"
	CapacityPartner      Capacity = "partner"
	CapacityObjector     Capacity = "objector"
)

var knownCapacities = []Capacity{
	CapacityProposer,
	CapacityFacilitator,
	CapacitySecretary,
	CapacityCircleLead,
	CapacityCircleRep,
	CapacityCircleMember,
	CapacityPartner,
	CapacityObjector,
}

// IsValid returns true for known capacities.
func (c Capacity) IsValid() bool {
	return slices.Contains(knownCapacities, c)
}

// Action is an operation guarded by the policy.
type Action string

const (
	ActionProposalCreate     Action = "proposal.create"
	ActionQuestionAsk        Action = "question.ask"
	ActionQuestionAnswer     Action = "question.answer"
	ActionReactionAdd        Action = "reaction.add"
	ActionAmendmentAdd       Action = "amendment.add"
	ActionObjectionRaise     Action = "objection.raise"
	ActionObjectionIntegrate Action = "objection.integrate"
	ActionObjectionWithdraw  Action = "objection.withdraw"
)

const transitionPrefix = "transition:"

// TransitionAction is the action guarding a move to status to.
func TransitionAction(to models.ProposalStatus) Action {
	return Action(transitionPrefix + string(to))
}

var subActions = []Action{
	ActionProposalCreate,
	ActionQuestionAsk,
	ActionQuestionAnswer,
	ActionReactionAdd,
	ActionAmendmentAdd,
	ActionObjectionRaise,
	ActionObjectionIntegrate,
	ActionObjectionWithdraw,
}

// humanTargets are the statuses an actor may request; APPLIED and DRAFT are not among them.
var humanTargets = []models.ProposalStatus{
	models.StatusSubmitted,
	models.StatusProposalStage,
	models.StatusClarificationStage,
	models.StatusReactionStage,
	models.StatusAmendStage,
	models.StatusObjectionStage,
	models.StatusIntegrationStage,
	models.StatusApproved,
	models.StatusWithdrawn,
	models.StatusRejected,
}

// IsValid returns true for sub-actions and transitions to a status an actor may request.
func (a Action) IsValid() bool {
	if slices.Contains(subActions, a) {
		return true
	}
	for _, s := range humanTargets {
		if a == TransitionAction(s) {
			return true
		}
	}
	return false
}

// Capacities is the set of capacities an actor holds.
type Capacities map[Capacity]bool

// NewCapacities builds a set from a list.
func NewCapacities(cs ...Capacity) Capacities {
	set := Capacities{}
	for _, c := range cs {
		set[c] = true
	}
	return set
}

// Has returns true if the set contains c.
func (c Capacities) Has(capacity Capacity) bool {
	return c[capacity]
}

// List returns the capacities in a stable order.
func (c Capacities) List() []Capacity {
	return slices.Sorted(maps.Keys(c))
}

// Policy maps each action to the capacities allowed to perform it. An action
// with no entry is denied.
type Policy struct {
	rules map[Action][]Capacity
}

// defaultRules is the IDM-standard matrix: the facilitator drives the
// process, the proposer owns the proposal content, any partner may take part.
var defaultRules = map[Action][]Capacity{
	TransitionAction(models.StatusSubmitted):          {CapacityProposer},
	TransitionAction(models.StatusProposalStage):      {CapacityFacilitator},
	TransitionAction(models.StatusClarificationStage): {CapacityFacilitator},
	TransitionAction(models.StatusReactionStage):      {CapacityFacilitator},
	TransitionAction(models.StatusAmendStage):         {CapacityFacilitator},
	TransitionAction(models.StatusObjectionStage):     {CapacityFacilitator},
	TransitionAction(models.StatusIntegrationStage):   {CapacityFacilitator},
	TransitionAction(models.StatusApproved):           {CapacityFacilitator},
	TransitionAction(models.StatusRejected):           {CapacityFacilitator},
	TransitionAction(models.StatusWithdrawn):          {CapacityProposer},

	ActionProposalCreate:     {CapacityPartner},
	ActionQuestionAsk:        {CapacityPartner},
	ActionQuestionAnswer:     {CapacityProposer},
	ActionReactionAdd:        {CapacityPartner},
	ActionAmendmentAdd:       {CapacityProposer},
	ActionObjectionRaise:     {CapacityPartner},
	ActionObjectionIntegrate: {CapacityFacilitator, CapacityProposer},
	ActionObjectionWithdraw:  {CapacityObjector},
}

// DefaultPolicy returns the built-in permission matrix.
func DefaultPolicy() *Policy {
	p := &Policy{rules: make(map[Action][]Capacity, len(defaultRules))}
	for action, caps := range defaultRules {
		p.rules[action] = slices.Clone(caps)
	}
	return p
}

// Allows returns true if any held capacity is permitted for the action.
func (p *Policy) Allows(action Action, held Capacities) bool {
	for _, c := range p.rules[action] {
		if held.Has(c) {
			return true
		}
	}
	return false
}

// Allowed returns the capacities permitted for an action.
func (p *Policy) Allowed(action Action) []Capacity {
	return slices.Clone(p.rules[action])
}

// Actions lists every action with a rule, sorted.
func (p *Policy) Actions() []Action {
	return slices.Sorted(maps.Keys(p.rules))
}
