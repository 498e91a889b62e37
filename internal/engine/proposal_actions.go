package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/governor/internal/authz"
	"github.com/wolfeidau/governor/internal/models"
)

// Sub-actions record questions, reactions, amendments and objections. Each
// appends one event and leaves the status unchanged.

func requireStage(op string, p *models.Proposal, stages ...models.ProposalStatus) error {
	if !slices.Contains(stages, p.Status) {
		return fail(op, ErrWrongStage, "proposal is in %s", p.Status)
	}
	return nil
}

// QuestionRequest asks a clarifying question.
type QuestionRequest struct {
	ProposalID uuid.UUID
	ActorID    string
	Text       string
	RequestID  string
}

// AskQuestion records a clarifying question during CLARIFICATION_STAGE.
func (s *ProposalService) AskQuestion(ctx context.Context, req QuestionRequest) (*Result, error) {
	const op = "AskQuestion"

	if strings.TrimSpace(req.Text) == "" {
		return nil, fail(op, ErrValidation, "question text is required")
	}

	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			if err := s.authorize(op, authz.ActionQuestionAsk, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusClarificationStage); err != nil {
				return models.DecisionEvent{}, err
			}
			p.Questions = append(p.Questions, models.Question{
				QuestionID: models.NewID(),
				AskerID:    req.ActorID,
				Text:       req.Text,
				AskedAt:    now,
			})
			return models.DecisionEvent{Type: models.EventQuestionAsked, Content: req.Text}, nil
		},
	})
}

// AnswerRequest answers a clarifying question.
type AnswerRequest struct {
	ProposalID uuid.UUID
	QuestionID uuid.UUID
	ActorID    string
	Answer     string
	RequestID  string
}

// AnswerQuestion records the proposer's answer. A question is answered once.
func (s *ProposalService) AnswerQuestion(ctx context.Context, req AnswerRequest) (*Result, error) {
	const op = "AnswerQuestion"

	if strings.TrimSpace(req.Answer) == "" {
		return nil, fail(op, ErrValidation, "answer is required")
	}

	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			if err := s.authorize(op, authz.ActionQuestionAnswer, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusClarificationStage); err != nil {
				return models.DecisionEvent{}, err
			}
			i := slices.IndexFunc(p.Questions, func(q models.Question) bool { return q.QuestionID == req.QuestionID })
			if i < 0 {
				return models.DecisionEvent{}, fail(op, ErrQuestionNotFound, "question %s not found", req.QuestionID)
			}
			q := &p.Questions[i]
			if q.IsAnswered() {
				return models.DecisionEvent{}, fail(op, ErrAlreadyAnswered, "question %s already answered", req.QuestionID)
			}
			q.Answer = req.Answer
			q.AnsweredAt = &now
			return models.DecisionEvent{Type: models.EventQuestionAnswered, Content: req.Answer}, nil
		},
	})
}

// ReactionRequest records a reaction.
type ReactionRequest struct {
	ProposalID uuid.UUID
	ActorID    string
	Content    string
	RequestID  string
}

// AddReaction records a partner's reaction during REACTION_STAGE.
func (s *ProposalService) AddReaction(ctx context.Context, req ReactionRequest) (*Result, error) {
	const op = "AddReaction"

	if strings.TrimSpace(req.Content) == "" {
		return nil, fail(op, ErrValidation, "reaction content is required")
	}

	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			if err := s.authorize(op, authz.ActionReactionAdd, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusReactionStage); err != nil {
				return models.DecisionEvent{}, err
			}
			p.Reactions = append(p.Reactions, models.Reaction{
				ReactionID: models.NewID(),
				ReactorID:  req.ActorID,
				Content:    req.Content,
				OrderIndex: len(p.Reactions),
				CreatedAt:  now,
			})
			return models.DecisionEvent{Type: models.EventReactionAdded, Content: req.Content}, nil
		},
	})
}

// AmendRequest records an amendment, optionally replacing the mutation.
type AmendRequest struct {
	ProposalID  uuid.UUID
	ActorID     string
	Description string
	Reason      string
	Mutation    *models.Mutation
	RequestID   string
}

// Amend records a proposer amendment during AMEND_STAGE or INTEGRATION_STAGE.
// A non-nil Mutation replaces the proposal's mutation.
func (s *ProposalService) Amend(ctx context.Context, req AmendRequest) (*Result, error) {
	const op = "Amend"

	if strings.TrimSpace(req.Description) == "" {
		return nil, fail(op, ErrValidation, "amendment description is required")
	}

	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			if err := s.authorize(op, authz.ActionAmendmentAdd, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusAmendStage, models.StatusIntegrationStage); err != nil {
				return models.DecisionEvent{}, err
			}
			if req.Mutation != nil {
				if err := req.Mutation.Validate(p.Type); err != nil {
					return models.DecisionEvent{}, wrap(op, ErrValidation, err)
				}
				p.Mutation = req.Mutation.Clone()
			}
			p.Amendments = append(p.Amendments, models.Amendment{
				AmendmentID: models.NewID(),
				AuthorID:    req.ActorID,
				Description: req.Description,
				Reason:      req.Reason,
				Mutation:    req.Mutation.Clone(),
				CreatedAt:   now,
			})
			return models.DecisionEvent{Type: models.EventProposalAmended, Content: req.Description}, nil
		},
	})
}

// ObjectionRequest raises an objection.
type ObjectionRequest struct {
	ProposalID uuid.UUID
	ActorID    string
	Reasoning  string
	Criteria   models.ObjectionCriteria
	RequestID  string
}

// RaiseObjection records an OPEN objection during OBJECTION_STAGE. The
// objection must meet at least one validity criterion.
func (s *ProposalService) RaiseObjection(ctx context.Context, req ObjectionRequest) (*Result, error) {
	const op = "RaiseObjection"

	if strings.TrimSpace(req.Reasoning) == "" {
		return nil, fail(op, ErrValidation, "objection reasoning is required")
	}
	if !req.Criteria.IsValid() {
		return nil, fail(op, ErrValidation, "objection meets none of the validity criteria")
	}

	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			if err := s.authorize(op, authz.ActionObjectionRaise, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusObjectionStage); err != nil {
				return models.DecisionEvent{}, err
			}
			p.Objections = append(p.Objections, models.Objection{
				ObjectionID: models.NewID(),
				ObjectorID:  req.ActorID,
				Reasoning:   req.Reasoning,
				Criteria:    req.Criteria,
				Status:      models.ObjectionOpen,
				RaisedAt:    now,
			})
			return models.DecisionEvent{Type: models.EventObjectionRaised, Content: req.Reasoning}, nil
		},
	})
}

// ResolveObjectionRequest integrates or withdraws an objection.
type ResolveObjectionRequest struct {
	ProposalID  uuid.UUID
	ObjectionID uuid.UUID
	ActorID     string
	Resolution  string
	RequestID   string
}

// IntegrateObjection marks an OPEN objection INTEGRATED.
func (s *ProposalService) IntegrateObjection(ctx context.Context, req ResolveObjectionRequest) (*Result, error) {
	return s.resolveObjection(ctx, "IntegrateObjection", req, authz.ActionObjectionIntegrate,
		models.ObjectionIntegrated, models.EventObjectionIntegrated)
}

// WithdrawObjection marks an OPEN objection WITHDRAWN. Only its objector may.
func (s *ProposalService) WithdrawObjection(ctx context.Context, req ResolveObjectionRequest) (*Result, error) {
	return s.resolveObjection(ctx, "WithdrawObjection", req, authz.ActionObjectionWithdraw,
		models.ObjectionWithdrawn, models.EventObjectionWithdrawn)
}

func (s *ProposalService) resolveObjection(ctx context.Context, op string, req ResolveObjectionRequest,
	action authz.Action, to models.ObjectionStatus, eventType models.DecisionEventType,
) (*Result, error) {
	return s.run(ctx, change{
		op:         op,
		proposalID: req.ProposalID,
		actorID:    req.ActorID,
		requestID:  req.RequestID,
		apply: func(p *models.Proposal, caps authz.Capacities, now time.Time) (models.DecisionEvent, error) {
			i := slices.IndexFunc(p.Objections, func(o models.Objection) bool { return o.ObjectionID == req.ObjectionID })
			if i < 0 {
				return models.DecisionEvent{}, fail(op, ErrObjectionNotFound, "objection %s not found", req.ObjectionID)
			}
			if p.Objections[i].ObjectorID == req.ActorID {
				caps[authz.CapacityObjector] = true
			}
			if err := s.authorize(op, action, caps); err != nil {
				return models.DecisionEvent{}, err
			}
			if err := requireStage(op, p, models.StatusObjectionStage); err != nil {
				return models.DecisionEvent{}, err
			}

			o := &p.Objections[i]
			if o.Status.IsTerminal() {
				return models.DecisionEvent{}, fail(op, ErrObjectionClosed, "objection %s is %s", o.ObjectionID, o.Status)
			}
			o.Status = to
			o.ResolvedAt = &now
			o.ResolvedBy = req.ActorID
			o.Resolution = req.Resolution

			content := req.Resolution
			if content == "" {
				content = o.ObjectionID.String()
			}
			return models.DecisionEvent{Type: eventType, Content: content}, nil
		},
	})
}
