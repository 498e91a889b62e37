package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/engine"
	"github.com/wolfeidau/governor/internal/models"
)

// DemoCmd bootstraps an organization and takes one proposal through a
// governance meeting, printing the meeting summary and the resulting circle.
type DemoCmd struct {
	OrgName     string `help:"organization name" default:"Demo Co"`
	Proposer    string `help:"partner raising the tension" default:"pat"`
	Facilitator string `help:"facilitator of the product circle" default:"fran"`
	Secretary   string `help:"secretary of the product circle" default:"sam"`
	Partner     string `help:"partner asking, reacting and objecting" default:"quinn"`
	Object      bool   `help:"raise and integrate an objection" default:"true" negatable:""`
}

func (cmd *DemoCmd) Run(ctx context.Context, globals *Globals) (err error) {
	ctx, done := setupLogging(ctx, globals, "demo")
	defer func() { done(err) }()

	rt, err := openRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()
	eng := rt.engine

	_, root, err := eng.Hierarchy.Bootstrap(ctx, engine.BootstrapRequest{
		OrgName:     cmd.OrgName,
		RootName:    "General Company Circle",
		RootPurpose: "Deliver the company purpose",
		ActorID:     "admin",
	})
	if err != nil {
		return err
	}
	product, err := eng.Hierarchy.CreateCircle(ctx, engine.CreateCircleRequest{
		ParentID:         &root.CircleID,
		Name:             "Product",
		Purpose:          "Build the product customers love",
		Accountabilities: []string{"Prioritising the roadmap"},
		ActorID:          "admin",
	})
	if err != nil {
		return err
	}
	for t, partner := range map[models.SpecialRoleType]string{
		models.SpecialRoleFacilitator: cmd.Facilitator,
		models.SpecialRoleSecretary:   cmd.Secretary,
	} {
		if _, err := assignSpecial(ctx, eng, product.CircleID, t, partner, "admin"); err != nil {
			return err
		}
	}

	created, err := eng.Proposals.Create(ctx, engine.CreateProposalRequest{
		CircleID: product.CircleID,
		Title:    "Create an Operations circle",
		Tension: models.Tension{
			Description:  "Operational work has no owner",
			CurrentState: "Incidents are handled by whoever notices them",
			DesiredState: "A circle is accountable for running production",
			Examples:     []string{"Last week's outage went unnoticed for an hour"},
		},
		Type: models.ProposalTypeCircleStructureChange,
		Mutation: &models.Mutation{Circle: &models.CircleChange{
			Op:      models.OpCreate,
			Name:    "Operations",
			Purpose: "Keep production healthy",
		}},
		ProposerID: cmd.Proposer,
	})
	if err != nil {
		return err
	}
	proposalID := created.Proposal.ProposalID
	if _, err := eng.Proposals.Advance(ctx, engine.AdvanceRequest{
		ProposalID: proposalID,
		ActorID:    cmd.Proposer,
		To:         models.StatusSubmitted,
	}); err != nil {
		return err
	}

	meeting, err := eng.Meetings.Schedule(ctx, engine.ScheduleRequest{
		CircleID:     product.CircleID,
		ScheduledAt:  time.Now().Add(time.Hour),
		Duration:     time.Hour,
		Participants: []string{cmd.Proposer, cmd.Partner, cmd.Facilitator, cmd.Secretary},
		ActorID:      cmd.Facilitator,
	})
	if err != nil {
		return err
	}
	if _, err := eng.Meetings.AddAgendaItem(ctx, meeting.MeetingID, proposalID); err != nil {
		return err
	}
	if _, err := eng.Meetings.Start(ctx, meeting.MeetingID, cmd.Facilitator); err != nil {
		return err
	}
	if _, err := eng.Meetings.RecordAttendance(ctx, meeting.MeetingID, cmd.Proposer, cmd.Partner, cmd.Secretary); err != nil {
		return err
	}
	if _, err := eng.Meetings.RecordCheckIn(ctx, meeting.MeetingID, "Everyone present and focused"); err != nil {
		return err
	}

	for {
		res, err := eng.Meetings.AdvanceCurrentItem(ctx, engine.AdvanceItemRequest{
			MeetingID: meeting.MeetingID,
			ActorID:   cmd.Facilitator,
		})
		if err != nil {
			return err
		}
		log.Info().Str("status", string(res.Proposal.Status)).Msg("Agenda item advanced")
		if res.Settled {
			break
		}
		if err := cmd.participate(ctx, eng, res.Proposal); err != nil {
			return err
		}
	}

	if _, err := eng.Meetings.Complete(ctx, meeting.MeetingID, cmd.Facilitator, "Operations circle agreed"); err != nil {
		return err
	}
	summary, err := eng.Meetings.Summary(ctx, meeting.MeetingID)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, summary)

	tree, err := eng.Hierarchy.Tree(ctx, product.CircleID)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, tree)
}

// participate performs the stage's sub-actions before the facilitator moves on.
func (cmd *DemoCmd) participate(ctx context.Context, eng *engine.Engine, p *models.Proposal) error {
	switch p.Status {
	case models.StatusClarificationStage:
		asked, err := eng.Proposals.AskQuestion(ctx, engine.QuestionRequest{
			ProposalID: p.ProposalID,
			ActorID:    cmd.Partner,
			Text:       "Who is on call until the circle is staffed?",
		})
		if err != nil {
			return err
		}
		q := asked.Proposal.Questions[len(asked.Proposal.Questions)-1]
		_, err = eng.Proposals.AnswerQuestion(ctx, engine.AnswerRequest{
			ProposalID: p.ProposalID,
			QuestionID: q.QuestionID,
			ActorID:    cmd.Proposer,
			Answer:     "The product circle keeps the rota until then",
		})
		return err

	case models.StatusReactionStage:
		_, err := eng.Proposals.AddReaction(ctx, engine.ReactionRequest{
			ProposalID: p.ProposalID,
			ActorID:    cmd.Partner,
			Content:    "Glad to see this owned",
		})
		return err

	case models.StatusAmendStage:
		_, err := eng.Proposals.Amend(ctx, engine.AmendRequest{
			ProposalID:  p.ProposalID,
			ActorID:     cmd.Proposer,
			Description: "Add incident response to the circle",
			Reason:      "Raised during reactions",
			Mutation: &models.Mutation{Circle: &models.CircleChange{
				Op:               models.OpCreate,
				Name:             "Operations",
				Purpose:          "Keep production healthy",
				Accountabilities: []string{"Responding to incidents"},
			}},
		})
		return err

	case models.StatusObjectionStage:
		if !cmd.Object {
			return nil
		}
		raised, err := eng.Proposals.RaiseObjection(ctx, engine.ObjectionRequest{
			ProposalID: p.ProposalID,
			ActorID:    cmd.Partner,
			Reasoning:  "Without a handover date the rota stays with us indefinitely",
			Criteria:   models.ObjectionCriteria{LimitsAccountability: true},
		})
		if err != nil {
			return err
		}
		o := raised.Proposal.Objections[len(raised.Proposal.Objections)-1]
		_, err = eng.Proposals.IntegrateObjection(ctx, engine.ResolveObjectionRequest{
			ProposalID:  p.ProposalID,
			ObjectionID: o.ObjectionID,
			ActorID:     cmd.Facilitator,
			Resolution:  "Handover within one month",
		})
		return err
	}
	return nil
}
