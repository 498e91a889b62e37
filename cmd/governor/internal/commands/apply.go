package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ApplyPendingCmd applies approved proposals left behind by a deferred or
// interrupted application.
type ApplyPendingCmd struct {
	ProposalID string `help:"apply only this proposal" default:""`
}

func (cmd *ApplyPendingCmd) Run(ctx context.Context, globals *Globals) (err error) {
	ctx, done := setupLogging(ctx, globals, "apply-pending")
	defer func() { done(err) }()

	rt, err := openRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cmd.ProposalID != "" {
		id, err := uuid.Parse(cmd.ProposalID)
		if err != nil {
			return fmt.Errorf("invalid proposal id: %w", err)
		}
		p, err := rt.engine.Applier.Apply(ctx, id)
		if err != nil {
			return err
		}
		log.Info().Str("proposal_id", id.String()).Str("status", string(p.Status)).Msg("Proposal applied")
		return nil
	}

	applied, err := rt.engine.Applier.ApplyPending(ctx)
	log.Info().Int("applied", applied).Msg("Pending proposals processed")
	return err
}
