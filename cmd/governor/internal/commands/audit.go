package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// AuditCmd replays every proposal's decision history against its status and
// checks each organization's hierarchy invariants.
type AuditCmd struct {
	OrgID  string `help:"limit the audit to one organization" default:""`
	Status string `help:"limit the audit to proposals in this status" default:""`
}

type auditFinding struct {
	Scope  string `json:"scope"`
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error"`
}

type auditOutput struct {
	ProposalsChecked     int            `json:"proposals_checked"`
	OrganizationsChecked int            `json:"organizations_checked"`
	Findings             []auditFinding `json:"findings"`
}

func (cmd *AuditCmd) Run(ctx context.Context, globals *Globals) (err error) {
	ctx, done := setupLogging(ctx, globals, "audit")
	defer func() { done(err) }()

	filter := store.ProposalFilter{Status: models.ProposalStatus(cmd.Status)}
	if cmd.OrgID != "" {
		if filter.OrgID, err = uuid.Parse(cmd.OrgID); err != nil {
			return fmt.Errorf("invalid org id: %w", err)
		}
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("unknown proposal status %q", cmd.Status)
	}

	rt, err := openRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.engine.Proposals.Audit(ctx, filter)
	if err != nil {
		return err
	}
	out := auditOutput{ProposalsChecked: report.Checked}
	for _, f := range report.Findings {
		out.Findings = append(out.Findings, auditFinding{
			Scope:  "proposal",
			ID:     f.ProposalID.String(),
			Status: string(f.Status),
			Error:  f.Err.Error(),
		})
	}

	orgs, err := rt.engine.Hierarchy.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		if filter.OrgID != uuid.Nil && org.OrgID != filter.OrgID {
			continue
		}
		out.OrganizationsChecked++
		if err := rt.engine.Hierarchy.Check(ctx, org.OrgID); err != nil {
			out.Findings = append(out.Findings, auditFinding{Scope: "organization", ID: org.OrgID.String(), Error: err.Error()})
		}
	}

	if err := printJSON(os.Stdout, out); err != nil {
		return err
	}
	if len(out.Findings) > 0 {
		log.Warn().Int("findings", len(out.Findings)).Msg("Audit found problems")
		return errors.New("audit failed")
	}
	return nil
}
