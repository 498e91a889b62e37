package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/engine"
	"github.com/wolfeidau/governor/internal/models"
)

// BootstrapCmd creates an organization with its root circle and optionally
// seats the root circle's special roles.
type BootstrapCmd struct {
	OrgName          string   `arg:"" help:"organization name"`
	RootName         string   `help:"root circle name" default:"General Company Circle"`
	RootPurpose      string   `help:"root circle purpose" default:""`
	Accountabilities []string `help:"root circle accountabilities"`
	Actor            string   `help:"actor recorded for the bootstrap" default:"admin" env:"GOVERNOR_ACTOR"`

	Lead        string `help:"partner to assign as CIRCLE_LEAD"`
	Facilitator string `help:"partner to assign as FACILITATOR"`
	Secretary   string `help:"partner to assign as SECRETARY"`
	Rep         string `help:"partner to assign as CIRCLE_REP"`
}

type bootstrapOutput struct {
	Organization *models.Organization     `json:"organization"`
	Root         *models.Circle           `json:"root"`
	Assignments  []*models.RoleAssignment `json:"assignments"`
}

func (cmd *BootstrapCmd) Run(ctx context.Context, globals *Globals) (err error) {
	ctx, done := setupLogging(ctx, globals, "bootstrap")
	defer func() { done(err) }()

	rt, err := openRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	org, root, err := rt.engine.Hierarchy.Bootstrap(ctx, engine.BootstrapRequest{
		OrgName:          cmd.OrgName,
		RootName:         cmd.RootName,
		RootPurpose:      cmd.RootPurpose,
		Accountabilities: cmd.Accountabilities,
		ActorID:          cmd.Actor,
	})
	if err != nil {
		return err
	}

	out := bootstrapOutput{Organization: org, Root: root}
	seats := map[models.SpecialRoleType]string{
		models.SpecialRoleCircleLead:  cmd.Lead,
		models.SpecialRoleFacilitator: cmd.Facilitator,
		models.SpecialRoleSecretary:   cmd.Secretary,
		models.SpecialRoleCircleRep:   cmd.Rep,
	}
	for _, t := range models.SpecialRoleTypes {
		if seats[t] == "" {
			continue
		}
		a, err := assignSpecial(ctx, rt.engine, root.CircleID, t, seats[t], cmd.Actor)
		if err != nil {
			return err
		}
		out.Assignments = append(out.Assignments, a)
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("root_circle_id", root.CircleID.String()).
		Int("assignments", len(out.Assignments)).
		Msg("Organization bootstrapped")

	return printJSON(os.Stdout, out)
}

// assignSpecial gives partnerID the circle's special role of type t.
func assignSpecial(ctx context.Context, eng *engine.Engine, circleID uuid.UUID, t models.SpecialRoleType, partnerID, actorID string) (*models.RoleAssignment, error) {
	roles, err := eng.Hierarchy.ListRoles(ctx, circleID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.SpecialType == t {
			return eng.Assignments.AssignRole(ctx, r.RoleID, partnerID, actorID)
		}
	}
	return nil, fmt.Errorf("circle %s has no %s role", circleID, t)
}
