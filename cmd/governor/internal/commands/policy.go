package commands

import (
	"context"
	"os"

	"github.com/wolfeidau/governor/internal/authz"
)

// PolicyCmd prints the permission matrix after merging the policy file over
// the defaults. It is also how a policy file is validated before use.
type PolicyCmd struct {
	File string `arg:"" optional:"" help:"policy file to check, defaults to --policy-file" type:"existingfile"`
}

func (cmd *PolicyCmd) Run(ctx context.Context, globals *Globals) (err error) {
	_, done := setupLogging(ctx, globals, "policy")
	defer func() { done(err) }()

	path := cmd.File
	if path == "" {
		path = globals.Engine.PolicyFile
	}
	policy, err := authz.LoadPolicy(path)
	if err != nil {
		return err
	}

	data, err := policy.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
