package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/governor/cmd/governor/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag

		Tracing bool                 `help:"export traces and metrics over OTLP" default:"false" env:"GOVERNOR_TRACING"`
		Store   commands.StoreFlags  `embed:""`
		Notify  commands.NotifyFlags `embed:"" prefix:"notify-"`
		Engine  commands.EngineFlags `embed:""`

		Migrate      commands.MigrateCmd      `cmd:"" help:"Apply database migrations"`
		Bootstrap    commands.BootstrapCmd    `cmd:"" help:"Create an organization and its root circle"`
		Audit        commands.AuditCmd        `cmd:"" help:"Replay proposal histories and report divergence"`
		ApplyPending commands.ApplyPendingCmd `cmd:"" name:"apply-pending" help:"Apply every approved proposal"`
		Policy       commands.PolicyCmd       `cmd:"" help:"Print the effective permission policy"`
		Demo         commands.DemoCmd         `cmd:"" help:"Run a governance meeting end to end"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Tracing: cli.Tracing,
		Store:   cli.Store,
		Notify:  cli.Notify,
		Engine:  cli.Engine,
	})
	cmd.FatalIfErrorf(err)
}
