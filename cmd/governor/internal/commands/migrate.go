package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	postgresstore "github.com/wolfeidau/governor/internal/store/postgres"
)

// MigrateCmd applies the PostgreSQL schema.
type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(ctx context.Context, globals *Globals) (err error) {
	ctx, done := setupLogging(ctx, globals, "migrate")
	defer func() { done(err) }()

	if globals.Store.StoreType != "postgres" {
		return errors.New("migrate requires --store-type=postgres")
	}

	cfg := postgresConfig(globals.Store.Postgres)
	cfg.AutoMigrate = true
	stores, err := postgresstore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	defer stores.Close()

	log.Info().Msg("Schema is up to date")
	return nil
}
