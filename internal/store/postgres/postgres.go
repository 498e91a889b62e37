package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Stores bundles the PostgreSQL-backed governance stores over one pool.
type Stores struct {
	Pool      *pgxpool.Pool
	Hierarchy *HierarchyStore
	Proposals *ProposalStore
	Meetings  *MeetingStore
}

// Open connects to PostgreSQL, optionally runs migrations and returns the stores.
func Open(ctx context.Context, cfg *Config) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("database", pc.ConnConfig.Database).
		Str("host", pc.ConnConfig.Host).
		Int32("max_conns", pc.MaxConns).
		Dur("statement_timeout", cfg.QueryTimeout).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 10*cfg.QueryTimeout)
		defer cancel()
		if err := Migrate(migrateCtx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	return &Stores{
		Pool:      pool,
		Hierarchy: NewHierarchyStore(pool),
		Proposals: NewProposalStore(pool),
		Meetings:  NewMeetingStore(pool),
	}, nil
}

// Close releases the connection pool.
func (s *Stores) Close() {
	log.Info().Msg("Closing PostgreSQL stores")
	s.Pool.Close()
}
